// Copyright 2025 Certen Protocol

package peersync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

type fakeClient struct {
	exchange    *MerkleRootExchange
	exchangeErr error
	proofs      []*model.ProofRecord
	proofsErr   error
	batches     []*model.Batch
	batchesErr  error

	proofsSinceCalledWith int
	batchesSinceCalledWith int
}

func (f *fakeClient) FetchRootExchange(ctx context.Context, endpoint string) (*MerkleRootExchange, error) {
	return f.exchange, f.exchangeErr
}

func (f *fakeClient) FetchProofsSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.ProofRecord, error) {
	f.proofsSinceCalledWith = sinceTotal
	return f.proofs, f.proofsErr
}

func (f *fakeClient) FetchBatchesSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.Batch, error) {
	f.batchesSinceCalledWith = sinceTotal
	return f.batches, f.batchesErr
}

func repeatHex(pair string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pair
	}
	return out
}

func TestSyncPeer_NoOpWhenRootsMatch(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	root := "0x" + repeatHex("ab", 32)
	if err := ms.InsertBatch(ctx, &model.Batch{ID: "batch-1", Root: root, Size: 1, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	client := &fakeClient{exchange: &MerkleRootExchange{PeerRegistryID: "peer-a", MerkleRoot: root}}
	mgr := New(client, ms)
	mgr.AddPeer("peer-a", "https://peer-a.example")

	if err := mgr.SyncPeer(ctx, "peer-a"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	peers := mgr.ListPeers()
	if len(peers) != 1 || peers[0].Status != StatusActive {
		t.Fatalf("expected peer marked active, got %+v", peers)
	}
}

func TestSyncPeer_GapFillImportsUnknownProofsAndBatches(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()

	peerProof := &model.ProofRecord{
		ID:          "proof-remote-1",
		ContentHash: "0x" + repeatHex("11", 32),
		AuthorID:    "did:example:remote",
		Tier:        model.TierGrey,
		BatchID:     "batch-remote-1",
		ClaimURI:    "registry://peer-a/claims/proof-remote-1",
	}
	idx := 0
	peerProof.MerkleIndex = &idx
	peerBatch := &model.Batch{ID: "batch-remote-1", Root: "0x" + repeatHex("22", 32), Size: 1, CreatedAt: time.Now()}

	client := &fakeClient{
		exchange: &MerkleRootExchange{PeerRegistryID: "peer-a", MerkleRoot: peerBatch.Root, TotalProofs: 1, TotalBatches: 1},
		proofs:   []*model.ProofRecord{peerProof},
		batches:  []*model.Batch{peerBatch},
	}
	mgr := New(client, ms)
	mgr.AddPeer("peer-a", "https://peer-a.example")

	if err := mgr.SyncPeer(ctx, "peer-a"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, err := ms.GetByContentHash(ctx, peerProof.ContentHash)
	if err != nil {
		t.Fatalf("expected imported proof, got error: %v", err)
	}
	if got.ClaimURI != "" {
		t.Errorf("expected ClaimURI stripped on import, got %q", got.ClaimURI)
	}
	if got.BatchID != "batch-remote-1" {
		t.Errorf("expected imported proof to arrive already-batched, got BatchID=%q", got.BatchID)
	}

	b, err := ms.GetBatch(ctx, "batch-remote-1")
	if err != nil {
		t.Fatalf("expected imported batch, got error: %v", err)
	}
	if b.Root != peerBatch.Root {
		t.Errorf("imported batch root mismatch: got %s want %s", b.Root, peerBatch.Root)
	}
}

func TestSyncPeer_SkipsAlreadyKnownRecords(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()

	existingHash := "0x" + repeatHex("33", 32)
	if err := ms.InsertProof(ctx, &model.ProofRecord{ID: "local-1", ContentHash: existingHash, Tier: model.TierGrey}); err != nil {
		t.Fatalf("seed proof: %v", err)
	}

	client := &fakeClient{
		exchange: &MerkleRootExchange{PeerRegistryID: "peer-a", MerkleRoot: "0x" + repeatHex("99", 32)},
		proofs:   []*model.ProofRecord{{ID: "remote-1", ContentHash: existingHash, Tier: model.TierGrey}},
	}
	mgr := New(client, ms)
	mgr.AddPeer("peer-a", "https://peer-a.example")

	if err := mgr.SyncPeer(ctx, "peer-a"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, err := ms.GetByContentHash(ctx, existingHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != "local-1" {
		t.Errorf("expected local record to remain authoritative, got ID=%q", got.ID)
	}
}

func TestSyncPeer_MarksErrorStatusOnFailure(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()

	client := &fakeClient{exchangeErr: errors.New("connection refused")}
	mgr := New(client, ms)
	mgr.AddPeer("peer-a", "https://peer-a.example")

	if err := mgr.SyncPeer(ctx, "peer-a"); err == nil {
		t.Fatal("expected sync error to propagate")
	}
	peers := mgr.ListPeers()
	if len(peers) != 1 || peers[0].Status != StatusError {
		t.Fatalf("expected peer marked error, got %+v", peers)
	}
}

func TestSyncPeer_UnknownPeerReturnsError(t *testing.T) {
	ms := memstore.New()
	mgr := New(&fakeClient{}, ms)
	if err := mgr.SyncPeer(context.Background(), "ghost"); err != ErrUnknownPeer {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestSyncAll_RunsEveryPeerConcurrently(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	root := "0x" + repeatHex("44", 32)
	if err := ms.InsertBatch(ctx, &model.Batch{ID: "batch-1", Root: root, Size: 1, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	client := &fakeClient{exchange: &MerkleRootExchange{MerkleRoot: root}}
	mgr := New(client, ms)
	mgr.AddPeer("peer-a", "https://a.example")
	mgr.AddPeer("peer-b", "https://b.example")

	mgr.SyncAll(ctx)

	for _, p := range mgr.ListPeers() {
		if p.Status != StatusActive {
			t.Errorf("peer %s: expected active, got %s", p.ID, p.Status)
		}
		if p.LastSync.IsZero() {
			t.Errorf("peer %s: expected LastSync to be set", p.ID)
		}
	}
}
