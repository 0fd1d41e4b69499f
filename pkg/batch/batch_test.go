// Copyright 2025 Certen Protocol

package batch

import (
	"context"
	"testing"
	"time"

	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/merkle"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

func repeatHex(pair string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += pair
	}
	return out
}

func insertPending(t *testing.T, ms *memstore.Store, hashSuffix string, submittedAt time.Time) string {
	t.Helper()
	hash := "0x" + repeatHex(hashSuffix)
	err := ms.InsertProof(context.Background(), &model.ProofRecord{
		ID:          hash,
		ContentHash: hash,
		AuthorID:    "did:pohw:author",
		SubmittedAt: submittedAt,
		Tier:        model.TierGrey,
	})
	if err != nil {
		t.Fatalf("insert proof: %v", err)
	}
	return hash
}

func sequentialID() IDGenerator {
	n := 0
	return func() string {
		n++
		return "batch-" + string(rune('0'+n))
	}
}

// TestCreateBatch_S2_FourProofs covers the four-proof batching scenario
// (spec §8 S2): every proof in the batch is assigned a merkleIndex, the
// batch size matches the submission count, and inclusion proofs verify
// against the stored root for every member.
func TestCreateBatch_S2_FourProofs(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	base := time.Now()
	hashes := []string{
		insertPending(t, ms, "01", base),
		insertPending(t, ms, "02", base.Add(time.Second)),
		insertPending(t, ms, "03", base.Add(2*time.Second)),
		insertPending(t, ms, "04", base.Add(3*time.Second)),
	}

	c := New(ms, ms, sequentialID())
	closed, err := c.CreateBatch(ctx, 0)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if closed.Batch.Size != 4 {
		t.Fatalf("batch size = %d, want 4", closed.Batch.Size)
	}
	if len(closed.ContentHashes) != 4 {
		t.Fatalf("content hashes = %d, want 4", len(closed.ContentHashes))
	}
	for i, h := range hashes {
		if closed.ContentHashes[i] != h {
			t.Errorf("leaf order mismatch at %d: got %s want %s", i, closed.ContentHashes[i], h)
		}
	}

	for i, h := range hashes {
		p, err := ms.GetByContentHash(ctx, h)
		if err != nil {
			t.Fatalf("get %s: %v", h, err)
		}
		if p.BatchID != closed.Batch.ID {
			t.Errorf("proof %s batch id = %s, want %s", h, p.BatchID, closed.Batch.ID)
		}
		if p.MerkleIndex == nil || *p.MerkleIndex != i {
			t.Errorf("proof %s merkle index = %v, want %d", h, p.MerkleIndex, i)
		}

		inclusion, batchRecord, err := c.InclusionProof(ctx, h)
		if err != nil {
			t.Fatalf("inclusion proof for %s: %v", h, err)
		}
		if batchRecord.ID != closed.Batch.ID {
			t.Errorf("inclusion proof batch id mismatch")
		}
		digest, _ := certcrypto.FromHex(h)
		rootDigest, _ := certcrypto.FromHex(closed.Batch.Root)
		ok, err := merkle.VerifyProof(digest[:], inclusion, rootDigest[:])
		if err != nil {
			t.Fatalf("verify proof for %s: %v", h, err)
		}
		if !ok {
			t.Errorf("inclusion proof for %s did not verify against the batch root", h)
		}
	}
}

// TestCreateBatch_InvariantSizeMatchesMembership covers invariant #3: batch
// size n iff exactly n proofs reference it with merkleIndex values {0..n-1}.
func TestCreateBatch_InvariantSizeMatchesMembership(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	base := time.Now()
	for i := 0; i < 6; i++ {
		insertPending(t, ms, string(rune('a'+i))+"0", base.Add(time.Duration(i)*time.Second))
	}

	c := New(ms, ms, sequentialID())
	closed, err := c.CreateBatch(ctx, 0)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	members, err := ms.ListBatchProofs(ctx, closed.Batch.ID)
	if err != nil {
		t.Fatalf("list batch proofs: %v", err)
	}
	if len(members) != closed.Batch.Size {
		t.Fatalf("member count = %d, want batch size %d", len(members), closed.Batch.Size)
	}
	seen := make(map[int]bool)
	for _, m := range members {
		if m.MerkleIndex == nil {
			t.Fatalf("member %s has no merkle index", m.ContentHash)
		}
		seen[*m.MerkleIndex] = true
	}
	for i := 0; i < closed.Batch.Size; i++ {
		if !seen[i] {
			t.Errorf("missing merkle index %d among batch members", i)
		}
	}
}

func TestCreateBatch_NoPendingReturnsSentinel(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	c := New(ms, ms, sequentialID())
	if _, err := c.CreateBatch(ctx, 0); err != ErrNoPendingProofs {
		t.Fatalf("expected ErrNoPendingProofs, got %v", err)
	}
}

func TestShouldBatch_ThresholdAndBackpressure(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	insertPending(t, ms, "ff", time.Now())

	c := New(ms, ms, sequentialID())
	c.BatchSize = 10
	should, err := c.ShouldBatch(ctx, false)
	if err != nil {
		t.Fatalf("should batch: %v", err)
	}
	if should {
		t.Error("expected no batch below threshold without backpressure")
	}
	should, err = c.ShouldBatch(ctx, true)
	if err != nil {
		t.Fatalf("should batch (backpressure): %v", err)
	}
	if !should {
		t.Error("expected backpressure to force a batch with any pending proof")
	}
}
