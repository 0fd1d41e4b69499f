// Copyright 2025 Certen Protocol
//
// Package peersync implements cross-registry mirroring (spec §4.10): nodes
// periodically compare their latest Merkle root against a list of peer
// registries and pull whatever the peer has that the local store doesn't.
// Grounded on the teacher's HTTPPeerManager (pkg/batch/peer_manager.go) —
// the per-peer status tracking, configurable-timeout HTTP client, and
// request/response JSON shape are kept; the BLS-attestation-specific
// request/response types are replaced with root-exchange and gap-fill ones.
package peersync

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// DefaultSyncInterval matches the spec's default peer-sync cadence.
const DefaultSyncInterval = time.Hour

// Status is a peer's last-observed reachability.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// MerkleRootExchange is what a peer advertises about its current state.
type MerkleRootExchange struct {
	PeerRegistryID string
	MerkleRoot     string
	BatchID        string
	Timestamp      time.Time
	TotalProofs    int
	TotalBatches   int
	Signature      []byte // optional; verification is a Client concern
}

// Client abstracts the outbound HTTP capability a peer sync needs, so the
// sync loop is testable without a live transport. HTTPClient (httpclient.go)
// is the package's HTTP implementation.
type Client interface {
	FetchRootExchange(ctx context.Context, endpoint string) (*MerkleRootExchange, error)
	// FetchProofsSince returns the peer's proofs beyond its sinceTotal-th,
	// in the peer's stable order. Pagination is the Client's concern.
	FetchProofsSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.ProofRecord, error)
	FetchBatchesSince(ctx context.Context, endpoint string, sinceTotal int) ([]*model.Batch, error)
}

// Peer is one mirror registry this node tracks.
type Peer struct {
	ID       string
	Endpoint string

	mu       sync.Mutex // serializes sync attempts against this peer
	status   Status
	lastSeen time.Time
	lastSync time.Time
}

func (p *Peer) snapshot() PeerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerSnapshot{
		ID:       p.ID,
		Endpoint: p.Endpoint,
		Status:   p.status,
		LastSeen: p.lastSeen,
		LastSync: p.lastSync,
	}
}

// PeerSnapshot is a read-only view of a Peer's tracked state.
type PeerSnapshot struct {
	ID       string
	Endpoint string
	Status   Status
	LastSeen time.Time
	LastSync time.Time
}

// Manager tracks a set of peer registries and syncs against them. Sync is
// serialized per peer and parallel across peers (spec §4.10, invariant #8).
type Manager struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	client Client
	store  store.Store
	logger *log.Logger
}

// New constructs a peer sync Manager. store must expose at least ProofStore
// and BatchStore; the full store.Store is accepted since a registry always
// wires one concrete implementation.
func New(client Client, s store.Store) *Manager {
	return &Manager{
		peers:  make(map[string]*Peer),
		client: client,
		store:  s,
		logger: log.New(os.Stderr, "[peersync] ", log.LstdFlags),
	}
}

// AddPeer registers a peer endpoint. Re-adding an existing peer ID replaces
// its endpoint but keeps its tracked status.
func (m *Manager) AddPeer(id, endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		p.Endpoint = endpoint
		return
	}
	m.peers[id] = &Peer{ID: id, Endpoint: endpoint, status: StatusInactive}
}

// RemovePeer drops a peer from tracking.
func (m *Manager) RemovePeer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

// ListPeers returns a snapshot of every tracked peer.
func (m *Manager) ListPeers() []PeerSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerSnapshot, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p.snapshot())
	}
	return out
}

func (m *Manager) peer(id string) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[id]
	return p, ok
}

// SyncAll runs SyncPeer against every tracked peer concurrently. Peer sync
// is parallel across peers and serialized per peer (each Peer's own mutex
// blocks a concurrent SyncAll/SyncPeer call against the same peer).
func (m *Manager) SyncAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.SyncPeer(ctx, id); err != nil {
				m.logger.Printf("sync with peer %s failed: %v", id, err)
			}
		}()
	}
	wg.Wait()
}

// SyncPeer runs one root-exchange + gap-fill cycle against a single peer
// (spec §4.10 steps 1-4). It is safe to call concurrently for distinct
// peers; concurrent calls for the same peer serialize on that peer's lock.
func (m *Manager) SyncPeer(ctx context.Context, peerID string) error {
	p, ok := m.peer(peerID)
	if !ok {
		return ErrUnknownPeer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	exchange, err := m.client.FetchRootExchange(ctx, p.Endpoint)
	if err != nil {
		p.status = StatusError
		return err
	}
	p.status = StatusActive
	p.lastSeen = time.Now()

	localRoot, err := m.localLatestRoot(ctx)
	if err != nil {
		p.status = StatusError
		return err
	}
	if localRoot != "" && localRoot == exchange.MerkleRoot {
		p.lastSync = time.Now()
		return nil
	}

	if err := m.gapFill(ctx, p.Endpoint, exchange); err != nil {
		p.status = StatusError
		return err
	}
	p.lastSync = time.Now()
	return nil
}

func (m *Manager) localLatestRoot(ctx context.Context) (string, error) {
	latest, err := m.store.GetLatestBatch(ctx)
	if err != nil {
		if regerr.Is(err, regerr.KindNotFound) {
			return "", nil
		}
		return "", err
	}
	return latest.Root, nil
}

// gapFill requests everything beyond the local counts and imports whatever
// the local store doesn't already have. A synced proof arrives already
// batched (step 3: "do not replay pending status"), so it is inserted with
// its BatchID/MerkleIndex intact rather than routed through the batcher.
func (m *Manager) gapFill(ctx context.Context, endpoint string, exchange *MerkleRootExchange) error {
	localProofTotal, err := m.store.CountTotal(ctx)
	if err != nil {
		return err
	}

	peerProofs, err := m.client.FetchProofsSince(ctx, endpoint, localProofTotal)
	if err != nil {
		return err
	}
	for _, proof := range peerProofs {
		if _, err := m.store.GetByContentHash(ctx, proof.ContentHash); err == nil {
			continue // already known locally
		}
		imported := stripTransientFields(proof)
		if err := m.store.InsertProof(ctx, imported); err != nil && !regerr.Is(err, regerr.KindConflict) {
			return err
		}
	}

	localBatches, err := m.store.ListBatches(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(localBatches))
	for _, b := range localBatches {
		known[b.ID] = true
	}

	peerBatches, err := m.client.FetchBatchesSince(ctx, endpoint, len(localBatches))
	if err != nil {
		return err
	}
	for _, b := range peerBatches {
		if known[b.ID] {
			continue
		}
		if err := m.store.InsertBatch(ctx, b); err != nil && !regerr.Is(err, regerr.KindConflict) {
			return err
		}
	}
	return nil
}

// stripTransientFields drops fields that are local to the registry that
// produced them rather than portable facts about the proof: a ClaimURI is
// self-referential to its issuing registry (spec §4.12), so an imported
// proof gets a blank one until this registry builds its own claim for it.
func stripTransientFields(p *model.ProofRecord) *model.ProofRecord {
	cp := *p
	cp.ClaimURI = ""
	return &cp
}

// ErrUnknownPeer is returned when SyncPeer is called for an unregistered peer ID.
var ErrUnknownPeer = errUnknownPeer{}

type errUnknownPeer struct{}

func (errUnknownPeer) Error() string { return "peersync: unknown peer" }
