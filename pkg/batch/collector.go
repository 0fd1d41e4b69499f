// Copyright 2025 Certen Protocol
//
// Package batch implements the batching engine (spec §4.8): draining the
// pending-proof queue into a deterministic Merkle tree, creating the Batch
// record, assigning each proof its batch id and leaf index, and serving
// inclusion-proof requests for already-batched proofs.
package batch

import (
	"context"
	"errors"
	"time"

	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/merkle"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// DefaultBatchSize is the pending-count threshold that triggers a batch
// (spec §6, default 1000).
const DefaultBatchSize = 1000

var ErrNoPendingProofs = errors.New("batch: no pending proofs to batch")

// IDGenerator produces a new batch identifier. Exposed as a field so tests
// can supply deterministic ids; production wiring uses uuid.NewString.
type IDGenerator func() string

// Collector drains the pending queue and builds batches.
type Collector struct {
	store     store.ProofStore
	batches   store.BatchStore
	newID     IDGenerator
	BatchSize int
}

// New constructs a Collector. idGen must not be nil.
func New(proofs store.ProofStore, batches store.BatchStore, idGen IDGenerator) *Collector {
	return &Collector{store: proofs, batches: batches, newID: idGen, BatchSize: DefaultBatchSize}
}

// ClosedBatch is the result of successfully draining the pending queue.
type ClosedBatch struct {
	Batch         *model.Batch
	ContentHashes []string // leaf order, index i corresponds to merkleIndex i
}

// CreateBatch snapshots the pending queue ordered by submittedAt ascending,
// builds a Merkle tree over the snapshot's content hashes, and assigns each
// proof its batch id and leaf index. It is safe to call with fewer proofs
// pending than BatchSize — spec §4.8 allows an explicit operator request
// regardless of the threshold, and backpressure (spec §5) drops the
// threshold check entirely.
func (c *Collector) CreateBatch(ctx context.Context, limit int) (*ClosedBatch, error) {
	snapshot, err := c.store.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrNoPendingProofs
	}

	leaves := make([][]byte, len(snapshot))
	hashes := make([]string, len(snapshot))
	for i, p := range snapshot {
		digest, err := certcrypto.FromHex(p.ContentHash)
		if err != nil {
			return nil, regerr.Integrity("malformed_stored_content_hash", "proof "+p.ContentHash+" has a malformed content hash")
		}
		leaves[i] = append([]byte(nil), digest[:]...)
		hashes[i] = p.ContentHash
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, regerr.Integrity("merkle_build_failed", err.Error())
	}

	batchRecord := &model.Batch{
		ID:        c.newID(),
		Root:      tree.RootHex(),
		Size:      len(snapshot),
		CreatedAt: time.Now(),
	}
	if err := c.batches.InsertBatch(ctx, batchRecord); err != nil {
		return nil, err
	}

	// assignBatch is idempotent per spec §4.8's failure-recovery note: if
	// this loop is interrupted and retried with the same batch id and
	// snapshot order, re-running it is a no-op for already-assigned proofs.
	for i, hash := range hashes {
		if err := c.store.AssignBatch(ctx, hash, batchRecord.ID, i); err != nil {
			return nil, err
		}
	}

	return &ClosedBatch{Batch: batchRecord, ContentHashes: hashes}, nil
}

// ShouldBatch reports whether the pending count meets BatchSize, or, when
// backpressure is set, whether any proof is pending at all regardless of
// BatchSize (spec §5 backpressure: "batch creation runs more aggressively").
func (c *Collector) ShouldBatch(ctx context.Context, backpressure bool) (bool, error) {
	pending, err := c.store.CountPending(ctx)
	if err != nil {
		return false, err
	}
	if backpressure {
		return pending > 0, nil
	}
	return pending >= c.BatchSize, nil
}

// InclusionProof retrieves (batchId, merkleIndex) for contentHash, loads the
// ordered leaf list for that batch, and derives the sibling path (spec
// §4.8).
func (c *Collector) InclusionProof(ctx context.Context, contentHash string) (*merkle.InclusionProof, *model.Batch, error) {
	normalized, err := certcrypto.NormalizeHex(contentHash)
	if err != nil {
		return nil, nil, regerr.Validation("malformed_content_hash", err.Error())
	}
	proof, err := c.store.GetByContentHash(ctx, normalized)
	if err != nil {
		return nil, nil, err
	}
	if proof.BatchID == "" || proof.MerkleIndex == nil {
		return nil, nil, regerr.NotFound("proof_not_batched", "proof "+normalized+" has not been assigned to a batch yet")
	}

	batchRecord, err := c.batches.GetBatch(ctx, proof.BatchID)
	if err != nil {
		return nil, nil, err
	}
	batchProofs, err := c.batches.ListBatchProofs(ctx, proof.BatchID)
	if err != nil {
		return nil, nil, err
	}

	leaves := make([][]byte, len(batchProofs))
	for _, bp := range batchProofs {
		if bp.MerkleIndex == nil {
			return nil, nil, regerr.Integrity("unindexed_batch_member", "batch "+proof.BatchID+" contains an unindexed proof")
		}
		digest, err := certcrypto.FromHex(bp.ContentHash)
		if err != nil {
			return nil, nil, regerr.Integrity("malformed_stored_content_hash", err.Error())
		}
		leaves[*bp.MerkleIndex] = append([]byte(nil), digest[:]...)
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, nil, regerr.Integrity("merkle_build_failed", err.Error())
	}
	if tree.RootHex() != batchRecord.Root {
		return nil, nil, regerr.Integrity("batch_root_mismatch", "recomputed root does not match the stored batch root")
	}

	inclusion, err := tree.GenerateProof(*proof.MerkleIndex)
	if err != nil {
		return nil, nil, regerr.Integrity("proof_generation_failed", err.Error())
	}
	return inclusion, batchRecord, nil
}
