// Copyright 2025 Certen Protocol
//
// Package store defines the narrow capability interfaces every other
// registry component is built against (spec §4.3). One interface per
// subdomain — proofs, batches, identity, attestors/credentials,
// audit/reputation, disputes — so a concrete backend can multiplex them
// over a single database connection while callers depend only on the slice
// of behavior they actually need. File-backed and SQL implementations are
// out of core scope per spec §1; pkg/store/memstore provides a reference
// implementation used by tests.
package store

import (
	"context"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
)

// ProofStore is the capability surface for ProofRecord persistence.
type ProofStore interface {
	InsertProof(ctx context.Context, p *model.ProofRecord) error
	GetByContentHash(ctx context.Context, contentHash string) (*model.ProofRecord, error)
	GetByCompoundHash(ctx context.Context, compoundHash string) (*model.ProofRecord, error)
	ListByContentHash(ctx context.Context, contentHash string) ([]*model.ProofRecord, error)
	ListPending(ctx context.Context, limit int) ([]*model.ProofRecord, error)
	CountPending(ctx context.Context) (int, error)
	CountTotal(ctx context.Context) (int, error)
	AssignBatch(ctx context.Context, contentHash, batchID string, merkleIndex int) error
}

// BatchStore is the capability surface for Batch persistence.
type BatchStore interface {
	InsertBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	GetLatestBatch(ctx context.Context) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]*model.Batch, error)
	ListBatchProofs(ctx context.Context, batchID string) ([]*model.ProofRecord, error)
	AppendAnchors(ctx context.Context, batchID string, anchors []model.Anchor) error
}

// IdentityStore is the capability surface for identity documents and the
// continuity graph.
type IdentityStore interface {
	PutDocument(ctx context.Context, doc *model.IdentityDocument) error
	GetDocument(ctx context.Context, identifier string) (*model.IdentityDocument, error)
	ListDocuments(ctx context.Context) ([]*model.IdentityDocument, error)
	PutContinuityNode(ctx context.Context, node *model.ContinuityNode) error
	GetContinuityNode(ctx context.Context, identifier string) (*model.ContinuityNode, error)
	// WalkContinuityChain follows previous-pointers starting at identifier
	// and returns the chain ordered oldest -> newest (ending at identifier).
	WalkContinuityChain(ctx context.Context, identifier string) ([]*model.ContinuityNode, error)
}

// AttestorStore is the capability surface for attestors and credentials.
type AttestorStore interface {
	PutAttestor(ctx context.Context, a *model.AttestorRecord) error
	GetAttestor(ctx context.Context, identifier string) (*model.AttestorRecord, error)
	ListAttestors(ctx context.Context) ([]*model.AttestorRecord, error)

	PutCredential(ctx context.Context, hash string, cred *model.Credential) error
	GetCredential(ctx context.Context, hash string) (*model.Credential, error)
	ListCredentialsForSubject(ctx context.Context, subjectID string) ([]*model.Credential, error)

	PutRevocation(ctx context.Context, r *model.RevocationEntry) error
	GetRevocation(ctx context.Context, credentialHash string) (*model.RevocationEntry, error)
	ListRevocations(ctx context.Context) ([]*model.RevocationEntry, error)
}

// AuditStore is the capability surface for the audit log and fraud-mitigation
// bookkeeping (reputation, submission history, anomalies).
type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, attestorID string, limit int) ([]*model.AuditEntry, error)

	PutReputation(ctx context.Context, r *model.Reputation) error
	GetReputation(ctx context.Context, identifier string) (*model.Reputation, error)
	ListReputation(ctx context.Context) ([]*model.Reputation, error)

	AppendSubmission(ctx context.Context, e *model.SubmissionEntry) error
	ListSubmissions(ctx context.Context, identifier string, since time.Duration) ([]*model.SubmissionEntry, error)
	// PruneSubmissions drops every identity's submission history older than
	// olderThan.
	PruneSubmissions(ctx context.Context, olderThan time.Duration) error

	AppendAnomaly(ctx context.Context, e *model.AnomalyEntry) error
	ListAnomalies(ctx context.Context, identifier string) ([]*model.AnomalyEntry, error)
}

// DisputeStore is the capability surface for the dispute engine.
type DisputeStore interface {
	InsertChallenge(ctx context.Context, c *model.Challenge) error
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	ListChallengesByProof(ctx context.Context, proofHash string) ([]*model.Challenge, error)
	ListChallengesByParty(ctx context.Context, partyID string) ([]*model.Challenge, error)
	// UpdateChallenge applies a partial, atomic update to an existing
	// challenge; callers pass a function that mutates a copy of the current
	// record so invalid transitions can be rejected by the caller before
	// the store ever sees them.
	UpdateChallenge(ctx context.Context, id string, mutate func(*model.Challenge) error) error

	AppendTransparency(ctx context.Context, e *model.TransparencyLogEntry) error
	ListTransparency(ctx context.Context, limit int) ([]*model.TransparencyLogEntry, error)
}

// Store is the union of every subdomain capability. Concrete backends
// implement Store as a whole, typically by multiplexing each interface over
// one underlying connection (spec §9: "one capability interface per
// subdomain ... a concrete implementation may multiplex them over a single
// backend").
type Store interface {
	ProofStore
	BatchStore
	IdentityStore
	AttestorStore
	AuditStore
	DisputeStore
}
