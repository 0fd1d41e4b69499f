// Copyright 2025 Certen Protocol
//
// Package memstore is an in-memory reference implementation of the Store
// Port (pkg/store), used by the core's own tests and by callers that want
// to exercise the pipeline without a real database. It is not a production
// backend — spec §1 treats file-backed and SQL stores as external,
// out-of-core collaborators — but it honors every guarantee the port
// requires: unique-by-contentHash inserts, idempotent batch assignment, and
// the retention caps named in spec §4.3.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Retention caps mandated by spec §4.3.
const (
	maxAuditEntries     = 10_000
	maxAnomaliesPerIdentity = 100
	submissionRetention = 24 * time.Hour
)

// Store is a mutex-guarded, map-backed implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	proofsByContentHash  map[string]*model.ProofRecord
	proofsByCompoundHash map[string]*model.ProofRecord

	batches map[string]*model.Batch
	// batchOrder preserves insertion order so GetLatestBatch and ListBatches
	// are deterministic.
	batchOrder []string

	documents map[string]*model.IdentityDocument
	continuity map[string]*model.ContinuityNode

	attestors   map[string]*model.AttestorRecord
	credentials map[string]*model.Credential
	credentialsBySubject map[string][]string // subjectID -> credential hashes
	revocations map[string]*model.RevocationEntry

	audit      []*model.AuditEntry
	reputation map[string]*model.Reputation
	submissions map[string][]*model.SubmissionEntry
	anomalies   map[string][]*model.AnomalyEntry

	challenges      map[string]*model.Challenge
	challengesByProof map[string][]string
	challengesByParty map[string][]string
	transparency    []*model.TransparencyLogEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		proofsByContentHash:  make(map[string]*model.ProofRecord),
		proofsByCompoundHash: make(map[string]*model.ProofRecord),
		batches:              make(map[string]*model.Batch),
		documents:            make(map[string]*model.IdentityDocument),
		continuity:           make(map[string]*model.ContinuityNode),
		attestors:            make(map[string]*model.AttestorRecord),
		credentials:          make(map[string]*model.Credential),
		credentialsBySubject: make(map[string][]string),
		revocations:          make(map[string]*model.RevocationEntry),
		reputation:           make(map[string]*model.Reputation),
		submissions:          make(map[string][]*model.SubmissionEntry),
		anomalies:            make(map[string][]*model.AnomalyEntry),
		challenges:           make(map[string]*model.Challenge),
		challengesByProof:    make(map[string][]string),
		challengesByParty:    make(map[string][]string),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// ---------------------------------------------------------------- Proofs --

func (s *Store) InsertProof(ctx context.Context, p *model.ProofRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.proofsByContentHash[p.ContentHash]; exists {
		return regerr.Conflict("duplicate_content_hash", "a proof for this content hash already exists", p.ContentHash)
	}
	rec := clone(p)
	s.proofsByContentHash[rec.ContentHash] = rec
	if rec.CompoundHash != "" {
		s.proofsByCompoundHash[rec.CompoundHash] = rec
	}
	return nil
}

func (s *Store) GetByContentHash(ctx context.Context, contentHash string) (*model.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofsByContentHash[contentHash]
	if !ok {
		return nil, regerr.NotFound("proof_not_found", "no proof for content hash "+contentHash)
	}
	return clone(p), nil
}

func (s *Store) GetByCompoundHash(ctx context.Context, compoundHash string) (*model.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofsByCompoundHash[compoundHash]
	if !ok {
		return nil, regerr.NotFound("proof_not_found", "no proof for compound hash "+compoundHash)
	}
	return clone(p), nil
}

func (s *Store) ListByContentHash(ctx context.Context, contentHash string) ([]*model.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Unique-by-contentHash policy (spec §3, §9 open question): the active
	// path never holds more than one record per content hash, so this view
	// returns at most one entry. Kept as a list to match the multi-author
	// view the port reserves for implementations that relax uniqueness.
	if p, ok := s.proofsByContentHash[contentHash]; ok {
		return []*model.ProofRecord{clone(p)}, nil
	}
	return nil, nil
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]*model.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*model.ProofRecord
	for _, p := range s.proofsByContentHash {
		if p.BatchID == "" {
			pending = append(pending, clone(p))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].SubmittedAt.Equal(pending[j].SubmittedAt) {
			return pending[i].ContentHash < pending[j].ContentHash
		}
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.proofsByContentHash {
		if p.BatchID == "" {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTotal(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proofsByContentHash), nil
}

// AssignBatch is idempotent: assigning the same (contentHash, batchID,
// merkleIndex) twice is a no-op, matching the retry-safety the batcher
// depends on (spec §4.8 failure-recovery note).
func (s *Store) AssignBatch(ctx context.Context, contentHash, batchID string, merkleIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofsByContentHash[contentHash]
	if !ok {
		return regerr.NotFound("proof_not_found", "no proof for content hash "+contentHash)
	}
	if p.BatchID == batchID && p.MerkleIndex != nil && *p.MerkleIndex == merkleIndex {
		return nil
	}
	idx := merkleIndex
	p.BatchID = batchID
	p.MerkleIndex = &idx
	return nil
}

// ---------------------------------------------------------------- Batches --

func (s *Store) InsertBatch(ctx context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[b.ID]; exists {
		return regerr.Conflict("duplicate_batch_id", "a batch with this id already exists", b.ID)
	}
	s.batches[b.ID] = clone(b)
	s.batchOrder = append(s.batchOrder, b.ID)
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, regerr.NotFound("batch_not_found", "no batch "+batchID)
	}
	return clone(b), nil
}

func (s *Store) GetLatestBatch(ctx context.Context) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.batchOrder) == 0 {
		return nil, regerr.NotFound("batch_not_found", "no batches exist yet")
	}
	return clone(s.batches[s.batchOrder[len(s.batchOrder)-1]]), nil
}

func (s *Store) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Batch, 0, len(s.batchOrder))
	for _, id := range s.batchOrder {
		out = append(out, clone(s.batches[id]))
	}
	return out, nil
}

func (s *Store) ListBatchProofs(ctx context.Context, batchID string) ([]*model.ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ProofRecord
	for _, p := range s.proofsByContentHash {
		if p.BatchID == batchID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ii, jj := 0, 0
		if out[i].MerkleIndex != nil {
			ii = *out[i].MerkleIndex
		}
		if out[j].MerkleIndex != nil {
			jj = *out[j].MerkleIndex
		}
		return ii < jj
	})
	return out, nil
}

func (s *Store) AppendAnchors(ctx context.Context, batchID string, anchors []model.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return regerr.NotFound("batch_not_found", "no batch "+batchID)
	}
	b.Anchors = append(b.Anchors, anchors...)
	if b.AnchoredAt == nil && len(anchors) > 0 {
		t := anchors[0].AnchoredAt
		b.AnchoredAt = &t
	}
	return nil
}

// -------------------------------------------------------------- Identity --

func (s *Store) PutDocument(ctx context.Context, doc *model.IdentityDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.Identifier] = clone(doc)
	return nil
}

func (s *Store) GetDocument(ctx context.Context, identifier string) (*model.IdentityDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[identifier]
	if !ok {
		return nil, regerr.NotFound("identity_not_found", "no document for "+identifier)
	}
	return clone(d), nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]*model.IdentityDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.IdentityDocument, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (s *Store) PutContinuityNode(ctx context.Context, node *model.ContinuityNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuity[node.Identifier] = clone(node)
	return nil
}

func (s *Store) GetContinuityNode(ctx context.Context, identifier string) (*model.ContinuityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.continuity[identifier]
	if !ok {
		return nil, regerr.NotFound("continuity_node_not_found", "no continuity node for "+identifier)
	}
	return clone(n), nil
}

// WalkContinuityChain follows previous-pointers from identifier back to the
// root of its rotation chain and returns the chain oldest -> newest. Cycles
// are detected defensively and surfaced as an IntegrityError.
func (s *Store) WalkContinuityChain(ctx context.Context, identifier string) ([]*model.ContinuityNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []*model.ContinuityNode
	seen := make(map[string]bool)
	cur := identifier
	for cur != "" {
		if seen[cur] {
			return nil, regerr.Integrity("continuity_cycle", "continuity chain contains a cycle at "+cur)
		}
		seen[cur] = true
		node, ok := s.continuity[cur]
		if !ok {
			return nil, regerr.NotFound("continuity_node_not_found", "no continuity node for "+cur)
		}
		chain = append(chain, clone(node))
		cur = node.PreviousIdentifier
	}
	// reverse to oldest -> newest
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ------------------------------------------------------------- Attestors --

func (s *Store) PutAttestor(ctx context.Context, a *model.AttestorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attestors[a.Identifier] = clone(a)
	return nil
}

func (s *Store) GetAttestor(ctx context.Context, identifier string) (*model.AttestorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attestors[identifier]
	if !ok {
		return nil, regerr.NotFound("attestor_not_found", "no attestor "+identifier)
	}
	return clone(a), nil
}

func (s *Store) ListAttestors(ctx context.Context) ([]*model.AttestorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AttestorRecord, 0, len(s.attestors))
	for _, a := range s.attestors {
		out = append(out, clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (s *Store) PutCredential(ctx context.Context, hash string, cred *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[hash]; !exists {
		s.credentialsBySubject[cred.SubjectID] = append(s.credentialsBySubject[cred.SubjectID], hash)
	}
	s.credentials[hash] = clone(cred)
	return nil
}

func (s *Store) GetCredential(ctx context.Context, hash string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[hash]
	if !ok {
		return nil, regerr.NotFound("credential_not_found", "no credential "+hash)
	}
	return clone(c), nil
}

func (s *Store) ListCredentialsForSubject(ctx context.Context, subjectID string) ([]*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := s.credentialsBySubject[subjectID]
	out := make([]*model.Credential, 0, len(hashes))
	for _, h := range hashes {
		if c, ok := s.credentials[h]; ok {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (s *Store) PutRevocation(ctx context.Context, r *model.RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revocations[r.CredentialHash] = clone(r)
	return nil
}

func (s *Store) GetRevocation(ctx context.Context, credentialHash string) (*model.RevocationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.revocations[credentialHash]
	if !ok {
		return nil, regerr.NotFound("revocation_not_found", "no revocation for "+credentialHash)
	}
	return clone(r), nil
}

func (s *Store) ListRevocations(ctx context.Context) ([]*model.RevocationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.RevocationEntry, 0, len(s.revocations))
	for _, r := range s.revocations {
		out = append(out, clone(r))
	}
	return out, nil
}

// -------------------------------------------------------- Audit/Reputation --

func (s *Store) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, clone(e))
	if len(s.audit) > maxAuditEntries {
		s.audit = s.audit[len(s.audit)-maxAuditEntries:]
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, attestorID string, limit int) ([]*model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if attestorID != "" && e.AttestorID != attestorID {
			continue
		}
		out = append(out, clone(e))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PutReputation(ctx context.Context, r *model.Reputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reputation[r.Identifier] = clone(r)
	return nil
}

func (s *Store) GetReputation(ctx context.Context, identifier string) (*model.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reputation[identifier]
	if !ok {
		return nil, regerr.NotFound("reputation_not_found", "no reputation record for "+identifier)
	}
	return clone(r), nil
}

func (s *Store) ListReputation(ctx context.Context) ([]*model.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Reputation, 0, len(s.reputation))
	for _, r := range s.reputation {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (s *Store) AppendSubmission(ctx context.Context, e *model.SubmissionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-submissionRetention)
	kept := s.submissions[e.Identifier][:0:0]
	for _, old := range s.submissions[e.Identifier] {
		if old.Timestamp.After(cutoff) {
			kept = append(kept, old)
		}
	}
	s.submissions[e.Identifier] = append(kept, clone(e))
	return nil
}

func (s *Store) ListSubmissions(ctx context.Context, identifier string, since time.Duration) ([]*model.SubmissionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-since)
	var out []*model.SubmissionEntry
	for _, e := range s.submissions[identifier] {
		if e.Timestamp.After(cutoff) {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (s *Store) PruneSubmissions(ctx context.Context, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	for id, entries := range s.submissions {
		kept := entries[:0:0]
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				kept = append(kept, e)
			}
		}
		s.submissions[id] = kept
	}
	return nil
}

func (s *Store) AppendAnomaly(ctx context.Context, e *model.AnomalyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.anomalies[e.Identifier], clone(e))
	if len(list) > maxAnomaliesPerIdentity {
		list = list[len(list)-maxAnomaliesPerIdentity:]
	}
	s.anomalies[e.Identifier] = list
	return nil
}

func (s *Store) ListAnomalies(ctx context.Context, identifier string) ([]*model.AnomalyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.anomalies[identifier]
	out := make([]*model.AnomalyEntry, len(src))
	for i, e := range src {
		out[i] = clone(e)
	}
	return out, nil
}

// ---------------------------------------------------------------- Disputes --

func (s *Store) InsertChallenge(ctx context.Context, c *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.ID]; exists {
		return regerr.Conflict("duplicate_challenge_id", "a challenge with this id already exists", c.ID)
	}
	s.challenges[c.ID] = clone(c)
	s.challengesByProof[c.ProofHash] = append(s.challengesByProof[c.ProofHash], c.ID)
	s.challengesByParty[c.ChallengerID] = append(s.challengesByParty[c.ChallengerID], c.ID)
	s.challengesByParty[c.ProofAuthorID] = append(s.challengesByParty[c.ProofAuthorID], c.ID)
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, regerr.NotFound("challenge_not_found", "no challenge "+id)
	}
	return clone(c), nil
}

func (s *Store) ListChallengesByProof(ctx context.Context, proofHash string) ([]*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.challengesByProof[proofHash]
	out := make([]*model.Challenge, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.challenges[id]))
	}
	return out, nil
}

func (s *Store) ListChallengesByParty(ctx context.Context, partyID string) ([]*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.challengesByParty[partyID]
	out := make([]*model.Challenge, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.challenges[id]))
	}
	return out, nil
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, mutate func(*model.Challenge) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[id]
	if !ok {
		return regerr.NotFound("challenge_not_found", "no challenge "+id)
	}
	working := clone(c)
	if err := mutate(working); err != nil {
		return err
	}
	s.challenges[id] = working
	return nil
}

func (s *Store) AppendTransparency(ctx context.Context, e *model.TransparencyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transparency = append(s.transparency, clone(e))
	return nil
}

func (s *Store) ListTransparency(ctx context.Context, limit int) ([]*model.TransparencyLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.TransparencyLogEntry
	for i := len(s.transparency) - 1; i >= 0; i-- {
		out = append(out, clone(s.transparency[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

