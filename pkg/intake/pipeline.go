// Copyright 2025 Certen Protocol
//
// Package intake implements the attestation intake pipeline (spec §4.7):
// input validation, signature verification against the author's identity
// document, duplicate rejection, the fraud-mitigation gate, tier and
// assistance-profile resolution, persistence, and receipt generation.
//
// Submit is a pure function over a request and its injected capabilities
// (store, identity graph, attestor service, fraud gate) so it can be
// exercised end to end against pkg/store/memstore without any network or
// process boundary (spec §9: "isolate the pipeline as a pure function").
package intake

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/attestor"
	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/fraud"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// Request is the normalized input to Submit. Ingress-layer parsing
// (out of core scope) is responsible for producing one of these from
// whatever wire format is used.
type Request struct {
	ContentHash            string
	Signature               []byte
	AuthorID                string
	AuthorTimestamp          time.Time
	ProcessDigest           string
	ProcessMetrics          *model.ProcessMetrics
	ZKProofBlob             []byte
	AuthoredOnDevice        bool
	EnvironmentAttestation  *model.EnvironmentAttestation
	DerivedFromRefs         []model.DerivedFromRef
	AssistanceProfile       model.AssistanceProfile // explicit override; "" means resolve from metrics
	ClaimURI                string
}

// Result is the outcome of a successful Submit: the stored record and the
// receipt handed back to the caller.
type Result struct {
	Record  *model.ProofRecord
	Receipt *model.Receipt
}

// BatchSignal is sent (non-blocking, best-effort) when the pending queue
// reaches the batch threshold, so the batcher can drain cooperatively.
type BatchSignal struct {
	PendingCount int
}

// Pipeline wires the intake stage's dependencies.
type Pipeline struct {
	Store      store.ProofStore
	Identity   store.IdentityStore
	Attestors  *attestor.Service
	Fraud      *fraud.Gate
	RegistryID string

	// BatchSize is the pending-count threshold that triggers a
	// BatchSignal post-insert (spec §4.7's "post-insert hook").
	BatchSize int
	// MaxPending is the backpressure ceiling (spec §5); 0 disables it.
	MaxPending int
	// OnBatchReady receives a best-effort signal; nil is a valid no-op.
	OnBatchReady func(BatchSignal)
}

var (
	ErrMissingField = errors.New("intake: contentHash, signature, authorId, and authorTimestamp are all required")
)

// Submit runs one attestation through the full intake pipeline.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	normalizedHash, err := certcrypto.NormalizeHex(req.ContentHash)
	if err != nil {
		return nil, regerr.Validation("malformed_content_hash", err.Error())
	}

	// Duplicate check happens before the rate-limit/reputation gate and
	// before any write, per spec §4.7.
	if existing, err := p.Store.GetByContentHash(ctx, normalizedHash); err == nil {
		return nil, regerr.Conflict("duplicate_content_hash", "a proof for this content already exists", receiptHash(existing.ContentHash, existing.AuthorID, existing.AuthorTimestamp))
	} else if !regerr.Is(err, regerr.KindNotFound) {
		return nil, err
	}

	if err := p.verifySignature(ctx, req, normalizedHash); err != nil {
		return nil, err
	}

	if p.MaxPending > 0 {
		pending, err := p.Store.CountPending(ctx)
		if err != nil {
			return nil, err
		}
		if pending >= p.MaxPending {
			return nil, regerr.New(regerr.KindRateLimit, "backpressure", "pending queue is at capacity")
		}
	}

	if err := p.Fraud.CheckRateLimit(ctx, req.AuthorID); err != nil {
		return nil, err
	}
	if err := p.Fraud.CheckEntropy(ctx, req.AuthorID, req.ProcessMetrics); err != nil {
		return nil, err
	}

	profile := resolveAssistanceProfile(req)
	tier, err := p.Attestors.ResolveTier(ctx, req.AuthorID, profile)
	if err != nil {
		return nil, err
	}

	record := &model.ProofRecord{
		ID:                     normalizedHash,
		ContentHash:            normalizedHash,
		Signature:              req.Signature,
		AuthorID:               req.AuthorID,
		AuthorTimestamp:        req.AuthorTimestamp,
		SubmittedAt:            time.Now(),
		ProcessDigest:          req.ProcessDigest,
		ProcessMetrics:         req.ProcessMetrics,
		ZKProofBlob:            req.ZKProofBlob,
		Tier:                   tier,
		AuthoredOnDevice:       req.AuthoredOnDevice,
		EnvironmentAttestation: req.EnvironmentAttestation,
		DerivedFromRefs:        req.DerivedFromRefs,
		AssistanceProfile:      profile,
		ClaimURI:               req.ClaimURI,
	}
	if req.ProcessDigest != "" {
		contentDigest, err := certcrypto.FromHex(normalizedHash)
		if err != nil {
			return nil, regerr.Validation("malformed_content_hash", err.Error())
		}
		processDigest, err := certcrypto.FromHex(req.ProcessDigest)
		if err != nil {
			return nil, regerr.Validation("malformed_process_digest", err.Error())
		}
		record.CompoundHash = certcrypto.ToHex(certcrypto.CompoundHash(contentDigest, processDigest))
	}

	if err := p.Store.InsertProof(ctx, record); err != nil {
		return nil, err
	}
	if err := p.Fraud.RecordSuccess(ctx, req.AuthorID, req.ProcessMetrics); err != nil {
		return nil, err
	}

	if p.OnBatchReady != nil && p.BatchSize > 0 {
		if pending, err := p.Store.CountPending(ctx); err == nil && pending >= p.BatchSize {
			p.OnBatchReady(BatchSignal{PendingCount: pending})
		}
	}

	receipt := &model.Receipt{
		ReceiptHash: receiptHash(record.ContentHash, record.AuthorID, record.AuthorTimestamp),
		Timestamp:   time.Now().UTC(),
		RegistryID:  p.RegistryID,
	}
	return &Result{Record: record, Receipt: receipt}, nil
}

func validate(req Request) error {
	if req.ContentHash == "" || len(req.Signature) == 0 || req.AuthorID == "" || req.AuthorTimestamp.IsZero() {
		return regerr.Validation("missing_required_field", ErrMissingField.Error())
	}
	return nil
}

func (p *Pipeline) verifySignature(ctx context.Context, req Request, normalizedHash string) error {
	doc, err := p.Identity.GetDocument(ctx, req.AuthorID)
	if err != nil {
		return err
	}
	message := certcrypto.Canonicalize(normalizedHash, req.AuthorID, req.AuthorTimestamp.UnixNano())
	for _, m := range doc.VerificationMethods {
		if m.KeyAlgorithm != "ed25519" {
			continue
		}
		if certcrypto.VerifySignature(ed25519.PublicKey(m.PublicKey), message, req.Signature) {
			return nil
		}
	}
	return regerr.Auth("signature_invalid", "submission signature does not verify under any of the author's registered keys")
}

// resolveAssistanceProfile applies spec §4.7: an explicit caller-supplied
// profile is authoritative; otherwise it is derived from process metrics.
func resolveAssistanceProfile(req Request) model.AssistanceProfile {
	if req.AssistanceProfile != "" {
		return req.AssistanceProfile
	}
	m := req.ProcessMetrics
	if m == nil {
		return model.AssistanceAIAssisted
	}
	if m.MeetsThresholds {
		return model.AssistanceHumanOnly
	}
	if m.Entropy < 0.1 && m.DurationMs < 5000 && m.InputEvents < 5 {
		return model.AssistanceAIGenerated
	}
	return model.AssistanceAIAssisted
}

func receiptHash(contentHash, authorID string, authorTimestamp time.Time) string {
	digest := certcrypto.Hash(certcrypto.Canonicalize(contentHash, authorID, authorTimestamp.UnixNano()))
	return certcrypto.ToHex(digest)
}
