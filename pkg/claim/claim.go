// Copyright 2025 Certen Protocol
//
// Package claim assembles the canonical signed claim object for a proof
// record (spec §4.12): a pure transform over a ProofRecord plus its Merkle
// inclusion proof and batch anchors, with no I/O of its own. Grounded on the
// teacher's read-model assembly in pkg/database (deriving a response shape
// from several stored records) generalized from a database row join to an
// explicit struct-building function.
package claim

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/merkle"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
)

// AnchorSummary supplements the raw anchor list with a derived,
// confirmation-aware view (SPEC_FULL.md supplemented feature: the original
// "Proof of Human Work" design surfaced per-chain confirmation state
// alongside the anchor list rather than leaving a consumer to infer it).
type AnchorSummary struct {
	Chain       string  `json:"chain"`
	TxHash      string  `json:"tx_hash"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
	Confirmed   bool    `json:"confirmed"`
}

// Claim is the canonical signed-claim object described in spec §4.12. Field
// names are part of the external contract and must not change casually.
type Claim struct {
	ContentHash       string              `json:"content_hash"`
	AuthorID          string              `json:"author_id"`
	AuthorTimestamp   string              `json:"author_timestamp"` // RFC 3339 UTC
	Signature         string              `json:"signature"`        // hex-encoded
	RegistryID        string              `json:"registry_id"`
	Tier              model.Tier          `json:"tier"`
	AssistanceProfile model.AssistanceProfile `json:"assistance_profile"`
	ProcessDigest     string              `json:"process_digest,omitempty"`
	CompoundHash      string              `json:"compound_hash,omitempty"`
	Entropy           string              `json:"entropy,omitempty"`   // "entropy>X.XXX"
	Coherence         string              `json:"coherence,omitempty"` // "coherence>X.XXX"
	DerivedFromRefs   []model.DerivedFromRef `json:"derived_from_refs,omitempty"`
	EnvironmentAttestation *model.EnvironmentAttestation `json:"environment_attestation,omitempty"`
	InclusionProof    []string            `json:"inclusion_proof"` // hex sibling hashes, leaf-to-root
	BatchRoot         string              `json:"batch_root"`
	Anchors           []AnchorSummary     `json:"anchors"`
	Revoked           bool                `json:"revoked"`
	ClaimURI          string              `json:"claim_uri"`
}

// ConfirmedLookup reports whether a (chain, txHash) anchor has reached
// finality; the claim builder is a pure transform, so this is supplied by
// the caller rather than fetched here. A nil lookup renders every anchor as
// unconfirmed.
type ConfirmedLookup func(chain, txHash string) bool

// Build assembles a Claim from a proof record, its inclusion proof, the
// batch it belongs to, and whether any credential backing it has been
// revoked. It performs no I/O.
func Build(registryID string, p *model.ProofRecord, proof *merkle.InclusionProof, batch *model.Batch, revoked bool, confirmed ConfirmedLookup) (*Claim, error) {
	if p == nil {
		return nil, fmt.Errorf("claim: proof record is nil")
	}
	if proof == nil {
		return nil, fmt.Errorf("claim: inclusion proof is nil")
	}
	if batch == nil {
		return nil, fmt.Errorf("claim: batch is nil")
	}

	c := &Claim{
		ContentHash:            p.ContentHash,
		AuthorID:               p.AuthorID,
		AuthorTimestamp:        p.AuthorTimestamp.UTC().Format(time.RFC3339),
		Signature:              hex.EncodeToString(p.Signature),
		RegistryID:             registryID,
		Tier:                   p.Tier,
		AssistanceProfile:      p.AssistanceProfile,
		ProcessDigest:          p.ProcessDigest,
		CompoundHash:           p.CompoundHash,
		DerivedFromRefs:        p.DerivedFromRefs,
		EnvironmentAttestation: p.EnvironmentAttestation,
		InclusionProof:         proof.Path,
		BatchRoot:              batch.Root,
		Revoked:                revoked,
		ClaimURI:               BuildClaimURI(registryID, p.ContentHash),
	}

	if p.ProcessMetrics != nil {
		c.Entropy = fmt.Sprintf("entropy>%.3f", p.ProcessMetrics.Entropy)
		c.Coherence = fmt.Sprintf("coherence>%.3f", p.ProcessMetrics.TemporalCoherence)
	}

	c.Anchors = make([]AnchorSummary, 0, len(batch.Anchors))
	for _, a := range batch.Anchors {
		isConfirmed := false
		if confirmed != nil {
			isConfirmed = confirmed(a.Chain, a.TxHash)
		}
		c.Anchors = append(c.Anchors, AnchorSummary{
			Chain:       a.Chain,
			TxHash:      a.TxHash,
			BlockNumber: a.BlockNumber,
			Confirmed:   isConfirmed,
		})
	}

	return c, nil
}

// Validate re-checks a Claim's shape and required-field presence, the dual
// spec §4.12 describes for a peer receiving a claim over the wire rather
// than building it locally.
func Validate(c *Claim) error {
	if c == nil {
		return fmt.Errorf("claim: nil claim")
	}
	if c.ContentHash == "" {
		return fmt.Errorf("claim: missing content_hash")
	}
	if c.AuthorID == "" {
		return fmt.Errorf("claim: missing author_id")
	}
	if c.AuthorTimestamp == "" {
		return fmt.Errorf("claim: missing author_timestamp")
	}
	if _, err := time.Parse(time.RFC3339, c.AuthorTimestamp); err != nil {
		return fmt.Errorf("claim: author_timestamp is not RFC 3339: %w", err)
	}
	if c.Signature == "" {
		return fmt.Errorf("claim: missing signature")
	}
	if c.RegistryID == "" {
		return fmt.Errorf("claim: missing registry_id")
	}
	if c.Tier == "" {
		return fmt.Errorf("claim: missing tier")
	}
	if c.BatchRoot == "" {
		return fmt.Errorf("claim: missing batch_root")
	}
	if c.InclusionProof == nil {
		return fmt.Errorf("claim: missing inclusion_proof")
	}
	if c.ClaimURI == "" {
		return fmt.Errorf("claim: missing claim_uri")
	}
	return nil
}

// BuildClaimURI constructs the self-referential registry-anchor URL (spec
// §4.12; supplemented from original_source/'s claim-URI behavior): an
// opaque, deterministic locator that doesn't depend on any HTTP host.
func BuildClaimURI(registryID, contentHash string) string {
	return fmt.Sprintf("registry://%s/proof/%s", registryID, contentHash)
}
