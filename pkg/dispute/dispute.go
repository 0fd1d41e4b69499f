// Copyright 2025 Certen Protocol
//
// Package dispute implements the challenge/response/resolution state machine
// (spec §4.11): any actor other than its author may challenge a proof, its author may respond, and
// a resolver closes the challenge with a disposition that, if "confirmed",
// decrements the author's reputation. Every transition appends a
// transparency-log entry, mirroring the teacher's append-only audit pattern
// in pkg/fraud/mitigation.go generalized from reputation bookkeeping to a
// public, append-only event log.
package dispute

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	certcrypto "github.com/gdnshnk/pohw-registry-node-sub002/pkg/crypto"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/fraud"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// Engine runs the challenge state machine over a DisputeStore, consulting
// a ProofStore to validate challenges and a fraud.Gate to apply the
// reputation consequence of a confirmed challenge.
type Engine struct {
	disputes store.DisputeStore
	proofs   store.ProofStore
	gate     *fraud.Gate
}

// New constructs a dispute Engine.
func New(disputes store.DisputeStore, proofs store.ProofStore, gate *fraud.Gate) *Engine {
	return &Engine{disputes: disputes, proofs: proofs, gate: gate}
}

// ChallengeInput is the caller-supplied portion of a new Challenge.
type ChallengeInput struct {
	ProofHash    string
	ChallengerID string
	Reason       string
	Description  string
	Evidence     []byte
}

// deriveChallengeID computes H(proofHash || challengerId || createdAt)[:16],
// 0x-prefixed, per spec §4.11.
func deriveChallengeID(proofHash, challengerID string, createdAt time.Time) string {
	buf := make([]byte, 0, len(proofHash)+len(challengerID)+19)
	buf = append(buf, []byte(proofHash)...)
	buf = append(buf, []byte(challengerID)...)
	buf = append(buf, []byte(strconv.FormatInt(createdAt.UnixNano(), 10))...)
	digest := certcrypto.Hash(buf)
	return "0x" + hex.EncodeToString(digest[:16])
}

// Submit opens a new challenge against a proof. The challenger must not be
// the proof's author, and the proof must exist.
func (e *Engine) Submit(ctx context.Context, in ChallengeInput) (*model.Challenge, error) {
	proof, err := e.proofs.GetByContentHash(ctx, in.ProofHash)
	if err != nil {
		return nil, err
	}
	if in.ChallengerID == proof.AuthorID {
		return nil, regerr.Validation("self_challenge", "a proof's author cannot challenge their own proof")
	}

	createdAt := time.Now()
	c := &model.Challenge{
		ID:            deriveChallengeID(in.ProofHash, in.ChallengerID, createdAt),
		ProofHash:     in.ProofHash,
		ProofAuthorID: proof.AuthorID,
		ChallengerID:  in.ChallengerID,
		Reason:        in.Reason,
		Description:   in.Description,
		Evidence:      in.Evidence,
		Status:        model.ChallengePending,
		CreatedAt:     createdAt,
	}
	if err := e.disputes.InsertChallenge(ctx, c); err != nil {
		return nil, err
	}
	if err := e.disputes.AppendTransparency(ctx, &model.TransparencyLogEntry{
		Type:        model.EventChallengeOpened,
		ChallengeID: c.ID,
		ProofHash:   c.ProofHash,
		ActorID:     c.ChallengerID,
		Timestamp:   createdAt,
	}); err != nil {
		return nil, err
	}
	return c, nil
}

// Respond records the proof author's reply to a pending challenge,
// transitioning it to responded.
func (e *Engine) Respond(ctx context.Context, challengeID, responderID, response string) error {
	now := time.Now()
	var logEntry *model.TransparencyLogEntry
	err := e.disputes.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.Status != model.ChallengePending {
			return regerr.Validation("invalid_transition", "challenge is not pending")
		}
		if responderID != c.ProofAuthorID {
			return regerr.Auth("not_proof_author", "only the proof author may respond to this challenge")
		}
		c.Status = model.ChallengeResponded
		c.AuthorResponse = response
		c.RespondedAt = &now
		logEntry = &model.TransparencyLogEntry{
			Type:        model.EventChallengeResponded,
			ChallengeID: c.ID,
			ProofHash:   c.ProofHash,
			ActorID:     responderID,
			Timestamp:   now,
		}
		return nil
	})
	if err != nil {
		return err
	}
	return e.disputes.AppendTransparency(ctx, logEntry)
}

// Resolve closes a challenge from either pending or responded, applying the
// resolver's disposition. A "confirmed" resolution decrements the proof
// author's reputation; "exonerated" and "dismissed" make no reputation
// change (dismissed is terminal with no further transition).
func (e *Engine) Resolve(ctx context.Context, challengeID, resolverID string, resolution model.ChallengeResolution, notes string) error {
	now := time.Now()
	var logEntry *model.TransparencyLogEntry
	var proofAuthorID string
	err := e.disputes.UpdateChallenge(ctx, challengeID, func(c *model.Challenge) error {
		if c.Status == model.ChallengeResolved || c.Status == model.ChallengeDismissed {
			return regerr.Validation("invalid_transition", "challenge is already terminal")
		}
		eventType := model.EventChallengeResolved
		newStatus := model.ChallengeResolved
		if resolution == model.ResolutionDismissed {
			eventType = model.EventChallengeDismissed
			newStatus = model.ChallengeDismissed
		}
		c.Status = newStatus
		c.Resolution = &resolution
		c.ResolvedAt = &now
		c.ResolverID = resolverID
		c.ResolutionNotes = notes
		proofAuthorID = c.ProofAuthorID
		logEntry = &model.TransparencyLogEntry{
			Type:        eventType,
			ChallengeID: c.ID,
			ProofHash:   c.ProofHash,
			ActorID:     resolverID,
			Resolution:  &resolution,
			Timestamp:   now,
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.disputes.AppendTransparency(ctx, logEntry); err != nil {
		return err
	}
	if resolution == model.ResolutionConfirmed && e.gate != nil {
		if err := e.gate.RecordConfirmedFraud(ctx, proofAuthorID); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a challenge by id.
func (e *Engine) Get(ctx context.Context, id string) (*model.Challenge, error) {
	return e.disputes.GetChallenge(ctx, id)
}

// ListByProof lists every challenge filed against a proof.
func (e *Engine) ListByProof(ctx context.Context, proofHash string) ([]*model.Challenge, error) {
	return e.disputes.ListChallengesByProof(ctx, proofHash)
}

// Transparency returns the most recent transparency-log entries.
func (e *Engine) Transparency(ctx context.Context, limit int) ([]*model.TransparencyLogEntry, error) {
	return e.disputes.ListTransparency(ctx, limit)
}
