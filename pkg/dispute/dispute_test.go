// Copyright 2025 Certen Protocol

package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/fraud"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

func mustParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return ts
}

func seedProof(t *testing.T, ms *memstore.Store, contentHash, authorID string) {
	t.Helper()
	if err := ms.InsertProof(context.Background(), &model.ProofRecord{
		ID:          "proof-" + contentHash,
		ContentHash: contentHash,
		AuthorID:    authorID,
		Tier:        model.TierBlue,
	}); err != nil {
		t.Fatalf("seed proof: %v", err)
	}
}

func TestSubmit_RejectsSelfChallenge(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	seedProof(t, ms, "0xabc", "did:example:author")

	e := New(ms, ms, fraud.New(ms, fraud.DefaultLimits()))
	_, err := e.Submit(ctx, ChallengeInput{ProofHash: "0xabc", ChallengerID: "did:example:author"})
	if err == nil {
		t.Fatal("expected self-challenge to be rejected")
	}
}

func TestSubmit_AppendsTransparencyEntry(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	seedProof(t, ms, "0xabc", "did:example:author")

	e := New(ms, ms, fraud.New(ms, fraud.DefaultLimits()))
	c, err := e.Submit(ctx, ChallengeInput{ProofHash: "0xabc", ChallengerID: "did:example:challenger", Reason: "duplicate"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.Status != model.ChallengePending {
		t.Errorf("expected pending status, got %s", c.Status)
	}

	entries, err := ms.ListTransparency(ctx, 10)
	if err != nil {
		t.Fatalf("list transparency: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != model.EventChallengeOpened {
		t.Fatalf("expected one challenge_opened entry, got %+v", entries)
	}
}

// TestStateMachine_FullLifecycle covers invariant #6's non-terminal-to-
// terminal progression: pending -> responded -> resolved, with a
// reputation decrement only on a "confirmed" resolution.
func TestStateMachine_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	seedProof(t, ms, "0xabc", "did:example:author")

	gate := fraud.New(ms, fraud.DefaultLimits())
	e := New(ms, ms, gate)

	c, err := e.Submit(ctx, ChallengeInput{ProofHash: "0xabc", ChallengerID: "did:example:challenger"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	before, err := gate.Reputation(ctx, "did:example:author")
	if err != nil {
		t.Fatalf("reputation before: %v", err)
	}

	if err := e.Respond(ctx, c.ID, "did:example:author", "this was legitimate"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	got, err := e.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.ChallengeResponded {
		t.Fatalf("expected responded, got %s", got.Status)
	}

	if err := e.Resolve(ctx, c.ID, "did:example:resolver", model.ResolutionConfirmed, "evidence substantiated"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err = e.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.ChallengeResolved || got.Resolution == nil || *got.Resolution != model.ResolutionConfirmed {
		t.Fatalf("expected resolved/confirmed, got %+v", got)
	}

	after, err := gate.Reputation(ctx, "did:example:author")
	if err != nil {
		t.Fatalf("reputation after: %v", err)
	}
	if after.Score >= before.Score {
		t.Errorf("expected reputation to decrease after confirmed challenge: before=%d after=%d", before.Score, after.Score)
	}
}

func TestRespond_RejectsWrongResponder(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	seedProof(t, ms, "0xabc", "did:example:author")

	e := New(ms, ms, fraud.New(ms, fraud.DefaultLimits()))
	c, err := e.Submit(ctx, ChallengeInput{ProofHash: "0xabc", ChallengerID: "did:example:challenger"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.Respond(ctx, c.ID, "did:example:someone-else", "not me"); err == nil {
		t.Fatal("expected respond from non-author to be rejected")
	}
}

func TestResolve_DismissedIsTerminalWithNoReputationChange(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	seedProof(t, ms, "0xabc", "did:example:author")

	gate := fraud.New(ms, fraud.DefaultLimits())
	e := New(ms, ms, gate)
	c, err := e.Submit(ctx, ChallengeInput{ProofHash: "0xabc", ChallengerID: "did:example:challenger"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	before, err := gate.Reputation(ctx, "did:example:author")
	if err != nil {
		t.Fatalf("reputation before: %v", err)
	}

	if err := e.Resolve(ctx, c.ID, "did:example:resolver", model.ResolutionDismissed, "no merit"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := e.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.ChallengeDismissed {
		t.Fatalf("expected dismissed, got %s", got.Status)
	}

	if err := e.Resolve(ctx, c.ID, "did:example:resolver", model.ResolutionConfirmed, "retry"); err == nil {
		t.Fatal("expected resolving a terminal challenge again to fail")
	}

	after, err := gate.Reputation(ctx, "did:example:author")
	if err != nil {
		t.Fatalf("reputation after: %v", err)
	}
	if after.Score != before.Score {
		t.Errorf("expected no reputation change on dismissal: before=%d after=%d", before.Score, after.Score)
	}
}

func TestDeriveChallengeID_DeterministicAndPrefixed(t *testing.T) {
	ts := mustParseTime(t, "2026-01-01T00:00:00Z")
	id1 := deriveChallengeID("0xabc", "did:example:challenger", ts)
	id2 := deriveChallengeID("0xabc", "did:example:challenger", ts)
	if id1 != id2 {
		t.Errorf("expected deterministic id, got %q and %q", id1, id2)
	}
	if len(id1) != len("0x")+32 {
		t.Errorf("expected a 0x-prefixed 16-byte hex id, got %q (len %d)", id1, len(id1))
	}
}
