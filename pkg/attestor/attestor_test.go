// Copyright 2025 Certen Protocol

package attestor

import (
	"context"
	"testing"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store/memstore"
)

func setupActiveAttestor(t *testing.T, s *Service, id string, typ model.AttestorType) {
	t.Helper()
	ctx := context.Background()
	if err := s.RegisterAttestor(ctx, &model.AttestorRecord{Identifier: id, Name: id, Type: typ}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	if err := s.Approve(ctx, id); err != nil {
		t.Fatalf("approve %s: %v", id, err)
	}
}

func TestIssuanceRequiresActiveAttestor(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	s := New(ms, ms)

	if err := s.RegisterAttestor(ctx, &model.AttestorRecord{Identifier: "civic:a", Type: model.AttestorCivic}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := s.IssueCredential(ctx, &model.Credential{AttestorID: "civic:a", SubjectID: "did:pohw:alice", AssuranceLevel: model.TierGreen})
	if !regerr.Is(err, regerr.KindAuth) {
		t.Fatalf("expected AuthError for pending attestor, got %v", err)
	}
}

func TestTierDerivation_GreenRequiresTwoDistinctTypes(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	s := New(ms, ms)

	setupActiveAttestor(t, s, "civic:a", model.AttestorCivic)
	setupActiveAttestor(t, s, "professional:b", model.AttestorProfessional)

	if _, err := s.IssueCredential(ctx, &model.Credential{AttestorID: "civic:a", SubjectID: "did:pohw:alice", AssuranceLevel: model.TierGreen}); err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	if _, err := s.IssueCredential(ctx, &model.Credential{AttestorID: "professional:b", SubjectID: "did:pohw:alice", AssuranceLevel: model.TierGreen}); err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	tier, err := s.ResolveTier(ctx, "did:pohw:alice", model.AssistanceHumanOnly)
	if err != nil {
		t.Fatalf("resolve tier: %v", err)
	}
	if tier != model.TierGreen {
		t.Errorf("tier = %s, want green", tier)
	}

	// Switching assistance profile to AI-assisted overrides to purple
	// regardless of credentials (spec S4 scenario).
	tier, err = s.ResolveTier(ctx, "did:pohw:alice", model.AssistanceAIAssisted)
	if err != nil {
		t.Fatalf("resolve tier 2: %v", err)
	}
	if tier != model.TierPurple {
		t.Errorf("tier = %s, want purple", tier)
	}
}

func TestTierMonotone_AddingCredentialNeverLowersTier(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	s := New(ms, ms)
	setupActiveAttestor(t, s, "civic:a", model.AttestorCivic)

	before, err := s.ResolveTier(ctx, "did:pohw:carol", model.AssistanceHumanOnly)
	if err != nil {
		t.Fatalf("resolve before: %v", err)
	}
	if before != model.TierGrey {
		t.Fatalf("expected grey with no credentials, got %s", before)
	}

	if _, err := s.IssueCredential(ctx, &model.Credential{AttestorID: "civic:a", SubjectID: "did:pohw:carol", AssuranceLevel: model.TierBlue}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	after, err := s.ResolveTier(ctx, "did:pohw:carol", model.AssistanceHumanOnly)
	if err != nil {
		t.Fatalf("resolve after: %v", err)
	}
	if after.Rank() < before.Rank() {
		t.Errorf("tier decreased after adding a credential: %s -> %s", before, after)
	}
}

func TestRevokedCredentialInvalid(t *testing.T) {
	ctx := context.Background()
	ms := memstore.New()
	s := New(ms, ms)
	setupActiveAttestor(t, s, "civic:a", model.AttestorCivic)

	cred, err := s.IssueCredential(ctx, &model.Credential{AttestorID: "civic:a", SubjectID: "did:pohw:dan", AssuranceLevel: model.TierBlue})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	valid, _, err := s.IsValid(ctx, cred.Hash)
	if err != nil || !valid {
		t.Fatalf("expected valid before revocation: valid=%v err=%v", valid, err)
	}

	if err := s.RevokeCredential(ctx, &model.RevocationEntry{CredentialHash: cred.Hash, Reason: "compromised", AttestorID: "civic:a"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	valid, _, err = s.IsValid(ctx, cred.Hash)
	if err != nil || valid {
		t.Fatalf("expected invalid after revocation: valid=%v err=%v", valid, err)
	}
}
