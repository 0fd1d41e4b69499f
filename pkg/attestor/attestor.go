// Copyright 2025 Certen Protocol
//
// Package attestor implements the attestor lifecycle, credential issuance
// and validity, multi-attestor policy verification, and tier derivation
// (spec §4.5). Every status change, issuance, and revocation appends an
// immutable audit-log entry via the injected store.
package attestor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

var ErrAttestorInactive = errors.New("attestor: only active attestors may issue credentials")

// Service is the attestor/credential engine.
type Service struct {
	attestors store.AttestorStore
	audit     store.AuditStore
}

// New constructs a Service over the given stores.
func New(attestors store.AttestorStore, audit store.AuditStore) *Service {
	return &Service{attestors: attestors, audit: audit}
}

// RegisterAttestor creates a new attestor in the "pending" state.
func (s *Service) RegisterAttestor(ctx context.Context, a *model.AttestorRecord) error {
	a.Status = model.AttestorPending
	a.RegisteredAt = time.Now()
	if err := s.attestors.PutAttestor(ctx, a); err != nil {
		return err
	}
	return s.appendAudit(ctx, model.AuditAttestorRegistered, a.Identifier, "", "registered as "+string(a.Type))
}

// Approve transitions an attestor pending -> active.
func (s *Service) Approve(ctx context.Context, identifier string) error {
	a, err := s.attestors.GetAttestor(ctx, identifier)
	if err != nil {
		return err
	}
	if a.Status != model.AttestorPending {
		return regerr.Validation("invalid_attestor_transition", "attestor "+identifier+" is not pending")
	}
	a.Status = model.AttestorActive
	if err := s.attestors.PutAttestor(ctx, a); err != nil {
		return err
	}
	return s.appendAudit(ctx, model.AuditAttestorApproved, identifier, "", "")
}

// Suspend transitions an attestor active -> suspended.
func (s *Service) Suspend(ctx context.Context, identifier, reason string) error {
	a, err := s.attestors.GetAttestor(ctx, identifier)
	if err != nil {
		return err
	}
	if a.Status != model.AttestorActive {
		return regerr.Validation("invalid_attestor_transition", "attestor "+identifier+" is not active")
	}
	a.Status = model.AttestorSuspended
	if err := s.attestors.PutAttestor(ctx, a); err != nil {
		return err
	}
	return s.appendAudit(ctx, model.AuditAttestorSuspended, identifier, "", reason)
}

// Revoke transitions an attestor active or suspended -> revoked.
func (s *Service) Revoke(ctx context.Context, identifier, reason string) error {
	a, err := s.attestors.GetAttestor(ctx, identifier)
	if err != nil {
		return err
	}
	if a.Status != model.AttestorActive && a.Status != model.AttestorSuspended {
		return regerr.Validation("invalid_attestor_transition", "attestor "+identifier+" cannot be revoked from "+string(a.Status))
	}
	a.Status = model.AttestorRevoked
	if err := s.attestors.PutAttestor(ctx, a); err != nil {
		return err
	}
	return s.appendAudit(ctx, model.AuditAttestorRevoked, identifier, "", reason)
}

// credentialSigningInput is the canonical encoding a credential hash is
// computed over: the full credential, excluding the Proof field, per spec
// §4.5 ("H(credential - proof)").
type credentialSigningInput struct {
	AttestorID     string     `json:"attestor_id"`
	SubjectID      string     `json:"subject_id"`
	AssuranceLevel model.Tier `json:"assurance_level"`
	IssuedAt       time.Time  `json:"issued_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// CredentialHash computes the deterministic SHA-256 hash used as a
// credential's primary key.
func CredentialHash(c *model.Credential) string {
	input := credentialSigningInput{
		AttestorID:     c.AttestorID,
		SubjectID:      c.SubjectID,
		AssuranceLevel: c.AssuranceLevel,
		IssuedAt:       c.IssuedAt,
		ExpiresAt:      c.ExpiresAt,
	}
	encoded, _ := json.Marshal(input)
	sum := sha256.Sum256(encoded)
	return "0x" + hex.EncodeToString(sum[:])
}

// IssueCredential issues a credential on behalf of attestorID to subjectID.
// Only an active attestor may issue.
func (s *Service) IssueCredential(ctx context.Context, c *model.Credential) (*model.Credential, error) {
	a, err := s.attestors.GetAttestor(ctx, c.AttestorID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttestorActive {
		return nil, regerr.Auth("attestor_inactive", ErrAttestorInactive.Error())
	}

	c.IssuedAt = time.Now()
	c.Hash = CredentialHash(c)
	if err := s.attestors.PutCredential(ctx, c.Hash, c); err != nil {
		return nil, err
	}
	if err := s.appendAudit(ctx, model.AuditCredentialIssued, c.AttestorID, c.SubjectID, c.Hash); err != nil {
		return nil, err
	}
	return c, nil
}

// RevokeCredential appends a RevocationEntry for an issued credential.
func (s *Service) RevokeCredential(ctx context.Context, entry *model.RevocationEntry) error {
	if _, err := s.attestors.GetCredential(ctx, entry.CredentialHash); err != nil {
		return err
	}
	entry.RevokedAt = time.Now()
	if err := s.attestors.PutRevocation(ctx, entry); err != nil {
		return err
	}
	return s.appendAudit(ctx, model.AuditCredentialRevoked, entry.AttestorID, "", entry.CredentialHash)
}

// IsValid implements the validity predicate of spec §4.5: the credential
// exists, carries no revocation entry, and (if it has one) its expiration
// is still in the future.
func (s *Service) IsValid(ctx context.Context, credentialHash string) (bool, *model.Credential, error) {
	cred, err := s.attestors.GetCredential(ctx, credentialHash)
	if err != nil {
		if regerr.Is(err, regerr.KindNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if _, err := s.attestors.GetRevocation(ctx, credentialHash); err == nil {
		return false, cred, nil
	} else if !regerr.Is(err, regerr.KindNotFound) {
		return false, nil, err
	}
	if cred.ExpiresAt != nil && cred.ExpiresAt.Before(time.Now()) {
		return false, cred, nil
	}
	return true, cred, nil
}

func (s *Service) appendAudit(ctx context.Context, t model.AuditEntryType, attestorID, subjectID, detail string) error {
	return s.audit.AppendAudit(ctx, &model.AuditEntry{
		Type:       t,
		AttestorID: attestorID,
		SubjectID:  subjectID,
		Detail:     detail,
		Timestamp:  time.Now(),
	})
}
