// Copyright 2025 Certen Protocol
//
// Policy verification and tier derivation, spec §4.5.

package attestor

import (
	"context"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
)

// Policy is a named multi-attestor requirement.
type Policy struct {
	Name              string
	MinAttestations   int
	RequiredTypes     []model.AttestorType // if non-empty, at least one attestor of one of these types must be present
	MinAssuranceLevel model.Tier
}

// Standard policies named in spec §4.5.
var (
	GreenPolicy = Policy{
		Name:              "green",
		MinAttestations:   2,
		MinAssuranceLevel: model.TierGreen,
	}
	BluePolicy = Policy{
		Name:              "blue",
		MinAttestations:   1,
		MinAssuranceLevel: model.TierBlue,
	}
)

// ValidCredentialView is the evaluated state of one credential used by
// policy verification: the credential itself, whether it is currently
// valid, and its issuing attestor's type.
type ValidCredentialView struct {
	Credential   *model.Credential
	Valid        bool
	AttestorType model.AttestorType
	AttestorActive bool
}

// EvaluateCredentials loads and evaluates every credential hash for a
// subject, returning one view per hash. Credentials whose attestor cannot
// be found are treated as invalid rather than erroring, since an attestor
// may have been deleted out from under a stale credential reference.
func (s *Service) EvaluateCredentials(ctx context.Context, subjectID string) ([]ValidCredentialView, error) {
	creds, err := s.attestors.ListCredentialsForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	views := make([]ValidCredentialView, 0, len(creds))
	for _, c := range creds {
		valid, _, err := s.IsValid(ctx, c.Hash)
		if err != nil {
			return nil, err
		}
		view := ValidCredentialView{Credential: c, Valid: valid}
		if a, err := s.attestors.GetAttestor(ctx, c.AttestorID); err == nil {
			view.AttestorType = a.Type
			view.AttestorActive = a.Status == model.AttestorActive
		}
		views = append(views, view)
	}
	return views, nil
}

// SatisfiesPolicy checks (a) each valid+issued-by-active-attestor credential
// counted, (b) total at-or-above-floor count meets the threshold, (c) if
// required types are set, at least one attestor of a required type is
// present among the counted credentials.
func SatisfiesPolicy(views []ValidCredentialView, p Policy) bool {
	count := 0
	distinctTypes := make(map[model.AttestorType]bool)
	hasRequiredType := len(p.RequiredTypes) == 0

	for _, v := range views {
		if !v.Valid || !v.AttestorActive {
			continue
		}
		if !v.Credential.AssuranceLevel.AtLeast(p.MinAssuranceLevel) {
			continue
		}
		count++
		distinctTypes[v.AttestorType] = true
		for _, rt := range p.RequiredTypes {
			if v.AttestorType == rt {
				hasRequiredType = true
			}
		}
	}

	if count < p.MinAttestations {
		return false
	}
	if !hasRequiredType {
		return false
	}
	// The green policy additionally requires >=2 distinct attestor types;
	// expressed here rather than as a generic Policy field since it is the
	// one case spec §4.5 names explicitly.
	if p.Name == "green" && len(distinctTypes) < 2 {
		return false
	}
	return true
}

// DeriveTier is the pure tier-derivation function of spec §4.5: assistance
// profile first overrides everything to purple; otherwise the green, then
// blue, policy is checked against the subject's valid credentials; absent
// either, the subject is grey.
func DeriveTier(profile model.AssistanceProfile, views []ValidCredentialView) model.Tier {
	if profile == model.AssistanceAIAssisted || profile == model.AssistanceAIGenerated {
		return model.TierPurple
	}
	if SatisfiesPolicy(views, GreenPolicy) {
		return model.TierGreen
	}
	if SatisfiesPolicy(views, BluePolicy) {
		return model.TierBlue
	}
	return model.TierGrey
}

// ResolveTier loads a subject's valid credentials and derives their tier in
// one call — the composition the intake pipeline uses.
func (s *Service) ResolveTier(ctx context.Context, subjectID string, profile model.AssistanceProfile) (model.Tier, error) {
	views, err := s.EvaluateCredentials(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return DeriveTier(profile, views), nil
}
