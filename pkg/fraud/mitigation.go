// Copyright 2025 Certen Protocol
//
// Package fraud implements the registry's fraud-mitigation gate: per-identity
// sliding-window rate limiting, reputation scoring, and submitted-entropy
// anomaly detection (spec §4.6). It is consulted by the intake pipeline
// before a proof is ever persisted.
package fraud

import (
	"context"
	"math"
	"time"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/model"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/regerr"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// Reputation score bands (spec §4.6, resolving the "multiple boundaries in
// the source" open question by picking one and applying it uniformly):
// grey < 25 <= purple < 50 <= blue < 75 <= green.
const (
	bandPurpleFloor = 25
	bandBlueFloor   = 50
	bandGreenFloor  = 75

	scoreMin = 0
	scoreMax = 100

	successIncrement        = 1
	rateLimitAnomalyPenalty = 5
	entropyAnomalyPenalty   = 3
	confirmedFraudPenalty   = 30

	// entropyTolerance is the default allowed deviation from an identity's
	// historical mean entropy before an anomaly is flagged.
	entropyTolerance = 0.35
)

// ReputationTier bands a numeric score into the fallback tier used only
// when a ProofRecord itself lacks a tier (spec §4.6).
func ReputationTier(score int) model.Tier {
	switch {
	case score >= bandGreenFloor:
		return model.TierGreen
	case score >= bandBlueFloor:
		return model.TierBlue
	case score >= bandPurpleFloor:
		return model.TierPurple
	default:
		return model.TierGrey
	}
}

func clampScore(score int) int {
	if score < scoreMin {
		return scoreMin
	}
	if score > scoreMax {
		return scoreMax
	}
	return score
}

// Limits configures the mitigation gate.
type Limits struct {
	MaxSubmissionsPerHour int           // default 60
	RateLimitWindow       time.Duration // default 1h
	EntropyTolerance      float64       // default entropyTolerance
}

// DefaultLimits returns the registry's default fraud-mitigation thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxSubmissionsPerHour: 60,
		RateLimitWindow:       time.Hour,
		EntropyTolerance:      entropyTolerance,
	}
}

// Gate is the fraud-mitigation engine.
type Gate struct {
	store  store.AuditStore
	limits Limits
}

// New constructs a Gate over the audit/reputation store with the given limits.
func New(s store.AuditStore, limits Limits) *Gate {
	if limits.MaxSubmissionsPerHour <= 0 {
		limits.MaxSubmissionsPerHour = DefaultLimits().MaxSubmissionsPerHour
	}
	if limits.RateLimitWindow <= 0 {
		limits.RateLimitWindow = DefaultLimits().RateLimitWindow
	}
	if limits.EntropyTolerance <= 0 {
		limits.EntropyTolerance = DefaultLimits().EntropyTolerance
	}
	return &Gate{store: s, limits: limits}
}

// CheckRateLimit counts identifier's submissions within the configured
// sliding window and rejects with a RateLimitError (and records an anomaly)
// if the count already meets the limit.
func (g *Gate) CheckRateLimit(ctx context.Context, identifier string) error {
	history, err := g.store.ListSubmissions(ctx, identifier, g.limits.RateLimitWindow)
	if err != nil {
		return err
	}
	if len(history) >= g.limits.MaxSubmissionsPerHour {
		rate := float64(len(history)) / g.limits.RateLimitWindow.Hours()
		if err := g.recordAnomaly(ctx, identifier, "rate_limit", "exceeded submission rate limit"); err != nil {
			return err
		}
		return regerr.RateLimit("rate_limit_exceeded", "too many submissions in the current window", rate)
	}
	return nil
}

// CheckEntropy compares a submitted entropy value against identifier's
// historical mean (computed from the recorded entropy of the prior
// submissions the store still holds from the last 30 days; the store's own
// submission retention may be shorter) and flags an anomaly when the deviation exceeds the
// configured tolerance. A nil metrics value, or an identity with no prior
// entropy history, is not an anomaly (spec §4.6: "if submitted
// processMetrics.entropy is present").
func (g *Gate) CheckEntropy(ctx context.Context, identifier string, metrics *model.ProcessMetrics) error {
	if metrics == nil {
		return nil
	}
	history, err := g.store.ListSubmissions(ctx, identifier, 30*24*time.Hour)
	if err != nil {
		return err
	}
	var sum float64
	var n int
	for _, e := range history {
		if e.Entropy != nil {
			sum += *e.Entropy
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	if math.Abs(metrics.Entropy-mean) <= g.limits.EntropyTolerance {
		return nil
	}
	return g.recordAnomaly(ctx, identifier, "entropy_discrepancy", "submitted entropy diverges from historical distribution")
}

func (g *Gate) recordAnomaly(ctx context.Context, identifier, kind, detail string) error {
	if err := g.store.AppendAnomaly(ctx, &model.AnomalyEntry{
		Identifier: identifier,
		Kind:       kind,
		Detail:     detail,
		Timestamp:  time.Now(),
	}); err != nil {
		return err
	}
	return g.adjustScore(ctx, identifier, -anomalyPenalty(kind), false)
}

func anomalyPenalty(kind string) int {
	if kind == "rate_limit" {
		return rateLimitAnomalyPenalty
	}
	return entropyAnomalyPenalty
}

// RecordSuccess records an accepted submission for rate-limit and
// entropy-history purposes and nudges the identity's reputation upward.
// metrics may be nil when the submission carried no process telemetry.
func (g *Gate) RecordSuccess(ctx context.Context, identifier string, metrics *model.ProcessMetrics) error {
	entry := &model.SubmissionEntry{Identifier: identifier, Timestamp: time.Now()}
	if metrics != nil {
		e := metrics.Entropy
		entry.Entropy = &e
	}
	if err := g.store.AppendSubmission(ctx, entry); err != nil {
		return err
	}
	return g.adjustScore(ctx, identifier, successIncrement, true)
}

// RecordConfirmedFraud decrements reputation after a dispute resolves
// "confirmed" against identifier (spec §4.11).
func (g *Gate) RecordConfirmedFraud(ctx context.Context, identifier string) error {
	return g.adjustScore(ctx, identifier, -confirmedFraudPenalty, false)
}

func (g *Gate) adjustScore(ctx context.Context, identifier string, delta int, success bool) error {
	rep, err := g.store.GetReputation(ctx, identifier)
	if err != nil {
		if !regerr.Is(err, regerr.KindNotFound) {
			return err
		}
		rep = &model.Reputation{Identifier: identifier, Score: 50} // neutral starting score
	}
	rep.Score = clampScore(rep.Score + delta)
	rep.Tier = ReputationTier(rep.Score)
	if success {
		rep.SuccessfulProofs++
	}
	if delta < 0 {
		rep.Anomalies++
	}
	rep.LastUpdated = time.Now()
	return g.store.PutReputation(ctx, rep)
}

// Reputation returns the current reputation record for identifier, or a
// fresh neutral one if none exists yet.
func (g *Gate) Reputation(ctx context.Context, identifier string) (*model.Reputation, error) {
	rep, err := g.store.GetReputation(ctx, identifier)
	if err != nil {
		if regerr.Is(err, regerr.KindNotFound) {
			return &model.Reputation{Identifier: identifier, Score: 50, Tier: ReputationTier(50), LastUpdated: time.Now()}, nil
		}
		return nil, err
	}
	return rep, nil
}
