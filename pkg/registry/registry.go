// Copyright 2025 Certen Protocol
//
// Package registry wires every core component (spec §4.1-4.12) and the
// ambient config/metrics layer into one runnable service. Grounded on the
// teacher's service-assembly idiom in pkg/batch/scheduler.go and
// pkg/attestation/service.go: a single constructor takes already-built
// dependencies and returns a struct exposing Start/Stop, rather than a
// framework-driven DI container.
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/anchor"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/attestor"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/batch"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/claim"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/config"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/dispute"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/fraud"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/identity"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/intake"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/peersync"
	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/store"
)

// DefaultBatchInterval is the periodic safety-net interval the scheduler
// runs on even when no BatchSignal wake-up arrives, supplementing the
// threshold-triggered drain spec §4.8 names.
const DefaultBatchInterval = time.Minute

// Registry is the assembled, runnable node: every core component plus the
// scheduling and metrics glue needed to operate it.
type Registry struct {
	Config    *config.Config
	Store     store.Store
	Identity  *identity.Graph
	Attestors *attestor.Service
	Fraud     *fraud.Gate
	Intake    *intake.Pipeline
	Collector *batch.Collector
	Scheduler *batch.Scheduler
	Anchor    *anchor.Coordinator
	PeerSync  *peersync.Manager
	Disputes  *dispute.Engine
	Metrics   *Metrics

	chainNames []string
	logger     *log.Logger
}

// New wires a Registry from a loaded config, a store backend, the set of
// already-constructed chain anchor strategies, and a peer-sync client.
// chains and peerClient may be nil/empty to run with anchoring and/or peer
// sync disabled. Key material, RPC dialing, and HTTP transport are the
// caller's concern (spec §1 non-goals: no from-scratch transaction signing,
// no transport implementation in core).
func New(cfg *config.Config, st store.Store, chains []anchor.Strategy, peerClient peersync.Client) *Registry {
	logger := log.New(os.Stderr, "[registry] ", log.LstdFlags)

	fraudGate := fraud.New(st, fraud.DefaultLimits())
	identityGraph := identity.New(st)
	attestorSvc := attestor.New(st, st)
	metrics := NewMetrics()

	collector := batch.New(st, st, uuid.NewString)
	collector.BatchSize = cfg.BatchSize

	r := &Registry{
		Config:    cfg,
		Store:     st,
		Identity:  identityGraph,
		Attestors: attestorSvc,
		Fraud:     fraudGate,
		Collector: collector,
		Disputes:  dispute.New(st, st, fraudGate),
		Metrics:   metrics,
		logger:    logger,
	}

	if len(chains) > 0 {
		r.Anchor = anchor.New(st, chains, anchor.DefaultRetryPolicy(), cfg.RegistryID)
		for _, s := range chains {
			r.chainNames = append(r.chainNames, s.ChainName())
		}
	}

	r.Intake = &intake.Pipeline{
		Store:      st,
		Identity:   st,
		Attestors:  attestorSvc,
		Fraud:      fraudGate,
		RegistryID: cfg.RegistryID,
		BatchSize:  cfg.BatchSize,
		MaxPending: cfg.MaxPending,
		OnBatchReady: func(sig intake.BatchSignal) {
			metrics.PendingGauge.Set(float64(sig.PendingCount))
			r.Scheduler.Wake()
		},
	}

	r.Scheduler = batch.NewScheduler(collector, DefaultBatchInterval, r.onBatchClosed)

	if peerClient != nil && len(cfg.Peers) > 0 {
		peerMgr := peersync.New(peerClient, st)
		for i, endpoint := range cfg.Peers {
			peerMgr.AddPeer(fmt.Sprintf("peer-%d", i), endpoint)
		}
		r.PeerSync = peerMgr
	}

	return r
}

// onBatchClosed runs after every batch the scheduler closes: it records the
// batch metric and, if anchoring is enabled, anchors the new batch on every
// configured chain.
func (r *Registry) onBatchClosed(closed *batch.ClosedBatch) {
	r.Metrics.BatchesTotal.Inc()
	if !r.Config.Anchoring.Enabled || r.Anchor == nil {
		return
	}

	ctx := context.Background()
	produced, err := r.Anchor.AnchorBatch(ctx, closed.Batch.ID)
	anchored := make(map[string]bool, len(produced))
	for _, a := range produced {
		anchored[a.Chain] = true
	}
	for _, name := range r.chainNames {
		r.Metrics.AnchorAttempts.WithLabelValues(name).Inc()
		if err != nil && !anchored[name] {
			r.Metrics.AnchorFailures.WithLabelValues(name).Inc()
		}
	}
	if err != nil {
		r.logger.Printf("anchor batch %s: %v", closed.Batch.ID, err)
	}
}

// Start boots the registry's background loops (spec §9 boot sequence): the
// identity and attestor state already live in the store, so booting is
// limited to starting the batch scheduler and, if configured, the peer
// sync timer.
func (r *Registry) Start(ctx context.Context) {
	r.Scheduler.Start(ctx)
	if r.PeerSync != nil && r.Config.SyncInterval() > 0 {
		go r.runPeerSyncLoop(ctx)
	}
}

func (r *Registry) runPeerSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(r.Config.SyncInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PeerSync.SyncAll(ctx)
			for _, p := range r.PeerSync.ListPeers() {
				r.Metrics.PeerStatus.WithLabelValues(p.ID).Set(statusValue(p.Status))
			}
		}
	}
}

// Stop halts the registry's background loops.
func (r *Registry) Stop() {
	r.Scheduler.Stop()
}

// BuildClaim assembles the canonical claim (spec §4.12) for a previously
// batched proof, consulting the anchor coordinator for each chain's
// confirmation state.
func (r *Registry) BuildClaim(ctx context.Context, contentHash string) (*claim.Claim, error) {
	proof, err := r.Store.GetByContentHash(ctx, contentHash)
	if err != nil {
		return nil, err
	}
	inclusion, batchRecord, err := r.Collector.InclusionProof(ctx, contentHash)
	if err != nil {
		return nil, err
	}

	var confirmed claim.ConfirmedLookup
	if r.Anchor != nil {
		summary, err := r.Anchor.ConfirmationSummary(ctx, batchRecord.ID)
		if err == nil {
			confirmed = func(chain, txHash string) bool { return summary[chain] }
		}
	}

	const revoked = false // credential revocation is evaluated per-identity, not per-proof; see pkg/attestor
	return claim.Build(r.Config.RegistryID, proof, inclusion, batchRecord, revoked, confirmed)
}
