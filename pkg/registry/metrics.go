// Copyright 2025 Certen Protocol

package registry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gdnshnk/pohw-registry-node-sub002/pkg/peersync"
)

// Metrics exposes the registry's operational counters and gauges via the
// Prometheus client library (direct dependency of the teacher's go.mod,
// not previously wired into a component of its own).
type Metrics struct {
	PendingGauge  prometheus.Gauge
	BatchesTotal  prometheus.Counter
	AnchorAttempts *prometheus.CounterVec
	AnchorFailures *prometheus.CounterVec
	PeerStatus    *prometheus.GaugeVec
}

// NewMetrics registers the registry's metric collectors against the default
// Prometheus registry. Callers embedding this in a larger process that
// manages its own registry should use NewMetricsWith instead.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the registry's metric collectors against reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pohw_registry_pending_proofs",
			Help: "Number of proofs awaiting batch assignment.",
		}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pohw_registry_batches_total",
			Help: "Total number of batches closed.",
		}),
		AnchorAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pohw_registry_anchor_attempts_total",
			Help: "Anchor attempts per chain.",
		}, []string{"chain"}),
		AnchorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pohw_registry_anchor_failures_total",
			Help: "Anchor failures per chain.",
		}, []string{"chain"}),
		PeerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pohw_registry_peer_status",
			Help: "Peer sync status (1=active, 0=inactive, -1=error) by peer id.",
		}, []string{"peer"}),
	}
	if reg != nil {
		reg.MustRegister(m.PendingGauge, m.BatchesTotal, m.AnchorAttempts, m.AnchorFailures, m.PeerStatus)
	}
	return m
}

func statusValue(s peersync.Status) float64 {
	switch s {
	case peersync.StatusActive:
		return 1
	case peersync.StatusError:
		return -1
	default:
		return 0
	}
}
