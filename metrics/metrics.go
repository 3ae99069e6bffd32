package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agora"

var (
	// RoundsTotal counts consensus rounds by terminal status.
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_total",
		Help:      "Consensus rounds by terminal status.",
	}, []string{"status"})

	// TransactionsTotal counts processed transactions by outcome.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Processed transactions by outcome.",
	}, []string{"outcome"})

	// AppealsTotal counts resolved appeals by status.
	AppealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appeals_total",
		Help:      "Resolved appeals by status.",
	}, []string{"status"})

	// RoundDuration observes wall time per consensus round.
	RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "round_duration_seconds",
		Help:      "Wall time per consensus round.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// CapabilityRetriesTotal counts retried capability invocations.
	CapabilityRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capability_retries_total",
		Help:      "Retried capability invocations.",
	})

	// ArbitrationsTotal counts arbiter invocations by kind.
	ArbitrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "arbitrations_total",
		Help:      "Arbiter invocations by kind.",
	}, []string{"kind"})

	// PendingCommits gauges outstanding provisional commits.
	PendingCommits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_commits",
		Help:      "Outstanding provisional state commits.",
	})
)

// Handler returns the HTTP handler exposing the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
