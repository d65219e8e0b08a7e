// Package metrics exposes Prometheus metrics for the grid engine, carried
// over as a library choice from the teacher's metrics.go (same
// MustRegister-in-init, CounterVec/GaugeVec-with-labels shape) and
// re-purposed from ML-signal metrics to grid-engine metrics (§10.5).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_fills_total",
			Help: "Ladder fills, split by symbol and level/event kind.",
		},
		[]string{"symbol", "kind"}, // kind: ENTRY_L1..L4, TP, PARTIAL_BE, SL
	)

	CurrentLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_current_level",
			Help: "Current filled ladder level (0 == flat).",
		},
		[]string{"symbol"},
	)

	Capital = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridbot_capital_quote",
			Help: "Running operational capital in quote currency.",
		},
		[]string{"symbol"},
	)

	ReconcileLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridbot_reconcile_seconds",
			Help:    "Wall time of one reconciliation tick.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	VenueErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_venue_errors_total",
			Help: "Venue operation failures, by error code.",
		},
		[]string{"symbol", "code"},
	)

	ReconcileMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridbot_reconcile_mismatch_total",
			Help: "BE-fill reconciliations where the venue qty differed from level1_qty beyond tolerance (Q1).",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(FillsTotal, CurrentLevel, Capital, ReconcileLatency, VenueErrorsTotal, ReconcileMismatchTotal)
}

// ObserveReconcile times a reconciliation tick; call with defer at the top
// of the tick function.
func ObserveReconcile(symbol string, start time.Time) {
	ReconcileLatency.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
}
