// Package metrics defines the Prometheus collectors for geocoding and
// reconciliation runs. Batch commands have no scrape endpoint, so the
// registry is written to a node-exporter textfile when a run ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Row outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Geocode request outcomes.
const (
	RequestMatch   = "match"
	RequestNoMatch = "no_match"
	RequestError   = "error"
	RequestCached  = "cached"
)

// Metrics holds all collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RowsTotal        *prometheus.CounterVec
	GeocodeRequests  *prometheus.CounterVec
	TierMatches      *prometheus.CounterVec
	CheckpointsTotal prometheus.Counter
	RowDuration      prometheus.Histogram
	ReconcileMatches *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roteiro_geocode_rows_total",
				Help: "Dataset rows handled by the geocoding runner, by outcome (resolved, failed, skipped).",
			},
			[]string{"outcome"},
		),
		GeocodeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roteiro_geocode_requests_total",
				Help: "Resolver tier attempts by provider and outcome (match, no_match, error, cached).",
			},
			[]string{"provider", "outcome"},
		),
		TierMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roteiro_geocode_tier_matches_total",
				Help: "Rows resolved, by the tier that matched.",
			},
			[]string{"tier"},
		),
		CheckpointsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "roteiro_geocode_checkpoints_total",
				Help: "Checkpoints flushed to durable storage.",
			},
		),
		RowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "roteiro_geocode_row_duration_seconds",
				Help:    "Wall time spent resolving one row, throttling included.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
		),
		ReconcileMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roteiro_reconcile_rows_total",
				Help: "Destination rows reconciled, by match tier (code+store, code-first, name, unmatched).",
			},
			[]string{"tier"},
		),
	}

	m.Registry.MustRegister(
		m.RowsTotal,
		m.GeocodeRequests,
		m.TierMatches,
		m.CheckpointsTotal,
		m.RowDuration,
		m.ReconcileMatches,
	)

	return m
}

// Row counts one runner row outcome.
func (m *Metrics) Row(outcome string) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(outcome).Inc()
}

// Request counts one resolver tier attempt.
func (m *Metrics) Request(provider, outcome string) {
	if m == nil {
		return
	}
	m.GeocodeRequests.WithLabelValues(provider, outcome).Inc()
}

// TierMatch counts a row resolved at tier.
func (m *Metrics) TierMatch(tier string) {
	if m == nil {
		return
	}
	m.TierMatches.WithLabelValues(tier).Inc()
}

// Checkpoint counts one flush.
func (m *Metrics) Checkpoint() {
	if m == nil {
		return
	}
	m.CheckpointsTotal.Inc()
}

// ObserveRow records how long one row took.
func (m *Metrics) ObserveRow(seconds float64) {
	if m == nil {
		return
	}
	m.RowDuration.Observe(seconds)
}

// Reconciled adds n rows matched at tier.
func (m *Metrics) Reconciled(tier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReconcileMatches.WithLabelValues(tier).Add(float64(n))
}

// WriteTextfile writes the registry in the text exposition format. An empty
// path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
