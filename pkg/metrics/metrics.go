// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	DocsStagedTotal        prometheus.Counter
	DocsRejectedTotal      *prometheus.CounterVec
	DedupRunsTotal         *prometheus.CounterVec
	DedupRunDuration       prometheus.Histogram
	DedupStageDuration     *prometheus.HistogramVec
	DuplicatesDroppedTotal *prometheus.CounterVec
	CandidatesPerDocument  prometheus.Histogram
	CacheHitsTotal         prometheus.Counter
	CacheMissesTotal       prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocsStagedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_staged_total",
				Help: "Total documents accepted and staged for deduplication.",
			},
		),
		DocsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_rejected_total",
				Help: "Total documents rejected at intake by reason.",
			},
			[]string{"reason"},
		),
		DedupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_runs_total",
				Help: "Total deduplication runs by terminal status (completed, failed).",
			},
			[]string{"status"},
		),
		DedupRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dedup_run_duration_seconds",
				Help:    "End-to-end deduplication run duration in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		DedupStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedup_stage_duration_seconds",
				Help:    "Per-stage deduplication latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"stage"},
		),
		DuplicatesDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "duplicates_dropped_total",
				Help: "Total documents dropped by duplicate kind (exact, near).",
			},
			[]string{"kind"},
		),
		CandidatesPerDocument: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dedup_candidates_per_document",
				Help:    "Number of near-duplicate candidates found per document.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocsStagedTotal,
		m.DocsRejectedTotal,
		m.DedupRunsTotal,
		m.DedupRunDuration,
		m.DedupStageDuration,
		m.DuplicatesDroppedTotal,
		m.CandidatesPerDocument,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
