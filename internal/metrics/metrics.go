package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPAttemptsTotal counts executor attempts by result
	// (ok, http_error, server_error, network_error, timeout).
	HTTPAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_attempts_total",
			Help: "Total number of HTTP attempts issued by the request executor",
		},
		[]string{"operation", "result"},
	)

	// HTTPLatency tracks per-attempt latency.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_attempt_latency_seconds",
			Help:    "HTTP attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTPBackoffSeconds tracks the sleep between retries.
	HTTPBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_backoff_seconds",
			Help:    "Backoff delay applied before a retry attempt",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"operation"},
	)

	// DecodeTotal counts decoded bodies by kind (success, failure, legacy, empty, html, malformed).
	DecodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_envelope_decode_total",
			Help: "Total number of decoded response bodies by kind",
		},
		[]string{"kind"},
	)

	// ContractIssuesTotal counts responses that drifted from their declared shape.
	ContractIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_contract_violations_total",
			Help: "Total number of responses that failed contract validation",
		},
		[]string{"operation"},
	)

	// ClassifiedErrorsTotal counts terminal errors by category and code.
	ClassifiedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_classified_errors_total",
			Help: "Total number of classified errors surfaced to callers",
		},
		[]string{"category", "code"},
	)

	// CompatOutcomesTotal counts which protocol satisfied a call (versioned, legacy, failed, unsupported).
	CompatOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_compat_outcomes_total",
			Help: "Total number of compatibility router outcomes",
		},
		[]string{"operation", "outcome"},
	)
)
