// Package metrics provides Prometheus metrics for the Aster pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// FetchAttemptsTotal tracks fetcher attempts by outcome class
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "fetcher",
			Name:      "attempts_total",
			Help:      "Total number of fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CredentialRotations tracks how often the active credential changed
	CredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "fetcher",
			Name:      "credential_rotations_total",
			Help:      "Total number of credential rotations",
		},
	)

	// BackoffSeconds tracks time spent sleeping between retries
	BackoffSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "fetcher",
			Name:      "backoff_seconds_total",
			Help:      "Total seconds spent in retry backoff",
		},
	)

	// ScanInsertsTotal tracks new staged entries per category
	ScanInsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scanner",
			Name:      "inserts_total",
			Help:      "Total number of new entries inserted into stage",
		},
		[]string{"category"},
	)

	// ScanProbeFailures tracks probe points that could not be fetched
	ScanProbeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "scanner",
			Name:      "probe_failures_total",
			Help:      "Total number of probe points skipped after a fetch failure",
		},
		[]string{"category"},
	)

	// ValidationsTotal tracks validations by result
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "validator",
			Name:      "validations_total",
			Help:      "Total number of staged entries validated by result",
		},
		[]string{"result"},
	)

	// ApprovalOutcomes tracks approval gate resolutions
	ApprovalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "approval",
			Name:      "outcomes_total",
			Help:      "Total number of approval gate resolutions by state",
		},
		[]string{"state"},
	)

	// PromotedEntries tracks rows written to the production dataset
	PromotedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "promoter",
			Name:      "entries_total",
			Help:      "Total number of entries promoted to main",
		},
	)

	// RunDuration tracks pipeline run duration
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		},
		[]string{"status"},
	)
)
