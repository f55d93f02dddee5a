// Package metrics provides Prometheus metrics for remote file operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaami_sessions_total",
			Help: "Total number of backend sessions opened",
		},
		[]string{"backend", "status"},
	)

	cleanupFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaami_cleanup_failures_total",
			Help: "Total number of disconnects that reported an error",
		},
		[]string{"backend"},
	)

	// Operation metrics
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaami_operations_total",
			Help: "Total remote operations",
		},
		[]string{"backend", "operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yaami_operation_duration_seconds",
			Help:    "Remote operation duration in seconds, connect and disconnect included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// Batch metrics
	batchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaami_batch_items_total",
			Help: "Batch download items by outcome",
		},
		[]string{"outcome"},
	)

	scheduledRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yaami_scheduled_runs_total",
			Help: "Scheduled download runs",
		},
		[]string{"schedule", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSession records a session open attempt.
func RecordSession(backend string, success bool) {
	sessionsTotal.WithLabelValues(backend, status(success)).Inc()
}

// RecordCleanupFailure records a disconnect that failed.
func RecordCleanupFailure(backend string) {
	cleanupFailuresTotal.WithLabelValues(backend).Inc()
}

// RecordOperation records a remote operation.
func RecordOperation(backend, operation string, duration time.Duration, success bool) {
	operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	operationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordBatch records the per-item outcome counts of one batch download.
func RecordBatch(succeeded, failed, skipped int) {
	batchItemsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	batchItemsTotal.WithLabelValues("failed").Add(float64(failed))
	batchItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordScheduledRun records one run of a scheduled download.
func RecordScheduledRun(schedule string, success bool) {
	scheduledRunsTotal.WithLabelValues(schedule, status(success)).Inc()
}
