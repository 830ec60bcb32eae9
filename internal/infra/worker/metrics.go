package worker

import (
	"research-scrapers/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker binary.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// metrics for scheduled batch runs.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total
//   - worker_config_fallbacks_total
//   - worker_config_fallback_active
//
// Worker-specific metrics:
//   - worker_runs_total: Total runs by status (success/partial/failure)
//   - worker_run_duration_seconds: Duration histogram of runs
//   - worker_items_processed_total: Items processed by outcome (success/failure/skipped)
//   - worker_last_success_timestamp: Unix timestamp of last run without failures
//
// Metrics are registered with the default registry when created, so
// NewWorkerMetrics must be called once per process.
type WorkerMetrics struct {
	*config.ConfigMetrics

	RunsTotal            *prometheus.CounterVec
	RunDurationSeconds   prometheus.Histogram
	ItemsProcessedTotal  *prometheus.CounterVec
	LastSuccessTimestamp prometheus.Gauge
}

// Run statuses.
const (
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailure = "failure"
)

// NewWorkerMetrics creates and registers the worker metrics.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Total number of batch runs by status (success/partial/failure)",
		}, []string{"status"}),

		RunDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_run_duration_seconds",
			Help:    "Duration of batch runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800}, // 1s, 5s, 30s, 1m, 5m, 15m, 30m
		}),

		ItemsProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_items_processed_total",
			Help: "Total number of items processed across all runs by outcome",
		}, []string{"outcome"}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last batch run without failures",
		}),
	}
}

// RecordRun records a finished run. succeeded and failed are item counts for
// the run, skipped counts items restored from a checkpoint.
// A run without failures also updates the last success timestamp.
func (m *WorkerMetrics) RecordRun(seconds float64, succeeded, failed, skipped int) string {
	status := RunSuccess
	switch {
	case failed > 0 && succeeded == 0:
		status = RunFailure
	case failed > 0:
		status = RunPartial
	}

	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.Observe(seconds)
	m.ItemsProcessedTotal.WithLabelValues("success").Add(float64(succeeded))
	m.ItemsProcessedTotal.WithLabelValues("failure").Add(float64(failed))
	m.ItemsProcessedTotal.WithLabelValues("skipped").Add(float64(skipped))
	if status == RunSuccess {
		m.LastSuccessTimestamp.SetToCurrentTime()
	}
	return status
}

// RecordRunError records a run that could not start, e.g. an unreadable input file.
func (m *WorkerMetrics) RecordRunError() {
	m.RunsTotal.WithLabelValues(RunFailure).Inc()
}
