// Package metrics provides centralized Prometheus metrics for the batch workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch metrics track engine runs and the items flowing through them
var (
	// BatchItemsTotal counts terminal item outcomes by engine and outcome
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total number of batch items by outcome",
		},
		[]string{"engine", "outcome"}, // outcome: success, failure, skipped
	)

	// BatchItemDuration measures processing time of terminal item results
	BatchItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_item_duration_seconds",
			Help:    "Processing time of a batch item, retries included",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"engine", "outcome"},
	)

	// BatchRetriesTotal counts failed attempts that were retried
	BatchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_retries_total",
			Help: "Total number of retried batch attempts",
		},
		[]string{"engine"},
	)

	// BatchInFlight tracks items currently being processed
	BatchInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_items_in_flight",
			Help: "Number of batch items currently being processed",
		},
		[]string{"engine"},
	)

	// BatchRunsTotal counts finished runs by status
	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_runs_total",
			Help: "Total number of batch runs by status",
		},
		[]string{"engine", "status"}, // status: completed, failed_fast, canceled
	)

	// BatchRunDuration measures wall-clock duration of a run
	BatchRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_run_duration_seconds",
			Help:    "Wall-clock duration of a batch run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		},
		[]string{"engine"},
	)

	// CheckpointSaveErrorsTotal counts checkpoint writes that failed
	CheckpointSaveErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_checkpoint_save_errors_total",
			Help: "Total number of failed checkpoint saves",
		},
		[]string{"engine"},
	)
)

// Circuit breaker metrics
var (
	// CircuitBreakerState tracks the current state (0=closed, 1=open, 2=half_open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitionsTotal counts state transitions
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
