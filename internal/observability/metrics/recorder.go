package metrics

import (
	"time"
)

// Recorder receives batch engine events. Implementations must be safe for
// concurrent use because workers report from their own goroutines.
type Recorder interface {
	ItemStarted()
	ItemFinished(success bool, d time.Duration)
	ItemsSkipped(n int)
	AttemptRetried()
	CheckpointSaveFailed()
	RunFinished(status string, d time.Duration)
}

// Run statuses passed to Recorder.RunFinished.
const (
	RunCompleted  = "completed"
	RunFailedFast = "failed_fast"
	RunCanceled   = "canceled"
)

// NoopRecorder discards every event.
type NoopRecorder struct{}

func (NoopRecorder) ItemStarted()                      {}
func (NoopRecorder) ItemFinished(bool, time.Duration)  {}
func (NoopRecorder) ItemsSkipped(int)                  {}
func (NoopRecorder) AttemptRetried()                   {}
func (NoopRecorder) CheckpointSaveFailed()             {}
func (NoopRecorder) RunFinished(string, time.Duration) {}

// PrometheusRecorder records engine events into the package's Prometheus
// collectors, labelled with the engine name.
type PrometheusRecorder struct {
	engine string
}

// NewPrometheusRecorder returns a recorder labelling every series with engine.
func NewPrometheusRecorder(engine string) *PrometheusRecorder {
	if engine == "" {
		engine = "default"
	}
	return &PrometheusRecorder{engine: engine}
}

// ItemStarted increments the in-flight gauge.
func (r *PrometheusRecorder) ItemStarted() {
	BatchInFlight.WithLabelValues(r.engine).Inc()
}

// ItemFinished records a terminal outcome and decrements the in-flight gauge.
func (r *PrometheusRecorder) ItemFinished(success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	BatchInFlight.WithLabelValues(r.engine).Dec()
	BatchItemsTotal.WithLabelValues(r.engine, outcome).Inc()
	BatchItemDuration.WithLabelValues(r.engine, outcome).Observe(d.Seconds())
}

// ItemsSkipped records items excluded by the checkpoint.
func (r *PrometheusRecorder) ItemsSkipped(n int) {
	if n > 0 {
		BatchItemsTotal.WithLabelValues(r.engine, "skipped").Add(float64(n))
	}
}

// AttemptRetried counts a failed attempt that will be retried.
func (r *PrometheusRecorder) AttemptRetried() {
	BatchRetriesTotal.WithLabelValues(r.engine).Inc()
}

// CheckpointSaveFailed counts a failed checkpoint write.
func (r *PrometheusRecorder) CheckpointSaveFailed() {
	CheckpointSaveErrorsTotal.WithLabelValues(r.engine).Inc()
}

// RunFinished records the run status and duration.
func (r *PrometheusRecorder) RunFinished(status string, d time.Duration) {
	BatchRunsTotal.WithLabelValues(r.engine, status).Inc()
	BatchRunDuration.WithLabelValues(r.engine).Observe(d.Seconds())
}

// RecordBreakerTransition updates the breaker gauges. from and to are state
// names as rendered by circuitbreaker.State.String.
//
// Example:
//
//	cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
//	    metrics.RecordBreakerTransition(name, from.String(), to.String())
//	}
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}
