// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the metrics of the batch workers:
//   - Batch item outcomes, durations, retries and in-flight items
//   - Batch run status and duration
//   - Checkpoint save failures
//   - Circuit breaker state and transitions
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "research-scrapers/internal/observability/metrics"
//
//	engine := batch.New[string, Page](cfg,
//	    batch.WithRecorder[string, Page](metrics.NewPrometheusRecorder("pages")))
package metrics
