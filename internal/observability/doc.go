// Package observability groups the logging, metrics and tracing infrastructure
// of the batch workers.
//
// Subpackages:
//   - logging: Structured logging utilities with slog and run ID propagation
//   - metrics: Prometheus batch and circuit breaker metrics, engine Recorder
//   - slo: Per-run service level indicators
//   - tracing: OpenTelemetry tracer accessor and HTTP middleware
//
// Example usage:
//
//	import (
//	    "research-scrapers/internal/observability/logging"
//	    "research-scrapers/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started")
//
//	    rec := metrics.NewPrometheusRecorder("pages")
//	    _ = rec
//	}
package observability
