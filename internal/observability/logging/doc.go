// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for the logging patterns used by the batch workers.
//
// Key features:
//   - JSON and text output formats
//   - Run ID propagation
//   - Context-aware logging
//   - Configurable log levels
//
// Example usage:
//
//	import "research-scrapers/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started", slog.String("executor", "thread"))
//	}
//
//	func run(ctx context.Context) {
//	    ctx = logging.ContextWithRunID(ctx, uuid.NewString())
//	    logger := logging.WithRunID(ctx, slog.Default())
//	    logger.Info("processing batch")
//	}
package logging
