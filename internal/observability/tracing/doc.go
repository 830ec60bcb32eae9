// Package tracing provides OpenTelemetry tracing integration.
//
// The batch engine opens one span per run and one per scheduled item, and the
// worker's HTTP endpoints are wrapped with Middleware. Spans go to whatever
// TracerProvider is installed globally; without one they are no-ops.
//
// Example usage:
//
//	import "research-scrapers/internal/observability/tracing"
//
//	func fetch(ctx context.Context) (err error) {
//	    ctx, span := tracing.Tracer().Start(ctx, "fetch")
//	    defer func() { tracing.EndSpan(span, err) }()
//	    // ... fetch ...
//	}
package tracing
