package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "research-scrapers"

// Tracer returns the tracer for creating spans. It is resolved from the global
// provider on every call, so a provider installed after start-up is honoured.
//
// Example usage:
//
//	ctx, span := tracing.Tracer().Start(ctx, "operation-name")
//	defer span.End()
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
