package batch

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/infra/checkpoint"
	"research-scrapers/internal/observability/metrics"
)

// Breaker guards each work attempt. *circuitbreaker.CircuitBreaker and
// *circuitbreaker.RatioBreaker satisfy it.
type Breaker interface {
	Call(ctx context.Context, fn func(context.Context) (any, error)) (any, error)
}

// settings are the per-run knobs. The engine keeps a base copy; options passed
// to Process apply to that run only.
type settings[T, R any] struct {
	keyFn    func(T) string
	onResult func(entity.ExecutionResult[T, R])
	progress func(done, total int)
	breaker  Breaker
	store    *checkpoint.Store[T, R]
	recorder metrics.Recorder
	tracer   trace.Tracer
	retryIf  func(error) bool
}

// Option configures an Engine, or a single run when passed to Process.
type Option[T, R any] func(*settings[T, R])

// WithKeyFunc sets the item identity used by the checkpoint. It must be
// deterministic and stable across runs.
func WithKeyFunc[T, R any](fn func(T) string) Option[T, R] {
	return func(s *settings[T, R]) { s.keyFn = fn }
}

// WithResultCallback registers fn to be called once per completed result.
// Calls are serialized; a panic in fn is logged and ignored.
func WithResultCallback[T, R any](fn func(entity.ExecutionResult[T, R])) Option[T, R] {
	return func(s *settings[T, R]) { s.onResult = fn }
}

// WithProgress registers fn to be called after each completed item with the
// number of completed and scheduled items.
func WithProgress[T, R any](fn func(done, total int)) Option[T, R] {
	return func(s *settings[T, R]) { s.progress = fn }
}

// WithCircuitBreaker routes every attempt through b.
func WithCircuitBreaker[T, R any](b Breaker) Option[T, R] {
	return func(s *settings[T, R]) { s.breaker = b }
}

// WithCheckpointStore uses store to skip and record completed items.
func WithCheckpointStore[T, R any](store *checkpoint.Store[T, R]) Option[T, R] {
	return func(s *settings[T, R]) { s.store = store }
}

// WithRecorder sends engine events to r.
func WithRecorder[T, R any](r metrics.Recorder) Option[T, R] {
	return func(s *settings[T, R]) { s.recorder = r }
}

// WithTracer creates run and item spans with tracer.
func WithTracer[T, R any](tracer trace.Tracer) Option[T, R] {
	return func(s *settings[T, R]) { s.tracer = tracer }
}

// WithRetryIf limits retries to errors for which fn returns true. By default
// every error is retried.
func WithRetryIf[T, R any](fn func(error) bool) Option[T, R] {
	return func(s *settings[T, R]) { s.retryIf = fn }
}
