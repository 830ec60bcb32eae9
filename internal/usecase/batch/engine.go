package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/infra/checkpoint"
	"research-scrapers/internal/infra/export"
	"research-scrapers/internal/infra/procpool"
	"research-scrapers/internal/observability/logging"
	"research-scrapers/internal/observability/metrics"
	"research-scrapers/internal/observability/tracing"
	"research-scrapers/internal/resilience/retry"
)

// Engine processes batches of items of type T into results of type R.
// An Engine is safe for concurrent use, but concurrent runs share Stats.
type Engine[T, R any] struct {
	cfg    Config
	logger *slog.Logger
	base   settings[T, R]
	pool   *procpool.Pool

	mu    sync.Mutex
	stats entity.ExecutionStats
}

// New builds an engine. A MultiProcess engine also prepares its process pool;
// children are started on first use. Call Close when done.
func New[T, R any](cfg Config, opts ...Option[T, R]) (*Engine[T, R], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "batch"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("engine", cfg.Name))

	e := &Engine[T, R]{
		cfg:    cfg,
		logger: logger,
		base: settings[T, R]{
			recorder: metrics.NoopRecorder{},
			tracer:   tracing.Tracer(),
		},
	}
	for _, opt := range opts {
		opt(&e.base)
	}

	if e.base.store == nil && cfg.CheckpointPath != "" {
		e.base.store = checkpoint.OpenFile[T, R](context.Background(), cfg.CheckpointPath, logger)
	}

	if cfg.Executor == MultiProcess {
		pcfg := cfg.Process
		if pcfg.Size == 0 {
			pcfg.Size = cfg.MaxWorkers
		}
		if pcfg.Logger == nil {
			pcfg.Logger = logger
		}
		pool, err := procpool.Start(pcfg)
		if err != nil {
			return nil, fmt.Errorf("start process pool: %w", err)
		}
		e.pool = pool
	}

	return e, nil
}

// Close stops the child processes of a MultiProcess engine.
func (e *Engine[T, R]) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}

// Config returns the engine configuration.
func (e *Engine[T, R]) Config() Config {
	return e.cfg
}

// Stats returns a snapshot of the statistics of the current or last run.
func (e *Engine[T, R]) Stats() entity.ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Checkpoint returns the engine's checkpoint store, or nil.
func (e *Engine[T, R]) Checkpoint() *checkpoint.Store[T, R] {
	return e.base.store
}

// ClearCheckpoint empties the checkpoint store and removes its backing data.
func (e *Engine[T, R]) ClearCheckpoint(ctx context.Context) error {
	if e.base.store == nil {
		return nil
	}
	if err := e.base.store.Clear(ctx); err != nil {
		return err
	}
	e.logger.Info("checkpoint cleared")
	return nil
}

// SaveResults writes results and the current stats to path.
func (e *Engine[T, R]) SaveResults(path string, format export.Format, results []entity.ExecutionResult[T, R]) error {
	if err := export.Save(path, format, results, e.Stats()); err != nil {
		return err
	}
	e.logger.Info("results saved",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("results", len(results)))
	return nil
}

// Process runs work for every item not already in the checkpoint and returns
// one result per scheduled item, in completion order.
//
// Each item gets up to RetryAttempts+1 attempts. Failures never abort the run;
// they are reported in the item's result. With FailFast, or once ctx is done,
// no new items are scheduled, and items that were not scheduled produce no
// result. In-flight work always runs to completion. opts override the engine's
// options for this run.
func (e *Engine[T, R]) Process(ctx context.Context, items []T, work Invoker[T, R], opts ...Option[T, R]) []entity.ExecutionResult[T, R] {
	s := e.settingsFor(opts)
	invoke := e.resolve(work)

	pending, skipped := e.skipCompleted(s, items)
	units := make([][]T, len(pending))
	for i := range pending {
		units[i] = pending[i : i+1]
	}

	return e.run(ctx, s, "process", len(items), units, skipped, len(pending),
		func(ctx context.Context, logger *slog.Logger, unit []T) []entity.ExecutionResult[T, R] {
			return []entity.ExecutionResult[T, R]{e.processItem(ctx, s, logger, unit[0], invoke)}
		})
}

// ProcessInChunks splits items into chunks of chunkSize and calls fn once per
// chunk, retrying the chunk as a whole. fn must return one result per item.
//
// A chunk that ultimately fails marks every one of its items failed with the
// chunk's error. Chunks always run on goroutines, whatever the executor.
func (e *Engine[T, R]) ProcessInChunks(ctx context.Context, items []T, fn ChunkFunc[T, R], chunkSize int, opts ...Option[T, R]) ([]entity.ExecutionResult[T, R], error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidChunkSize, chunkSize)
	}
	s := e.settingsFor(opts)

	pending, skipped := e.skipCompleted(s, items)
	units := make([][]T, 0, (len(pending)+chunkSize-1)/chunkSize)
	for start := 0; start < len(pending); start += chunkSize {
		end := min(start+chunkSize, len(pending))
		units = append(units, pending[start:end])
	}

	results := e.run(ctx, s, "process_in_chunks", len(items), units, skipped, len(pending),
		func(ctx context.Context, logger *slog.Logger, chunk []T) []entity.ExecutionResult[T, R] {
			return e.processChunk(ctx, s, logger, chunk, fn)
		})
	return results, nil
}

// unitFunc turns one scheduled unit into its terminal results.
type unitFunc[T, R any] func(ctx context.Context, logger *slog.Logger, unit []T) []entity.ExecutionResult[T, R]

func (e *Engine[T, R]) run(
	ctx context.Context,
	s *settings[T, R],
	op string,
	inputs int,
	units [][]T,
	skipped int,
	scheduled int,
	fn unitFunc[T, R],
) []entity.ExecutionResult[T, R] {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.WithRunID(ctx, e.logger)

	ctx, span := s.tracer.Start(ctx, "batch."+op, trace.WithAttributes(
		attribute.String("batch.engine", e.cfg.Name),
		attribute.String("batch.run_id", runID),
		attribute.String("batch.executor", e.cfg.Executor.String()),
		attribute.Int("batch.items", inputs),
		attribute.Int("batch.skipped", skipped),
	))
	defer span.End()

	started := time.Now()
	stats := entity.NewExecutionStats()
	stats.SkippedItems = skipped
	e.mu.Lock()
	e.stats = stats
	e.mu.Unlock()
	s.recorder.ItemsSkipped(skipped)

	logger.Info("batch started",
		slog.String("operation", op),
		slog.String("executor", e.cfg.Executor.String()),
		slog.Int("max_workers", e.cfg.MaxWorkers),
		slog.Int("retry_attempts", e.cfg.RetryAttempts),
		slog.Int("items", inputs),
		slog.Int("units", len(units)))
	if skipped > 0 {
		logger.Info("skipping items already in checkpoint", slog.Int("skipped", skipped))
	}

	var stop atomic.Bool
	halted := func() bool { return stop.Load() || ctx.Err() != nil }

	out := make(chan []entity.ExecutionResult[T, R], e.cfg.MaxWorkers)
	go func() {
		defer close(out)
		var g errgroup.Group
		g.SetLimit(e.cfg.MaxWorkers)
		for _, unit := range units {
			if halted() {
				break
			}
			g.Go(func() error {
				// a slot may free up after fail-fast tripped
				if halted() {
					return nil
				}
				rs := fn(ctx, logger, unit)
				if e.cfg.FailFast && anyFailed(rs) {
					stop.Store(true)
				}
				out <- rs
				return nil
			})
		}
		_ = g.Wait()
	}()

	results := make([]entity.ExecutionResult[T, R], 0, scheduled)
	var failFastLogged bool
	for rs := range out {
		for _, r := range rs {
			results = append(results, r)
			e.complete(ctx, s, logger, r, len(results), scheduled)
		}
		if e.cfg.FailFast && !failFastLogged && anyFailed(rs) {
			failFastLogged = true
			logger.Warn("fail-fast triggered, no new items will be scheduled",
				slog.Int("completed", len(results)),
				slog.Int("scheduled", scheduled))
		}
	}

	e.mu.Lock()
	e.stats.Finalize(time.Now())
	stats = e.stats
	e.mu.Unlock()

	status := metrics.RunCompleted
	switch {
	case ctx.Err() != nil:
		status = metrics.RunCanceled
	case stop.Load():
		status = metrics.RunFailedFast
	}
	s.recorder.RunFinished(status, time.Since(started))

	span.SetAttributes(
		attribute.Int("batch.successful", stats.SuccessfulItems),
		attribute.Int("batch.failed", stats.FailedItems),
		attribute.String("batch.status", status),
	)
	logger.Info("batch completed",
		slog.String("status", status),
		slog.Int("total", stats.TotalItems),
		slog.Int("successful", stats.SuccessfulItems),
		slog.Int("failed", stats.FailedItems),
		slog.Int("skipped", stats.SkippedItems),
		slog.Duration("duration", stats.EndTime.Sub(stats.StartTime)),
		slog.Duration("average_processing_time", stats.AverageProcessingTime))

	return results
}

// complete applies one terminal result: stats, checkpoint, callback, progress.
// It runs on the collecting goroutine only, so callbacks are serialized.
func (e *Engine[T, R]) complete(ctx context.Context, s *settings[T, R], logger *slog.Logger, r entity.ExecutionResult[T, R], done, total int) {
	e.mu.Lock()
	e.stats.Record(r.Success, r.ProcessingTime)
	stats := e.stats
	e.mu.Unlock()

	if s.store != nil && s.keyFn != nil {
		// a canceled run still records what finished
		if err := s.store.Record(context.WithoutCancel(ctx), s.keyFn(r.Item), r, stats); err != nil {
			logger.Warn("failed to save checkpoint", slog.Any("error", err))
			s.recorder.CheckpointSaveFailed()
		}
	}

	if s.onResult != nil {
		safeCall(logger, "result callback", func() { s.onResult(r) })
	}
	if s.progress != nil {
		safeCall(logger, "progress callback", func() { s.progress(done, total) })
	}
	if e.cfg.ShowProgress {
		step := max(total/10, 1)
		if done%step == 0 || done == total {
			logger.Info("batch progress",
				slog.Int("done", done),
				slog.Int("total", total),
				slog.Float64("percent", float64(done)/float64(total)*100))
		}
	}
}

func (e *Engine[T, R]) processItem(ctx context.Context, s *settings[T, R], logger *slog.Logger, item T, invoke func(context.Context, T) (R, error)) entity.ExecutionResult[T, R] {
	ctx, span := s.tracer.Start(ctx, "batch.item")
	s.recorder.ItemStarted()

	o := attempt(ctx, e.cfg, s, logger.With(s.itemAttr(item)), func(ctx context.Context) (R, error) {
		return invoke(ctx, item)
	})

	var r entity.ExecutionResult[T, R]
	if o.err == nil {
		r = entity.NewSuccess(item, o.value, o.retries, o.elapsed)
	} else {
		r = entity.NewFailure[T, R](item, o.message, o.retries, o.elapsed)
	}
	s.recorder.ItemFinished(r.Success, r.ProcessingTime)

	span.SetAttributes(attribute.Int("batch.retry_count", r.RetryCount))
	tracing.EndSpan(span, o.err)
	return r
}

func (e *Engine[T, R]) processChunk(ctx context.Context, s *settings[T, R], logger *slog.Logger, chunk []T, fn ChunkFunc[T, R]) []entity.ExecutionResult[T, R] {
	ctx, span := s.tracer.Start(ctx, "batch.chunk", trace.WithAttributes(
		attribute.Int("batch.chunk_size", len(chunk)),
	))
	for range chunk {
		s.recorder.ItemStarted()
	}

	o := attempt(ctx, e.cfg, s, logger.With(slog.Int("chunk_size", len(chunk))), func(ctx context.Context) ([]R, error) {
		out, err := fn(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if len(out) != len(chunk) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrChunkSize, len(out), len(chunk))
		}
		return out, nil
	})

	results := make([]entity.ExecutionResult[T, R], 0, len(chunk))
	if o.err == nil {
		perItem := o.elapsed / time.Duration(len(chunk))
		for i, item := range chunk {
			results = append(results, entity.NewSuccess(item, o.value[i], o.retries, perItem))
		}
	} else {
		for _, item := range chunk {
			results = append(results, entity.NewFailure[T, R](item, o.message, o.retries, 0))
		}
	}
	for _, r := range results {
		s.recorder.ItemFinished(r.Success, r.ProcessingTime)
	}

	span.SetAttributes(attribute.Int("batch.retry_count", o.retries))
	tracing.EndSpan(span, o.err)
	return results
}

// settingsFor returns the engine settings with opts applied on top.
func (e *Engine[T, R]) settingsFor(opts []Option[T, R]) *settings[T, R] {
	s := e.base
	for _, opt := range opts {
		opt(&s)
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer()
	}
	return &s
}

// skipCompleted drops items whose key is already in the checkpoint.
func (e *Engine[T, R]) skipCompleted(s *settings[T, R], items []T) ([]T, int) {
	if s.store == nil {
		return items, 0
	}
	if s.keyFn == nil {
		e.logger.Warn("checkpoint configured without a key function, checkpointing disabled")
		return items, 0
	}
	pending := make([]T, 0, len(items))
	for _, item := range items {
		if !s.store.Contains(s.keyFn(item)) {
			pending = append(pending, item)
		}
	}
	return pending, len(items) - len(pending)
}

// resolve returns the function that runs one item on this engine's executor.
func (e *Engine[T, R]) resolve(work Invoker[T, R]) func(context.Context, T) (R, error) {
	if e.pool == nil {
		return work.Invoke
	}

	var name string
	switch t := work.(type) {
	case Task[T, R]:
		name = t.Name
	case *Task[T, R]:
		name = t.Name
	default:
		return func(context.Context, T) (R, error) {
			var zero R
			return zero, ErrNotTransferable
		}
	}

	pool := e.pool
	return func(ctx context.Context, item T) (R, error) {
		var r R
		err := pool.Call(ctx, name, item, &r)
		return r, err
	}
}

func (s *settings[T, R]) itemAttr(item T) slog.Attr {
	if s.keyFn != nil {
		return slog.String("item", s.keyFn(item))
	}
	return slog.Any("item", item)
}

// outcome is the terminal state of one work unit after retries.
type outcome[V any] struct {
	value   V
	err     error
	message string
	retries int
	elapsed time.Duration
}

// attempt runs fn with the engine's retry policy, through the breaker if any.
func attempt[T, R, V any](ctx context.Context, cfg Config, s *settings[T, R], logger *slog.Logger, fn func(context.Context) (V, error)) outcome[V] {
	start := time.Now()
	attempts := 0
	var lastErr error

	rcfg := retry.Config{
		MaxAttempts: cfg.RetryAttempts + 1,
		Backoff:     cfg.Backoff,
		RetryIf:     retryable(s.retryIf),
		Logger:      logger,
		OnRetry: func(int, error, time.Duration) {
			s.recorder.AttemptRetried()
		},
	}
	v, err := retry.Do(ctx, rcfg, func() (V, error) {
		attempts++
		v, err := guarded(ctx, s.breaker, fn)
		lastErr = err
		return v, err
	})

	o := outcome[V]{
		value:   v,
		err:     err,
		retries: max(attempts-1, 0),
		elapsed: time.Since(start),
	}
	if err != nil {
		o.message = failureMessage(err, lastErr)
	}
	return o
}

// guarded calls fn through b, converting a panic into an error.
func guarded[V any](ctx context.Context, b Breaker, fn func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if b == nil {
		return fn(ctx)
	}
	res, err := b.Call(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil || res == nil {
		return v, err
	}
	typed, ok := res.(V)
	if !ok {
		return v, fmt.Errorf("circuit breaker returned %T, want %T", res, v)
	}
	return typed, nil
}

// retryable wraps the caller's predicate. Errors no retry can fix are never retried.
func retryable(fn func(error) bool) func(error) bool {
	return func(err error) bool {
		if errors.Is(err, ErrNotTransferable) || errors.Is(err, ErrChunkSize) || errors.Is(err, procpool.ErrPoolClosed) {
			return false
		}
		return fn == nil || fn(err)
	}
}

// failureMessage is the error text stored in a failed result: the last attempt's
// error, plus the reason retrying stopped when it was not exhaustion.
func failureMessage(err, lastErr error) string {
	if lastErr == nil {
		return err.Error()
	}
	if errors.Is(err, retry.ErrMaxAttempts) || errors.Is(err, lastErr) {
		return lastErr.Error()
	}
	return fmt.Sprintf("%v (last error: %v)", err, lastErr)
}

func anyFailed[T, R any](rs []entity.ExecutionResult[T, R]) bool {
	for _, r := range rs {
		if !r.Success {
			return true
		}
	}
	return false
}

func safeCall(logger *slog.Logger, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error(what+" failed", slog.Any("panic", p))
		}
	}()
	fn()
}
