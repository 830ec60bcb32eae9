package batch

import (
	"context"

	"research-scrapers/internal/domain/entity"
)

// FailedItems returns the items of the failed results, in result order.
func FailedItems[T, R any](results []entity.ExecutionResult[T, R]) []T {
	var items []T
	for _, r := range results {
		if !r.Success {
			items = append(items, r.Item)
		}
	}
	return items
}

// SuccessfulResults returns the values of the successful results, in result order.
func SuccessfulResults[T, R any](results []entity.ExecutionResult[T, R]) []R {
	var values []R
	for _, r := range results {
		if r.Success {
			values = append(values, r.Result)
		}
	}
	return values
}

// ProcessSimple runs fn over items on a threaded engine with maxWorkers
// workers and retryAttempts retries, and returns the successful values.
// Failed items are dropped.
func ProcessSimple[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), maxWorkers, retryAttempts int) ([]R, error) {
	cfg := DefaultConfig()
	cfg.Name = "simple"
	cfg.MaxWorkers = maxWorkers
	cfg.RetryAttempts = retryAttempts
	cfg.ShowProgress = false

	engine, err := New[T, R](cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = engine.Close() }()

	return SuccessfulResults(engine.Process(ctx, items, WorkFunc[T, R](fn))), nil
}
