// Package batch runs large collections of independent work items with bounded
// concurrency, per-item retry with exponential backoff, resumable checkpoints
// and an optional circuit breaker in front of every attempt.
//
// An Engine is configured once and may run many batches. Process blocks until
// every scheduled item has a terminal ExecutionResult and returns the results
// in completion order:
//
//	engine, err := batch.New[string, Page](batch.DefaultConfig(),
//	    batch.WithKeyFunc[string, Page](func(u string) string { return u }),
//	    batch.WithCircuitBreaker[string, Page](breaker))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	results := engine.Process(ctx, urls, batch.WorkFunc[string, Page](fetch))
//	failed := batch.FailedItems(results)
//
// A MultiProcess engine runs each item in a child process. The work must be a
// Task, and the child binary must call ServeWorker with the same Task.
package batch
