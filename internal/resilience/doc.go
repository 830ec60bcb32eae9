// Package resilience provides reliability and fault tolerance patterns for the
// batch workers. It includes circuit breakers and retry logic with exponential
// backoff.
//
// The package supports:
//   - Consecutive-failure circuit breakers with fallback and scoped guards
//   - Failure-ratio circuit breakers backed by sony/gobreaker
//   - Retry logic with exponential backoff and jitter
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.DefaultConfig("my-service"))
//	result, err := circuitbreaker.Execute(ctx, cb, func(ctx context.Context) (string, error) {
//	    return callExternalService(ctx)
//	})
//
//	retryConfig := retry.DefaultConfig()
//	err := retry.WithBackoff(ctx, retryConfig, func() error {
//	    return performOperation()
//	})
package resilience
