// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int

	// Backoff computes the delay between attempts
	Backoff Backoff

	// RetryIf reports whether an error is worth retrying. Nil retries every error.
	RetryIf func(error) bool

	// Logger receives retry warnings. Nil uses slog.Default().
	Logger *slog.Logger

	// OnRetry, if set, is called before each backoff sleep with the failed
	// attempt number (1-indexed), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     DefaultBackoff(),
	}
}

// WebScraperConfig returns configuration optimized for web scraping.
// Moderate retry for network issues and transient site failures.
func WebScraperConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff: Backoff{
			BaseDelay:  1 * time.Second,
			MaxDelay:   10 * time.Second,
			Multiplier: 2.0,
			Jitter:     true,
		},
		RetryIf: IsRetryable,
	}
}

// ErrMaxAttempts wraps the last error once every attempt has failed.
var ErrMaxAttempts = errors.New("max retry attempts exceeded")

// WithBackoff executes the given function with retry logic and exponential backoff.
// It returns nil if the function succeeds, or the last error if all attempts fail.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do is the value-returning form of WithBackoff.
//
// A non-retryable error is returned unchanged after the attempt that produced it.
// When every attempt fails the result wraps both ErrMaxAttempts and the last error.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			logger.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return zero, err
		}

		// Don't wait after last attempt
		if attempt == maxAttempts {
			break
		}

		delay := cfg.Backoff.Delay(attempt - 1)
		logger.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if err := Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted: %w", err)
		}
	}

	logger.Error("all retry attempts failed",
		slog.Int("max_attempts", maxAttempts),
		slog.Any("error", lastErr))
	return zero, fmt.Errorf("%w (%d): %w", ErrMaxAttempts, maxAttempts, lastErr)
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the context ends the wait early.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable determines if an error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// HTTP status codes
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// 5xx server errors are retryable
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return true
		}
		// 429 Too Many Requests is retryable
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		// 408 Request Timeout is retryable
		if httpErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
	}

	return false
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
