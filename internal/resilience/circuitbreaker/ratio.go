package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// RatioConfig holds the configuration for a RatioBreaker.
type RatioConfig struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state
	MaxRequests uint32

	// Interval is the cyclic period of the closed state to clear success/failure counts
	Interval time.Duration

	// Timeout is how long to wait in open state before trying again
	Timeout time.Duration

	// FailureRatio is the failure ratio threshold to trip the circuit
	// For example, 0.6 means 60% failure rate
	FailureRatio float64

	// MinRequests is the minimum number of requests before calculating failure ratio
	MinRequests uint32

	// IsFailure selects the errors that count as failures. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called after every transition
	OnStateChange func(name string, from, to State)
}

// DefaultRatioConfig returns a default configuration for ratio breakers.
func DefaultRatioConfig(name string) RatioConfig {
	return RatioConfig{
		Name:         name,
		MaxRequests:  3,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// FeedFetchRatioConfig returns configuration for high-volume listing endpoints,
// which tolerate a larger share of sporadic failures.
func FeedFetchRatioConfig(name string) RatioConfig {
	return RatioConfig{
		Name:         name,
		MaxRequests:  5,
		Interval:     60 * time.Second,
		Timeout:      120 * time.Second,
		FailureRatio: 0.7,
		MinRequests:  10,
	}
}

// RatioBreaker trips on the failure ratio observed during a rolling interval.
// It wraps gobreaker.CircuitBreaker and reports rejections as *OpenError, so it
// can stand in for a CircuitBreaker wherever only Call is needed.
type RatioBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string
}

// NewRatioBreaker creates a new ratio breaker with the given configuration.
func NewRatioBreaker(cfg RatioConfig) *RatioBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", fromGobreaker(from).String()),
				slog.String("to", fromGobreaker(to).String()))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	}
	if cfg.IsFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !cfg.IsFailure(err)
		}
	}

	return &RatioBreaker{
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    cfg.Name,
	}
}

// Call runs fn through the breaker. Rejections are returned as *OpenError;
// errors from fn are returned unchanged.
func (rb *RatioBreaker) Call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	result, err := rb.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, &OpenError{Name: rb.name, State: StateOpen}
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &OpenError{Name: rb.name, State: StateHalfOpen}
	}
	return result, err
}

// State returns the current state of the circuit breaker.
func (rb *RatioBreaker) State() State {
	return fromGobreaker(rb.breaker.State())
}

// Name returns the name of the circuit breaker.
func (rb *RatioBreaker) Name() string {
	return rb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (rb *RatioBreaker) IsOpen() bool {
	return rb.breaker.State() == gobreaker.StateOpen
}

// Metrics returns a snapshot built from gobreaker's counts for the current
// interval. Rejections are not tracked by gobreaker and are reported as zero.
func (rb *RatioBreaker) Metrics() Metrics {
	counts := rb.breaker.Counts()
	m := Metrics{
		Name:                 rb.name,
		State:                rb.State(),
		TotalRequests:        int64(counts.Requests),
		SuccessfulRequests:   int64(counts.TotalSuccesses),
		FailedRequests:       int64(counts.TotalFailures),
		ConsecutiveFailures:  int(counts.ConsecutiveFailures),
		ConsecutiveSuccesses: int(counts.ConsecutiveSuccesses),
	}
	if counts.Requests > 0 {
		m.FailureRate = float64(counts.TotalFailures) / float64(counts.Requests) * 100
		m.SuccessRate = float64(counts.TotalSuccesses) / float64(counts.Requests) * 100
	}
	return m
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
