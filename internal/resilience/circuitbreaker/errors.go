package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpen is the sentinel matched by every error a breaker returns when it
// rejects a call. Use errors.Is(err, ErrOpen) or IsOpen(err).
var ErrOpen = errors.New("circuit breaker is open")

// OpenError is returned instead of calling the protected function while the
// circuit is open (or while the half-open probe quota is exhausted).
// It signals "downstream unavailable", never a failure of the call itself.
type OpenError struct {
	// Name of the breaker that rejected the call
	Name string

	// State the breaker was in when it rejected the call
	State State

	// RetryAfter is the remaining open time, zero when unknown
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is %s: service unavailable, retry in %s",
			e.Name, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker %q is %s: service unavailable", e.Name, e.State)
}

// Is makes errors.Is(err, ErrOpen) report true for any *OpenError.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
