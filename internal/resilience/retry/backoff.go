package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// jitterFraction is the symmetric perturbation applied when Jitter is enabled (±25%).
const jitterFraction = 0.25

// Backoff computes the delay before a retry attempt.
//
//	delay(attempt) = min(MaxDelay, BaseDelay * Multiplier^attempt)
//
// optionally perturbed by a uniform ±25% jitter and clamped to >= 0.
// Backoff holds no state and is safe for concurrent use.
type Backoff struct {
	// BaseDelay is the delay before the first retry (attempt 0)
	BaseDelay time.Duration

	// MaxDelay caps the un-jittered delay. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between attempts
	Multiplier float64

	// Jitter enables the ±25% random perturbation
	Jitter bool
}

// DefaultBackoff returns the standard policy: 1s base, x2 growth, 60s cap, jitter on.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt (0-indexed).
// Negative attempts are treated as 0.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if b.BaseDelay <= 0 {
		return 0
	}

	mult := b.Multiplier
	if mult <= 0 {
		mult = 1
	}

	delay := float64(b.BaseDelay) * math.Pow(mult, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	// guards the float->int conversion when no cap is configured
	if delay > math.MaxInt64/2 {
		delay = math.MaxInt64 / 2
	}

	if b.Jitter {
		// #nosec G404 -- jitter does not need cryptographic randomness
		delay += (rand.Float64()*2 - 1) * delay * jitterFraction
	}

	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
