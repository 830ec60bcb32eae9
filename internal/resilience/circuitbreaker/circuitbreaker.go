// Package circuitbreaker provides circuit breakers that isolate callers from a
// downstream operation that has started failing persistently.
//
// CircuitBreaker is a consecutive-count state machine:
//
//   - Closed: calls pass through, consecutive failures are counted
//   - Open: calls are rejected with *OpenError (or served by the fallback)
//   - Half-open: probe calls are let through to test recovery
//
// Closed opens after FailureThreshold consecutive failures. Open becomes
// half-open lazily, on the first state read or call once Timeout has elapsed;
// there is no background timer. Half-open closes after SuccessThreshold
// consecutive successes and reopens on any failure.
//
// RatioBreaker is the alternative for callers that prefer tripping on a failure
// ratio over a rolling interval. It is backed by github.com/sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	// StateClosed is the normal operating state. Calls flow through.
	StateClosed State = iota

	// StateOpen is the tripped state. Calls are rejected.
	StateOpen

	// StateHalfOpen is the recovery testing state. Probe calls are allowed.
	StateHalfOpen
)

// String returns a string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half_open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit state %q", text)
	}
	return nil
}

// Default values.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultTimeout          = 60 * time.Second
)

// Fallback produces a substitute value while the circuit is open.
type Fallback func(ctx context.Context) (any, error)

// Config holds the configuration for a CircuitBreaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that closes it
	SuccessThreshold int

	// Timeout is how long to stay open before probing again
	Timeout time.Duration

	// IsFailure selects the errors that count as failures. Errors it rejects are
	// returned to the caller unchanged and count as neither success nor failure.
	// Nil counts every non-nil error.
	IsFailure func(error) bool

	// Fallback, when set, is invoked instead of rejecting calls while open.
	// Fallback invocations are not counted as requests.
	Fallback Fallback

	// HalfOpenMaxCalls caps concurrent probe calls while half-open. Zero means unlimited.
	HalfOpenMaxCalls int

	// Clock provides time for the open timeout. Nil uses SystemClock.
	Clock Clock

	// Logger receives state transition logs. Nil uses slog.Default().
	Logger *slog.Logger

	// OnStateChange is called after every transition, outside the breaker lock
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		Timeout:          DefaultTimeout,
	}
}

// WebScraperConfig returns configuration tuned for scraping remote sites.
// Sites that break their markup tend to stay broken, hence the long timeout.
func WebScraperConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          5 * time.Minute,
	}
}

// Validate checks the configuration. Zero thresholds and timeouts are valid and
// are replaced by defaults in New.
func (c Config) Validate() error {
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold must be >= 0, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 0 {
		return fmt.Errorf("success threshold must be >= 0, got %d", c.SuccessThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}
	if c.HalfOpenMaxCalls < 0 {
		return fmt.Errorf("half-open max calls must be >= 0, got %d", c.HalfOpenMaxCalls)
	}
	return nil
}

var errPanicked = errors.New("panic in protected call")

// admission describes an admitted call. gen identifies the state period the
// call was admitted in, so late probes from an earlier half-open period are
// not applied to the current one.
type admission struct {
	probe bool
	gen   uint64
}

type transition struct {
	from, to State
	reason   string
}

// CircuitBreaker is a consecutive-failure circuit breaker. Safe for concurrent use.
//
// A single mutex guards state, counters and the lazy open to half-open check,
// so concurrent callers observe one consistent state at the transition instant.
type CircuitBreaker struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	openedAt time.Time
	probes   int
	gen      uint64
	metrics  counters
	pending  []transition
}

// New creates a circuit breaker with the given configuration.
//
// If cfg.FailureThreshold is 0, it defaults to 5.
// If cfg.SuccessThreshold is 0, it defaults to 2.
// If cfg.Timeout is 0, it defaults to 60 seconds.
// If cfg.Clock is nil, it defaults to SystemClock.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("circuit breaker initialized",
		slog.String("circuit", cfg.Name),
		slog.Int("failure_threshold", cfg.FailureThreshold),
		slog.Int("success_threshold", cfg.SuccessThreshold),
		slog.Duration("timeout", cfg.Timeout))

	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
	}
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// State returns the current state, applying the lazy open to half-open
// transition when the timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.unlockAndNotify()
	return cb.currentState()
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Reset manually returns the circuit to closed and clears the consecutive counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	if cb.state != StateClosed {
		cb.setState(StateClosed, "manual reset")
	}
	cb.metrics.consecutiveFailures = 0
	cb.metrics.consecutiveSuccesses = 0
	cb.unlockAndNotify()

	cb.logger.Info("circuit breaker manually reset", slog.String("circuit", cb.cfg.Name))
}

// Call runs fn through the circuit breaker.
//
// While closed or half-open fn is invoked and its error, if any, is returned
// unchanged. While open the fallback's result is returned when configured,
// otherwise an *OpenError and fn is not invoked.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) (any, error)) (result any, err error) {
	adm, rejectErr := cb.allow()
	if rejectErr != nil {
		if cb.cfg.Fallback != nil {
			cb.logger.Warn("circuit breaker open, using fallback",
				slog.String("circuit", cb.cfg.Name))
			return cb.cfg.Fallback(ctx)
		}
		return nil, rejectErr
	}

	completed := false
	defer func() {
		if !completed {
			// fn panicked; count it and let the panic continue
			cb.record(errPanicked, adm)
		}
	}()

	result, err = fn(ctx)
	completed = true
	cb.record(err, adm)
	return result, err
}

// Do is Call for functions that return only an error.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := cb.Call(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// allow decides whether a call may proceed. It returns the admission, or the
// rejection error.
func (cb *CircuitBreaker) allow() (adm admission, err error) {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	switch cb.currentState() {
	case StateOpen:
		cb.metrics.rejected++
		return admission{}, &OpenError{
			Name:       cb.cfg.Name,
			State:      StateOpen,
			RetryAfter: cb.cfg.Timeout - cb.cfg.Clock.Now().Sub(cb.openedAt),
		}
	case StateHalfOpen:
		if cb.cfg.HalfOpenMaxCalls > 0 && cb.probes >= cb.cfg.HalfOpenMaxCalls {
			cb.metrics.rejected++
			return admission{}, &OpenError{Name: cb.cfg.Name, State: StateHalfOpen}
		}
		cb.probes++
		adm.probe = true
	}
	adm.gen = cb.gen
	cb.metrics.total++
	return adm, nil
}

// record applies the outcome of an admitted call. A probe admitted in an
// earlier state period only updates the totals.
func (cb *CircuitBreaker) record(err error, adm admission) {
	cb.mu.Lock()
	defer cb.unlockAndNotify()

	now := cb.cfg.Clock.Now()
	if adm.probe && adm.gen != cb.gen {
		switch {
		case err == nil:
			cb.metrics.successful++
			cb.metrics.lastSuccess = now
		case cb.isFailure(err):
			cb.metrics.failed++
			cb.metrics.lastFailure = now
		}
		return
	}
	if adm.probe && cb.probes > 0 {
		cb.probes--
	}

	switch {
	case err == nil:
		cb.onSuccess(now)
	case cb.isFailure(err):
		cb.onFailure(now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	m := &cb.metrics
	m.successful++
	m.consecutiveSuccesses++
	m.consecutiveFailures = 0
	m.lastSuccess = now

	if cb.currentState() == StateHalfOpen && m.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
		cb.setState(StateClosed, fmt.Sprintf("%d consecutive successes", m.consecutiveSuccesses))
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	m := &cb.metrics
	m.failed++
	m.consecutiveFailures++
	m.consecutiveSuccesses = 0
	m.lastFailure = now

	switch cb.currentState() {
	case StateClosed:
		if m.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen, fmt.Sprintf("%d consecutive failures", m.consecutiveFailures))
		}
	case StateHalfOpen:
		cb.setState(StateOpen, "failure while half-open")
	}
}

func (cb *CircuitBreaker) isFailure(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

// currentState must be called with cb.mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.cfg.Clock.Now().Sub(cb.openedAt) >= cb.cfg.Timeout {
		cb.setState(StateHalfOpen, "open timeout elapsed")
	}
	return cb.state
}

// setState must be called with cb.mu held. Consecutive counters restart from
// zero in the new state.
func (cb *CircuitBreaker) setState(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.probes = 0
	cb.gen++
	cb.metrics.stateChanges++
	cb.metrics.consecutiveFailures = 0
	cb.metrics.consecutiveSuccesses = 0

	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Clock.Now()
	case StateClosed:
		cb.openedAt = time.Time{}
	}

	cb.pending = append(cb.pending, transition{from: from, to: to, reason: reason})
}

// unlockAndNotify releases cb.mu and then reports queued transitions, so that
// hooks may call back into the breaker.
func (cb *CircuitBreaker) unlockAndNotify() {
	pending := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, t := range pending {
		cb.logger.Warn("circuit breaker state changed",
			slog.String("circuit", cb.cfg.Name),
			slog.String("from", t.from.String()),
			slog.String("to", t.to.String()),
			slog.String("reason", t.reason))
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, t.from, t.to)
		}
	}
}
