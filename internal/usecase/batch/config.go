package batch

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"research-scrapers/internal/infra/procpool"
	"research-scrapers/internal/resilience/retry"
)

// ExecutorKind selects how an Engine runs work units.
type ExecutorKind int

const (
	// Threaded runs work units on goroutines inside this process.
	Threaded ExecutorKind = iota
	// MultiProcess runs work units in child processes of a procpool.Pool.
	// Work must be a Task whose item and result types are JSON-serializable.
	MultiProcess
)

// String returns "thread" or "process".
func (k ExecutorKind) String() string {
	switch k {
	case Threaded:
		return "thread"
	case MultiProcess:
		return "process"
	default:
		return fmt.Sprintf("ExecutorKind(%d)", int(k))
	}
}

// ParseExecutorKind maps "thread" and "process" to an ExecutorKind.
func ParseExecutorKind(s string) (ExecutorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thread", "threaded":
		return Threaded, nil
	case "process", "multiprocess":
		return MultiProcess, nil
	default:
		return 0, fmt.Errorf("unknown executor %q: want thread or process", s)
	}
}

// Config holds the configuration for an Engine.
type Config struct {
	// Name labels the engine's metrics and logs
	Name string

	// MaxWorkers is the maximum number of work units in flight
	MaxWorkers int

	// Executor selects goroutines or child processes
	Executor ExecutorKind

	// RetryAttempts is the number of retries after the first attempt
	RetryAttempts int

	// Backoff computes the delay before each retry
	Backoff retry.Backoff

	// CheckpointPath, if set, opens a file-backed checkpoint store.
	// Ignored when WithCheckpointStore is given.
	CheckpointPath string

	// FailFast stops scheduling new work after the first terminal failure
	FailFast bool

	// ShowProgress logs progress every tenth of the run
	ShowProgress bool

	// Process configures the child processes of a MultiProcess engine.
	// Size defaults to MaxWorkers.
	Process procpool.Config

	// Logger receives engine logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the standard engine configuration: 5 workers, threaded,
// 3 retries with delays of 1s, 2s, 4s ... capped at 60s and no jitter.
func DefaultConfig() Config {
	return Config{
		Name:          "batch",
		MaxWorkers:    5,
		Executor:      Threaded,
		RetryAttempts: 3,
		Backoff: retry.Backoff{
			BaseDelay:  1 * time.Second,
			MaxDelay:   60 * time.Second,
			Multiplier: 2.0,
		},
		ShowProgress: true,
	}
}

// Validate reports the first invalid field of c.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be >= 0, got %d", c.RetryAttempts)
	}
	if c.Executor != Threaded && c.Executor != MultiProcess {
		return fmt.Errorf("invalid executor %v", c.Executor)
	}
	if c.Backoff.BaseDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("backoff delays must be >= 0")
	}
	// zero falls back to a constant delay; anything else must not shrink it
	if m := c.Backoff.Multiplier; m != 0 && m < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %v", m)
	}
	return nil
}
