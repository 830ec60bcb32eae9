package worker

import (
	"fmt"
	"log/slog"
	"time"

	"research-scrapers/internal/pkg/config"
)

// WorkerConfig holds the configuration of the batch worker binary.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Every field has a default and validation rule, so the worker can start even
// with invalid or missing configuration.
type WorkerConfig struct {
	// MaxWorkers is the number of items processed concurrently.
	// Range: 1-256. Default: 5
	MaxWorkers int

	// Executor is "thread" or "process". Default: "thread"
	Executor string

	// RetryAttempts is the number of retries after the first attempt.
	// Range: 0-10. Default: 3
	RetryAttempts int

	// RetryDelay is the delay before the first retry. Default: 1s
	RetryDelay time.Duration

	// RetryBackoff is the backoff multiplier. Range: 1-10. Default: 2
	RetryBackoff float64

	// RetryMaxDelay caps the backoff delay. Default: 60s
	RetryMaxDelay time.Duration

	// RetryJitter enables ±25% jitter on retry delays. Default: false
	RetryJitter bool

	// FailFast stops scheduling after the first failed item. Default: false
	FailFast bool

	// CheckpointFile is the JSON checkpoint path. Empty disables file
	// checkpoints. Ignored when DatabaseURL is set.
	CheckpointFile string

	// CheckpointName is the checkpoint row name in Postgres. Default: "worker"
	CheckpointName string

	// DatabaseURL switches checkpoints to Postgres when set
	DatabaseURL string

	// InputFile holds one URL per line. Default: "urls.txt"
	InputFile string

	// OutputFile receives exported results. Empty disables export.
	OutputFile string

	// OutputFormat is "json", "yaml" or "gob". Default: "json"
	OutputFormat string

	// CronSchedule is the cron expression for scheduled runs.
	// Format: "minute hour day month weekday". Empty runs once and exits.
	CronSchedule string

	// Timezone is the IANA timezone name for cron scheduling. Default: "UTC"
	Timezone string

	// RunTimeout bounds a single run. Range: 1m-24h. Default: 30m
	RunTimeout time.Duration

	// HealthPort is the health server port. Range: 1024-65535. Default: 9091
	HealthPort int

	// MetricsPort is the Prometheus metrics port. Range: 1024-65535. Default: 9090
	MetricsPort int

	// FetchRateLimit is the maximum number of requests per second.
	// Range: 0.1-1000. Default: 5
	FetchRateLimit float64

	// FetchTimeout bounds a single HTTP request. Range: 1s-5m. Default: 30s
	FetchTimeout time.Duration

	// AllowPrivateHosts permits input URLs that resolve to loopback or
	// private addresses. Default: false
	AllowPrivateHosts bool

	// BreakerConfigFile is an optional YAML file of breaker definitions
	BreakerConfigFile string
}

// DefaultConfig returns a WorkerConfig with default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		MaxWorkers:     5,
		Executor:       "thread",
		RetryAttempts:  3,
		RetryDelay:     1 * time.Second,
		RetryBackoff:   2.0,
		RetryMaxDelay:  60 * time.Second,
		CheckpointName: "worker",
		InputFile:      "urls.txt",
		OutputFormat:   "json",
		Timezone:       "UTC",
		RunTimeout:     30 * time.Minute,
		HealthPort:     9091,
		MetricsPort:    9090,
		FetchRateLimit: 5,
		FetchTimeout:   30 * time.Second,
	}
}

// RunOnce reports whether no cron schedule is configured.
func (c *WorkerConfig) RunOnce() bool {
	return c.CronSchedule == ""
}

// Validate checks every field and returns all failures together.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("max workers", config.ValidateIntRange(c.MaxWorkers, 1, 256))
	check("executor", validExecutor(c.Executor))
	check("retry attempts", config.ValidateIntRange(c.RetryAttempts, 0, 10))
	check("retry delay", config.ValidatePositiveDuration(c.RetryDelay))
	check("retry backoff", validMultiplier(c.RetryBackoff))
	check("retry max delay", config.ValidatePositiveDuration(c.RetryMaxDelay))
	check("output format", validFormat(c.OutputFormat))
	if !c.RunOnce() {
		check("cron schedule", config.ValidateCronSchedule(c.CronSchedule))
	}
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("run timeout", validRunTimeout(c.RunTimeout))
	check("health port", validPort(c.HealthPort))
	check("metrics port", validPort(c.MetricsPort))
	check("fetch rate limit", validRate(c.FetchRateLimit))
	check("fetch timeout", validFetchTimeout(c.FetchTimeout))

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

var (
	validExecutor = config.ValidateOneOf("thread", "process")
	validFormat   = config.ValidateOneOf("json", "yaml", "gob")
)

func validMultiplier(v float64) error { return config.ValidateFloatRange(v, 1, 10) }
func validRate(v float64) error       { return config.ValidateFloatRange(v, 0.1, 1000) }
func validPort(v int) error           { return config.ValidateIntRange(v, 1024, 65535) }

func validRunTimeout(d time.Duration) error {
	return config.ValidateDuration(d, time.Minute, 24*time.Hour)
}

func validFetchTimeout(d time.Duration) error {
	return config.ValidateDuration(d, time.Second, 5*time.Minute)
}

func validCron(s string) error {
	if s == "" {
		return nil
	}
	return config.ValidateCronSchedule(s)
}

// LoadConfigFromEnv loads the worker configuration from environment variables
// with fail-open semantics: an invalid value is replaced by its default, logged
// as a warning and counted in metrics. The returned configuration is always
// valid and the error is always nil.
//
// Environment variables:
//   - BATCH_MAX_WORKERS, BATCH_EXECUTOR, BATCH_RETRY_ATTEMPTS, BATCH_RETRY_DELAY,
//     BATCH_RETRY_BACKOFF, BATCH_RETRY_MAX_DELAY, BATCH_RETRY_JITTER, BATCH_FAIL_FAST
//   - BATCH_CHECKPOINT_FILE, CHECKPOINT_NAME, DATABASE_URL
//   - BATCH_INPUT_FILE, BATCH_OUTPUT_FILE, BATCH_OUTPUT_FORMAT
//   - CRON_SCHEDULE, WORKER_TIMEZONE, BATCH_RUN_TIMEOUT
//   - WORKER_HEALTH_PORT, METRICS_PORT
//   - FETCH_RATE_LIMIT, FETCH_TIMEOUT, FETCH_ALLOW_PRIVATE, BREAKER_CONFIG_FILE
//
// Warning log format:
//
//	logger.Warn("Configuration fallback applied",
//	    slog.String("field", "MaxWorkers"),
//	    slog.String("warning", "Invalid BATCH_MAX_WORKERS='0': ..."))
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	l := &envLoader{logger: logger, metrics: metrics}

	cfg.MaxWorkers = track(l, "MaxWorkers", "max_workers", config.LoadEnvInt("BATCH_MAX_WORKERS", cfg.MaxWorkers, func(v int) error {
		return config.ValidateIntRange(v, 1, 256)
	}))
	cfg.Executor = track(l, "Executor", "executor", config.LoadEnvWithFallback("BATCH_EXECUTOR", cfg.Executor, validExecutor))
	cfg.RetryAttempts = track(l, "RetryAttempts", "retry_attempts", config.LoadEnvInt("BATCH_RETRY_ATTEMPTS", cfg.RetryAttempts, func(v int) error {
		return config.ValidateIntRange(v, 0, 10)
	}))
	cfg.RetryDelay = track(l, "RetryDelay", "retry_delay", config.LoadEnvDuration("BATCH_RETRY_DELAY", cfg.RetryDelay, config.ValidatePositiveDuration))
	cfg.RetryBackoff = track(l, "RetryBackoff", "retry_backoff", config.LoadEnvFloat("BATCH_RETRY_BACKOFF", cfg.RetryBackoff, validMultiplier))
	cfg.RetryMaxDelay = track(l, "RetryMaxDelay", "retry_max_delay", config.LoadEnvDuration("BATCH_RETRY_MAX_DELAY", cfg.RetryMaxDelay, config.ValidatePositiveDuration))
	cfg.RetryJitter = track(l, "RetryJitter", "retry_jitter", config.LoadEnvBool("BATCH_RETRY_JITTER", cfg.RetryJitter))
	cfg.FailFast = track(l, "FailFast", "fail_fast", config.LoadEnvBool("BATCH_FAIL_FAST", cfg.FailFast))

	cfg.CheckpointFile = config.LoadEnvString("BATCH_CHECKPOINT_FILE", cfg.CheckpointFile)
	cfg.CheckpointName = config.LoadEnvString("CHECKPOINT_NAME", cfg.CheckpointName)
	cfg.DatabaseURL = config.LoadEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.InputFile = config.LoadEnvString("BATCH_INPUT_FILE", cfg.InputFile)
	cfg.OutputFile = config.LoadEnvString("BATCH_OUTPUT_FILE", cfg.OutputFile)
	cfg.OutputFormat = track(l, "OutputFormat", "output_format", config.LoadEnvWithFallback("BATCH_OUTPUT_FORMAT", cfg.OutputFormat, validFormat))

	cfg.CronSchedule = track(l, "CronSchedule", "cron_schedule", config.LoadEnvWithFallback("CRON_SCHEDULE", cfg.CronSchedule, validCron))
	cfg.Timezone = track(l, "Timezone", "timezone", config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.RunTimeout = track(l, "RunTimeout", "run_timeout", config.LoadEnvDuration("BATCH_RUN_TIMEOUT", cfg.RunTimeout, validRunTimeout))

	cfg.HealthPort = track(l, "HealthPort", "health_port", config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, validPort))
	cfg.MetricsPort = track(l, "MetricsPort", "metrics_port", config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, validPort))

	cfg.FetchRateLimit = track(l, "FetchRateLimit", "fetch_rate_limit", config.LoadEnvFloat("FETCH_RATE_LIMIT", cfg.FetchRateLimit, validRate))
	cfg.FetchTimeout = track(l, "FetchTimeout", "fetch_timeout", config.LoadEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout, validFetchTimeout))
	cfg.AllowPrivateHosts = track(l, "AllowPrivateHosts", "allow_private_hosts", config.LoadEnvBool("FETCH_ALLOW_PRIVATE", cfg.AllowPrivateHosts))
	cfg.BreakerConfigFile = config.LoadEnvString("BREAKER_CONFIG_FILE", cfg.BreakerConfigFile)

	metrics.SetFallbackActive(l.fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}

type envLoader struct {
	logger          *slog.Logger
	metrics         *WorkerMetrics
	fallbackApplied bool
}

func track[T any](l *envLoader, field, label string, result config.LoadResult[T]) T {
	if result.FallbackApplied {
		l.fallbackApplied = true
		l.metrics.RecordValidationError(label)
		l.metrics.RecordFallback(label)
		for _, warning := range result.Warnings {
			l.logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}
	return result.Value
}
