package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"research-scrapers/internal/config"
	pgRepo "research-scrapers/internal/infra/adapter/persistence/postgres"
	"research-scrapers/internal/infra/checkpoint"
	"research-scrapers/internal/infra/db"
	workerPkg "research-scrapers/internal/infra/worker"
	"research-scrapers/internal/observability/logging"
	"research-scrapers/internal/observability/metrics"
	pkgConfig "research-scrapers/internal/pkg/config"
	"research-scrapers/internal/resilience/circuitbreaker"
	"research-scrapers/internal/usecase/batch"
)

func main() {
	if batch.IsWorkerProcess() {
		os.Exit(serveChild())
	}

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWorker(ctx, logger); err != nil {
		logger.Error("worker failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// serveChild runs the process-pool child loop. Stdout carries the protocol,
// so logs go to stderr.
func serveChild() int {
	logger := logging.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	rateLimit := pkgConfig.LoadEnvFloat("FETCH_RATE_LIMIT", workerPkg.DefaultConfig().FetchRateLimit, nil).Value
	timeout := pkgConfig.LoadEnvDuration("FETCH_TIMEOUT", workerPkg.DefaultConfig().FetchTimeout, pkgConfig.ValidatePositiveDuration).Value
	fetcher := NewFetcher(newHTTPClient(timeout), rateLimit)

	if err := batch.ServeWorker(context.Background(), fetcher.Task()); err != nil {
		logger.Error("worker process failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func runWorker(ctx context.Context, logger *slog.Logger) error {
	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.Int("max_workers", cfg.MaxWorkers),
		slog.String("executor", cfg.Executor),
		slog.Int("retry_attempts", cfg.RetryAttempts),
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Duration("run_timeout", cfg.RunTimeout),
		slog.Float64("fetch_rate_limit", cfg.FetchRateLimit))

	breakers, err := loadBreakers(cfg.BreakerConfigFile)
	if err != nil {
		return err
	}

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	fetchBreaker := newFetchBreaker(breakers, logger)
	healthServer.AddBreaker(fetchBreaker)

	opts := []batch.Option[string, Page]{
		batch.WithKeyFunc[string, Page](func(url string) string { return url }),
		batch.WithCircuitBreaker[string, Page](fetchBreaker),
		batch.WithRecorder[string, Page](metrics.NewPrometheusRecorder(engineName)),
		batch.WithRetryIf[string, Page](retryFetch),
	}

	if cfg.DatabaseURL != "" {
		store, closeDB, err := openRepoCheckpoint(ctx, cfg, breakers, healthServer, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		opts = append(opts, batch.WithCheckpointStore(store))
	}

	bc, err := engineConfig(cfg, logger)
	if err != nil {
		return err
	}
	engine, err := batch.New(bc, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close engine", slog.Any("error", err))
		}
	}()

	r := &runner{
		cfg:     cfg,
		logger:  logger,
		metrics: workerMetrics,
		engine:  engine,
		work:    NewFetcher(newHTTPClient(cfg.FetchTimeout), cfg.FetchRateLimit).Task(),

		clearOnComplete: !cfg.RunOnce(),
	}

	healthServer.SetReady(true)
	if cfg.RunOnce() {
		return r.run(ctx)
	}
	return runScheduled(ctx, logger, cfg, r)
}

// runScheduled runs r on the cron schedule until ctx is canceled. A run still
// in progress when the next one is due makes the next one skip.
func runScheduled(ctx context.Context, logger *slog.Logger, cfg *workerPkg.WorkerConfig, r *runner) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.CronSchedule, func() {
		if err := r.run(ctx); err != nil {
			logger.Error("batch run failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()
	logger.Info("worker started", slog.String("schedule", cfg.CronSchedule), slog.String("timezone", loc.String()))

	<-ctx.Done()
	logger.Info("worker shutting down")
	<-c.Stop().Done()
	return nil
}

// loadBreakers reads the optional breaker definitions file. A missing path
// yields defaults for every breaker.
func loadBreakers(path string) (*config.BreakerFile, error) {
	if path == "" {
		return nil, nil
	}
	file, err := config.LoadBreakerFile(path)
	if err != nil {
		return nil, fmt.Errorf("load breaker definitions: %w", err)
	}
	return file, nil
}

// openRepoCheckpoint opens the Postgres checkpoint store behind the
// "database" breaker. The returned func closes the connection pool.
func openRepoCheckpoint(
	ctx context.Context,
	cfg *workerPkg.WorkerConfig,
	breakers *config.BreakerFile,
	healthServer *workerPkg.HealthServer,
	logger *slog.Logger,
) (*checkpoint.Store[string, Page], func(), error) {
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		closeDB()
		return nil, nil, err
	}

	dbCfg := withTransitionMetrics(breakers.Apply(circuitbreaker.DBConfig()), logger)
	guarded := circuitbreaker.NewDBCircuitBreakerWithConfig(database, dbCfg)
	healthServer.AddBreaker(guarded.Breaker())

	backend := checkpoint.NewRepoBackend(pgRepo.NewCheckpointRepo(guarded), cfg.CheckpointName)
	logger.Info("using database checkpoints", slog.String("name", cfg.CheckpointName))
	return checkpoint.Open[string, Page](ctx, backend, logger), closeDB, nil
}

// fetchBreakerName names the breaker guarding fetch attempts in the
// breaker definitions file.
const fetchBreakerName = "fetch"

// guard is a breaker the engine can call through and the health server can report.
type guard interface {
	batch.Breaker
	workerPkg.BreakerReporter
}

// newFetchBreaker builds the fetch breaker. A definition of kind ratio selects
// the gobreaker-backed RatioBreaker; anything else the consecutive breaker.
func newFetchBreaker(breakers *config.BreakerFile, logger *slog.Logger) guard {
	if breakers.Kind(fetchBreakerName) == config.KindRatio {
		cfg := breakers.ApplyRatio(circuitbreaker.FeedFetchRatioConfig(fetchBreakerName))
		cfg.OnStateChange = recordTransition
		logger.Info("using ratio circuit breaker",
			slog.String("circuit", cfg.Name),
			slog.Float64("failure_ratio", cfg.FailureRatio),
			slog.Any("min_requests", cfg.MinRequests))
		return circuitbreaker.NewRatioBreaker(cfg)
	}
	return circuitbreaker.New(withTransitionMetrics(breakers.Apply(circuitbreaker.WebScraperConfig(fetchBreakerName)), logger))
}

// withTransitionMetrics exports every state change of the breaker to Prometheus.
func withTransitionMetrics(cfg circuitbreaker.Config, logger *slog.Logger) circuitbreaker.Config {
	cfg.Logger = logger
	cfg.OnStateChange = recordTransition
	return cfg
}

func recordTransition(name string, from, to circuitbreaker.State) {
	metrics.RecordBreakerTransition(name, from.String(), to.String())
}
