package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/infra/export"
	"research-scrapers/internal/infra/procpool"
	workerPkg "research-scrapers/internal/infra/worker"
	"research-scrapers/internal/observability/slo"
	"research-scrapers/internal/resilience/circuitbreaker"
	"research-scrapers/internal/resilience/retry"
	"research-scrapers/internal/usecase/batch"
)

// engineName labels the worker's batch metrics, logs and spans.
const engineName = "fetch"

// runner executes one batch run over the input file.
type runner struct {
	cfg     *workerPkg.WorkerConfig
	logger  *slog.Logger
	metrics *workerPkg.WorkerMetrics
	engine  *batch.Engine[string, Page]
	work    batch.Invoker[string, Page]

	// clearOnComplete empties the checkpoint after a run that processed every
	// URL, so the next scheduled run starts over. Interrupted runs keep it.
	clearOnComplete bool
}

// run reads the input file, processes every URL and exports the results.
// An error is returned only when the run could not start or export failed;
// failed items are reported through metrics and logs.
func (r *runner) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	urls, rejected, err := readURLs(r.cfg.InputFile, r.validateURL())
	if err != nil {
		r.metrics.RecordRunError()
		return err
	}
	for _, err := range rejected {
		r.logger.Warn("input line skipped", slog.Any("error", err))
	}
	r.logger.Info("batch run started",
		slog.String("input", r.cfg.InputFile),
		slog.Int("urls", len(urls)))

	start := time.Now()
	results := r.engine.Process(ctx, urls, r.work)
	stats := r.engine.Stats()

	status := r.metrics.RecordRun(time.Since(start).Seconds(), stats.SuccessfulItems, stats.FailedItems, stats.SkippedItems)
	slo.UpdateFromStats(engineName, stats)

	r.logger.Info("batch run completed",
		slog.String("status", status),
		slog.Int("successful", stats.SuccessfulItems),
		slog.Int("failed", stats.FailedItems),
		slog.Int("skipped", stats.SkippedItems),
		slog.Duration("average", stats.AverageProcessingTime),
		slog.Bool("meets_slo", slo.MeetsTargets(stats)),
		slog.Duration("duration", time.Since(start)))

	if r.clearOnComplete && ctx.Err() == nil && stats.TotalItems+stats.SkippedItems == len(urls) {
		if err := r.engine.ClearCheckpoint(ctx); err != nil {
			r.logger.Error("failed to clear checkpoint", slog.Any("error", err))
		}
	}

	if r.cfg.OutputFile == "" {
		return nil
	}
	format, err := export.ParseFormat(r.cfg.OutputFormat)
	if err != nil {
		return err
	}
	if err := r.engine.SaveResults(r.cfg.OutputFile, format, results); err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	r.logger.Info("results exported",
		slog.String("path", r.cfg.OutputFile),
		slog.String("format", string(format)),
		slog.Int("results", len(results)))
	return nil
}

func (r *runner) validateURL() func(string) error {
	if r.cfg.AllowPrivateHosts {
		return entity.ValidateURL
	}
	return entity.ValidatePublicURL
}

// readURLs reads one URL per line. Blank lines and lines starting with '#'
// are ignored and duplicates keep their first position, since the URL is the
// checkpoint key. Lines rejected by validate are returned as errors naming
// the line number.
func readURLs(path string, validate func(string) error) (urls []string, rejected []error, err error) {
	// #nosec G304 -- path is provided by trusted source (environment), not user input
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		if err := validate(line); err != nil {
			rejected = append(rejected, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read input file: %w", err)
	}
	return urls, rejected, nil
}

// engineConfig maps the worker configuration onto a batch engine configuration.
// The file checkpoint is used only when no database is configured.
func engineConfig(cfg *workerPkg.WorkerConfig, logger *slog.Logger) (batch.Config, error) {
	executor, err := batch.ParseExecutorKind(cfg.Executor)
	if err != nil {
		return batch.Config{}, err
	}

	bc := batch.DefaultConfig()
	bc.Name = engineName
	bc.MaxWorkers = cfg.MaxWorkers
	bc.Executor = executor
	bc.RetryAttempts = cfg.RetryAttempts
	bc.Backoff = retry.Backoff{
		BaseDelay:  cfg.RetryDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Multiplier: cfg.RetryBackoff,
		Jitter:     cfg.RetryJitter,
	}
	bc.FailFast = cfg.FailFast
	if cfg.DatabaseURL == "" {
		bc.CheckpointPath = cfg.CheckpointFile
	}
	bc.Logger = logger
	return bc, nil
}

// retryFetch reports whether a fetch failure is worth another attempt.
// Errors raised inside a child process lose their type, so they are always
// retried.
func retryFetch(err error) bool {
	var remote *procpool.RemoteError
	if errors.As(err, &remote) {
		return true
	}
	return retry.IsRetryable(err) || circuitbreaker.IsOpen(err)
}
