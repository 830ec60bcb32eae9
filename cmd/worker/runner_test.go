package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/infra/export"
	"research-scrapers/internal/infra/procpool"
	workerPkg "research-scrapers/internal/infra/worker"
	"research-scrapers/internal/resilience/circuitbreaker"
	"research-scrapers/internal/usecase/batch"
)

// testMetrics is shared because worker metrics register globally.
var testMetrics = workerPkg.NewWorkerMetrics()

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func TestReadURLs(t *testing.T) {
	path := writeInput(t,
		"# seed list",
		"https://a.example/1",
		"",
		"  https://b.example/2  ",
		"https://a.example/1",
		"ftp://d.example/4",
		"https://c.example/3")

	urls, rejected, err := readURLs(path, entity.ValidateURL)

	require.NoError(t, err)
	if diff := cmp.Diff([]string{"https://a.example/1", "https://b.example/2", "https://c.example/3"}, urls); diff != "" {
		t.Errorf("readURLs() mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], entity.ErrInvalidInput)
	assert.ErrorContains(t, rejected[0], "line 6")
}

func TestReadURLs_MissingFile(t *testing.T) {
	_, _, err := readURLs(filepath.Join(t.TempDir(), "none.txt"), entity.ValidateURL)

	assert.ErrorContains(t, err, "open input file")
}

func TestEngineConfig(t *testing.T) {
	cfg := workerPkg.DefaultConfig()
	cfg.MaxWorkers = 8
	cfg.Executor = "process"
	cfg.RetryAttempts = 2
	cfg.RetryDelay = 250 * time.Millisecond
	cfg.RetryBackoff = 1.5
	cfg.RetryMaxDelay = 5 * time.Second
	cfg.RetryJitter = true
	cfg.FailFast = true
	cfg.CheckpointFile = "/tmp/cp.json"

	bc, err := engineConfig(&cfg, quietLogger())

	require.NoError(t, err)
	assert.Equal(t, engineName, bc.Name)
	assert.Equal(t, 8, bc.MaxWorkers)
	assert.Equal(t, batch.MultiProcess, bc.Executor)
	assert.Equal(t, 2, bc.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, bc.Backoff.BaseDelay)
	assert.Equal(t, 1.5, bc.Backoff.Multiplier)
	assert.Equal(t, 5*time.Second, bc.Backoff.MaxDelay)
	assert.True(t, bc.Backoff.Jitter)
	assert.True(t, bc.FailFast)
	assert.Equal(t, "/tmp/cp.json", bc.CheckpointPath)
	assert.NoError(t, bc.Validate())
}

func TestEngineConfig_DatabaseDisablesFileCheckpoint(t *testing.T) {
	cfg := workerPkg.DefaultConfig()
	cfg.CheckpointFile = "/tmp/cp.json"
	cfg.DatabaseURL = "postgres://localhost/batch"

	bc, err := engineConfig(&cfg, quietLogger())

	require.NoError(t, err)
	assert.Empty(t, bc.CheckpointPath)
}

func TestEngineConfig_UnknownExecutor(t *testing.T) {
	cfg := workerPkg.DefaultConfig()
	cfg.Executor = "fiber"

	_, err := engineConfig(&cfg, quietLogger())

	assert.Error(t, err)
}

func TestRetryFetch(t *testing.T) {
	assert.True(t, retryFetch(&procpool.RemoteError{Task: fetchTaskName, Message: "HTTP 404: Not Found"}))
	assert.True(t, retryFetch(&circuitbreaker.OpenError{Name: "fetch", State: circuitbreaker.StateOpen}))
	assert.False(t, retryFetch(errors.New("no such host")))
	assert.False(t, retryFetch(context.DeadlineExceeded))
}

func newTestRunner(t *testing.T, cfg *workerPkg.WorkerConfig, f *Fetcher) *runner {
	t.Helper()
	cfg.AllowPrivateHosts = true
	bc, err := engineConfig(cfg, quietLogger())
	require.NoError(t, err)
	bc.ShowProgress = false

	engine, err := batch.New(bc,
		batch.WithKeyFunc[string, Page](func(url string) string { return url }),
		batch.WithRetryIf[string, Page](retryFetch))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return &runner{cfg: cfg, logger: quietLogger(), metrics: testMetrics, engine: engine, work: f.Task()}
}

func TestRunner_Run(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()

	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = writeInput(t, srv.URL+"/ok", srv.URL+"/missing", srv.URL+"/unavailable")
	cfg.OutputFile = filepath.Join(dir, "out", "results.json")
	cfg.RetryAttempts = 1
	cfg.RetryDelay = time.Millisecond
	cfg.RetryMaxDelay = time.Millisecond

	r := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	partial := testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues(workerPkg.RunPartial))

	require.NoError(t, r.run(context.Background()))

	stats := r.engine.Stats()
	assert.Equal(t, 3, stats.TotalItems)
	assert.Equal(t, 1, stats.SuccessfulItems)
	assert.Equal(t, 2, stats.FailedItems)
	assert.Equal(t, partial+1, testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues(workerPkg.RunPartial)))

	doc, err := export.Load[string, Page](cfg.OutputFile, export.FormatJSON)
	require.NoError(t, err)
	require.Len(t, doc.Results, 3)

	byURL := make(map[string]int)
	for _, res := range doc.Results {
		byURL[res.Item] = res.RetryCount
	}
	assert.Equal(t, 0, byURL[srv.URL+"/ok"])
	assert.Equal(t, 0, byURL[srv.URL+"/missing"], "404 is not retried")
	assert.Equal(t, 1, byURL[srv.URL+"/unavailable"], "503 is retried")
}

func TestRunner_ResumesFromCheckpoint(t *testing.T) {
	srv := newTestServer(t)

	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = writeInput(t, srv.URL+"/ok", srv.URL+"/ok?page=2")
	cfg.CheckpointFile = filepath.Join(t.TempDir(), "checkpoint.json")
	cfg.RetryAttempts = 0

	first := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	require.NoError(t, first.run(context.Background()))
	assert.Equal(t, 2, first.engine.Stats().SuccessfulItems)

	second := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	require.NoError(t, second.run(context.Background()))

	stats := second.engine.Stats()
	assert.Equal(t, 2, stats.SkippedItems)
	assert.Equal(t, 0, stats.TotalItems)
}

func TestRunner_ScheduledRunsStartOver(t *testing.T) {
	srv := newTestServer(t)

	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = writeInput(t, srv.URL+"/ok", srv.URL+"/missing")
	cfg.CheckpointFile = filepath.Join(t.TempDir(), "checkpoint.json")
	cfg.OutputFile = filepath.Join(t.TempDir(), "results.json")
	cfg.RetryAttempts = 0

	r := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	r.clearOnComplete = true

	for tick := 1; tick <= 2; tick++ {
		require.NoError(t, r.run(context.Background()))

		stats := r.engine.Stats()
		assert.Equal(t, 2, stats.TotalItems, "tick %d", tick)
		assert.Equal(t, 0, stats.SkippedItems, "tick %d", tick)

		doc, err := export.Load[string, Page](cfg.OutputFile, export.FormatJSON)
		require.NoError(t, err)
		assert.Len(t, doc.Results, 2, "tick %d", tick)
	}
	assert.Equal(t, 0, r.engine.Checkpoint().Len())
}

func TestRunner_MissingInput(t *testing.T) {
	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = filepath.Join(t.TempDir(), "none.txt")
	r := newTestRunner(t, &cfg, NewFetcher(nil, 1))
	before := testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues(workerPkg.RunFailure))

	err := r.run(context.Background())

	assert.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(testMetrics.RunsTotal.WithLabelValues(workerPkg.RunFailure)))
}

func TestRunner_RejectsPrivateHosts(t *testing.T) {
	srv := newTestServer(t)

	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = writeInput(t, srv.URL+"/ok")
	r := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	cfg.AllowPrivateHosts = false

	require.NoError(t, r.run(context.Background()))

	assert.Equal(t, 0, r.engine.Stats().TotalItems)
}

func TestRunner_YAMLExport(t *testing.T) {
	srv := newTestServer(t)

	cfg := workerPkg.DefaultConfig()
	cfg.InputFile = writeInput(t, srv.URL+"/ok")
	cfg.OutputFile = filepath.Join(t.TempDir(), "results.yaml")
	cfg.OutputFormat = "yaml"

	r := newTestRunner(t, &cfg, NewFetcher(srv.Client(), 1000))
	require.NoError(t, r.run(context.Background()))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sha256:")
}
