package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"research-scrapers/internal/resilience/retry"
	"research-scrapers/internal/usecase/batch"
)

// fetchTaskName is the process-pool task name of the fetch work function.
// Parent and child must register the same name.
const fetchTaskName = "fetch_url"

// maxBodyBytes caps how much of a response body is read and hashed.
const maxBodyBytes = 10 << 20

// Page is the result of fetching one URL. It is JSON-serializable so it can
// cross the process-pool boundary and be stored in checkpoints.
type Page struct {
	URL         string    `json:"url" yaml:"url"`
	StatusCode  int       `json:"status_code" yaml:"status_code"`
	ContentType string    `json:"content_type" yaml:"content_type"`
	Bytes       int64     `json:"bytes" yaml:"bytes"`
	SHA256      string    `json:"sha256" yaml:"sha256"`
	FetchedAt   time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// Fetcher performs rate-limited HTTP GET requests. Safe for concurrent use;
// the limiter is shared by every goroutine using the Fetcher.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewFetcher creates a Fetcher allowing perSecond requests per second with a
// burst of one.
func NewFetcher(client *http.Client, perSecond float64) *Fetcher {
	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		userAgent: "research-scrapers/1.0",
	}
}

// Fetch downloads url. Responses with status >= 400 are returned as
// *retry.HTTPError so that 5xx, 408 and 429 are classified as retryable.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Page{}, &retry.HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	h := sha256.New()
	n, err := io.Copy(h, io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}

	return Page{
		URL:         url,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       n,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Task returns the fetch work function as a named batch task.
func (f *Fetcher) Task() batch.Task[string, Page] {
	return batch.NewTask(fetchTaskName, f.Fetch)
}

// newHTTPClient creates an HTTP client with timeouts and connection pooling.
// TLS 1.2+ is enforced for security.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
