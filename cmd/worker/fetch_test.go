package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-scrapers/internal/resilience/retry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent()))
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Fetch(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(srv.Client(), 100)

	page, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello"))
	assert.Equal(t, srv.URL+"/ok", page.URL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/plain", page.ContentType)
	assert.Equal(t, int64(5), page.Bytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), page.SHA256)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetcher_UserAgent(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(srv.Client(), 100)

	page, err := f.Fetch(context.Background(), srv.URL+"/ua")
	require.NoError(t, err)

	assert.Equal(t, int64(len("research-scrapers/1.0")), page.Bytes)
}

func TestFetcher_HTTPErrors(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(srv.Client(), 100)

	tests := []struct {
		path      string
		status    int
		retryable bool
	}{
		{"/unavailable", http.StatusServiceUnavailable, true},
		{"/missing", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), srv.URL+tt.path)

			var httpErr *retry.HTTPError
			require.True(t, errors.As(err, &httpErr), "err = %v", err)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
			assert.Equal(t, tt.retryable, retryFetch(err))
		})
	}
}

func TestFetcher_RateLimited(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(srv.Client(), 20)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/ok")
		require.NoError(t, err)
	}

	// Burst of one at 20/s: the second and third requests wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestFetcher_CanceledContext(t *testing.T) {
	srv := newTestServer(t)
	f := NewFetcher(srv.Client(), 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, srv.URL+"/ok")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, retryFetch(err))
}

func TestFetcher_InvalidURL(t *testing.T) {
	f := NewFetcher(http.DefaultClient, 100)

	_, err := f.Fetch(context.Background(), "://bad")

	assert.ErrorContains(t, err, "build request")
}

func TestFetcher_Task(t *testing.T) {
	task := NewFetcher(http.DefaultClient, 1).Task()

	assert.Equal(t, fetchTaskName, task.Name)
	assert.NotNil(t, task.Fn)
}
