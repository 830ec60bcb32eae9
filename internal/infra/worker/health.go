package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"research-scrapers/internal/observability/tracing"
	"research-scrapers/internal/resilience/circuitbreaker"
)

// BreakerReporter is a circuit breaker whose state can be reported.
// Both *circuitbreaker.CircuitBreaker and *circuitbreaker.RatioBreaker satisfy it.
type BreakerReporter interface {
	Name() string
	IsOpen() bool
	Metrics() circuitbreaker.Metrics
}

// HealthServer provides HTTP endpoints for health checks:
//   - /health: Liveness probe (always returns 200 OK)
//   - /health/ready: Readiness probe (returns 200 if ready, 503 if not)
//   - /health/breakers: Breaker snapshots (returns 503 if any breaker is open)
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", logger)
//	healthServer.AddBreaker(fetchBreaker)
//	go func() {
//	    if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	healthServer.SetReady(true)
type HealthServer struct {
	addr    string
	logger  *slog.Logger
	isReady *atomic.Bool
	server  *http.Server

	mu       sync.RWMutex
	breakers map[string]BreakerReporter
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

type breakersResponse struct {
	Status   string                   `json:"status"`
	Breakers []circuitbreaker.Metrics `json:"breakers"`
}

// NewHealthServer creates a health check server listening on addr.
// The server starts as not ready.
func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthServer{
		addr:     addr,
		logger:   logger,
		isReady:  &atomic.Bool{},
		breakers: make(map[string]BreakerReporter),
	}
}

// AddBreaker registers a breaker for /health/breakers. A breaker with the same
// name replaces the previous one.
func (h *HealthServer) AddBreaker(b BreakerReporter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakers[b.Name()] = b
}

// Handler returns the traced HTTP handler serving the health endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/health/breakers", h.handleBreakers)
	return tracing.Middleware(mux)
}

// Start runs the health server until ctx is cancelled, then shuts it down
// with a 5-second grace period and returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handleBreakers reports every registered breaker sorted by name.
func (h *HealthServer) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	resp := breakersResponse{Status: "ok", Breakers: make([]circuitbreaker.Metrics, 0, len(h.breakers))}
	for _, b := range h.breakers {
		if b.IsOpen() {
			resp.Status = "degraded"
		}
		resp.Breakers = append(resp.Breakers, b.Metrics())
	}
	h.mu.RUnlock()

	sort.Slice(resp.Breakers, func(i, j int) bool {
		return resp.Breakers[i].Name < resp.Breakers[j].Name
	})

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
