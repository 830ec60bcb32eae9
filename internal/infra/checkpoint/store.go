// Package checkpoint provides the durable key to result map that makes batch
// runs resumable. The whole map is rewritten on every record, which keeps the
// on-disk format a single self-describing JSON document.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"research-scrapers/internal/domain/entity"
)

// Store is a lock-protected map from item key to terminal ExecutionResult,
// mirrored to a Backend. Safe for concurrent use; writes are serialized.
type Store[T, R any] struct {
	backend Backend
	logger  *slog.Logger

	mu        sync.Mutex
	processed map[string]entity.ExecutionResult[T, R]
	stats     entity.ExecutionStats
	savedAt   time.Time
}

// Open creates a store over backend and loads its saved document.
// A missing or unreadable document is logged and treated as empty.
func Open[T, R any](ctx context.Context, backend Backend, logger *slog.Logger) *Store[T, R] {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store[T, R]{
		backend:   backend,
		logger:    logger,
		processed: make(map[string]entity.ExecutionResult[T, R]),
	}
	s.load(ctx)
	return s
}

// OpenFile is Open over a FileBackend at path.
func OpenFile[T, R any](ctx context.Context, path string, logger *slog.Logger) *Store[T, R] {
	return Open[T, R](ctx, NewFileBackend(path), logger)
}

func (s *Store[T, R]) load(ctx context.Context) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("no checkpoint found, starting fresh")
			return
		}
		s.logger.Warn("failed to load checkpoint, starting fresh",
			slog.Any("error", err))
		return
	}

	var cp entity.Checkpoint[T, R]
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("corrupt checkpoint ignored, starting fresh",
			slog.Any("error", err))
		return
	}

	s.processed = cp.ProcessedItems
	s.stats = cp.Stats
	s.savedAt = cp.Timestamp
	s.logger.Info("checkpoint loaded",
		slog.Int("processed_items", len(s.processed)),
		slog.Time("saved_at", s.savedAt))
}

// Contains reports whether key has a recorded result.
func (s *Store[T, R]) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[key]
	return ok
}

// Get returns the recorded result for key.
func (s *Store[T, R]) Get(key string) (entity.ExecutionResult[T, R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.processed[key]
	return res, ok
}

// Len returns the number of recorded results.
func (s *Store[T, R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Stats returns the stats saved with the last checkpoint.
func (s *Store[T, R]) Stats() entity.ExecutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SavedAt returns the timestamp of the last loaded or saved document.
func (s *Store[T, R]) SavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedAt
}

// Record inserts result under key and rewrites the whole document with the
// given stats. The in-memory map is updated even when persisting fails; the
// returned error is for the caller to log.
func (s *Store[T, R]) Record(ctx context.Context, key string, result entity.ExecutionResult[T, R], stats entity.ExecutionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[key] = result
	s.stats = stats
	now := time.Now().UTC()

	data, err := json.Marshal(entity.Checkpoint[T, R]{
		ProcessedItems: s.processed,
		Stats:          stats,
		Timestamp:      now,
	})
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	s.savedAt = now
	return nil
}

// Clear drops every recorded result and removes the saved document.
func (s *Store[T, R]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed = make(map[string]entity.ExecutionResult[T, R])
	s.stats = entity.ExecutionStats{}
	s.savedAt = time.Time{}

	if err := s.backend.Remove(ctx); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	s.logger.Info("checkpoint cleared")
	return nil
}
