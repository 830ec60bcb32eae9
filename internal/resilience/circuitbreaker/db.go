package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DBCircuitBreaker wraps a database connection with circuit breaker protection.
// It keeps a checkpoint backend from hammering an unavailable database on
// every completed item.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// DBConfig returns configuration optimized for database circuit breakers.
// Opens after 5 consecutive failures, 30 second timeout. sql.ErrNoRows and
// context cancellation are not failures of the database.
func DBConfig() Config {
	return Config{
		Name:             "database",
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3, // Allow 3 test requests in half-open state
		IsFailure: func(err error) bool {
			return !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, context.Canceled)
		},
	}
}

// NewDBCircuitBreaker creates a new database circuit breaker.
// It wraps the provided database connection with circuit breaker protection.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, DBConfig())
}

// NewDBCircuitBreakerWithConfig creates a new database circuit breaker with custom configuration.
func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{
		cb: New(cfg),
		db: db,
	}
}

// QueryContext executes a query with circuit breaker protection.
// If the circuit is open, it returns an *OpenError without hitting the database.
func (dcb *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return Execute(ctx, dcb.cb, func(ctx context.Context) (*sql.Rows, error) {
		return dcb.db.QueryContext(ctx, query, args...)
	})
}

// ExecContext executes a statement with circuit breaker protection.
// If the circuit is open, it returns an *OpenError without hitting the database.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return Execute(ctx, dcb.cb, func(ctx context.Context) (sql.Result, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
}

// State returns the current state of the circuit breaker.
func (dcb *DBCircuitBreaker) State() State {
	return dcb.cb.State()
}

// IsOpen returns true if the circuit breaker is in the open state.
func (dcb *DBCircuitBreaker) IsOpen() bool {
	return dcb.cb.IsOpen()
}

// Breaker returns the underlying circuit breaker, for health reporting.
func (dcb *DBCircuitBreaker) Breaker() *CircuitBreaker {
	return dcb.cb
}

// DB returns the underlying database connection.
// This should only be used for operations that don't need circuit breaker protection.
func (dcb *DBCircuitBreaker) DB() *sql.DB {
	return dcb.db
}
