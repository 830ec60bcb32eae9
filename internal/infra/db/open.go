// Package db opens the Postgres connection pool used by the checkpoint backend
// and creates its schema.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNoDSN is returned by Open when no data source name is given.
var ErrNoDSN = errors.New("database DSN not set")

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration.
// Checkpoint writes are serialized by the store, so a small pool suffices.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// Open creates and verifies a connection pool for dsn, applying pool
// settings from DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME
// and DB_CONN_MAX_IDLE_TIME.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg := getConnectionConfigFromEnv()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("database connection pool configured",
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connection established successfully")
	return db, nil
}

// getConnectionConfigFromEnv reads connection pool configuration from environment variables.
// Falls back to default values if not set or invalid.
func getConnectionConfigFromEnv() ConnectionConfig {
	cfg := DefaultConnectionConfig()

	if val, ok := positiveInt(os.Getenv("DB_MAX_OPEN_CONNS")); ok {
		cfg.MaxOpenConns = val
	}
	if val, ok := positiveInt(os.Getenv("DB_MAX_IDLE_CONNS")); ok {
		cfg.MaxIdleConns = val
	}
	if val, ok := positiveDuration(os.Getenv("DB_CONN_MAX_LIFETIME")); ok {
		cfg.ConnMaxLifetime = val
	}
	if val, ok := positiveDuration(os.Getenv("DB_CONN_MAX_IDLE_TIME")); ok {
		cfg.ConnMaxIdleTime = val
	}

	return cfg
}

func positiveInt(s string) (int, bool) {
	val, err := strconv.Atoi(s)
	return val, err == nil && val > 0
}

func positiveDuration(s string) (time.Duration, bool) {
	val, err := time.ParseDuration(s)
	return val, err == nil && val > 0
}
