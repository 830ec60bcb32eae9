package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, 1*time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
}

func TestGetConnectionConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want ConnectionConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: DefaultConnectionConfig(),
		},
		{
			name: "all custom values",
			env: map[string]string{
				"DB_MAX_OPEN_CONNS":     "50",
				"DB_MAX_IDLE_CONNS":     "20",
				"DB_CONN_MAX_LIFETIME":  "2h",
				"DB_CONN_MAX_IDLE_TIME": "15m",
			},
			want: ConnectionConfig{MaxOpenConns: 50, MaxIdleConns: 20, ConnMaxLifetime: 2 * time.Hour, ConnMaxIdleTime: 15 * time.Minute},
		},
		{
			name: "invalid values fall back to defaults",
			env: map[string]string{
				"DB_MAX_OPEN_CONNS":     "invalid",
				"DB_MAX_IDLE_CONNS":     "0",
				"DB_CONN_MAX_LIFETIME":  "-1h",
				"DB_CONN_MAX_IDLE_TIME": "soon",
			},
			want: DefaultConnectionConfig(),
		},
		{
			name: "partial custom values",
			env:  map[string]string{"DB_MAX_OPEN_CONNS": "8"},
			want: ConnectionConfig{MaxOpenConns: 8, MaxIdleConns: 2, ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 30 * time.Minute},
		},
	}

	keys := []string{"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, tt.env[k])
			}
			assert.Equal(t, tt.want, getConnectionConfigFromEnv())
		})
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	db, err := Open(context.Background(), "")

	assert.Nil(t, db)
	assert.ErrorIs(t, err, ErrNoDSN)
}

// TestOpen_SuccessfulConnection connects to a real database when one is configured
func TestOpen_SuccessfulConnection(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	assert.NoError(t, db.PingContext(context.Background()))
	assert.NoError(t, MigrateUp(context.Background(), db))
}
