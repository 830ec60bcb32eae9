package db

import (
	"context"
	"database/sql"
)

// MigrateUp creates the checkpoint table. It is idempotent.
//
// Each row holds one named checkpoint document as JSONB, in the same
// {processed_items, stats, timestamp} shape as the checkpoint file.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS batch_checkpoints (
    name        TEXT PRIMARY KEY,
    document    JSONB NOT NULL,
    item_count  INTEGER NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	// stale checkpoint cleanup scans by age
	if _, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_batch_checkpoints_updated_at ON batch_checkpoints(updated_at)`); err != nil {
		return err
	}

	return nil
}
