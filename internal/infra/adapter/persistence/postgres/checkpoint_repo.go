package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"research-scrapers/internal/domain/entity"
	"research-scrapers/internal/repository"
)

// DBTX is the subset of *sql.DB the repository needs. It is also satisfied by
// *circuitbreaker.DBCircuitBreaker, which guards every statement with a breaker.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type CheckpointRepo struct{ db DBTX }

func NewCheckpointRepo(db DBTX) repository.CheckpointRepository {
	return &CheckpointRepo{db: db}
}

func (repo *CheckpointRepo) Get(ctx context.Context, name string) ([]byte, error) {
	const query = `
SELECT document
FROM batch_checkpoints
WHERE name = $1
LIMIT 1`
	rows, err := repo.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("Get: %w", err)
		}
		return nil, nil
	}
	var document []byte
	if err := rows.Scan(&document); err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return document, nil
}

func (repo *CheckpointRepo) Upsert(ctx context.Context, name string, document []byte, itemCount int) error {
	const query = `
INSERT INTO batch_checkpoints (name, document, item_count, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name) DO UPDATE
SET document = EXCLUDED.document,
    item_count = EXCLUDED.item_count,
    updated_at = now()`
	if _, err := repo.db.ExecContext(ctx, query, name, document, itemCount); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *CheckpointRepo) Delete(ctx context.Context, name string) error {
	const query = `DELETE FROM batch_checkpoints WHERE name = $1`
	if _, err := repo.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (repo *CheckpointRepo) List(ctx context.Context) ([]*entity.CheckpointInfo, error) {
	const query = `
SELECT name, item_count, updated_at
FROM batch_checkpoints
ORDER BY updated_at DESC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []*entity.CheckpointInfo
	for rows.Next() {
		var info entity.CheckpointInfo
		if err := rows.Scan(&info.Name, &info.ItemCount, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		infos = append(infos, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return infos, nil
}
