package repository

import (
	"context"

	"research-scrapers/internal/domain/entity"
)

// CheckpointRepository stores named checkpoint documents.
type CheckpointRepository interface {
	// Get returns the document saved under name, or nil when there is none.
	Get(ctx context.Context, name string) ([]byte, error)
	// Upsert replaces the document saved under name.
	Upsert(ctx context.Context, name string, document []byte, itemCount int) error
	// Delete removes the document saved under name, if any.
	Delete(ctx context.Context, name string) error
	// List describes every saved checkpoint, most recently updated first.
	List(ctx context.Context) ([]*entity.CheckpointInfo, error)
}
