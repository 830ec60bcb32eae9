package checkpoint

import (
	"context"
	"encoding/json"

	"research-scrapers/internal/repository"
)

// RepoBackend stores the checkpoint document as a named row of a
// CheckpointRepository, so several workers can share one database.
type RepoBackend struct {
	repo repository.CheckpointRepository
	name string
}

// NewRepoBackend returns a backend for the checkpoint called name.
func NewRepoBackend(repo repository.CheckpointRepository, name string) *RepoBackend {
	return &RepoBackend{repo: repo, name: name}
}

// Load implements Backend.
func (b *RepoBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.repo.Get(ctx, b.name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// Save implements Backend.
func (b *RepoBackend) Save(ctx context.Context, data []byte) error {
	return b.repo.Upsert(ctx, b.name, data, countItems(data))
}

// Remove implements Backend.
func (b *RepoBackend) Remove(ctx context.Context) error {
	return b.repo.Delete(ctx, b.name)
}

func countItems(data []byte) int {
	var doc struct {
		ProcessedItems map[string]json.RawMessage `json:"processed_items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0
	}
	return len(doc.ProcessedItems)
}
