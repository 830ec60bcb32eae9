package checkpoint

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-scrapers/internal/domain/entity"
)

type memoryRepo struct {
	mu     sync.Mutex
	docs   map[string][]byte
	counts map[string]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: map[string][]byte{}, counts: map[string]int{}}
}

func (r *memoryRepo) Get(_ context.Context, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[name], nil
}

func (r *memoryRepo) Upsert(_ context.Context, name string, document []byte, itemCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[name] = append([]byte(nil), document...)
	r.counts[name] = itemCount
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, name)
	delete(r.counts, name)
	return nil
}

func (r *memoryRepo) List(context.Context) ([]*entity.CheckpointInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CheckpointInfo
	for name, n := range r.counts {
		out = append(out, &entity.CheckpointInfo{Name: name, ItemCount: n})
	}
	return out, nil
}

func TestRepoBackend_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()

	s := Open[string, string](ctx, NewRepoBackend(repo, "nightly"), nil)
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Record(ctx, "a", entity.NewSuccess[string, string]("a", "A", 0, 0), entity.ExecutionStats{}))
	require.NoError(t, s.Record(ctx, "b", entity.NewFailure[string, string]("b", "boom", 2, 0), entity.ExecutionStats{}))
	assert.Equal(t, 2, repo.counts["nightly"])

	reopened := Open[string, string](ctx, NewRepoBackend(repo, "nightly"), nil)
	assert.Equal(t, 2, reopened.Len())
	got, ok := reopened.Get("b")
	require.True(t, ok)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 2, got.RetryCount)

	// other names are independent
	other := Open[string, string](ctx, NewRepoBackend(repo, "weekly"), nil)
	assert.Equal(t, 0, other.Len())

	require.NoError(t, reopened.Clear(ctx))
	assert.NotContains(t, repo.docs, "nightly")
}

func TestCountItems(t *testing.T) {
	assert.Equal(t, 2, countItems([]byte(`{"processed_items":{"a":{},"b":{}}}`)))
	assert.Equal(t, 0, countItems([]byte(`garbage`)))
}
