package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-scrapers/internal/infra/procpool"
)

func multiProcessConfig(workers, retries int) Config {
	cfg := testConfig(workers, retries)
	cfg.Executor = MultiProcess
	cfg.Process = procpool.Config{Args: []string{"-test.run=^$"}}
	return cfg
}

func TestMultiProcess_Task(t *testing.T) {
	e := newEngine(t, multiProcessConfig(2, 0))

	results := e.Process(context.Background(), []int{1, 2, 3, 4, 5}, doubleTask)

	require.Len(t, results, 5)
	assert.Equal(t, []int{2, 4, 6, 8, 10}, sortedInts(SuccessfulResults(results)))
}

func TestMultiProcess_RemoteFailure(t *testing.T) {
	e := newEngine(t, multiProcessConfig(2, 1))

	results := e.Process(context.Background(), []int{1, 2, 3}, &failOnThreeTask)

	require.Len(t, results, 3)
	assert.Equal(t, []int{3}, FailedItems(results))
	for _, r := range results {
		if r.Item == 3 {
			assert.Contains(t, r.Error, "item 3 rejected")
			assert.Equal(t, 1, r.RetryCount)
		}
	}
}

func TestMultiProcess_PlainFunctionIsNotTransferable(t *testing.T) {
	e := newEngine(t, multiProcessConfig(2, 3))

	results := e.Process(context.Background(), []int{1, 2}, WorkFunc[int, int](double))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, ErrNotTransferable.Error(), r.Error)
		assert.Zero(t, r.RetryCount, "not retried")
	}
}

func TestMultiProcess_UnregisteredTask(t *testing.T) {
	e := newEngine(t, multiProcessConfig(1, 0))
	unknown := NewTask("not-registered", double)

	results := e.Process(context.Background(), []int{1}, unknown)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown task")
}

func TestMultiProcess_ClosedEngine(t *testing.T) {
	e := newEngine(t, multiProcessConfig(1, 2))
	require.NoError(t, e.Close())

	results := e.Process(context.Background(), []int{1}, doubleTask)

	require.Len(t, results, 1)
	assert.Equal(t, procpool.ErrPoolClosed.Error(), results[0].Error)
	assert.Zero(t, results[0].RetryCount)
}

func TestTask_Register(t *testing.T) {
	reg := procpool.NewRegistry()

	require.NoError(t, doubleTask.Register(reg))
	assert.Error(t, doubleTask.Register(reg), "duplicate")
	assert.Error(t, Task[int, int]{Name: "nil"}.Register(reg))

	_, ok := reg.Lookup("double")
	assert.True(t, ok)
}

func TestTask_InvokeInProcess(t *testing.T) {
	e := newEngine(t, testConfig(2, 0))

	results := e.Process(context.Background(), []int{1, 2}, doubleTask)

	assert.Equal(t, []int{2, 4}, sortedInts(SuccessfulResults(results)))
}

func TestRetryable(t *testing.T) {
	always := retryable(nil)
	assert.True(t, always(errBoom))
	assert.False(t, always(ErrNotTransferable))
	assert.False(t, always(errors.Join(errBoom, ErrChunkSize)))
	assert.False(t, always(procpool.ErrPoolClosed))

	never := retryable(func(error) bool { return false })
	assert.False(t, never(errBoom))
}
