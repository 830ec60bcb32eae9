package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-scrapers/internal/config"
	"research-scrapers/internal/resilience/circuitbreaker"
)

func TestNewFetchBreaker_Consecutive(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no file", ""},
		{"undefined", "breakers:\n  - name: database\n"},
		{"explicit kind", "breakers:\n  - name: fetch\n    kind: consecutive\n    failure_threshold: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var file *config.BreakerFile
			if tt.yaml != "" {
				var err error
				file, err = config.ParseBreakerFile([]byte(tt.yaml))
				require.NoError(t, err)
			}

			b := newFetchBreaker(file, quietLogger())

			assert.IsType(t, &circuitbreaker.CircuitBreaker{}, b)
			assert.Equal(t, fetchBreakerName, b.Name())
		})
	}
}

func TestNewFetchBreaker_Ratio(t *testing.T) {
	file, err := config.ParseBreakerFile([]byte(`
breakers:
  - name: fetch
    kind: ratio
    failure_ratio: 0.5
    min_requests: 2
`))
	require.NoError(t, err)

	b := newFetchBreaker(file, quietLogger())
	require.IsType(t, &circuitbreaker.RatioBreaker{}, b)
	assert.Equal(t, fetchBreakerName, b.Name())

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := b.Call(context.Background(), func(context.Context) (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.True(t, b.IsOpen())
	_, err = b.Call(context.Background(), func(context.Context) (any, error) { return "ok", nil })
	assert.True(t, circuitbreaker.IsOpen(err))
}
