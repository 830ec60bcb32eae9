package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateCronSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"30 5 * * *", false},
		{"0 */6 * * *", false},
		{"30 9 * * 1-5", false},
		{"", true},
		{"* * *", true},
		{"61 * * * *", true},
		{"0 0 * * * *", true}, // seconds field is not accepted
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateCronSchedule(tt.schedule)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestValidateTimezone(t *testing.T) {
	assert.NoError(t, ValidateTimezone("UTC"))
	assert.NoError(t, ValidateTimezone("Asia/Tokyo"))
	assert.Error(t, ValidateTimezone(""))
	assert.Error(t, ValidateTimezone("Mars/Olympus_Mons"))
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, ValidateDuration(time.Second, 0, time.Minute))
	assert.ErrorContains(t, ValidateDuration(2*time.Minute, 0, time.Minute), "exceeds maximum")
	assert.ErrorContains(t, ValidateDuration(0, time.Second, time.Minute), "below minimum")
	assert.ErrorContains(t, ValidateDuration(time.Second, time.Minute, time.Second), "invalid range")
}

func TestValidateIntRange(t *testing.T) {
	assert.NoError(t, ValidateIntRange(1, 1, 256))
	assert.NoError(t, ValidateIntRange(256, 1, 256))
	assert.ErrorContains(t, ValidateIntRange(0, 1, 256), "below minimum")
	assert.ErrorContains(t, ValidateIntRange(257, 1, 256), "exceeds maximum")
	assert.ErrorContains(t, ValidateIntRange(1, 5, 1), "invalid range")
}

func TestValidateFloatRange(t *testing.T) {
	assert.NoError(t, ValidateFloatRange(2, 1, 10))
	assert.Error(t, ValidateFloatRange(0.5, 1, 10))
	assert.Error(t, ValidateFloatRange(1, 10, 1))
}

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Nanosecond))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateOneOf(t *testing.T) {
	v := ValidateOneOf("json", "yaml", "gob")

	assert.NoError(t, v("json"))
	assert.NoError(t, v(" YAML "))
	assert.ErrorContains(t, v("csv"), "must be one of json, yaml, gob")
}
