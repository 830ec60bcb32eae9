package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		message  string
		expected string
	}{
		{"simple validation error", "url", "invalid format", "validation error on field 'url': invalid format"},
		{"empty field name", "", "test message", "validation error on field '': test message"},
		{"empty message", "test", "", "validation error on field 'test': "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ValidationError{Field: tt.field, Message: tt.message}

			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := fmt.Errorf("line 3: %w", &ValidationError{Field: "url", Message: "required"})

	assert.ErrorIs(t, err, ErrInvalidInput)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "url", ve.Field)
	assert.False(t, errors.Is(errors.New("other"), ErrInvalidInput))
}
