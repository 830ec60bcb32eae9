package entity

import (
	"errors"
	"fmt"
)

// ErrInvalidInput indicates that an input item was rejected before processing.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError reports which field of an input failed validation.
// It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
