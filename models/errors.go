package models

import (
	"errors"
	"fmt"
)

// ErrContractViolation is matched by every caller-side validation failure.
// Such failures are detected before any network call.
var ErrContractViolation = errors.New("contract violation")

// ValidationError describes one rejected field of an edit intent.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for field %s (value: %s): %s", e.Field, e.Value, e.Message)
}

// Is makes errors.Is(err, ErrContractViolation) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrContractViolation
}

// IsValidationError checks if err is (or wraps) a validation error.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
