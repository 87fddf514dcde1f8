package utils

import (
	"net/http"
)

type AppError struct {
	Code    int    // HTTP status code (e.g., 404, 422, 502)
	Message string // User-facing message
	Field   string // Offending request field, if any
	err     error  // Internal-facing error for logging purposes
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// --- Error Helper Functions ---

// NewNotFoundError creates a 404 Not Found error.
func NewNotFoundError(message string, originalError ...error) *AppError {
	return newAppError(http.StatusNotFound, message, originalError)
}

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(message string, originalError ...error) *AppError {
	return newAppError(http.StatusBadRequest, message, originalError)
}

// NewConflictError creates a 409 Conflict error.
func NewConflictError(message string, originalError ...error) *AppError {
	return newAppError(http.StatusConflict, message, originalError)
}

// NewUnprocessableError creates a 422 Unprocessable Entity error for a
// request that is well-formed but violates the submission contract.
func NewUnprocessableError(field, message string, originalError ...error) *AppError {
	e := newAppError(http.StatusUnprocessableEntity, message, originalError)
	e.Field = field
	return e
}

// NewBadGatewayError creates a 502 Bad Gateway error for upstream failures.
func NewBadGatewayError(message string, originalError error) *AppError {
	return &AppError{
		Code:    http.StatusBadGateway,
		Message: message,
		err:     originalError,
	}
}

// NewUpstreamError keeps the upstream status code (e.g. an upstream 422).
func NewUpstreamError(code int, message string, originalError error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		err:     originalError,
	}
}

// NewInternalServerError creates a 500 Internal Server Error.
func NewInternalServerError(message string, originalError error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		err:     originalError,
	}
}

func newAppError(code int, message string, originalError []error) *AppError {
	e := &AppError{
		Code:    code,
		Message: message,
	}
	if len(originalError) > 0 {
		e.err = originalError[0]
	}
	return e
}

// NewAppError creates an error with an arbitrary status code.
func NewAppError(code int, message string, originalError error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		err:     originalError,
	}
}
