package base

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ===================================================================
// CUSTOM ERROR TYPES
// ===================================================================

// RepositoryError represents base repository error
type RepositoryError struct {
	Operation string
	Table     string
	Message   string
	Cause     error
}

func (e *RepositoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to %s %s: %s (caused by: %v)", e.Operation, e.Table, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Table, e.Message)
}

func (e *RepositoryError) Unwrap() error {
	return e.Cause
}

// EntityNotFoundError represents entity not found error
type EntityNotFoundError struct {
	Table      string
	Identifier string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s with %s not found", e.Table, e.Identifier)
}

// DuplicateEntityError represents duplicate entity error
type DuplicateEntityError struct {
	Table string
	Field string
	Value string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Table, e.Field, e.Value)
}

// StateConflictError is returned when a row exists but is not in the
// state a conditional update expected.
type StateConflictError struct {
	Table      string
	Identifier string
	Expected   string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s with %s is not %s", e.Table, e.Identifier, e.Expected)
}

// TransactionError represents transaction-related error
type TransactionError struct {
	Operation string
	Message   string
	Cause     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// ===================================================================
// ERROR CONSTRUCTORS
// ===================================================================

// NewRepositoryError creates a new repository error
func NewRepositoryError(operation, table, message string, cause error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Table:     table,
		Message:   message,
		Cause:     cause,
	}
}

// NewEntityNotFoundError creates a new entity not found error
func NewEntityNotFoundError(table, identifier string) *EntityNotFoundError {
	return &EntityNotFoundError{
		Table:      table,
		Identifier: identifier,
	}
}

// NewDuplicateEntityError creates a new duplicate entity error
func NewDuplicateEntityError(table, field, value string) *DuplicateEntityError {
	return &DuplicateEntityError{
		Table: table,
		Field: field,
		Value: value,
	}
}

// NewStateConflictError creates a new state conflict error
func NewStateConflictError(table, identifier, expected string) *StateConflictError {
	return &StateConflictError{
		Table:      table,
		Identifier: identifier,
		Expected:   expected,
	}
}

// NewTransactionError creates a new transaction error
func NewTransactionError(operation, message string, cause error) *TransactionError {
	return &TransactionError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// ===================================================================
// ERROR HANDLING HELPERS
// ===================================================================

// HandleDBError handles database errors with consistent error wrapping
func HandleDBError(operation, table, identifier string, err error) error {
	if err == nil {
		return nil
	}

	// Handle GORM specific errors
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewEntityNotFoundError(table, identifier)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return NewDuplicateEntityError(table, "id", identifier)
	}

	// Handle other database errors
	return NewRepositoryError(operation, table, "database operation failed", err)
}

// WrapDBError wraps database error with operation context
func WrapDBError(operation, table string, err error) error {
	if err == nil {
		return nil
	}

	return NewRepositoryError(operation, table, "database operation failed", err)
}

// IsEntityNotFound checks if error is an entity not found error
func IsEntityNotFound(err error) bool {
	var entityNotFoundError *EntityNotFoundError
	return errors.As(err, &entityNotFoundError)
}

// IsDuplicateEntity checks if error is a duplicate entity error
func IsDuplicateEntity(err error) bool {
	var duplicateEntityError *DuplicateEntityError
	return errors.As(err, &duplicateEntityError)
}

// IsStateConflict checks if error is a state conflict error
func IsStateConflict(err error) bool {
	var stateConflictError *StateConflictError
	return errors.As(err, &stateConflictError)
}

// IsRepositoryError checks if error is a repository error
func IsRepositoryError(err error) bool {
	var repositoryError *RepositoryError
	return errors.As(err, &repositoryError)
}

// IsTransactionError checks if error is a transaction error
func IsTransactionError(err error) bool {
	var transactionError *TransactionError
	return errors.As(err, &transactionError)
}
