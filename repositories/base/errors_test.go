package base

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestHandleDBError(t *testing.T) {
	assert.NoError(t, HandleDBError("get", "drafts", "ID x", nil))

	err := HandleDBError("get", "drafts", "ID x", gorm.ErrRecordNotFound)
	assert.True(t, IsEntityNotFound(err))
	assert.Equal(t, "drafts with ID x not found", err.Error())

	err = HandleDBError("create", "drafts", "ID x", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateEntity(err))

	cause := errors.New("connection reset")
	err = HandleDBError("get", "drafts", "ID x", cause)
	assert.True(t, IsRepositoryError(err))
	assert.ErrorIs(t, err, cause)
}

func TestStateConflictError(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewStateConflictError("drafts", "ID x", "open"))
	assert.True(t, IsStateConflict(err))
	assert.False(t, IsEntityNotFound(err))
	assert.Contains(t, err.Error(), "drafts with ID x is not open")
}

func TestTransactionErrorUnwrap(t *testing.T) {
	cause := errors.New("deadlock")
	err := NewTransactionError("save draft", "failed to commit transaction", cause)
	assert.True(t, IsTransactionError(err))
	assert.ErrorIs(t, err, cause)
}
