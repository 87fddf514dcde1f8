package database

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWorkInterface is the transaction boundary repositories run
// multi-step writes in.
type UnitOfWorkInterface interface {
	Begin(ctx context.Context) *gorm.DB
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}

type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork binds a UnitOfWork to db.
func NewUnitOfWork(db *gorm.DB) UnitOfWorkInterface {
	return &unitOfWork{db: db}
}

// Begin opens a transaction scoped to ctx. A failed begin is reported
// through the returned handle's Error.
func (uow *unitOfWork) Begin(ctx context.Context) *gorm.DB {
	return uow.db.WithContext(ctx).Begin()
}

func (uow *unitOfWork) Commit(tx *gorm.DB) error {
	return tx.Commit().Error
}

// Rollback is a no-op on a transaction that never started.
func (uow *unitOfWork) Rollback(tx *gorm.DB) {
	if tx.Error == nil {
		tx.Rollback()
	}
}
