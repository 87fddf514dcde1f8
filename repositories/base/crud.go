package base

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ===================================================================
// COMMON CRUD PATTERNS
// ===================================================================

// BaseCRUDRepository provides common CRUD implementation
type BaseCRUDRepository[T any] struct {
	db        *gorm.DB
	tableName string
}

// NewBaseCRUDRepository creates a new base CRUD repository
func NewBaseCRUDRepository[T any](db *gorm.DB, tableName string) *BaseCRUDRepository[T] {
	return &BaseCRUDRepository[T]{
		db:        db,
		tableName: tableName,
	}
}

// DB returns the handle bound to ctx.
func (r *BaseCRUDRepository[T]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Create inserts entity (and its associations).
func (r *BaseCRUDRepository[T]) Create(ctx context.Context, entity *T) error {
	if err := r.DB(ctx).Create(entity).Error; err != nil {
		return HandleDBError("create", r.tableName, "", err)
	}
	return nil
}

// GetByID retrieves entity by ID with standard error handling.
// Extra scopes (preloads, selects) are applied before the lookup.
func (r *BaseCRUDRepository[T]) GetByID(ctx context.Context, id any, scopes ...func(*gorm.DB) *gorm.DB) (*T, error) {
	var entity T
	err := r.DB(ctx).Scopes(scopes...).Where("id = ?", id).First(&entity).Error
	if err != nil {
		return nil, HandleDBError("get", r.tableName, fmt.Sprintf("ID %v", id), err)
	}
	return &entity, nil
}

// ListWithPagination retrieves entities with pagination
func (r *BaseCRUDRepository[T]) ListWithPagination(ctx context.Context, limit, offset int, orderBy string, scopes ...func(*gorm.DB) *gorm.DB) ([]T, error) {
	var entities []T
	query := r.DB(ctx).Model(new(T)).Scopes(scopes...)

	// Apply ordering
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at desc") // default ordering
	}

	// Apply pagination
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&entities).Error; err != nil {
		return nil, WrapDBError("list", r.tableName, err)
	}
	return entities, nil
}

// ===================================================================
// TRANSACTION HELPERS
// ===================================================================

// DeleteWithTransaction deletes entity within provided transaction
func (r *BaseCRUDRepository[T]) DeleteWithTransaction(tx *gorm.DB, id any) error {
	result := tx.Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		return WrapDBError("delete", r.tableName, result.Error)
	}

	if result.RowsAffected == 0 {
		return NewEntityNotFoundError(r.tableName, fmt.Sprintf("ID %v", id))
	}

	return nil
}

// FieldEquals is a scope filtering on one column.
func FieldEquals(field string, value any) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s = ?", field), value)
	}
}
