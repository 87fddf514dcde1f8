package repositories

import (
	"fmt"

	"robot-console/repositories/base"

	"gorm.io/gorm"
)

// ExistsByField reports whether a row of type T has field = value.
func ExistsByField[T any](db *gorm.DB, table, fieldName string, value any) (bool, error) {
	var count int64
	err := db.Model(new(T)).Where(fmt.Sprintf("%s = ?", fieldName), value).Count(&count).Error
	if err != nil {
		return false, base.WrapDBError("check existence", table, err)
	}
	return count > 0, nil
}
