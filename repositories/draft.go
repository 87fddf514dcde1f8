package repositories

import (
	"context"
	"fmt"
	"time"

	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/repositories/interfaces"

	"gorm.io/gorm"
)

const draftTable = "drafts"

// DraftRepository implements DraftRepositoryInterface.
type DraftRepository struct {
	*base.BaseCRUDRepository[models.Draft]
	uow interfaces.UnitOfWork
}

// NewDraftRepository creates a new instance of DraftRepository.
func NewDraftRepository(db *gorm.DB, uow interfaces.UnitOfWork) interfaces.DraftRepositoryInterface {
	return &DraftRepository{
		BaseCRUDRepository: base.NewBaseCRUDRepository[models.Draft](db, draftTable),
		uow:                uow,
	}
}

func withAttachments(db *gorm.DB) *gorm.DB {
	return db.Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("kind asc, position asc")
	})
}

// GetByID loads a draft with attachments ordered by kind and position.
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	return r.BaseCRUDRepository.GetByID(ctx, id, withAttachments)
}

// Save replaces the state and attachments of an open draft in one
// transaction. draft.UpdatedAt must be the value it was loaded with; a
// draft changed since then is a state conflict.
func (r *DraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	return r.inTransaction(ctx, "save draft", func(tx *gorm.DB) error {
		now := time.Now().UTC().Truncate(time.Microsecond)
		result := tx.Model(&models.Draft{}).
			Where("id = ? AND status = ? AND updated_at = ?", draft.ID, models.DraftOpen, draft.UpdatedAt).
			Updates(map[string]interface{}{
				"kind":       draft.Kind,
				"robot_id":   draft.RobotID,
				"state":      draft.State,
				"updated_at": now,
			})
		if result.Error != nil {
			return base.WrapDBError("update", draftTable, result.Error)
		}
		if result.RowsAffected == 0 {
			return r.missingOrConflict(tx, draft.ID, "open at the loaded revision")
		}
		draft.UpdatedAt = now

		// 첨부파일은 전체 교체
		if err := tx.Where("draft_id = ?", draft.ID).Delete(&models.DraftAttachment{}).Error; err != nil {
			return base.WrapDBError("delete", "draft_attachments", err)
		}
		if len(draft.Attachments) == 0 {
			return nil
		}
		for i := range draft.Attachments {
			draft.Attachments[i].ID = 0
			draft.Attachments[i].DraftID = draft.ID
		}
		if err := tx.Create(&draft.Attachments).Error; err != nil {
			return base.HandleDBError("create", "draft_attachments", draft.ID, err)
		}
		return nil
	})
}

// Delete removes a draft and its attachments.
func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	return r.inTransaction(ctx, "delete draft", func(tx *gorm.DB) error {
		if err := tx.Where("draft_id = ?", id).Delete(&models.DraftAttachment{}).Error; err != nil {
			return base.WrapDBError("delete", "draft_attachments", err)
		}
		return r.DeleteWithTransaction(tx, id)
	})
}

// Transition moves a draft from one status to another with a conditional update.
func (r *DraftRepository) Transition(ctx context.Context, id string, from, to models.DraftStatus) error {
	db := r.DB(ctx)
	result := db.Model(&models.Draft{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return base.WrapDBError("update status", draftTable, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missingOrConflict(db, id, string(from))
	}
	return nil
}

// ReopenSubmitting returns drafts left in submitting (e.g. by a crash) to open.
func (r *DraftRepository) ReopenSubmitting(ctx context.Context) (int64, error) {
	result := r.DB(ctx).Model(&models.Draft{}).
		Where("status = ?", models.DraftSubmitting).
		Update("status", models.DraftOpen)
	if result.Error != nil {
		return 0, base.WrapDBError("reopen", draftTable, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteIdleSince removes open drafts whose last update is older than cutoff.
func (r *DraftRepository) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.inTransaction(ctx, "expire drafts", func(tx *gorm.DB) error {
		idle := tx.Model(&models.Draft{}).Select("id").
			Where("status = ? AND updated_at < ?", models.DraftOpen, cutoff)
		if err := tx.Where("draft_id IN (?)", idle).Delete(&models.DraftAttachment{}).Error; err != nil {
			return base.WrapDBError("delete", "draft_attachments", err)
		}
		result := tx.Where("status = ? AND updated_at < ?", models.DraftOpen, cutoff).Delete(&models.Draft{})
		if result.Error != nil {
			return base.WrapDBError("delete", draftTable, result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

func (r *DraftRepository) missingOrConflict(db *gorm.DB, id, expected string) error {
	exists, err := ExistsByField[models.Draft](db, draftTable, "id", id)
	if err != nil {
		return err
	}
	if !exists {
		return base.NewEntityNotFoundError(draftTable, fmt.Sprintf("ID %s", id))
	}
	return base.NewStateConflictError(draftTable, fmt.Sprintf("ID %s", id), expected)
}

func (r *DraftRepository) inTransaction(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	tx := r.uow.Begin(ctx)
	if tx.Error != nil {
		return base.NewTransactionError(operation, "failed to begin transaction", tx.Error)
	}

	if err := fn(tx); err != nil {
		r.uow.Rollback(tx)
		return err
	}
	if err := r.uow.Commit(tx); err != nil {
		return base.NewTransactionError(operation, "failed to commit transaction", err)
	}
	return nil
}
