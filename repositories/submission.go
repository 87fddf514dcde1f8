package repositories

import (
	"context"

	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/repositories/interfaces"

	"gorm.io/gorm"
)

// defaultHistoryLimit caps audit listings when the caller passes no limit.
const defaultHistoryLimit = 50

// SubmissionRepository implements SubmissionRepositoryInterface.
type SubmissionRepository struct {
	*base.BaseCRUDRepository[models.SubmissionRecord]
}

// NewSubmissionRepository creates a new instance of SubmissionRepository.
func NewSubmissionRepository(db *gorm.DB) interfaces.SubmissionRepositoryInterface {
	return &SubmissionRepository{
		BaseCRUDRepository: base.NewBaseCRUDRepository[models.SubmissionRecord](db, "submission_records"),
	}
}

// Record appends one submission attempt to the audit trail.
func (r *SubmissionRepository) Record(ctx context.Context, record *models.SubmissionRecord) error {
	return r.Create(ctx, record)
}

// ListByRobot returns the latest attempts against one robot, newest first.
func (r *SubmissionRepository) ListByRobot(ctx context.Context, robotID int64, limit int) ([]models.SubmissionRecord, error) {
	return r.ListWithPagination(ctx, historyLimit(limit), 0, "created_at desc, id desc", base.FieldEquals("robot_id", robotID))
}

// ListRecent returns the latest attempts across all robots, newest first.
func (r *SubmissionRepository) ListRecent(ctx context.Context, limit int) ([]models.SubmissionRecord, error) {
	return r.ListWithPagination(ctx, historyLimit(limit), 0, "created_at desc, id desc")
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}
