package interfaces

import (
	"context"
	"time"

	"robot-console/models"

	"gorm.io/gorm"
)

// UnitOfWork is the transaction boundary repositories run multi-step writes in.
type UnitOfWork interface {
	Begin(ctx context.Context) *gorm.DB
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}

// DraftRepositoryInterface defines the contract for persisted edit buffers.
type DraftRepositoryInterface interface {
	// Create stores a new draft together with its staged attachments.
	Create(ctx context.Context, draft *models.Draft) error

	// GetByID loads a draft with attachments ordered by kind and position.
	GetByID(ctx context.Context, id string) (*models.Draft, error)

	// Save replaces the state and attachments of an open draft.
	Save(ctx context.Context, draft *models.Draft) error

	// Delete removes a draft and its attachments.
	Delete(ctx context.Context, id string) error

	// Transition moves a draft from one status to another. It fails with a
	// state conflict when the draft is not in the expected status.
	Transition(ctx context.Context, id string, from, to models.DraftStatus) error

	// ReopenSubmitting returns drafts stuck in submitting to open.
	ReopenSubmitting(ctx context.Context) (int64, error)

	// DeleteIdleSince removes open drafts untouched since cutoff.
	DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubmissionRepositoryInterface defines the contract for the submission audit trail.
type SubmissionRepositoryInterface interface {
	Record(ctx context.Context, record *models.SubmissionRecord) error
	ListByRobot(ctx context.Context, robotID int64, limit int) ([]models.SubmissionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.SubmissionRecord, error)
}
