package models

import (
	"time"

	"gorm.io/datatypes"
)

// Database Models

// DraftStatus gates submission of a persisted edit buffer.
type DraftStatus string

const (
	DraftOpen       DraftStatus = "open"
	DraftSubmitting DraftStatus = "submitting"
)

// Draft is a persisted edit buffer. State holds the serialized buffer
// (fields, parameters, pending deletions); staged binaries live in
// DraftAttachment rows.
type Draft struct {
	ID          string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind        IntentKind        `gorm:"type:varchar(16);not null" json:"kind"`
	RobotID     int64             `gorm:"index" json:"robot_id"`
	Status      DraftStatus       `gorm:"type:varchar(16);not null;default:open;index" json:"status"`
	State       datatypes.JSON    `gorm:"type:jsonb;not null" json:"state"`
	Attachments []DraftAttachment `gorm:"foreignKey:DraftID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AttachmentKind separates staged images from staged strategy files.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// DraftAttachment is one staged binary of a draft. Position is the index
// within its own pending-add list.
type DraftAttachment struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	DraftID     string         `gorm:"type:varchar(36);index:idx_draft_attachment_position,unique" json:"draft_id"`
	Kind        AttachmentKind `gorm:"type:varchar(8);index:idx_draft_attachment_position,unique" json:"kind"`
	Position    int            `gorm:"index:idx_draft_attachment_position,unique" json:"position"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Title       string         `json:"title"`
	Caption     string         `json:"caption"`
	Name        string         `json:"name"`
	Data        []byte         `gorm:"type:bytea" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SubmissionOutcome classifies a submission attempt.
type SubmissionOutcome string

const (
	SubmissionSucceeded SubmissionOutcome = "succeeded"
	SubmissionRejected  SubmissionOutcome = "rejected"
	SubmissionFailed    SubmissionOutcome = "failed"
)

// SubmissionRecord is the audit trail of submission attempts.
type SubmissionRecord struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	DraftID    string            `gorm:"type:varchar(36);index" json:"draft_id,omitempty"`
	RobotID    int64             `gorm:"index" json:"robot_id"`
	Kind       IntentKind        `gorm:"type:varchar(16)" json:"kind"`
	FieldCount int               `json:"field_count"`
	Outcome    SubmissionOutcome `gorm:"type:varchar(16);index" json:"outcome"`
	Error      string            `gorm:"type:text" json:"error,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	CreatedAt  time.Time         `json:"created_at"`
}
