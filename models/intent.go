package models

import (
	"path/filepath"
	"strings"
)

// IntentKind tells whether an edit intent creates a robot or updates one.
type IntentKind string

const (
	IntentCreate IntentKind = "create"
	IntentUpdate IntentKind = "update"
)

// AllowedFileExtensions are the strategy file types a robot may carry.
var AllowedFileExtensions = []string{"psf", "mq5"}

// ImageUpload is a new image staged for submission together with its
// client-entered metadata.
type ImageUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
	Title       string `json:"title,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// FileUpload is a new strategy file staged for submission. Name is the
// optional display name; the server falls back to Filename.
type FileUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
	Name        string `json:"name,omitempty"`
}

// Extension returns the lowercase extension of the uploaded filename without the dot.
func (f FileUpload) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".")
}

// Validate rejects files whose extension is not psf or mq5.
func (f FileUpload) Validate() error {
	ext := f.Extension()
	for _, allowed := range AllowedFileExtensions {
		if ext == allowed {
			return nil
		}
	}
	return NewValidationError("files", f.Filename, "only .psf and .mq5 files are accepted")
}

// Validate rejects images without a filename or content.
func (img ImageUpload) Validate() error {
	if strings.TrimSpace(img.Filename) == "" {
		return NewValidationError("images", "", "image filename is required")
	}
	if len(img.Data) == 0 {
		return NewValidationError("images", img.Filename, "image is empty")
	}
	return nil
}

// EditIntent is an unsent description of desired changes to a robot.
//
// Nil pointers and nil slices are absent: an update intent only carries the
// fields that are set. A create intent must set every required scalar.
type EditIntent struct {
	Kind    IntentKind
	RobotID int64

	Name        *string
	Description *string
	Language    *Language
	Code        *string
	IsActive    *bool
	Tags        []string
	Parameters  []Parameter

	NewImages      []ImageUpload
	NewFiles       []FileUpload
	DeleteImageIDs []int64
	DeleteFileIDs  []int64

	CreateVersion bool
	Changelog     string
}

// HasAttachmentChanges reports whether the intent adds or removes any image or file.
func (in *EditIntent) HasAttachmentChanges() bool {
	return len(in.NewImages) > 0 || len(in.NewFiles) > 0 ||
		len(in.DeleteImageIDs) > 0 || len(in.DeleteFileIDs) > 0
}
