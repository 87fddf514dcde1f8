package services

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"robot-console/models"
)

// ErrSubmissionInFlight is returned when a buffer is submitted or edited while
// a submission of the same buffer is pending.
var ErrSubmissionInFlight = errors.New("a submission is already in progress for this edit buffer")

// EditBuffer stages changes to a robot without touching the last-known-good
// robot it was opened on. At most one submission may be in flight; while it
// is, every mutation fails with ErrSubmissionInFlight.
type EditBuffer struct {
	mu         sync.RWMutex
	submitting atomic.Bool

	kind     models.IntentKind
	robotID  int64
	baseline *models.Robot

	name        *string
	description *string
	language    *models.Language
	code        *string
	isActive    *bool

	// tags and params are nil until first edited on an update buffer so
	// that untouched collections are not resubmitted.
	tags   []string
	params []models.Parameter

	newImages      []models.ImageUpload
	newFiles       []models.FileUpload
	deleteImageIDs []int64
	deleteFileIDs  []int64

	createVersion bool
	changelog     string
}

// NewCreateBuffer opens a buffer for a robot that does not exist yet.
func NewCreateBuffer() *EditBuffer {
	return &EditBuffer{
		kind:   models.IntentCreate,
		tags:   []string{},
		params: []models.Parameter{},
	}
}

// NewUpdateBuffer opens a buffer on a persisted robot. The robot is copied;
// later changes to it do not leak into the buffer.
func NewUpdateBuffer(robot *models.Robot) *EditBuffer {
	return &EditBuffer{
		kind:     models.IntentUpdate,
		robotID:  robot.ID,
		baseline: robot.Clone(),
	}
}

// Kind returns whether the buffer creates or updates a robot.
func (b *EditBuffer) Kind() models.IntentKind {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kind
}

// RobotID returns the id of the robot being edited, 0 for a create buffer.
func (b *EditBuffer) RobotID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.robotID
}

// Baseline returns a copy of the last-known-good robot, nil for a create buffer.
func (b *EditBuffer) Baseline() *models.Robot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseline.Clone()
}

// Submitting reports whether a submission is pending.
func (b *EditBuffer) Submitting() bool {
	return b.submitting.Load()
}

// mutate runs fn under the write lock unless a submission is pending.
func (b *EditBuffer) mutate(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitting.Load() {
		return ErrSubmissionInFlight
	}
	return fn()
}

// =======================================================================
// SCALAR FIELDS
// =======================================================================

func (b *EditBuffer) SetName(name string) error {
	return b.mutate(func() error {
		b.name = &name
		return nil
	})
}

func (b *EditBuffer) SetDescription(description string) error {
	return b.mutate(func() error {
		b.description = &description
		return nil
	})
}

func (b *EditBuffer) SetLanguage(language models.Language) error {
	if !language.Valid() {
		return models.NewValidationError("language", string(language), "language must be nelogica or meta_trader")
	}
	return b.mutate(func() error {
		b.language = &language
		return nil
	})
}

func (b *EditBuffer) SetCode(code string) error {
	return b.mutate(func() error {
		b.code = &code
		return nil
	})
}

func (b *EditBuffer) SetActive(active bool) error {
	return b.mutate(func() error {
		b.isActive = &active
		return nil
	})
}

// =======================================================================
// TAGS
// =======================================================================

func (b *EditBuffer) ensureTags() {
	if b.tags == nil {
		b.tags = []string{}
		if b.baseline != nil {
			b.tags = append(b.tags, b.baseline.Tags...)
		}
	}
}

// tagsChanged compares staged tags with the baseline as a set, so adding
// and then removing a tag leaves nothing to send.
func (b *EditBuffer) tagsChanged() bool {
	if b.tags == nil {
		return false
	}
	if b.baseline == nil {
		return len(b.tags) > 0
	}
	return !b.baseline.HasSameTags(b.tags)
}

// AddTag appends a tag. Tags are a set: adding an existing tag is a no-op.
func (b *EditBuffer) AddTag(tag string) error {
	if tag == "" {
		return models.NewValidationError("tags", "", "tag must not be empty")
	}
	return b.mutate(func() error {
		b.ensureTags()
		for _, t := range b.tags {
			if t == tag {
				return nil
			}
		}
		b.tags = append(b.tags, tag)
		return nil
	})
}

// RemoveTag removes a tag if present.
func (b *EditBuffer) RemoveTag(tag string) error {
	return b.mutate(func() error {
		b.ensureTags()
		for i, t := range b.tags {
			if t == tag {
				b.tags = append(b.tags[:i], b.tags[i+1:]...)
				break
			}
		}
		return nil
	})
}

// =======================================================================
// STAGED IMAGES AND FILES
// =======================================================================

// AddImages stages new images. The batch is admitted only if every image is valid.
func (b *EditBuffer) AddImages(uploads ...models.ImageUpload) error {
	for _, img := range uploads {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	return b.mutate(func() error {
		for _, img := range uploads {
			img.Data = append([]byte(nil), img.Data...)
			b.newImages = append(b.newImages, img)
		}
		return nil
	})
}

// RemoveStagedImage drops a staged image by its position in the pending-add list.
func (b *EditBuffer) RemoveStagedImage(index int) error {
	return b.mutate(func() error {
		if index < 0 || index >= len(b.newImages) {
			return indexError("images", index, len(b.newImages))
		}
		b.newImages = append(b.newImages[:index], b.newImages[index+1:]...)
		return nil
	})
}

// StagedImage returns a copy of a staged image for preview. It does not
// block on, or interfere with, a pending submission.
func (b *EditBuffer) StagedImage(index int) (models.ImageUpload, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.newImages) {
		return models.ImageUpload{}, indexError("images", index, len(b.newImages))
	}
	img := b.newImages[index]
	img.Data = append([]byte(nil), img.Data...)
	return img, nil
}

// AddFiles stages strategy files. If any file has an extension other than
// psf or mq5 the whole batch is rejected and nothing is staged.
func (b *EditBuffer) AddFiles(uploads ...models.FileUpload) error {
	for _, f := range uploads {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return b.mutate(func() error {
		for _, f := range uploads {
			f.Data = append([]byte(nil), f.Data...)
			b.newFiles = append(b.newFiles, f)
		}
		return nil
	})
}

// RemoveStagedFile drops a staged file by its position in the pending-add list.
func (b *EditBuffer) RemoveStagedFile(index int) error {
	return b.mutate(func() error {
		if index < 0 || index >= len(b.newFiles) {
			return indexError("files", index, len(b.newFiles))
		}
		b.newFiles = append(b.newFiles[:index], b.newFiles[index+1:]...)
		return nil
	})
}

// MarkImageForDeletion schedules a persisted image for removal.
func (b *EditBuffer) MarkImageForDeletion(imageID int64) error {
	return b.mutate(func() error {
		if b.baseline == nil {
			return models.NewValidationError("delete_image_ids", strconv.FormatInt(imageID, 10), "a new robot has no persisted images")
		}
		found := false
		for _, img := range b.baseline.Images {
			if img.ID == imageID {
				found = true
				break
			}
		}
		if !found {
			return models.NewValidationError("delete_image_ids", strconv.FormatInt(imageID, 10), "image does not belong to this robot")
		}
		b.deleteImageIDs = appendUnique(b.deleteImageIDs, imageID)
		return nil
	})
}

// MarkFileForDeletion schedules a persisted file for removal.
func (b *EditBuffer) MarkFileForDeletion(fileID int64) error {
	return b.mutate(func() error {
		if b.baseline == nil {
			return models.NewValidationError("delete_file_ids", strconv.FormatInt(fileID, 10), "a new robot has no persisted files")
		}
		if _, ok := b.baseline.FindFile(fileID); !ok {
			return models.NewValidationError("delete_file_ids", strconv.FormatInt(fileID, 10), "file does not belong to this robot")
		}
		b.deleteFileIDs = appendUnique(b.deleteFileIDs, fileID)
		return nil
	})
}

// UnmarkImageForDeletion cancels a pending image deletion.
func (b *EditBuffer) UnmarkImageForDeletion(imageID int64) error {
	return b.mutate(func() error {
		b.deleteImageIDs = removeID(b.deleteImageIDs, imageID)
		return nil
	})
}

// UnmarkFileForDeletion cancels a pending file deletion.
func (b *EditBuffer) UnmarkFileForDeletion(fileID int64) error {
	return b.mutate(func() error {
		b.deleteFileIDs = removeID(b.deleteFileIDs, fileID)
		return nil
	})
}

// =======================================================================
// PARAMETERS
// =======================================================================

// ensureParams copies the baseline's parameters into the buffer on first
// edit. The server may number them from 1 or leave gaps, and its keys may
// predate a label change, so the copy is renumbered 0..n-1 and every key is
// re-derived from its label.
func (b *EditBuffer) ensureParams() {
	if b.params != nil {
		return
	}
	b.params = []models.Parameter{}
	if b.baseline != nil {
		b.params = b.baseline.SortedParameters()
		for i := range b.params {
			b.params[i].SetLabel(b.params[i].Label)
		}
	}
	renumber(b.params)
}

func renumber(params []models.Parameter) {
	for i := range params {
		order := i
		params[i].SortOrder = &order
	}
}

// AddParameter appends a default-shaped parameter whose sort order is the
// current list length, and returns its index.
func (b *EditBuffer) AddParameter() (int, error) {
	index := -1
	err := b.mutate(func() error {
		b.ensureParams()
		index = len(b.params)
		b.params = append(b.params, models.NewParameter(index))
		return nil
	})
	return index, err
}

// RemoveParameter removes a parameter and renumbers the remaining sort
// orders so they stay contiguous.
func (b *EditBuffer) RemoveParameter(index int) error {
	return b.mutate(func() error {
		b.ensureParams()
		if index < 0 || index >= len(b.params) {
			return indexError("parameters", index, len(b.params))
		}
		b.params = append(b.params[:index], b.params[index+1:]...)
		renumber(b.params)
		return nil
	})
}

// MoveParameter moves the parameter at from to position to and renumbers
// the list.
func (b *EditBuffer) MoveParameter(from, to int) error {
	return b.mutate(func() error {
		b.ensureParams()
		n := len(b.params)
		if from < 0 || from >= n {
			return indexError("parameters", from, n)
		}
		if to < 0 || to >= n {
			return indexError("parameters", to, n)
		}
		p := b.params[from]
		b.params = slices.Delete(b.params, from, from+1)
		b.params = slices.Insert(b.params, to, p)
		renumber(b.params)
		return nil
	})
}

// UpdateParameter applies one typed field update to a parameter. Label
// updates re-derive the key.
func (b *EditBuffer) UpdateParameter(index int, update ParameterUpdate) error {
	if update == nil {
		return models.NewValidationError("field", "", "parameter update is required")
	}
	return b.mutate(func() error {
		b.ensureParams()
		if index < 0 || index >= len(b.params) {
			return indexError("parameters", index, len(b.params))
		}
		p := b.params[index].Clone()
		if err := update.apply(&p); err != nil {
			return err
		}
		b.params[index] = p
		return nil
	})
}

// Parameters returns a copy of the staged parameter list, or the
// baseline's when parameters were never edited.
func (b *EditBuffer) Parameters() []models.Parameter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.params == nil {
		if b.baseline == nil {
			return []models.Parameter{}
		}
		return b.baseline.SortedParameters()
	}
	return cloneParams(b.params)
}

// =======================================================================
// VERSIONING
// =======================================================================

// RequestVersion asks the server to snapshot the current robot before
// applying the update. Only update buffers can request a version.
func (b *EditBuffer) RequestVersion(changelog string) error {
	return b.mutate(func() error {
		if b.kind != models.IntentUpdate {
			return models.NewValidationError("create_version", "1", "versioning applies to updates only")
		}
		b.createVersion = true
		b.changelog = changelog
		return nil
	})
}

// CancelVersion withdraws a version request.
func (b *EditBuffer) CancelVersion() error {
	return b.mutate(func() error {
		b.createVersion = false
		b.changelog = ""
		return nil
	})
}

// =======================================================================
// INTENT AND SUBMISSION GATE
// =======================================================================

// Intent returns a deep copy of the staged changes as an edit intent.
func (b *EditBuffer) Intent() *models.EditIntent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.intentLocked()
}

func (b *EditBuffer) intentLocked() *models.EditIntent {
	in := &models.EditIntent{
		Kind:          b.kind,
		RobotID:       b.robotID,
		Name:          copyPtr(b.name),
		Description:   copyPtr(b.description),
		Language:      copyPtr(b.language),
		Code:          copyPtr(b.code),
		IsActive:      copyPtr(b.isActive),
		CreateVersion: b.createVersion,
		Changelog:     b.changelog,
	}
	if b.tagsChanged() {
		in.Tags = append([]string{}, b.tags...)
	}
	if b.params != nil {
		in.Parameters = cloneParams(b.params)
	}
	for _, img := range b.newImages {
		img.Data = append([]byte(nil), img.Data...)
		in.NewImages = append(in.NewImages, img)
	}
	for _, f := range b.newFiles {
		f.Data = append([]byte(nil), f.Data...)
		in.NewFiles = append(in.NewFiles, f)
	}
	in.DeleteImageIDs = append([]int64(nil), b.deleteImageIDs...)
	in.DeleteFileIDs = append([]int64(nil), b.deleteFileIDs...)
	return in
}

// Dirty reports whether anything is staged.
func (b *EditBuffer) Dirty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name != nil || b.description != nil || b.language != nil || b.code != nil ||
		b.isActive != nil || b.tagsChanged() ||
		(b.kind == models.IntentUpdate && b.params != nil) || len(b.params) > 0 ||
		len(b.newImages) > 0 || len(b.newFiles) > 0 ||
		len(b.deleteImageIDs) > 0 || len(b.deleteFileIDs) > 0 || b.createVersion
}

// BeginSubmit closes the gate and returns the intent to submit. A second
// call before CompleteSubmit or AbortSubmit fails with ErrSubmissionInFlight.
func (b *EditBuffer) BeginSubmit() (*models.EditIntent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	return b.intentLocked(), nil
}

// AbortSubmit reopens the gate and leaves every staged change in place.
func (b *EditBuffer) AbortSubmit() {
	b.submitting.Store(false)
}

// CompleteSubmit clears the buffer and rebases it on the robot confirmed by
// the server, then reopens the gate.
func (b *EditBuffer) CompleteSubmit(confirmed *models.Robot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	if confirmed != nil {
		b.kind = models.IntentUpdate
		b.robotID = confirmed.ID
		b.baseline = confirmed.Clone()
	}
	b.submitting.Store(false)
}

// Reset discards every staged change.
func (b *EditBuffer) Reset() error {
	return b.mutate(func() error {
		b.resetLocked()
		return nil
	})
}

func (b *EditBuffer) resetLocked() {
	b.name, b.description, b.language, b.code, b.isActive = nil, nil, nil, nil, nil
	b.tags, b.params = nil, nil
	if b.kind == models.IntentCreate {
		b.tags = []string{}
		b.params = []models.Parameter{}
	}
	b.newImages, b.newFiles = nil, nil
	b.deleteImageIDs, b.deleteFileIDs = nil, nil
	b.createVersion, b.changelog = false, ""
}

// =======================================================================
// PERSISTENCE
// =======================================================================

// EditBufferState is the serializable form of an edit buffer. Attachment
// data is excluded from JSON; draft storage keeps it in separate rows.
type EditBufferState struct {
	Kind           models.IntentKind    `json:"kind"`
	RobotID        int64                `json:"robot_id,omitempty"`
	Baseline       *models.Robot        `json:"baseline,omitempty"`
	Name           *string              `json:"name,omitempty"`
	Description    *string              `json:"description,omitempty"`
	Language       *models.Language     `json:"language,omitempty"`
	Code           *string              `json:"code,omitempty"`
	IsActive       *bool                `json:"is_active,omitempty"`
	Tags           []string             `json:"tags"`
	Parameters     []models.Parameter   `json:"parameters"`
	NewImages      []models.ImageUpload `json:"new_images,omitempty"`
	NewFiles       []models.FileUpload  `json:"new_files,omitempty"`
	DeleteImageIDs []int64              `json:"delete_image_ids,omitempty"`
	DeleteFileIDs  []int64              `json:"delete_file_ids,omitempty"`
	CreateVersion  bool                 `json:"create_version,omitempty"`
	Changelog      string               `json:"changelog,omitempty"`
}

// State snapshots the buffer for persistence.
func (b *EditBuffer) State() EditBufferState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	in := b.intentLocked()
	return EditBufferState{
		Kind:           in.Kind,
		RobotID:        in.RobotID,
		Baseline:       b.baseline.Clone(),
		Name:           in.Name,
		Description:    in.Description,
		Language:       in.Language,
		Code:           in.Code,
		IsActive:       in.IsActive,
		Tags:           in.Tags,
		Parameters:     in.Parameters,
		NewImages:      in.NewImages,
		NewFiles:       in.NewFiles,
		DeleteImageIDs: in.DeleteImageIDs,
		DeleteFileIDs:  in.DeleteFileIDs,
		CreateVersion:  in.CreateVersion,
		Changelog:      in.Changelog,
	}
}

// RestoreEditBuffer rebuilds a buffer from a persisted state.
func RestoreEditBuffer(state EditBufferState) (*EditBuffer, error) {
	switch state.Kind {
	case models.IntentCreate:
	case models.IntentUpdate:
		if state.Baseline == nil {
			return nil, fmt.Errorf("update buffer state for robot %d has no baseline", state.RobotID)
		}
	default:
		return nil, fmt.Errorf("unknown edit buffer kind %q", state.Kind)
	}

	b := &EditBuffer{
		kind:           state.Kind,
		robotID:        state.RobotID,
		baseline:       state.Baseline.Clone(),
		name:           copyPtr(state.Name),
		description:    copyPtr(state.Description),
		language:       copyPtr(state.Language),
		code:           copyPtr(state.Code),
		isActive:       copyPtr(state.IsActive),
		deleteImageIDs: append([]int64(nil), state.DeleteImageIDs...),
		deleteFileIDs:  append([]int64(nil), state.DeleteFileIDs...),
		createVersion:  state.CreateVersion,
		changelog:      state.Changelog,
	}
	if state.Tags != nil {
		b.tags = append([]string{}, state.Tags...)
	}
	if state.Parameters != nil {
		b.params = cloneParams(state.Parameters)
	}
	if b.kind == models.IntentCreate {
		b.ensureTags()
		b.ensureParams()
	}
	for _, img := range state.NewImages {
		img.Data = append([]byte(nil), img.Data...)
		b.newImages = append(b.newImages, img)
	}
	for _, f := range state.NewFiles {
		f.Data = append([]byte(nil), f.Data...)
		b.newFiles = append(b.newFiles, f)
	}
	return b, nil
}

// =======================================================================
// HELPERS
// =======================================================================

func indexError(field string, index, length int) error {
	return models.NewValidationError(field, strconv.Itoa(index), fmt.Sprintf("index out of range (%d staged)", length))
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneParams(params []models.Parameter) []models.Parameter {
	out := make([]models.Parameter, len(params))
	for i, p := range params {
		out[i] = p.Clone()
	}
	return out
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []int64, id int64) []int64 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
