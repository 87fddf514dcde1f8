package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"robot-console/idgen"
	"robot-console/message"
	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/repositories/interfaces"

	"gorm.io/datatypes"
)

// ErrDraftChanged is returned when a draft was modified by another request
// between load and save.
var ErrDraftChanged = errors.New("draft was modified concurrently")

// DraftView is the console representation of a persisted edit buffer.
type DraftView struct {
	ID        string             `json:"id"`
	Status    models.DraftStatus `json:"status"`
	Dirty     bool               `json:"dirty"`
	State     EditBufferState    `json:"state"`
	Intent    []string           `json:"intent_fields,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// DraftService persists edit buffers between console requests and gates
// their submission.
type DraftService struct {
	drafts interfaces.DraftRepositoryInterface
	robots *RobotService
	logger *slog.Logger
}

// NewDraftService creates a new instance of DraftService.
func NewDraftService(drafts interfaces.DraftRepositoryInterface, robots *RobotService, logger *slog.Logger) *DraftService {
	return &DraftService{
		drafts: drafts,
		robots: robots,
		logger: logger.With("component", "draft_service"),
	}
}

// Create opens a draft. Update drafts start from the robot as currently
// confirmed by the robot API.
func (s *DraftService) Create(ctx context.Context, kind models.IntentKind, robotID int64) (*DraftView, error) {
	var buf *EditBuffer
	switch kind {
	case models.IntentCreate:
		buf = NewCreateBuffer()
	case models.IntentUpdate:
		if robotID <= 0 {
			return nil, models.NewValidationError("robot_id", fmt.Sprint(robotID), "update drafts need a robot id")
		}
		robot, err := s.robots.Get(ctx, robotID)
		if err != nil {
			return nil, err
		}
		buf = NewUpdateBuffer(robot)
	default:
		return nil, models.NewValidationError("kind", string(kind), "kind must be create or update")
	}

	draft, err := toDraftModel(idgen.NewDraftID(), buf)
	if err != nil {
		return nil, err
	}
	draft.Status = models.DraftOpen
	if err := s.drafts.Create(ctx, draft); err != nil {
		return nil, err
	}
	s.logger.Info("Draft created", "draft_id", draft.ID, "kind", kind, "robot_id", robotID)
	return newDraftView(draft, buf), nil
}

// Get loads a draft.
func (s *DraftService) Get(ctx context.Context, id string) (*DraftView, error) {
	draft, buf, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return newDraftView(draft, buf), nil
}

// Apply runs fn against the draft's buffer and persists the result. Nothing
// is saved when fn fails.
func (s *DraftService) Apply(ctx context.Context, id string, fn func(*EditBuffer) error) (*DraftView, error) {
	draft, buf, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftOpen {
		return nil, ErrSubmissionInFlight
	}
	if err := fn(buf); err != nil {
		return nil, err
	}

	updated, err := toDraftModel(draft.ID, buf)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = draft.UpdatedAt
	updated.CreatedAt = draft.CreatedAt
	updated.Status = draft.Status
	if err := s.drafts.Save(ctx, updated); err != nil {
		if base.IsStateConflict(err) {
			return nil, s.conflict(ctx, id)
		}
		return nil, err
	}
	return newDraftView(updated, buf), nil
}

// StagedImage returns a copy of a staged image for preview.
func (s *DraftService) StagedImage(ctx context.Context, id string, index int) (models.ImageUpload, error) {
	_, buf, err := s.load(ctx, id)
	if err != nil {
		return models.ImageUpload{}, err
	}
	return buf.StagedImage(index)
}

// Delete discards a draft. A draft being submitted cannot be discarded.
func (s *DraftService) Delete(ctx context.Context, id string) error {
	if err := s.drafts.Transition(ctx, id, models.DraftOpen, models.DraftSubmitting); err != nil {
		if base.IsStateConflict(err) {
			return ErrSubmissionInFlight
		}
		return err
	}
	if err := s.drafts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Draft discarded", "draft_id", id)
	return nil
}

// Submit sends the draft. The open → submitting transition is the gate:
// a concurrent submit of the same draft fails with ErrSubmissionInFlight.
// On success the draft is removed; on failure it is reopened unchanged.
func (s *DraftService) Submit(ctx context.Context, id string) (*models.Robot, error) {
	if err := s.drafts.Transition(ctx, id, models.DraftOpen, models.DraftSubmitting); err != nil {
		if base.IsStateConflict(err) {
			return nil, ErrSubmissionInFlight
		}
		return nil, err
	}

	_, buf, err := s.load(ctx, id)
	if err != nil {
		s.reopen(ctx, id)
		return nil, err
	}

	robot, err := s.robots.SubmitDraft(ctx, id, buf)
	if err != nil {
		s.reopen(ctx, id)
		return nil, err
	}

	if err := s.drafts.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("Submitted draft could not be removed", "draft_id", id, slog.Any("error", err))
	}
	s.logger.Info("Draft submitted", "draft_id", id, "robot_id", robot.ID)
	return robot, nil
}

// Recover reopens drafts left in submitting by an interrupted process.
func (s *DraftService) Recover(ctx context.Context) error {
	n, err := s.drafts.ReopenSubmitting(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("Reopened drafts left in submitting", "count", n)
	}
	return nil
}

// Expire removes open drafts idle for longer than ttl.
func (s *DraftService) Expire(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.drafts.DeleteIdleSince(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired idle drafts", "count", n, "ttl", ttl)
	}
	return n, nil
}

// RunJanitor expires idle drafts every interval until ctx is done.
func (s *DraftService) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Expire(ctx, ttl); err != nil {
				s.logger.Error("Draft expiry failed", slog.Any("error", err))
			}
		}
	}
}

func (s *DraftService) load(ctx context.Context, id string) (*models.Draft, *EditBuffer, error) {
	if !idgen.IsValidDraftID(id) {
		return nil, nil, base.NewEntityNotFoundError("drafts", fmt.Sprintf("ID %s", id))
	}
	draft, err := s.drafts.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	buf, err := fromDraftModel(draft)
	if err != nil {
		return nil, nil, err
	}
	return draft, buf, nil
}

func (s *DraftService) reopen(ctx context.Context, id string) {
	if err := s.drafts.Transition(context.WithoutCancel(ctx), id, models.DraftSubmitting, models.DraftOpen); err != nil {
		s.logger.Error("Failed to reopen draft", "draft_id", id, slog.Any("error", err))
	}
}

// conflict tells an in-flight submission apart from a concurrent edit.
func (s *DraftService) conflict(ctx context.Context, id string) error {
	draft, err := s.drafts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if draft.Status == models.DraftSubmitting {
		return ErrSubmissionInFlight
	}
	return ErrDraftChanged
}

// ===================================================================
// MAPPING
// ===================================================================

// toDraftModel serializes a buffer. Staged binaries become attachment rows
// keyed by their position in the pending-add list.
func toDraftModel(id string, buf *EditBuffer) (*models.Draft, error) {
	state := buf.State()
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft state: %w", err)
	}

	draft := &models.Draft{
		ID:      id,
		Kind:    state.Kind,
		RobotID: state.RobotID,
		State:   datatypes.JSON(raw),
	}
	for i, img := range state.NewImages {
		draft.Attachments = append(draft.Attachments, models.DraftAttachment{
			DraftID:     id,
			Kind:        models.AttachmentImage,
			Position:    i,
			Filename:    img.Filename,
			ContentType: img.ContentType,
			Title:       img.Title,
			Caption:     img.Caption,
			Data:        img.Data,
		})
	}
	for i, f := range state.NewFiles {
		draft.Attachments = append(draft.Attachments, models.DraftAttachment{
			DraftID:     id,
			Kind:        models.AttachmentFile,
			Position:    i,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Name:        f.Name,
			Data:        f.Data,
		})
	}
	return draft, nil
}

// fromDraftModel restores a buffer, reattaching staged binaries.
func fromDraftModel(draft *models.Draft) (*EditBuffer, error) {
	var state EditBufferState
	if err := json.Unmarshal(draft.State, &state); err != nil {
		return nil, fmt.Errorf("failed to decode state of draft %s: %w", draft.ID, err)
	}

	for _, att := range draft.Attachments {
		switch att.Kind {
		case models.AttachmentImage:
			if att.Position < 0 || att.Position >= len(state.NewImages) {
				return nil, fmt.Errorf("draft %s: image attachment %d has no staged entry", draft.ID, att.Position)
			}
			state.NewImages[att.Position].Data = att.Data
		case models.AttachmentFile:
			if att.Position < 0 || att.Position >= len(state.NewFiles) {
				return nil, fmt.Errorf("draft %s: file attachment %d has no staged entry", draft.ID, att.Position)
			}
			state.NewFiles[att.Position].Data = att.Data
		default:
			return nil, fmt.Errorf("draft %s: unknown attachment kind %q", draft.ID, att.Kind)
		}
	}
	return RestoreEditBuffer(state)
}

func newDraftView(draft *models.Draft, buf *EditBuffer) *DraftView {
	view := &DraftView{
		ID:        draft.ID,
		Status:    draft.Status,
		Dirty:     buf.Dirty(),
		State:     buf.State(),
		CreatedAt: draft.CreatedAt,
		UpdatedAt: draft.UpdatedAt,
	}
	if payload, err := message.Encode(buf.Intent()); err == nil {
		view.Intent = payload.Names()
	}
	return view
}
