package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"robot-console/converter"
	"robot-console/message"
	"robot-console/metrics"
	"robot-console/models"
	"robot-console/transport"

	"golang.org/x/sync/singleflight"
)

// RobotCache is the read-through cache in front of the robot API.
// Getters return nil on a miss.
type RobotCache interface {
	GetRobot(ctx context.Context, robotID int64) (*models.Robot, error)
	SetRobot(ctx context.Context, robot *models.Robot) error
	GetList(ctx context.Context, filterKey string) (*models.RobotList, error)
	SetList(ctx context.Context, filterKey string, list *models.RobotList) error
	InvalidateRobot(ctx context.Context, robotID int64) error
	InvalidateLists(ctx context.Context) error
}

// EventPublisher announces confirmed robot changes.
type EventPublisher interface {
	PublishRobotEvent(ctx context.Context, event models.RobotEvent) error
}

// SubmissionAuditor records submission attempts.
type SubmissionAuditor interface {
	Record(ctx context.Context, record *models.SubmissionRecord) error
	ListByRobot(ctx context.Context, robotID int64, limit int) ([]models.SubmissionRecord, error)
}

// Download is either an open stream or, when streaming failed, the
// normalized URL of the file to fall back to.
type Download struct {
	Stream      *transport.Stream
	FallbackURL string
	Filename    string
}

// RobotService reads robots through the cache and submits edit intents to
// the robot API. Cache, events and audit are optional.
type RobotService struct {
	api        transport.RobotAPI
	normalizer *converter.Normalizer
	encoder    message.Encoder
	cache      RobotCache
	events     EventPublisher
	audit      SubmissionAuditor
	metrics    *metrics.Metrics
	logger     *slog.Logger
	group      singleflight.Group
}

// NewRobotService creates a new instance of RobotService.
func NewRobotService(
	api transport.RobotAPI,
	normalizer *converter.Normalizer,
	cache RobotCache,
	events EventPublisher,
	audit SubmissionAuditor,
	m *metrics.Metrics,
	logger *slog.Logger,
) *RobotService {
	return &RobotService{
		api:        api,
		normalizer: normalizer,
		encoder:    message.NewEncoder(),
		cache:      cache,
		events:     events,
		audit:      audit,
		metrics:    m,
		logger:     logger.With("component", "robot_service"),
	}
}

// ===================================================================
// READS
// ===================================================================

// List returns one normalized listing page.
func (s *RobotService) List(ctx context.Context, filter models.ListFilter) (*models.RobotList, error) {
	key := filter.CacheKey()
	if s.cache != nil {
		cached, err := s.cache.GetList(ctx, key)
		if err != nil {
			s.logger.Warn("List cache read failed", "filter", key, slog.Any("error", err))
		}
		s.metrics.IncCacheLookup("list", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	v, err := s.shared(ctx, "list:"+key, func(ctx context.Context) (any, error) {
		body, err := s.api.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		list, err := s.normalizer.DecodeRobotList(body)
		if err != nil {
			return nil, &transport.Error{Op: "list robots", Message: "unexpected response from robot API", Err: err}
		}
		if s.cache != nil {
			if err := s.cache.SetList(ctx, key, &list); err != nil {
				s.logger.Warn("List cache write failed", "filter", key, slog.Any("error", err))
			}
		}
		return &list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.RobotList).Clone(), nil
}

// Get returns one normalized robot.
func (s *RobotService) Get(ctx context.Context, robotID int64) (*models.Robot, error) {
	if s.cache != nil {
		cached, err := s.cache.GetRobot(ctx, robotID)
		if err != nil {
			s.logger.Warn("Robot cache read failed", "robot_id", robotID, slog.Any("error", err))
		}
		s.metrics.IncCacheLookup("robot", cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	v, err := s.shared(ctx, "robot:"+strconv.FormatInt(robotID, 10), func(ctx context.Context) (any, error) {
		body, err := s.api.Get(ctx, robotID)
		if err != nil {
			return nil, err
		}
		robot, err := s.normalizer.DecodeRobot(body)
		if err != nil {
			return nil, &transport.Error{Op: "get robot", Message: "unexpected response from robot API", Err: err}
		}
		s.cacheRobot(ctx, &robot)
		return &robot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Robot).Clone(), nil
}

// shared runs fn once for concurrent callers of the same key. fn is
// detached from the first caller's cancellation so the other waiters still
// get a result; a cancelled caller just stops waiting.
func (s *RobotService) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// History returns the latest submission attempts against a robot.
func (s *RobotService) History(ctx context.Context, robotID int64, limit int) ([]models.SubmissionRecord, error) {
	if s.audit == nil {
		return []models.SubmissionRecord{}, nil
	}
	return s.audit.ListByRobot(ctx, robotID, limit)
}

// ===================================================================
// SUBMISSION
// ===================================================================

// Submit sends the buffer's intent. On success the buffer is cleared and
// rebased on the confirmed robot; on failure it is left untouched.
func (s *RobotService) Submit(ctx context.Context, buf *EditBuffer) (*models.Robot, error) {
	return s.SubmitDraft(ctx, "", buf)
}

// SubmitDraft is Submit with the draft id recorded in the audit trail.
func (s *RobotService) SubmitDraft(ctx context.Context, draftID string, buf *EditBuffer) (*models.Robot, error) {
	intent, err := buf.BeginSubmit()
	if err != nil {
		return nil, err
	}
	confirmed, err := s.send(ctx, draftID, intent)
	if err != nil {
		buf.AbortSubmit()
		return nil, err
	}
	buf.CompleteSubmit(confirmed)
	return confirmed.Clone(), nil
}

// SubmitIntent sends an intent that is not backed by an edit buffer.
func (s *RobotService) SubmitIntent(ctx context.Context, intent *models.EditIntent) (*models.Robot, error) {
	return s.send(ctx, "", intent)
}

func (s *RobotService) send(ctx context.Context, draftID string, intent *models.EditIntent) (*models.Robot, error) {
	start := time.Now()
	record := &models.SubmissionRecord{DraftID: draftID}
	if intent != nil {
		record.Kind = intent.Kind
		record.RobotID = intent.RobotID
	}

	robot, err := s.exchange(ctx, intent, record)
	record.DurationMS = time.Since(start).Milliseconds()
	record.Outcome = submissionOutcome(err)
	if err != nil {
		record.Error = err.Error()
	}
	s.metrics.ObserveSubmission(record.Kind, record.Outcome, time.Since(start))
	s.recordSubmission(ctx, record)

	if err != nil {
		s.logger.Warn("Submission failed",
			"kind", record.Kind, "robot_id", record.RobotID, "outcome", record.Outcome, slog.Any("error", err))
		return nil, err
	}

	event := models.RobotUpdated
	if intent.Kind == models.IntentCreate {
		event = models.RobotCreated
	}
	s.cacheRobot(ctx, robot)
	s.invalidateLists(ctx)
	s.publish(ctx, models.NewRobotEvent(event, robot.ID, robot.Version))

	s.logger.Info("Submission confirmed",
		"kind", record.Kind, "robot_id", robot.ID, "version", robot.Version, "fields", record.FieldCount)
	return robot, nil
}

// exchange encodes, sends and decodes. Nothing reaches the network when
// the intent violates the submission contract.
func (s *RobotService) exchange(ctx context.Context, intent *models.EditIntent, record *models.SubmissionRecord) (*models.Robot, error) {
	payload, err := s.encoder.Encode(intent)
	if err != nil {
		return nil, err
	}
	record.FieldCount = payload.Len()
	s.metrics.ObservePayloadFields(intent.Kind, payload.Len())

	var body []byte
	switch intent.Kind {
	case models.IntentCreate:
		body, err = s.api.Create(ctx, payload)
	default:
		body, err = s.api.Update(ctx, intent.RobotID, payload)
	}
	if err != nil {
		return nil, err
	}

	robot, err := s.normalizer.DecodeRobot(body)
	if err != nil {
		return nil, &transport.Error{Op: "submit robot", Message: "unexpected response from robot API", Err: err}
	}
	record.RobotID = robot.ID
	return &robot, nil
}

// submissionOutcome: contract violations and upstream 4xx are rejections,
// everything else is a failure.
func submissionOutcome(err error) models.SubmissionOutcome {
	if err == nil {
		return models.SubmissionSucceeded
	}
	if errors.Is(err, models.ErrContractViolation) {
		return models.SubmissionRejected
	}
	var terr *transport.Error
	if errors.As(err, &terr) && terr.IsClientError() {
		return models.SubmissionRejected
	}
	return models.SubmissionFailed
}

// ===================================================================
// DELETE & DOWNLOAD
// ===================================================================

// Delete soft-deletes a robot upstream and drops it from the cache.
func (s *RobotService) Delete(ctx context.Context, robotID int64) error {
	if err := s.api.Delete(ctx, robotID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateRobot(ctx, robotID); err != nil {
			s.logger.Warn("Robot cache invalidation failed", "robot_id", robotID, slog.Any("error", err))
		}
	}
	s.publish(ctx, models.NewRobotEvent(models.RobotDeleted, robotID, 0))
	s.logger.Info("Robot deleted", "robot_id", robotID)
	return nil
}

// Download streams a robot file. When the download endpoint fails, the
// file's normalized URL is returned instead so the caller can redirect.
func (s *RobotService) Download(ctx context.Context, robotID, fileID int64) (*Download, error) {
	stream, err := s.api.Download(ctx, robotID, fileID)
	if err == nil {
		s.metrics.IncDownload("stream")
		return &Download{Stream: stream, Filename: stream.Filename}, nil
	}

	robot, getErr := s.Get(ctx, robotID)
	if getErr != nil {
		return nil, err
	}
	file, ok := robot.FindFile(fileID)
	if !ok {
		return nil, &transport.Error{
			Op:         "download file",
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("file %d not found on robot %d", fileID, robotID),
		}
	}
	if file.URL == "" {
		return nil, err
	}

	s.logger.Warn("Download failed, falling back to file URL",
		"robot_id", robotID, "file_id", fileID, slog.Any("error", err))
	s.metrics.IncDownload("fallback")
	return &Download{FallbackURL: file.URL, Filename: file.DisplayName()}, nil
}

// ===================================================================
// EVENTS & CACHE
// ===================================================================

// HandleRobotEvent keeps the cache coherent with changes made elsewhere.
// A cached robot at or past the event's version is kept; list pages are
// always dropped.
func (s *RobotService) HandleRobotEvent(ctx context.Context, event models.RobotEvent) {
	if s.cache == nil {
		return
	}
	s.invalidateLists(ctx)
	if event.Event != models.RobotDeleted && event.Version > 0 {
		cached, err := s.cache.GetRobot(ctx, event.RobotID)
		if err == nil && cached != nil && cached.Version >= event.Version {
			return
		}
	}
	if err := s.cache.InvalidateRobot(ctx, event.RobotID); err != nil {
		s.logger.Warn("Robot cache invalidation failed", "robot_id", event.RobotID, slog.Any("error", err))
		return
	}
	s.logger.Debug("Robot cache invalidated by event", "robot_id", event.RobotID, "event", event.Event)
}

func (s *RobotService) cacheRobot(ctx context.Context, robot *models.Robot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetRobot(ctx, robot); err != nil {
		s.logger.Warn("Robot cache write failed", "robot_id", robot.ID, slog.Any("error", err))
	}
}

func (s *RobotService) invalidateLists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLists(ctx); err != nil {
		s.logger.Warn("List cache invalidation failed", slog.Any("error", err))
	}
}

func (s *RobotService) publish(ctx context.Context, event models.RobotEvent) {
	if s.events == nil {
		return
	}
	err := s.events.PublishRobotEvent(ctx, event)
	s.metrics.IncEvent(event.Event, err)
	if err != nil {
		s.logger.Warn("Robot event publish failed", "robot_id", event.RobotID, "event", event.Event, slog.Any("error", err))
	}
}

func (s *RobotService) recordSubmission(ctx context.Context, record *models.SubmissionRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, record); err != nil {
		s.logger.Warn("Submission audit write failed", slog.Any("error", err))
	}
}
