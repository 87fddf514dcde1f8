package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	"robot-console/handlers/base"
	"robot-console/models"
	"robot-console/services"

	"github.com/labstack/echo/v4"
)

// RobotReader is the part of the robot service the console API exposes.
type RobotReader interface {
	List(ctx context.Context, filter models.ListFilter) (*models.RobotList, error)
	Get(ctx context.Context, robotID int64) (*models.Robot, error)
	Delete(ctx context.Context, robotID int64) error
	Download(ctx context.Context, robotID, fileID int64) (*services.Download, error)
	History(ctx context.Context, robotID int64, limit int) ([]models.SubmissionRecord, error)
}

type RobotHandler struct {
	robots RobotReader
}

func NewRobotHandler(robots RobotReader) *RobotHandler {
	return &RobotHandler{
		robots: robots,
	}
}

// ListRobots returns one page of robots. Query: language, is_active, search, per_page, page.
func (h *RobotHandler) ListRobots(c echo.Context) error {
	filter, err := base.ExtractListFilter(c)
	if err != nil {
		return err
	}
	list, err := h.robots.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return base.SendOKJSON(c, "Robots retrieved successfully", list)
}

func (h *RobotHandler) GetRobot(c echo.Context) error {
	robotID, err := base.ExtractIDParam(c, "id")
	if err != nil {
		return err
	}
	robot, err := h.robots.Get(c.Request().Context(), robotID)
	if err != nil {
		return err
	}
	return base.SendOKJSON(c, "Robot retrieved successfully", robot)
}

func (h *RobotHandler) DeleteRobot(c echo.Context) error {
	robotID, err := base.ExtractIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.robots.Delete(c.Request().Context(), robotID); err != nil {
		return err
	}
	return base.SendDeletionJSON(c, "Robot", robotID)
}

// DownloadFile streams a robot file, or redirects to the file URL when the
// download endpoint is unavailable.
func (h *RobotHandler) DownloadFile(c echo.Context) error {
	robotID, err := base.ExtractIDParam(c, "id")
	if err != nil {
		return err
	}
	fileID, err := base.ExtractIDParam(c, "fileId")
	if err != nil {
		return err
	}

	dl, err := h.robots.Download(c.Request().Context(), robotID, fileID)
	if err != nil {
		return err
	}
	if dl.Stream == nil {
		return c.Redirect(http.StatusFound, dl.FallbackURL)
	}
	defer dl.Stream.Body.Close()

	filename := dl.Filename
	if filename == "" {
		filename = fmt.Sprintf("robot-%d-file-%d", robotID, fileID)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	contentType := dl.Stream.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Stream(http.StatusOK, contentType, dl.Stream.Body)
}

// GetSubmissionHistory returns the latest submission attempts. Query: limit.
func (h *RobotHandler) GetSubmissionHistory(c echo.Context) error {
	robotID, err := base.ExtractIDParam(c, "id")
	if err != nil {
		return err
	}
	limit, err := base.ExtractOptionalIntParam(c, "limit", 20)
	if err != nil {
		return err
	}
	records, err := h.robots.History(c.Request().Context(), robotID, limit)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"submissions": records,
		"count":       len(records),
	}
	return base.SendOKJSON(c, "Submission history retrieved successfully", data)
}
