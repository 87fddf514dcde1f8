package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server bundles what NewServer needs to build the console API.
type Server struct {
	Robots         *RobotHandler
	Drafts         *DraftHandler
	Health         *HealthHandler
	Metrics        http.Handler
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewServer creates the echo instance with middleware, error handling and routes.
func NewServer(s Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	SetErrorLogger(s.Logger)
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(s.Logger))
	e.Use(CORS())
	if s.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(s.MaxUploadBytes, 10)))
	}

	RegisterRoutes(e, s)
	return e
}

// RegisterRoutes mounts the console API under /api/v1 and metrics at /metrics.
func RegisterRoutes(e *echo.Echo, s Server) {
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics))
	}

	api := e.Group("/api/v1")

	if s.Health != nil {
		api.GET("/health", s.Health.HealthCheck)
	}

	// Robots
	robots := api.Group("/robots")
	robots.GET("", s.Robots.ListRobots)
	robots.GET("/:id", s.Robots.GetRobot)
	robots.DELETE("/:id", s.Robots.DeleteRobot)
	robots.GET("/:id/files/:fileId/download", s.Robots.DownloadFile)
	robots.GET("/:id/submissions", s.Robots.GetSubmissionHistory)

	// Drafts
	drafts := api.Group("/drafts")
	drafts.POST("", s.Drafts.CreateDraft)
	drafts.GET("/:id", s.Drafts.GetDraft)
	drafts.PATCH("/:id", s.Drafts.PatchDraft)
	drafts.DELETE("/:id", s.Drafts.DeleteDraft)
	drafts.POST("/:id/submit", s.Drafts.SubmitDraft)

	drafts.POST("/:id/images", s.Drafts.AddImages)
	drafts.DELETE("/:id/images/:index", s.Drafts.RemoveImage)
	drafts.GET("/:id/images/:index/preview", s.Drafts.PreviewImage)
	drafts.POST("/:id/files", s.Drafts.AddFiles)
	drafts.DELETE("/:id/files/:index", s.Drafts.RemoveFile)

	drafts.PUT("/:id/deletions/images/:attachmentId", s.Drafts.MarkImageDeletion)
	drafts.DELETE("/:id/deletions/images/:attachmentId", s.Drafts.UnmarkImageDeletion)
	drafts.PUT("/:id/deletions/files/:attachmentId", s.Drafts.MarkFileDeletion)
	drafts.DELETE("/:id/deletions/files/:attachmentId", s.Drafts.UnmarkFileDeletion)

	drafts.POST("/:id/parameters", s.Drafts.AddParameter)
	drafts.PATCH("/:id/parameters/:index", s.Drafts.UpdateParameter)
	drafts.DELETE("/:id/parameters/:index", s.Drafts.RemoveParameter)
}
