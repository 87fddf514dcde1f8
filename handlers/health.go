package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"robot-console/utils"

	"github.com/labstack/echo/v4"
)

// Pinger is any dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the service and dependency status.
type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Pinger, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{
		checks:  checks,
		timeout: timeout,
	}
}

// ===================================================================
// HEALTH CHECK
// ===================================================================

// HealthCheck answers 200 when every dependency responds, 503 otherwise.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			healthy = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	data := map[string]interface{}{
		"service":    "robot-console",
		"timestamp":  time.Now().Unix(),
		"components": components,
	}
	if !healthy {
		return c.JSON(http.StatusServiceUnavailable, utils.StandardResponse{
			Status:  "error",
			Message: "Service is degraded",
			Data:    data,
		})
	}
	return c.JSON(http.StatusOK, utils.SuccessResponse("Service is healthy", data))
}
