package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/services"
	"robot-console/transport"
	"robot-console/utils"

	"github.com/labstack/echo/v4"
)

var errorLogger = slog.Default().With("component", "error_handler")

// SetErrorLogger sets the logger for error handling.
func SetErrorLogger(logger *slog.Logger) {
	errorLogger = logger.With("component", "error_handler")
}

// CustomHTTPErrorHandler is the central error handler for the Echo application.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	appErr := toAppError(err)
	logger := errorLogger.With("method", c.Request().Method, "path", c.Path())

	if appErr.Code >= http.StatusInternalServerError {
		logger.Error("Request failed",
			"status_code", appErr.Code,
			"error_type", fmt.Sprintf("%T", err),
			slog.Any("error", err))
	} else if internalErr := appErr.Unwrap(); internalErr != nil {
		logger.Info("Error handled",
			"status_code", appErr.Code,
			"error_message", appErr.Message,
			slog.Any("internal_error", internalErr))
	}

	var respErr error
	if appErr.Field != "" {
		respErr = c.JSON(appErr.Code, utils.FieldErrorResponse(appErr.Field, appErr.Message))
	} else {
		respErr = c.JSON(appErr.Code, utils.ErrorResponse(appErr.Message))
	}
	if respErr != nil {
		logger.Error("Failed to write error response", slog.Any("error", respErr))
	}
}

// toAppError maps domain errors to HTTP errors. It is the only place that
// knows how each layer's failures surface to the console.
func toAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return utils.NewUnprocessableError(validationErr.Field, validationErr.Message, err)
	}

	switch {
	case errors.Is(err, services.ErrSubmissionInFlight):
		return utils.NewConflictError("A submission is already in progress for this draft.", err)
	case errors.Is(err, services.ErrDraftChanged):
		return utils.NewConflictError("The draft was modified by another request. Reload and retry.", err)
	case base.IsEntityNotFound(err):
		return utils.NewNotFoundError(err.Error(), err)
	case base.IsStateConflict(err), base.IsDuplicateEntity(err):
		return utils.NewConflictError(err.Error(), err)
	}

	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		switch {
		case transportErr.StatusCode == http.StatusNotFound:
			return utils.NewNotFoundError(transportErr.Message, err)
		case transportErr.IsClientError():
			return utils.NewUpstreamError(transportErr.StatusCode, transportErr.Message, err)
		default:
			return utils.NewBadGatewayError(transportErr.Message, err)
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return utils.NewAppError(httpErr.Code, fmt.Sprint(httpErr.Message), err)
	}

	return utils.NewInternalServerError("An unexpected internal error occurred.", err)
}
