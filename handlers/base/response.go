package base

import (
	"fmt"
	"net/http"

	"robot-console/utils"

	"github.com/labstack/echo/v4"
)

// ===================================================================
// RESPONSE HELPERS
// ===================================================================

// SendOKJSON sends a 200 OK response
func SendOKJSON(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse(message, data))
}

// SendCreatedJSON sends a 201 Created response
func SendCreatedJSON(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusCreated, utils.SuccessResponse(message, data))
}

// SendDeletionJSON sends a deletion success response
func SendDeletionJSON(c echo.Context, resourceType string, identifier interface{}) error {
	return c.JSON(http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%s %v deleted successfully", resourceType, identifier), nil))
}
