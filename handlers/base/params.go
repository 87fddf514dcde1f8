package base

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"robot-console/models"
	"robot-console/utils"

	"github.com/labstack/echo/v4"
)

// ===================================================================
// PARAMETER EXTRACTION HELPERS
// ===================================================================

// ExtractIDParam extracts and validates a positive ID parameter from the URL
func ExtractIDParam(c echo.Context, paramName string) (int64, error) {
	idStr := c.Param(paramName)
	if idStr == "" {
		return 0, utils.NewBadRequestError(fmt.Sprintf("%s parameter is required", paramName))
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.NewBadRequestError(fmt.Sprintf("Invalid %s parameter: must be a positive integer", paramName))
	}
	return id, nil
}

// ExtractIndexParam extracts a zero-based list index from the URL
func ExtractIndexParam(c echo.Context, paramName string) (int, error) {
	index, err := strconv.Atoi(c.Param(paramName))
	if err != nil || index < 0 {
		return 0, utils.NewBadRequestError(fmt.Sprintf("Invalid %s parameter: must be a non-negative integer", paramName))
	}
	return index, nil
}

// ExtractStringParam extracts string parameter from URL with validation
func ExtractStringParam(c echo.Context, paramName string, required bool) (string, error) {
	value := c.Param(paramName)
	if required && value == "" {
		return "", utils.NewBadRequestError(fmt.Sprintf("%s parameter is required", paramName))
	}
	return value, nil
}

// ===================================================================
// QUERY PARAMETER HELPERS
// ===================================================================

// ExtractOptionalIntParam extracts optional integer parameter with default
func ExtractOptionalIntParam(c echo.Context, paramName string, defaultValue int) (int, error) {
	valueStr := c.QueryParam(paramName)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return 0, utils.NewBadRequestError(fmt.Sprintf("Invalid %s parameter: must be a non-negative integer", paramName))
	}
	return value, nil
}

// ExtractOptionalBoolParam extracts an optional boolean; nil when absent.
// Accepts the robot API's 1/0 as well as true/false.
func ExtractOptionalBoolParam(c echo.Context, paramName string) (*bool, error) {
	valueStr := c.QueryParam(paramName)
	if valueStr == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return nil, utils.NewBadRequestError(fmt.Sprintf("Invalid %s parameter: must be a boolean", paramName))
	}
	return &value, nil
}

// ExtractListFilter reads a robot listing filter from the query string
func ExtractListFilter(c echo.Context) (models.ListFilter, error) {
	filter := models.ListFilter{
		Language: models.Language(c.QueryParam("language")),
		Search:   c.QueryParam("search"),
	}
	if filter.Language != "" && !filter.Language.Valid() {
		return filter, utils.NewBadRequestError("Invalid language parameter: must be nelogica or meta_trader")
	}

	var err error
	if filter.IsActive, err = ExtractOptionalBoolParam(c, "is_active"); err != nil {
		return filter, err
	}
	if filter.PerPage, err = ExtractOptionalIntParam(c, "per_page", 0); err != nil {
		return filter, err
	}
	if filter.Page, err = ExtractOptionalIntParam(c, "page", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// ===================================================================
// REQUEST BODY HELPERS
// ===================================================================

// BindJSON decodes the JSON request body, rejecting unknown fields
func BindJSON(c echo.Context, target interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil && err != io.EOF {
		return utils.NewBadRequestError(fmt.Sprintf("Invalid request body: %v", err), err)
	}
	return nil
}

// ReadFormFile reads an uploaded part fully.
func ReadFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, utils.NewBadRequestError(fmt.Sprintf("Failed to read upload %s", fh.Filename), err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, utils.NewBadRequestError(fmt.Sprintf("Failed to read upload %s", fh.Filename), err)
	}
	return data, nil
}

// IndexedFormValue returns form value name[i], or "" when absent.
func IndexedFormValue(form *multipart.Form, name string, i int) string {
	if values := form.Value[fmt.Sprintf("%s[%d]", name, i)]; len(values) > 0 {
		return values[0]
	}
	return ""
}
