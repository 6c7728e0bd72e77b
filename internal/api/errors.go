// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/parser"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"github.com/db-query-assistant/backend/internal/session"
	"github.com/db-query-assistant/backend/internal/upload"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Error codes returned in APIError.Code.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeParse               = "PARSE_ERROR"
	CodePrecondition        = "PRECONDITION_FAILED"
	CodeModelAPI            = "MODEL_API_ERROR"
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeInternal            = "INTERNAL_ERROR"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-" msgpack:"-"`
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromError maps domain errors onto API errors. Unknown errors become 500s.
func FromError(err error) *APIError {
	var (
		apiErr *APIError
		pre    *models.PreconditionError
		pe     *models.ParseError
		ae     *models.ApiError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &pre):
		return &APIError{Status: http.StatusPreconditionFailed, Code: CodePrecondition, Message: pre.Message, Details: pre.Missing}
	case errors.As(err, &pe):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: CodeParse, Message: pe.Error(), Details: string(pe.Format)}
	case errors.As(err, &ae):
		return &APIError{Status: http.StatusBadGateway, Code: CodeModelAPI, Message: models.NoticeFor(ae).Message, Details: ae.Provider + "/" + ae.Model}
	case errors.Is(err, upload.ErrExtensionNotAllowed), errors.Is(err, parser.ErrUnsupportedFormat):
		return &APIError{Status: http.StatusUnsupportedMediaType, Code: CodeUnsupportedFileType, Message: err.Error()}
	case errors.Is(err, upload.ErrTooLarge):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Code: CodeFileTooLarge, Message: err.Error()}
	case errors.Is(err, upload.ErrNoFile):
		return NewValidationError("file")
	case errors.Is(err, upload.ErrNotGzip):
		return NewBadRequestError("upload is not gzip encoded", err)
	case errors.Is(err, session.ErrEmptyQuestion):
		return NewValidationError("question")
	default:
		return NewInternalError("An unexpected error occurred", err)
	}
}

// NewErrorHandler returns the echo HTTPErrorHandler. Details of unexpected
// errors are only exposed in development.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(cfg.Logging.Development)
func NewErrorHandler(development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			apiErr = &APIError{
				Status:  he.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", he.Message),
			}
		default:
			apiErr = FromError(err)
		}

		log := logger.FromContext(c.Request().Context())
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("request failed", zap.Error(err), zap.String("code", apiErr.Code))
			if apiErr.Code == CodeInternal && !development {
				apiErr = &APIError{Status: apiErr.Status, Code: apiErr.Code, Message: apiErr.Message}
			}
		} else {
			log.Debug("request rejected", zap.Error(err), zap.String("code", apiErr.Code))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
