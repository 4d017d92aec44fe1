// Package apperror defines the structured error type used across service and
// handler layers, and the echo error handler that renders it as the JSON
// envelope {"code": "...", "message": "..."}.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Error is a structured application error carrying a machine-readable code
// and the HTTP status it maps to.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound creates a 404 error.
func NotFound(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusNotFound}
}

// Invalid creates a 400 error for validation or state-machine violations.
func Invalid(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusBadRequest}
}

// Forbidden creates a 403 error.
func Forbidden(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusForbidden}
}

// Conflict creates a 409 error for optimistic-concurrency failures.
func Conflict(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusConflict}
}

// Dependency creates a 502 error for upstream collaborator failures.
func Dependency(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusBadGateway, Cause: cause}
}

// Internal creates a 500 error wrapping an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// envelope is the wire shape of every error response.
type envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders *Error values (and everything else) as the JSON
// error envelope. Install it as echo's global error handler.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := envelope{Code: "INTERNAL_ERROR", Message: "internal server error"}

	var appErr *Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		status = appErr.Status
		body = envelope{Code: appErr.Code, Message: appErr.Message}
	case errors.As(err, &httpErr):
		status = httpErr.Code
		body = envelope{Code: codeForStatus(httpErr.Code), Message: fmt.Sprintf("%v", httpErr.Message)}
	}

	if status >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}
