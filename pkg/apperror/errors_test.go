package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("DEPENDENCY_FAILURE", "prediction service unavailable", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}
	if err.Status != http.StatusBadGateway {
		t.Fatalf("status = %d", err.Status)
	}
}

func renderError(t *testing.T, err error) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/P1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(err, c)

	var body envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHTTPErrorHandlerAppError(t *testing.T) {
	rec, body := renderError(t, NotFound("PATIENT_NOT_FOUND", "no patient with ref P1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Code != "PATIENT_NOT_FOUND" {
		t.Fatalf("code = %q", body.Code)
	}
	if body.Message != "no patient with ref P1" {
		t.Fatalf("message = %q", body.Message)
	}
}

func TestHTTPErrorHandlerWrappedAppError(t *testing.T) {
	wrapped := fmt.Errorf("handling request: %w", Conflict("VERSION_CONFLICT", "stale version"))
	rec, body := renderError(t, wrapped)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Code != "VERSION_CONFLICT" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestHTTPErrorHandlerEchoError(t *testing.T) {
	rec, body := renderError(t, echo.NewHTTPError(http.StatusForbidden, "required role: doctor"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Code != "FORBIDDEN" {
		t.Fatalf("code = %q", body.Code)
	}
}

func TestHTTPErrorHandlerUnknownError(t *testing.T) {
	rec, body := renderError(t, errors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Fatalf("code = %q", body.Code)
	}
	// Internal details never leak to the client.
	if body.Message != "internal server error" {
		t.Fatalf("message = %q", body.Message)
	}
}
