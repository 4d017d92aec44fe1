package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/oculoflow/oculoflow/internal/platform/auth"
)

// AuditEntry captures who accessed what patient data, when, from where, and
// how. Every request under /api/v1 touching patient records produces one.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientRef string
	Action     string // read, create, update, delete, search
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. Decoupling the sink from the
// middleware lets tests capture entries directly.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that logs access to patient health information
// under /api/v1. Without an explicit recorder it falls back to structured
// zerolog output.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				Resource:   resourceFromPath(path),
				PatientRef: patientRefFromPath(path),
				Action:     actionForMethod(req.Method, path),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: c.Response().Status,
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Msg("audit recorder failed")
				}
			}
			if len(recorders) == 0 {
				logger.Info().
					Str("request_id", entry.RequestID).
					Str("user_id", entry.UserID).
					Strs("roles", entry.UserRoles).
					Str("resource", entry.Resource).
					Str("patient_ref", entry.PatientRef).
					Str("action", entry.Action).
					Str("remote_ip", entry.IPAddress).
					Int("status", entry.StatusCode).
					Msg("phi access")
			}

			return err
		}
	}
}

// resourceFromPath returns the first path segment after /api/v1/
// ("patients", "diagnoses", "reports", ...).
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

// patientRefFromPath extracts the patient reference from paths shaped like
// /api/v1/patients/P1/... or /api/v1/diagnoses/P1/...
func patientRefFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	switch parts[0] {
	case "patients", "diagnoses":
		return parts[1]
	}
	return ""
}

func actionForMethod(method, path string) string {
	switch method {
	case http.MethodGet:
		if strings.Contains(path, "search") {
			return "search"
		}
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}
