package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessmentreport/internal/platform/auth"
)

// AuditEntry records one access to assessment data or reports.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	SessionID  string
	Resource   string // reports, sessions, assessments
	Action     string // generate, preview, html, download, batch, read, ingest
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

var auditedResources = map[string]bool{
	"reports":  true,
	"sessions": true,
}

// Audit logs a report_access event for every request touching session data
// or reports under /api/v1. Entries are also passed to the first recorder,
// if any.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			resource, segments := splitAPIPath(path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Resource:   resource,
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}

			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.UserRoles = auth.RolesFromContext(ctx)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			entry.SessionID, entry.Action = classifyAccess(req.Method, resource, segments)
			if entry.SessionID == "" {
				if sid, ok := c.Get(AuditSessionKey).(string); ok {
					entry.SessionID = sid
				}
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "report_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("session_id", entry.SessionID).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("report_access")

			return err
		}
	}
}

// AuditSessionKey lets handlers name the session for requests whose path
// does not carry it (POST /api/v1/reports).
const AuditSessionKey = "audit_session_id"

// splitAPIPath returns the resource segment after /api/v1/ and the rest.
func splitAPIPath(path string) (string, []string) {
	if !strings.HasPrefix(path, "/api/v1/") {
		return "", nil
	}
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "", nil
	}
	return segments[0], segments[1:]
}

// classifyAccess derives the session id and action from the path.
//
//   - POST /reports                      -> generate
//   - POST /reports/batch                -> batch
//   - GET  /reports/{id}/{preview|html|download}
//   - GET  /sessions[/{id}]              -> read
//   - POST /sessions                     -> ingest
func classifyAccess(method, resource string, rest []string) (sessionID, action string) {
	switch resource {
	case "reports":
		switch {
		case len(rest) == 0 && method == http.MethodPost:
			return "", "generate"
		case len(rest) == 1 && rest[0] == "batch":
			return "", "batch"
		case len(rest) >= 2:
			return rest[0], rest[1]
		case len(rest) == 1:
			return rest[0], "read"
		}
		return "", "read"
	case "sessions":
		if method == http.MethodPost {
			return "", "ingest"
		}
		if len(rest) >= 1 {
			return rest[0], "read"
		}
		return "", "list"
	}
	return "", "read"
}
