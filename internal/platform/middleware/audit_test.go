package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/assessmentreport/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func runAudit(t *testing.T, rec AuditRecorder, method, path string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "user-1", "u@example.com", []string{auth.RoleClinician}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")
	return Audit(zerolog.Nop(), rec)(handler)(c)
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestAudit_ClassifiesReportAccess(t *testing.T) {
	tests := []struct {
		method  string
		path    string
		session string
		action  string
		res     string
	}{
		{http.MethodGet, "/api/v1/reports/session_001/download", "session_001", "download", "reports"},
		{http.MethodGet, "/api/v1/reports/session_001/preview", "session_001", "preview", "reports"},
		{http.MethodGet, "/api/v1/reports/session_001/html", "session_001", "html", "reports"},
		{http.MethodPost, "/api/v1/reports", "", "generate", "reports"},
		{http.MethodPost, "/api/v1/reports/batch", "", "batch", "reports"},
		{http.MethodGet, "/api/v1/sessions", "", "list", "sessions"},
		{http.MethodGet, "/api/v1/sessions/session_002", "session_002", "read", "sessions"},
		{http.MethodPost, "/api/v1/sessions", "", "ingest", "sessions"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := &mockRecorder{}
			if err := runAudit(t, rec, tt.method, tt.path, okHandler); err != nil {
				t.Fatal(err)
			}
			if rec.count() != 1 {
				t.Fatalf("expected 1 entry, got %d", rec.count())
			}
			entry := rec.last()
			if entry.SessionID != tt.session || entry.Action != tt.action || entry.Resource != tt.res {
				t.Errorf("got session=%q action=%q resource=%q", entry.SessionID, entry.Action, entry.Resource)
			}
			if entry.UserID != "user-1" || entry.RequestID != "req-123" || entry.StatusCode != http.StatusOK {
				t.Errorf("unexpected entry %+v", entry)
			}
		})
	}
}

func TestAudit_SkipsOtherPaths(t *testing.T) {
	for _, path := range []string{"/health", "/api/v1/assessments", "/api/v1/auth/login", "/api/health"} {
		rec := &mockRecorder{}
		if err := runAudit(t, rec, http.MethodGet, path, okHandler); err != nil {
			t.Fatal(err)
		}
		if rec.count() != 0 {
			t.Errorf("%s: expected no audit entry", path)
		}
	}
}

func TestAudit_RecordsHandlerErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	err := runAudit(t, rec, http.MethodGet, "/api/v1/reports/s9/download", func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "report not generated")
	})
	if err == nil {
		t.Fatal("expected the handler error to propagate")
	}
	if rec.last().StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.last().StatusCode)
	}
}

func TestAudit_SessionFromHandler(t *testing.T) {
	rec := &mockRecorder{}
	err := runAudit(t, rec, http.MethodPost, "/api/v1/reports", func(c echo.Context) error {
		c.Set(AuditSessionKey, "session_003")
		return okHandler(c)
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.last().SessionID != "session_003" {
		t.Errorf("expected session from handler, got %q", rec.last().SessionID)
	}
}

func TestAudit_RecorderErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{err: errors.New("disk full")}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil), httptest.NewRecorder())

	if err := Audit(zerolog.New(&buf), rec)(okHandler)(c); err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("disk full")) || !bytes.Contains(buf.Bytes(), []byte(`"type":"report_access"`)) {
		t.Errorf("unexpected log output %s", buf.String())
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error { got = e; return nil })
	if err := runAudit(t, rec, http.MethodGet, "/api/v1/reports/s1/preview", okHandler); err != nil {
		t.Fatal(err)
	}
	if got.Action != "preview" {
		t.Errorf("expected preview, got %q", got.Action)
	}
}
