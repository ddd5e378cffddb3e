package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 1 << 20},
		{"512", 512},
		{"1K", 1 << 10},
		{"64kb", 64 << 10},
		{"2M", 2 << 20},
		{"10MB", 10 << 20},
		{"1G", 1 << 30},
		{"abc", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func bodyLimitRequest(method, path string, body []byte, limit, ingest string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	return rec, BodyLimit(limit, ingest)(handler)(e.NewContext(req, rec))
}

func readAll(c echo.Context) error {
	if _, err := io.ReadAll(c.Request().Body); err != nil {
		return err
	}
	return c.String(http.StatusOK, "ok")
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	rec, err := bodyLimitRequest(http.MethodPost, "/api/v1/reports", []byte(`{"session_id":"s1"}`), "1K", "1M", readAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestBodyLimit_RejectsOversizedBody_ContentLength(t *testing.T) {
	rec, err := bodyLimitRequest(http.MethodPost, "/api/v1/reports", make([]byte, 2048), "1K", "1M", readAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["message"] == "" {
		t.Error("expected a message")
	}
}

func TestBodyLimit_UsesIngestLimitForSessions(t *testing.T) {
	rec, err := bodyLimitRequest(http.MethodPost, "/api/v1/sessions", make([]byte, 4096), "1K", "1M", readAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected ingest limit to apply, got %d", rec.Code)
	}

	rec, _ = bodyLimitRequest(http.MethodPost, "/api/v1/sessions", make([]byte, 4096), "1K", "2K", readAll)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 over the ingest limit, got %d", rec.Code)
	}
}

func TestBodyLimit_SkipsNilBody(t *testing.T) {
	called := false
	_, err := bodyLimitRequest(http.MethodGet, "/api/v1/sessions", nil, "1", "1", func(c echo.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("expected pass-through, called=%v err=%v", called, err)
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(make([]byte, 2048)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()

	err := BodyLimit("512", "1M")(readAll)(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError from read, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", httpErr.Code)
	}
}
