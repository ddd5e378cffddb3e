package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIsPublicPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/health", true},
		{"/api/v1/auth/login", true},
		{"/api/v1/auth/register", true},
		{"/api/v1/auth", false},
		{"/api/v1/reports", false},
		{"/api/v1/sessions", false},
		{"/healthz", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPublicPath(tt.path); got != tt.want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuthSkipper_RouteAndRawPath(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/health")
	if !AuthSkipper(c) {
		t.Error("expected /health route to be skipped")
	}

	// Before routing the matched path is empty; the raw path still counts.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	if !AuthSkipper(c) {
		t.Error("expected login to be skipped")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/s1/preview", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/reports/:session_id/preview")
	if AuthSkipper(c) {
		t.Error("expected report preview to require auth")
	}
}
