package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/health/db", true},
		{http.MethodGet, "/metrics", true},
		{http.MethodGet, "/cds-services", true},
		{http.MethodGet, "/openapi.json", true},
		{http.MethodPost, "/cds-services/:id", false},
		{http.MethodPost, "/health", false},
		{http.MethodGet, "/api/v1/triage-runs", false},
		{http.MethodGet, "/ws", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(tt.method, "/", nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/metrics") {
		t.Error("expected /metrics public")
	}
	if IsPublicPath("/api/v1/followup-sessions") {
		t.Error("expected API paths private")
	}
}
