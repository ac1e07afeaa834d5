package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func noop(c echo.Context) error { return nil }

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.GET("/health", noop)
	e.POST("/api/v1/followup-sessions", noop)
	e.POST("/api/v1/followup-sessions/:id/controls/:control", noop)
	e.GET("/api/v1/followup-sessions/:id", noop)
	e.DELETE("/api/v1/followup-sessions/:id", noop)
	return e
}

func TestGenerateSpec_Structure(t *testing.T) {
	g := NewGenerator("Epicare Triage API", "1.0.0", "http://localhost:8000")
	doc := g.GenerateSpec(newTestEcho().Routes())

	if doc["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", doc["openapi"])
	}
	info, ok := doc["info"].(map[string]interface{})
	if !ok {
		t.Fatal("expected info object")
	}
	if info["title"] != "Epicare Triage API" || info["version"] != "1.0.0" {
		t.Errorf("unexpected info %v", info)
	}
	servers, ok := doc["servers"].([]map[string]string)
	if !ok || len(servers) != 1 || servers[0]["url"] != "http://localhost:8000" {
		t.Errorf("unexpected servers %v", doc["servers"])
	}

	paths, ok := doc["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("expected paths object")
	}
	item, ok := paths["/api/v1/followup-sessions/{id}"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected converted session path, got %v", paths)
	}
	if _, ok := item["get"]; !ok {
		t.Error("expected get operation")
	}
	if _, ok := item["delete"]; !ok {
		t.Error("expected delete operation")
	}

	touch := paths["/api/v1/followup-sessions/{id}/controls/{control}"].(map[string]interface{})["post"].(map[string]interface{})
	params, _ := touch["parameters"].([]map[string]interface{})
	if len(params) != 2 || params[0]["name"] != "id" || params[1]["name"] != "control" {
		t.Errorf("unexpected path parameters %v", params)
	}
	if touch["operationId"] != "postApiV1FollowupSessionsIdControlsControl" {
		t.Errorf("unexpected operationId %v", touch["operationId"])
	}
}

func TestGenerateSpec_Described(t *testing.T) {
	g := NewGenerator("Epicare Triage API", "1.0.0", "")
	g.AddSchema("OpenSessionRequest", map[string]interface{}{"type": "object"})
	g.Describe(
		Operation{Method: http.MethodPost, Path: "/api/v1/followup-sessions", Summary: "Open a follow-up session", Tag: "sessions", RequestBody: "OpenSessionRequest"},
		Operation{Method: http.MethodGet, Path: "/health", Summary: "Liveness", Public: true},
	)
	doc := g.GenerateSpec(newTestEcho().Routes())
	paths := doc["paths"].(map[string]interface{})

	open := paths["/api/v1/followup-sessions"].(map[string]interface{})["post"].(map[string]interface{})
	if open["summary"] != "Open a follow-up session" {
		t.Errorf("unexpected summary %v", open["summary"])
	}
	if tags, _ := open["tags"].([]string); len(tags) != 1 || tags[0] != "sessions" {
		t.Errorf("unexpected tags %v", open["tags"])
	}
	if _, ok := open["requestBody"]; !ok {
		t.Error("expected a request body")
	}

	health := paths["/health"].(map[string]interface{})["get"].(map[string]interface{})
	if sec, ok := health["security"].([]map[string][]string); !ok || len(sec) != 0 {
		t.Errorf("expected public operation to clear security, got %v", health["security"])
	}

	components := doc["components"].(map[string]interface{})
	schemas := components["schemas"].(map[string]map[string]interface{})
	if _, ok := schemas["OpenSessionRequest"]; !ok {
		t.Error("expected registered schema")
	}
}

func TestRegisterRoutes(t *testing.T) {
	e := newTestEcho()
	NewGenerator("Epicare Triage API", "1.0.0", "").RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	paths := doc["paths"].(map[string]interface{})
	if _, ok := paths["/openapi.json"]; !ok {
		t.Error("expected the document to list itself")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Errorf("unexpected docs response %d", rec.Code)
	}
}

func TestConvertPath(t *testing.T) {
	path, params := convertPath("/api/v1/triage-runs/:id/events")
	if path != "/api/v1/triage-runs/{id}/events" || len(params) != 1 || params[0] != "id" {
		t.Errorf("unexpected %s %v", path, params)
	}
}
