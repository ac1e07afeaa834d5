package cdshooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestRegistry(fb FeedbackHandler) *Registry {
	r := NewRegistry()
	r.Register(Service{
		Hook:        "patient-view",
		Title:       "Follow-up triage",
		Description: "Triage for a patient chart",
		ID:          "followup",
		Prefetch:    map[string]string{"patient": "Patient/{{context.patientId}}"},
	}, func(ctx context.Context, req Request) (*Response, error) {
		if req.ContextString("patientId") == "boom" {
			return nil, errors.New("backend down")
		}
		return &Response{Cards: []Card{{
			Summary:   "Adherence first",
			Indicator: IndicatorWarning,
			Source:    Source{Label: "test"},
		}}}, nil
	}, fb)
	r.Register(Service{Hook: "order-select", ID: "second", Description: "x"},
		func(ctx context.Context, req Request) (*Response, error) { return nil, nil }, nil)
	return r
}

func serve(r *Registry, method, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	r.RegisterRoutes(e)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDiscovery_Order(t *testing.T) {
	rec := serve(newTestRegistry(nil), http.MethodGet, "/cds-services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result struct {
		Services []Service `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(result.Services) != 2 || result.Services[0].ID != "followup" || result.Services[1].ID != "second" {
		t.Fatalf("unexpected services %+v", result.Services)
	}
	if result.Services[0].Prefetch["patient"] != "Patient/{{context.patientId}}" {
		t.Errorf("expected prefetch template, got %v", result.Services[0].Prefetch)
	}
}

func TestDiscovery_Empty(t *testing.T) {
	rec := serve(NewRegistry(), http.MethodGet, "/cds-services", "")
	if !strings.Contains(rec.Body.String(), `"services":[]`) {
		t.Errorf("expected empty services array, got %s", rec.Body.String())
	}
}

func TestHandleHook(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"success", "/cds-services/followup", `{"hook":"patient-view","hookInstance":"h1","context":{"patientId":"P-1"}}`, http.StatusOK},
		{"unknown service", "/cds-services/nope", `{"hook":"patient-view","hookInstance":"h1"}`, http.StatusNotFound},
		{"hook mismatch", "/cds-services/followup", `{"hook":"order-select","hookInstance":"h1"}`, http.StatusBadRequest},
		{"missing instance", "/cds-services/followup", `{"hook":"patient-view"}`, http.StatusBadRequest},
		{"bad json", "/cds-services/followup", `{`, http.StatusBadRequest},
		{"handler error", "/cds-services/followup", `{"hook":"patient-view","hookInstance":"h1","context":{"patientId":"boom"}}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestRegistry(nil), http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleHook_NilResponseHasEmptyCards(t *testing.T) {
	rec := serve(newTestRegistry(nil), http.MethodPost, "/cds-services/second", `{"hook":"order-select","hookInstance":"h2"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cards":[]`) {
		t.Errorf("expected empty cards, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleFeedback(t *testing.T) {
	var got []Feedback
	r := newTestRegistry(func(ctx context.Context, id string, fb []Feedback) error {
		got = fb
		return nil
	})

	rec := serve(r, http.MethodPost, "/cds-services/followup/feedback",
		`{"feedback":[{"card":"c1","outcome":"accepted"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(got) != 1 || got[0].Outcome != "accepted" {
		t.Errorf("unexpected feedback %+v", got)
	}

	if rec := serve(r, http.MethodPost, "/cds-services/second/feedback", `{"feedback":[]}`); rec.Code != http.StatusOK {
		t.Errorf("expected no-op 200 without a feedback handler, got %d", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/cds-services/nope/feedback", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRequest_ContextString(t *testing.T) {
	req := Request{Context: map[string]json.RawMessage{"patientId": json.RawMessage(`"P-9"`), "n": json.RawMessage(`3`)}}
	if req.ContextString("patientId") != "P-9" {
		t.Errorf("expected P-9, got %q", req.ContextString("patientId"))
	}
	if req.ContextString("n") != "" || req.ContextString("missing") != "" {
		t.Error("expected empty string for non-string or missing fields")
	}
}
