// Package cdshooks serves the CDS Hooks 2.0 discovery, hook and feedback
// endpoints for the services registered on it.
package cdshooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// Card indicators.
const (
	IndicatorInfo     = "info"
	IndicatorWarning  = "warning"
	IndicatorCritical = "critical"
)

// Service describes one hook service in discovery.
type Service struct {
	Hook              string            `json:"hook"`
	Title             string            `json:"title,omitempty"`
	Description       string            `json:"description"`
	ID                string            `json:"id"`
	Prefetch          map[string]string `json:"prefetch,omitempty"`
	UsageRequirements string            `json:"usageRequirements,omitempty"`
}

// Request is the payload POSTed to invoke a hook.
type Request struct {
	Hook         string                     `json:"hook"`
	HookInstance string                     `json:"hookInstance"`
	FHIRServer   string                     `json:"fhirServer,omitempty"`
	Context      map[string]json.RawMessage `json:"context"`
	Prefetch     map[string]json.RawMessage `json:"prefetch,omitempty"`
}

// ContextString returns a string context field, or "".
func (r Request) ContextString(key string) string {
	var s string
	if raw, ok := r.Context[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

type Card struct {
	UUID              string       `json:"uuid,omitempty"`
	Summary           string       `json:"summary"`
	Detail            string       `json:"detail,omitempty"`
	Indicator         string       `json:"indicator"`
	Source            Source       `json:"source"`
	Suggestions       []Suggestion `json:"suggestions,omitempty"`
	Links             []Link       `json:"links,omitempty"`
	OverrideReasons   []Coding     `json:"overrideReasons,omitempty"`
	SelectionBehavior string       `json:"selectionBehavior,omitempty"`
}

type Source struct {
	Label string  `json:"label"`
	URL   string  `json:"url,omitempty"`
	Topic *Coding `json:"topic,omitempty"`
}

type Suggestion struct {
	Label         string   `json:"label"`
	UUID          string   `json:"uuid,omitempty"`
	IsRecommended bool     `json:"isRecommended,omitempty"`
	Actions       []Action `json:"actions,omitempty"`
}

type Action struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Resource    interface{} `json:"resource,omitempty"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

type Coding struct {
	Code    string `json:"code"`
	System  string `json:"system,omitempty"`
	Display string `json:"display,omitempty"`
}

type Response struct {
	Cards []Card `json:"cards"`
}

// Feedback records what the clinician did with a card.
type Feedback struct {
	Card             string   `json:"card"`
	Outcome          string   `json:"outcome"`
	OverrideReasons  []Coding `json:"overrideReasons,omitempty"`
	OutcomeTimestamp string   `json:"outcomeTimestamp,omitempty"`
}

type FeedbackRequest struct {
	Feedback []Feedback `json:"feedback"`
}

// ServiceHandler answers one hook invocation.
type ServiceHandler func(ctx context.Context, req Request) (*Response, error)

// FeedbackHandler receives the feedback for a service.
type FeedbackHandler func(ctx context.Context, serviceID string, fb []Feedback) error

// Registry holds the hook services, in registration order.
type Registry struct {
	mu        sync.RWMutex
	services  map[string]Service
	handlers  map[string]ServiceHandler
	feedbacks map[string]FeedbackHandler
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		services:  make(map[string]Service),
		handlers:  make(map[string]ServiceHandler),
		feedbacks: make(map[string]FeedbackHandler),
	}
}

// Register adds or replaces a service. fb may be nil.
func (r *Registry) Register(svc Service, handler ServiceHandler, fb FeedbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[svc.ID]; !exists {
		r.order = append(r.order, svc.ID)
	}
	r.services[svc.ID] = svc
	r.handlers[svc.ID] = handler
	if fb != nil {
		r.feedbacks[svc.ID] = fb
	}
}

func (r *Registry) RegisterRoutes(e *echo.Echo) {
	e.GET("/cds-services", r.Discovery)
	e.POST("/cds-services/:id", r.HandleHook)
	e.POST("/cds-services/:id/feedback", r.HandleFeedback)
}

func (r *Registry) Discovery(c echo.Context) error {
	r.mu.RLock()
	services := make([]Service, 0, len(r.order))
	for _, id := range r.order {
		services = append(services, r.services[id])
	}
	r.mu.RUnlock()
	return c.JSON(http.StatusOK, map[string][]Service{"services": services})
}

func (r *Registry) lookup(id string) (Service, ServiceHandler, FeedbackHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[id]
	return svc, r.handlers[id], r.feedbacks[id], ok
}

func (r *Registry) HandleHook(c echo.Context) error {
	id := c.Param("id")
	svc, handler, _, ok := r.lookup(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("CDS service %q not found", id))
	}

	var req Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Hook != svc.Hook {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("hook mismatch: request hook %q does not match service hook %q", req.Hook, svc.Hook))
	}
	if req.HookInstance == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "hookInstance is required")
	}

	resp, err := handler(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if resp == nil || resp.Cards == nil {
		resp = &Response{Cards: []Card{}}
	}
	return c.JSON(http.StatusOK, resp)
}

func (r *Registry) HandleFeedback(c echo.Context) error {
	id := c.Param("id")
	_, _, fb, ok := r.lookup(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("CDS service %q not found", id))
	}

	var req FeedbackRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid feedback body: %v", err))
	}
	if fb != nil {
		if err := fb(c.Request().Context(), id, req.Feedback); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
