package triage

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/epicare/epicare/internal/platform/auth"
	"github.com/epicare/epicare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/triage", h.Triage, auth.RequireAuthenticated())

	// Follow-up sessions: clinicians and admins
	sessions := api.Group("/followup-sessions", auth.RequireRole(auth.RolePHC, auth.RolePHCAdmin, auth.RoleMasterAdmin))
	sessions.POST("", h.OpenSession)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.CloseSession)
	sessions.POST("/:id/evaluate", h.EvaluateSession)
	sessions.POST("/:id/controls/:control", h.TouchControl)

	// Audit: admins only
	audit := api.Group("/triage-runs", auth.RequireRole(auth.RolePHCAdmin, auth.RoleMasterAdmin))
	audit.GET("", h.ListRuns)
	audit.GET("/:id", h.GetRun)
	audit.GET("/:id/events", h.ListRunEvents)
}

// TriageRequest is the body of the stateless triage endpoint.
type TriageRequest struct {
	Analysis *AnalysisResult `json:"analysis"`
	Context  Context         `json:"context"`
}

// TriageResponse reports the plan, or why there is none.
type TriageResponse struct {
	Available bool        `json:"available"`
	Message   string      `json:"message,omitempty"`
	Plan      *RenderPlan `json:"plan,omitempty"`
}

func (h *Handler) Triage(c echo.Context) error {
	var req TriageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Analysis == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "analysis is required")
	}
	plan, err := h.svc.Triage(c.Request().Context(), req.Analysis, req.Context)
	if errors.Is(err, ErrCDSUnavailable) {
		return c.JSON(http.StatusOK, TriageResponse{Available: false, Message: UnavailableMessage(req.Analysis)})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TriageResponse{Available: true, Message: plan.Message, Plan: plan})
}

// -- Session Handlers --

func (h *Handler) OpenSession(c echo.Context) error {
	var req OpenSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	snap, err := h.svc.OpenSession(ctx, req, auth.UserIDFromContext(ctx), auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	snap, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "follow-up session not found")
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) CloseSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.CloseSession(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "follow-up session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) EvaluateSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req EvaluateRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	out, err := h.svc.EvaluateSession(c.Request().Context(), id, req)
	if errors.Is(err, ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "follow-up session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// TouchRequest is a manual checkbox toggle.
type TouchRequest struct {
	Checked bool `json:"checked"`
}

func (h *Handler) TouchControl(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	name, err := ParseControlName(c.Param("control"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid control")
	}
	var req TouchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctl, err := h.svc.TouchControl(c.Request().Context(), id, name, req.Checked)
	if errors.Is(err, ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "follow-up session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, ctl)
}

// -- Audit Handlers --

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	var (
		items []*TriageRun
		total int
		err   error
	)
	if patientID := c.QueryParam("patient_id"); patientID != "" {
		items, total, err = h.svc.ListRunsByPatient(ctx, patientID, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListRuns(ctx, pg.Limit, pg.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "triage run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRunEvents(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.ListRunEvents(c.Request().Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "triage run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*SmartDefaultEvent{}
	}
	return c.JSON(http.StatusOK, events)
}
