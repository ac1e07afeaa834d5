package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/epicare/epicare/internal/platform/metrics"
	"github.com/epicare/epicare/internal/platform/websocket"
)

// Websocket event types.
const (
	EventPlan         = "triage.plan"
	EventSmartDefault = "smart-default.applied"
)

// Dropped reasons reported on an evaluation outcome.
const (
	DroppedStale     = "stale"
	DroppedDebounced = "debounced"
)

// SessionTopic is the websocket topic of a follow-up session.
func SessionTopic(id uuid.UUID) string { return "followup:" + id.String() }

// EvaluationRequest is the payload sent to the CDS backend.
type EvaluationRequest struct {
	PatientID string          `json:"patientId,omitempty"`
	Patient   json.RawMessage `json:"patient,omitempty"`
	FollowUp  Context         `json:"followUp"`
}

// Evaluator runs a CDS evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*AnalysisResult, error)
}

// OpenSessionRequest opens a follow-up session.
type OpenSessionRequest struct {
	PatientID string  `json:"patientId"`
	Context   Context `json:"context"`
}

// EvaluateRequest asks for a fresh CDS evaluation of a session. A non-nil
// Context replaces the session's form state first.
type EvaluateRequest struct {
	Context *Context        `json:"context,omitempty"`
	Patient json.RawMessage `json:"patient,omitempty"`
}

// EvaluationOutcome is the result of evaluating a session.
type EvaluationOutcome struct {
	SessionID  uuid.UUID               `json:"sessionId"`
	Generation uint64                  `json:"generation"`
	Available  bool                    `json:"available"`
	Message    string                  `json:"message,omitempty"`
	Dropped    string                  `json:"dropped,omitempty"`
	Plan       *RenderPlan             `json:"plan,omitempty"`
	Applied    []SmartDefaultChange    `json:"applied"`
	Controls   map[ControlName]Control `json:"controls"`
	RunID      *uuid.UUID              `json:"runId,omitempty"`
}

// Transactor runs fn in one database transaction.
type Transactor func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Service struct {
	sessions  *SessionStore
	evaluator Evaluator
	runs      TriageRunRepository
	events    SmartDefaultEventRepository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	withTx    Transactor
	now       func() time.Time
}

func NewService(
	sessions *SessionStore,
	evaluator Evaluator,
	runs TriageRunRepository,
	events SmartDefaultEventRepository,
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:  sessions,
		evaluator: evaluator,
		runs:      runs,
		events:    events,
		publisher: publisher,
		logger:    logger,
		withTx:    noTx,
		now:       time.Now,
	}
}

// UseTransactor makes each audit write (the run and its smart-default events)
// atomic.
func (s *Service) UseTransactor(tx Transactor) {
	if tx != nil {
		s.withTx = tx
	}
}

// -- Stateless triage --

// Triage builds a render plan for a single analysis without a session.
func (s *Service) Triage(ctx context.Context, result *AnalysisResult, tctx Context) (*RenderPlan, error) {
	start := s.now()
	plan, err := Triage(result, tctx)
	s.recordTriage(plan, err, s.now().Sub(start))
	if err != nil {
		return nil, err
	}
	if plan.Degraded {
		s.logger.Warn().Msg("triage degraded to standard monitoring")
	}
	return plan, nil
}

// -- Sessions --

func (s *Service) OpenSession(_ context.Context, req OpenSessionRequest, userID string, roles []string) (SessionSnapshot, error) {
	if req.PatientID == "" {
		return SessionSnapshot{}, fmt.Errorf("patientId is required")
	}
	sess := s.sessions.Open(req.PatientID, userID, roles, req.Context)
	metrics.SetOpenSessions(s.sessions.Len())
	s.logger.Info().
		Str("session", sess.ID().String()).
		Str("patient", req.PatientID).
		Msg("follow-up session opened")
	return sess.Snapshot(), nil
}

func (s *Service) GetSession(_ context.Context, id uuid.UUID) (SessionSnapshot, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) CloseSession(_ context.Context, id uuid.UUID) error {
	if err := s.sessions.Close(id); err != nil {
		return err
	}
	metrics.SetOpenSessions(s.sessions.Len())
	s.logger.Info().Str("session", id.String()).Msg("follow-up session closed")
	return nil
}

// EvaluateSession calls the CDS backend for the session's current form state,
// triages the result and applies smart defaults. A CDS failure is not an
// error: the outcome reports Available=false and the form stays usable.
func (s *Service) EvaluateSession(ctx context.Context, id uuid.UUID, req EvaluateRequest) (*EvaluationOutcome, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if req.Context != nil {
		sess.UpdateContext(*req.Context, s.now())
	}
	tctx := sess.Context()
	snap := sess.Snapshot()
	gen := sess.BeginRequest(s.now())

	out := &EvaluationOutcome{SessionID: id, Generation: gen, Applied: []SmartDefaultChange{}}

	cdsStart := s.now()
	result, err := s.evaluator.Evaluate(ctx, EvaluationRequest{PatientID: snap.PatientID, Patient: req.Patient, FollowUp: tctx})
	if err != nil {
		metrics.RecordCDSRequest("error", s.now().Sub(cdsStart))
		s.logger.Warn().Err(err).Str("session", id.String()).Uint64("generation", gen).Msg("cds evaluation failed")
		result = &AnalysisResult{Success: false, Error: err.Error()}
	} else {
		metrics.RecordCDSRequest("ok", s.now().Sub(cdsStart))
	}

	start := s.now()
	plan, triageErr := Triage(result, tctx)
	s.recordTriage(plan, triageErr, s.now().Sub(start))
	if triageErr != nil {
		if !errors.Is(triageErr, ErrCDSUnavailable) {
			return nil, triageErr
		}
		out.Available = false
		out.Message = UnavailableMessage(result)
		s.audit(ctx, sess, gen, nil, nil, out.Message)
		out.Controls = sess.Snapshot().Controls
		return out, nil
	}

	changes, err := sess.Commit(gen, plan, s.now(), s.sessions.opts.DebounceWindow, s.sessions.opts.DropStaleResponses)
	switch {
	case errors.Is(err, ErrStaleResponse):
		out.Dropped = DroppedStale
	case errors.Is(err, ErrDebounced):
		out.Dropped = DroppedDebounced
	case err != nil:
		return nil, err
	}
	if out.Dropped != "" {
		metrics.RecordDroppedResponse(out.Dropped)
		s.logger.Debug().Str("session", id.String()).Uint64("generation", gen).Str("reason", out.Dropped).Msg("cds response dropped")
		out.Available = true
		out.Controls = sess.Snapshot().Controls
		return out, nil
	}

	out.Available = true
	out.Plan = plan
	out.Message = plan.Message
	if changes != nil {
		out.Applied = changes
	}
	out.RunID = s.audit(ctx, sess, gen, plan, changes, "")
	out.Controls = sess.Snapshot().Controls

	s.publish(ctx, id, EventPlan, plan)
	for _, ch := range changes {
		metrics.RecordSmartDefault(string(ch.Control), ActionAutoApplied)
		s.publish(ctx, id, EventSmartDefault, ch)
	}

	s.logger.Info().
		Str("session", id.String()).
		Uint64("generation", gen).
		Str("plan_tone", string(plan.Plan.Tone)).
		Int("critical", len(plan.CriticalAlerts)).
		Int("recommendations", len(plan.Recommendations)).
		Int("auto_applied", len(changes)).
		Msg("triage evaluated")
	return out, nil
}

// TouchControl records a manual checkbox toggle.
func (s *Service) TouchControl(ctx context.Context, id uuid.UUID, name ControlName, checked bool) (Control, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return Control{}, err
	}
	ctl, err := sess.Touch(name, checked, s.now())
	if err != nil {
		return Control{}, err
	}
	metrics.RecordSmartDefault(string(name), ActionUserTouched)
	e := &SmartDefaultEvent{
		RunID:     sess.Snapshot().LastRunID,
		SessionID: id,
		Control:   string(name),
		Action:    ActionUserTouched,
		Checked:   checked,
	}
	if err := s.events.Create(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("session", id.String()).Msg("failed to record control touch")
	}
	return ctl, nil
}

// RunSweeper closes idle sessions every sweep interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sessions.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepSessions()
		}
	}
}

// -- Audit --

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*TriageRun, int, error) {
	return s.runs.List(ctx, limit, offset)
}

func (s *Service) ListRunsByPatient(ctx context.Context, patientID string, limit, offset int) ([]*TriageRun, int, error) {
	return s.runs.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*TriageRun, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRunEvents(ctx context.Context, runID uuid.UUID) ([]*SmartDefaultEvent, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.events.ListByRun(ctx, runID)
}

// SweepSessions closes idle sessions and refreshes the session gauge.
func (s *Service) SweepSessions() int {
	n := s.sessions.Sweep()
	metrics.SetOpenSessions(s.sessions.Len())
	if n > 0 {
		s.logger.Info().Int("closed", n).Msg("idle follow-up sessions closed")
	}
	return n
}

// audit writes the run and its smart-default events. Failures are logged and
// never fail the evaluation.
func (s *Service) audit(ctx context.Context, sess *Session, gen uint64, plan *RenderPlan, changes []SmartDefaultChange, errText string) *uuid.UUID {
	snap := sess.Snapshot()
	sessionID := snap.ID
	run := &TriageRun{
		SessionID:  &sessionID,
		PatientID:  snap.PatientID,
		UserID:     snap.UserID,
		Generation: int64(gen),
		Available:  plan != nil,
	}
	if errText != "" {
		run.ErrorText = &errText
	}
	if plan != nil {
		run.Degraded = plan.Degraded
		run.PlanText = plan.Plan.Text
		run.PlanTone = string(plan.Plan.Tone)
		run.CriticalCount = len(plan.CriticalAlerts)
		run.RecommendationCount = len(plan.Recommendations)
		run.SuppressedCount = plan.SuppressedCount
		run.ReferralAuto = plan.Referral.ShouldAuto
		run.MedicationAuto = plan.MedicationChange.ShouldAuto
		if data, err := json.Marshal(plan); err == nil {
			run.Plan = data
		}
	}
	err := s.withTx(ctx, func(ctx context.Context) error {
		if err := s.runs.Create(ctx, run); err != nil {
			return fmt.Errorf("create triage run: %w", err)
		}
		for _, ch := range changes {
			runID := run.ID
			e := &SmartDefaultEvent{
				RunID:     &runID,
				SessionID: sessionID,
				Control:   string(ch.Control),
				Action:    ActionAutoApplied,
				Checked:   ch.Checked,
				Rationale: ch.Rationale,
			}
			if err := s.events.Create(ctx, e); err != nil {
				return fmt.Errorf("create smart default event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID.String()).Msg("failed to record triage audit")
		return nil
	}
	if plan != nil {
		sess.SetLastRun(run.ID)
	}
	runID := run.ID
	return &runID
}

func (s *Service) publish(ctx context.Context, id uuid.UUID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", eventType).Msg("failed to marshal event")
		return
	}
	evt := websocket.Event{
		Type:      eventType,
		Topic:     SessionTopic(id),
		SessionID: id.String(),
		Timestamp: s.now().UTC(),
		Data:      data,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish event")
	}
}

func (s *Service) recordTriage(plan *RenderPlan, err error, d time.Duration) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrCDSUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "error"
	case plan != nil && plan.Degraded:
		outcome = "degraded"
	}
	metrics.RecordTriage(outcome, d)
}

// UnavailableMessage is shown in place of a plan when the CDS call failed.
func UnavailableMessage(result *AnalysisResult) string {
	if result != nil && result.Error != "" {
		return result.Error
	}
	return "Clinical decision support unavailable."
}
