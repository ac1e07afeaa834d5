package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/epicare/epicare/internal/platform/websocket"
)

// -- Mocks --

type mockEvaluator struct {
	mu     sync.Mutex
	result *AnalysisResult
	err    error
	calls  []EvaluationRequest
}

func (m *mockEvaluator) Evaluate(_ context.Context, req EvaluationRequest) (*AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (m *mockPublisher) Publish(_ context.Context, evt websocket.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type failingRunRepo struct {
	TriageRunRepository
}

func (failingRunRepo) Create(context.Context, *TriageRun) error {
	return errors.New("db down")
}

func worseningContext() Context {
	return Context{
		Adherence:         "Always takes medicine",
		ActiveMedications: []string{"Valproate", "Levetiracetam"},
		BaselineFrequency: "Monthly",
		CurrentFrequency:  "Weekly",
		Now:               fixedNow,
	}
}

type testService struct {
	svc       *Service
	evaluator *mockEvaluator
	publisher *mockPublisher
	runs      TriageRunRepository
	events    SmartDefaultEventRepository
}

func newTestService(opts SessionOptions) *testService {
	eval := &mockEvaluator{result: &AnalysisResult{Success: true}}
	pub := &mockPublisher{}
	runs := NewTriageRunRepoMemory()
	events := NewSmartDefaultEventRepoMemory()
	sessions := NewSessionStore(opts)
	svc := NewService(sessions, eval, runs, events, pub, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	sessions.now = svc.now
	return &testService{svc: svc, evaluator: eval, publisher: pub, runs: runs, events: events}
}

// -- Tests --

func TestService_OpenSessionRequiresPatient(t *testing.T) {
	ts := newTestService(SessionOptions{})
	if _, err := ts.svc.OpenSession(context.Background(), OpenSessionRequest{}, "u1", nil); err == nil {
		t.Error("expected an error without patientId")
	}
}

func TestService_EvaluateAppliesSmartDefaults(t *testing.T) {
	ts := newTestService(SessionOptions{DropStaleResponses: true})
	ctx := context.Background()
	snap, err := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-9", Context: worseningContext()}, "u1", []string{RolePHCAdmin})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Available || out.Plan == nil || out.Dropped != "" {
		t.Fatalf("expected an available plan, got %+v", out)
	}
	if out.Plan.Plan.Text != PlanEscalate {
		t.Errorf("expected the escalation plan, got %q", out.Plan.Plan.Text)
	}
	if !out.Controls[ControlReferral].Checked || !out.Controls[ControlReferral].AutoApplied {
		t.Errorf("expected the referral ticked automatically, got %+v", out.Controls)
	}
	if out.RunID == nil {
		t.Fatal("expected an audit run")
	}

	if len(ts.evaluator.calls) != 1 || ts.evaluator.calls[0].PatientID != "P-9" {
		t.Errorf("unexpected evaluator calls %+v", ts.evaluator.calls)
	}

	run, err := ts.svc.GetRun(ctx, *out.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !run.Available || !run.ReferralAuto || run.PlanText != PlanEscalate || run.Generation != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	events, err := ts.svc.ListRunEvents(ctx, *out.RunID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var referralEvents int
	for _, e := range events {
		if e.Control == string(ControlReferral) && e.Action == ActionAutoApplied {
			referralEvents++
		}
	}
	if referralEvents != 1 {
		t.Errorf("expected one referral event, got %+v", events)
	}

	types := ts.publisher.types()
	if len(types) == 0 || types[0] != EventPlan {
		t.Errorf("expected the plan event first, got %v", types)
	}

	sess, _ := ts.svc.GetSession(ctx, snap.ID)
	if sess.LastRunID == nil || *sess.LastRunID != *out.RunID {
		t.Errorf("expected the session to point at the run, got %v", sess.LastRunID)
	}
}

func TestService_EvaluateUnavailable(t *testing.T) {
	ts := newTestService(SessionOptions{})
	ts.evaluator.err = errors.New("connection refused")
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", []string{RolePHC})

	out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{})
	if err != nil {
		t.Fatalf("expected no error on a CDS failure, got %v", err)
	}
	if out.Available || out.Plan != nil {
		t.Errorf("expected an unavailable outcome, got %+v", out)
	}
	if out.Message != "connection refused" {
		t.Errorf("expected the failure message, got %q", out.Message)
	}
	if out.RunID == nil {
		t.Fatal("expected the failure audited")
	}
	run, _ := ts.svc.GetRun(ctx, *out.RunID)
	if run.Available || run.ErrorText == nil || *run.ErrorText != "connection refused" {
		t.Errorf("unexpected run %+v", run)
	}
	if len(ts.publisher.types()) != 0 {
		t.Errorf("expected nothing published, got %v", ts.publisher.types())
	}
}

func TestService_EvaluateDebounced(t *testing.T) {
	ts := newTestService(SessionOptions{DebounceWindow: time.Second})
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)

	if out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{}); err != nil || out.Dropped != "" {
		t.Fatalf("expected the first render, got %+v, %v", out, err)
	}
	out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Dropped != DroppedDebounced || out.Plan != nil {
		t.Errorf("expected a debounced outcome, got %+v", out)
	}
	runs, total, _ := ts.svc.ListRuns(ctx, 10, 0)
	if total != 1 || len(runs) != 1 {
		t.Errorf("expected only the first render audited, got %d", total)
	}
}

func TestService_EvaluateReplacesContext(t *testing.T) {
	ts := newTestService(SessionOptions{})
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)
	next := worseningContext()

	out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{Context: &next})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.evaluator.calls[0].FollowUp.CurrentFrequency != "Weekly" {
		t.Errorf("expected the new context sent, got %+v", ts.evaluator.calls[0].FollowUp)
	}
	if out.Plan.Plan.Text != PlanEscalate {
		t.Errorf("expected the plan built on the new context, got %q", out.Plan.Plan.Text)
	}
}

func TestService_EvaluateUnknownSession(t *testing.T) {
	ts := newTestService(SessionOptions{})
	if _, err := ts.svc.EvaluateSession(context.Background(), uuid.New(), EvaluateRequest{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_AuditFailureDoesNotFailEvaluation(t *testing.T) {
	ts := newTestService(SessionOptions{})
	ts.svc.runs = failingRunRepo{ts.runs}
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)

	out, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Plan == nil || out.RunID != nil {
		t.Errorf("expected a plan without a run, got %+v", out)
	}
}

func TestService_TransactorWrapsAudit(t *testing.T) {
	ts := newTestService(SessionOptions{})
	var calls int
	ts.svc.UseTransactor(func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls++
		return fn(ctx)
	})
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)
	if _, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one transaction, got %d", calls)
	}
}

func TestService_TouchControlRecordsEvent(t *testing.T) {
	ts := newTestService(SessionOptions{})
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)

	ctl, err := ts.svc.TouchControl(ctx, snap.ID, ControlMedicationChanged, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ctl.Checked || !ctl.UserTouched {
		t.Errorf("unexpected control %+v", ctl)
	}
	events, _ := ts.events.ListBySession(ctx, snap.ID)
	if len(events) != 1 || events[0].Action != ActionUserTouched || events[0].RunID != nil {
		t.Errorf("unexpected events %+v", events)
	}

	if _, err := ts.svc.TouchControl(ctx, uuid.New(), ControlReferral, true); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_ListRunEventsUnknownRun(t *testing.T) {
	ts := newTestService(SessionOptions{})
	if _, err := ts.svc.ListRunEvents(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestService_ListRunsByPatient(t *testing.T) {
	ts := newTestService(SessionOptions{})
	ctx := context.Background()
	for _, pid := range []string{"P-1", "P-2", "P-1"} {
		snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: pid}, "u1", nil)
		if _, err := ts.svc.EvaluateSession(ctx, snap.ID, EvaluateRequest{}); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	runs, total, err := ts.svc.ListRunsByPatient(ctx, "P-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(runs) != 2 {
		t.Errorf("expected 2 runs for P-1, got %d", total)
	}
}

func TestService_SweepAndClose(t *testing.T) {
	ts := newTestService(SessionOptions{IdleTTL: time.Minute})
	ctx := context.Background()
	snap, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-1"}, "u1", nil)
	other, _ := ts.svc.OpenSession(ctx, OpenSessionRequest{PatientID: "P-2"}, "u1", nil)

	if err := ts.svc.CloseSession(ctx, other.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ts.svc.CloseSession(ctx, other.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	later := fixedNow.Add(2 * time.Minute)
	ts.svc.sessions.now = func() time.Time { return later }
	if n := ts.svc.SweepSessions(); n != 1 {
		t.Errorf("expected 1 session swept, got %d", n)
	}
	if _, err := ts.svc.GetSession(ctx, snap.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected the session swept, got %v", err)
	}
}

func TestService_StatelessTriage(t *testing.T) {
	ts := newTestService(SessionOptions{})
	plan, err := ts.svc.Triage(context.Background(), &AnalysisResult{Success: true}, Context{Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Plan.Text != PlanContinue {
		t.Errorf("expected the default plan, got %q", plan.Plan.Text)
	}
	if _, err := ts.svc.Triage(context.Background(), &AnalysisResult{Success: false}, Context{}); !errors.Is(err, ErrCDSUnavailable) {
		t.Errorf("expected ErrCDSUnavailable, got %v", err)
	}
}

func TestService_RunSweeperStops(t *testing.T) {
	ts := newTestService(SessionOptions{IdleTTL: time.Minute, SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ts.svc.RunSweeper(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunSweeper to return after cancel")
	}
}
