package triage

import (
	"errors"
	"testing"
	"time"
)

func referralPlan() *RenderPlan {
	return &RenderPlan{
		Referral:         ReferralSignal{ShouldAuto: true, Rationale: "Possible drug-resistant epilepsy: refer for specialist evaluation."},
		MedicationChange: MedicationSignal{ShouldAuto: true, Suggestions: []string{"Add-on suggested: Clobazam"}, BannerMessages: []string{}},
	}
}

func newTestStore(opts SessionOptions) (*SessionStore, *time.Time) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	st := NewSessionStore(opts)
	st.now = func() time.Time { return now }
	return st, &now
}

func TestSession_SmartDefaultsAppliedOnce(t *testing.T) {
	st, now := newTestStore(SessionOptions{DropStaleResponses: true})
	sess := st.Open("P-1", "u1", []string{RolePHCAdmin}, Context{})

	gen := sess.BeginRequest(*now)
	changes, err := sess.Commit(gen, referralPlan(), *now, 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Control != ControlReferral || changes[1].Control != ControlMedicationChanged {
		t.Errorf("unexpected change order %+v", changes)
	}
	if changes[1].Rationale != "Add-on suggested: Clobazam" {
		t.Errorf("expected the first suggestion as rationale, got %q", changes[1].Rationale)
	}

	// The user unticks the referral; a later plan must not tick it again.
	if _, err := sess.Touch(ControlReferral, false, *now); err != nil {
		t.Fatalf("touch: %v", err)
	}
	gen = sess.BeginRequest(*now)
	changes, err = sess.Commit(gen, referralPlan(), now.Add(time.Second), 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no further changes, got %+v", changes)
	}
	ctl, _ := sess.Control(ControlReferral)
	if ctl.Checked || !ctl.UserTouched {
		t.Errorf("expected the user's choice kept, got %+v", ctl)
	}
}

func TestSession_ReferralNeedsAdminRole(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", []string{RolePHC}, Context{})
	gen := sess.BeginRequest(*now)
	changes, err := sess.Commit(gen, referralPlan(), *now, 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 || changes[0].Control != ControlMedicationChanged {
		t.Errorf("expected only the medication change, got %+v", changes)
	}
}

func TestSession_StaleResponseDropped(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", nil, Context{})
	first := sess.BeginRequest(*now)
	second := sess.BeginRequest(*now)

	if _, err := sess.Commit(second, &RenderPlan{}, *now, 0, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := sess.Commit(first, &RenderPlan{}, now.Add(time.Second), 0, true)
	if !errors.Is(err, ErrStaleResponse) {
		t.Errorf("expected ErrStaleResponse, got %v", err)
	}
	if sess.Snapshot().Generation != second {
		t.Errorf("expected generation %d, got %d", second, sess.Snapshot().Generation)
	}
}

func TestSession_StaleAllowedWhenDisabled(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", nil, Context{})
	first := sess.BeginRequest(*now)
	second := sess.BeginRequest(*now)
	if _, err := sess.Commit(second, &RenderPlan{}, *now, 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sess.Commit(first, &RenderPlan{}, now.Add(time.Second), 0, false); err != nil {
		t.Errorf("expected the late response accepted, got %v", err)
	}
}

func TestSession_Debounce(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", nil, Context{})
	window := time.Second

	if _, err := sess.Commit(sess.BeginRequest(*now), &RenderPlan{}, *now, window, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := sess.Commit(sess.BeginRequest(*now), &RenderPlan{}, now.Add(500*time.Millisecond), window, true)
	if !errors.Is(err, ErrDebounced) {
		t.Errorf("expected ErrDebounced, got %v", err)
	}
	if _, err := sess.Commit(sess.BeginRequest(*now), &RenderPlan{}, now.Add(1500*time.Millisecond), window, true); err != nil {
		t.Errorf("expected a render after the window, got %v", err)
	}
}

func TestSession_DegradedPlanAppliesNothing(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", []string{RoleMasterAdmin}, Context{})
	changes, err := sess.Commit(sess.BeginRequest(*now), DegradedPlan(""), *now, 0, true)
	if err != nil || len(changes) != 0 {
		t.Errorf("expected no changes, got %+v, %v", changes, err)
	}
}

func TestSession_TouchUnknownControl(t *testing.T) {
	st, now := newTestStore(SessionOptions{})
	sess := st.Open("P-1", "u1", nil, Context{})
	if _, err := sess.Touch("nope", true, *now); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("expected ErrUnknownControl, got %v", err)
	}
	if _, err := ParseControlName("medication-changed"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseControlName("x"); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("expected ErrUnknownControl, got %v", err)
	}
}

func TestSessionStore_CloseAndSweep(t *testing.T) {
	st, now := newTestStore(SessionOptions{IdleTTL: time.Hour})
	idle := st.Open("P-1", "u1", nil, Context{})
	*now = now.Add(30 * time.Minute)
	active := st.Open("P-2", "u1", nil, Context{})

	*now = now.Add(45 * time.Minute)
	if n := st.Sweep(); n != 1 {
		t.Fatalf("expected 1 session swept, got %d", n)
	}
	if _, err := st.Get(idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected the idle session gone, got %v", err)
	}
	if err := st.Close(active.ID()); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := st.Close(active.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound on second close, got %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d", st.Len())
	}
}
