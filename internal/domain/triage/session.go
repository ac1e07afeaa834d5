package triage

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("follow-up session not found")
	ErrStaleResponse   = errors.New("cds response superseded by a newer request")
	ErrDebounced       = errors.New("render dropped by debounce window")
	ErrUnknownControl  = errors.New("unknown control")
)

// ControlName identifies a smart-default checkbox on the follow-up form.
type ControlName string

const (
	ControlReferral          ControlName = "referral"
	ControlMedicationChanged ControlName = "medication-changed"
)

// ParseControlName validates a control name from a URL.
func ParseControlName(s string) (ControlName, error) {
	switch ControlName(s) {
	case ControlReferral, ControlMedicationChanged:
		return ControlName(s), nil
	}
	return "", ErrUnknownControl
}

// Control is the state of one smart-default checkbox.
type Control struct {
	Checked     bool `json:"checked"`
	UserTouched bool `json:"userTouched"`
	AutoApplied bool `json:"autoApplied"`
}

// Session is the state of one open follow-up form. It is created when the
// form opens and discarded when it closes.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	patientID string
	userID    string
	roles     []string
	context   Context
	controls  map[ControlName]*Control
	lastPlan  *RenderPlan
	lastRunID *uuid.UUID
	createdAt time.Time
	touchedAt time.Time

	lastRender time.Time
	issued     uint64
	accepted   uint64
}

// SessionSnapshot is a point-in-time copy of a session for serialization.
type SessionSnapshot struct {
	ID         uuid.UUID               `json:"id"`
	PatientID  string                  `json:"patientId,omitempty"`
	UserID     string                  `json:"userId,omitempty"`
	Context    Context                 `json:"context"`
	Controls   map[ControlName]Control `json:"controls"`
	Generation uint64                  `json:"generation"`
	LastPlan   *RenderPlan             `json:"lastPlan,omitempty"`
	LastRunID  *uuid.UUID              `json:"lastRunId,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

func (s *Session) ID() uuid.UUID { return s.id }

// Roles returns the roles of the user who opened the session.
func (s *Session) Roles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roles...)
}

// Context returns the current form context.
func (s *Session) Context() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

// UpdateContext replaces the form context, e.g. after a field changed.
func (s *Session) UpdateContext(tctx Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = tctx
	s.touchedAt = now
}

// BeginRequest numbers an outgoing CDS request.
func (s *Session) BeginRequest(now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.touchedAt = now
	return s.issued
}

// Touch records a manual toggle of a control. A touched control is never
// changed automatically again for the life of the session.
func (s *Session) Touch(name ControlName, checked bool, now time.Time) (Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[name]
	if !ok {
		return Control{}, ErrUnknownControl
	}
	ctl.Checked = checked
	ctl.UserTouched = true
	s.touchedAt = now
	return *ctl, nil
}

// Control returns a copy of a control's state.
func (s *Session) Control(name ControlName) (Control, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.controls[name]
	if !ok {
		return Control{}, false
	}
	return *ctl, true
}

// Snapshot copies the session for serialization.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	controls := make(map[ControlName]Control, len(s.controls))
	for name, ctl := range s.controls {
		controls[name] = *ctl
	}
	return SessionSnapshot{
		ID:         s.id,
		PatientID:  s.patientID,
		UserID:     s.userID,
		Context:    s.context,
		Controls:   controls,
		Generation: s.accepted,
		LastPlan:   s.lastPlan,
		LastRunID:  s.lastRunID,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.touchedAt,
	}
}

// SmartDefaultChange is one control flipped automatically.
type SmartDefaultChange struct {
	Control   ControlName `json:"control"`
	Checked   bool        `json:"checked"`
	Rationale string      `json:"rationale,omitempty"`
}

// acceptLocked checks a response of generation gen against the staleness and
// debounce rules and, when it passes, records it as the latest render.
func (s *Session) acceptLocked(gen uint64, now time.Time, window time.Duration, dropStale bool) error {
	if dropStale && gen < s.accepted {
		return ErrStaleResponse
	}
	if !s.lastRender.IsZero() && window > 0 && now.Sub(s.lastRender) < window {
		return ErrDebounced
	}
	if gen > s.accepted {
		s.accepted = gen
	}
	s.lastRender = now
	s.touchedAt = now
	return nil
}

// applySmartDefaultsLocked ticks the checkboxes the plan's signals ask for,
// each at most once per session and never after a manual touch.
func (s *Session) applySmartDefaultsLocked(plan *RenderPlan) []SmartDefaultChange {
	var changes []SmartDefaultChange
	if ctl := s.controls[ControlReferral]; CanAutoApplyReferral(plan.Referral, s.roles, *ctl) {
		ctl.Checked = true
		ctl.AutoApplied = true
		changes = append(changes, SmartDefaultChange{Control: ControlReferral, Checked: true, Rationale: plan.Referral.Rationale})
	}
	if ctl := s.controls[ControlMedicationChanged]; CanAutoApplyMedicationChange(plan.MedicationChange, *ctl) {
		ctl.Checked = true
		ctl.AutoApplied = true
		rationale := ""
		if len(plan.MedicationChange.Suggestions) > 0 {
			rationale = plan.MedicationChange.Suggestions[0]
		} else if len(plan.MedicationChange.BannerMessages) > 0 {
			rationale = plan.MedicationChange.BannerMessages[0]
		}
		changes = append(changes, SmartDefaultChange{Control: ControlMedicationChanged, Checked: true, Rationale: rationale})
	}
	return changes
}

// Commit accepts the render plan of generation gen: it enforces the
// staleness and debounce rules, stores the plan and applies smart defaults.
func (s *Session) Commit(gen uint64, plan *RenderPlan, now time.Time, window time.Duration, dropStale bool) ([]SmartDefaultChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acceptLocked(gen, now, window, dropStale); err != nil {
		return nil, err
	}
	s.lastPlan = plan
	if plan == nil || plan.Degraded {
		return nil, nil
	}
	return s.applySmartDefaultsLocked(plan), nil
}

// SetLastRun records the audit run of the latest accepted plan.
func (s *Session) SetLastRun(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunID = &id
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt.Before(cutoff)
}

// SessionOptions tunes the session store.
type SessionOptions struct {
	DebounceWindow     time.Duration
	DropStaleResponses bool
	IdleTTL            time.Duration
	SweepInterval      time.Duration
}

// DefaultSessionOptions mirrors the configuration defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		DebounceWindow:     time.Second,
		DropStaleResponses: true,
		IdleTTL:            2 * time.Hour,
		SweepInterval:      time.Minute,
	}
}

// SessionStore holds the open follow-up sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	opts     SessionOptions
	now      func() time.Time
}

// NewSessionStore creates an empty store.
func NewSessionStore(opts SessionOptions) *SessionStore {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
		opts:     opts,
		now:      time.Now,
	}
}

// Options returns the store's options.
func (st *SessionStore) Options() SessionOptions { return st.opts }

// Open starts a session for a follow-up form.
func (st *SessionStore) Open(patientID, userID string, roles []string, tctx Context) *Session {
	now := st.now()
	s := &Session{
		id:        uuid.New(),
		patientID: patientID,
		userID:    userID,
		roles:     append([]string(nil), roles...),
		context:   tctx,
		controls: map[ControlName]*Control{
			ControlReferral:          {},
			ControlMedicationChanged: {},
		},
		createdAt: now,
		touchedAt: now,
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

// Get returns an open session.
func (st *SessionStore) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards a session.
func (st *SessionStore) Close(id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of open sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how
// many were closed.
func (st *SessionStore) Sweep() int {
	if st.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.opts.IdleTTL)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.idleSince(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
