package triage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TriageRun is the audit record of one accepted evaluation.
type TriageRun struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	SessionID           *uuid.UUID      `db:"session_id" json:"session_id,omitempty"`
	PatientID           string          `db:"patient_id" json:"patient_id,omitempty"`
	UserID              string          `db:"user_id" json:"user_id,omitempty"`
	Generation          int64           `db:"generation" json:"generation"`
	Available           bool            `db:"available" json:"available"`
	Degraded            bool            `db:"degraded" json:"degraded"`
	PlanText            string          `db:"plan_text" json:"plan_text"`
	PlanTone            string          `db:"plan_tone" json:"plan_tone"`
	CriticalCount       int             `db:"critical_count" json:"critical_count"`
	RecommendationCount int             `db:"recommendation_count" json:"recommendation_count"`
	SuppressedCount     int             `db:"suppressed_count" json:"suppressed_count"`
	ReferralAuto        bool            `db:"referral_auto" json:"referral_auto"`
	MedicationAuto      bool            `db:"medication_auto" json:"medication_auto"`
	ErrorText           *string         `db:"error_text" json:"error_text,omitempty"`
	Plan                json.RawMessage `db:"plan" json:"plan,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// Smart-default event actions.
const (
	ActionAutoApplied = "auto-applied"
	ActionUserTouched = "user-touched"
)

// SmartDefaultEvent records a checkbox change, automatic or manual.
type SmartDefaultEvent struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	RunID     *uuid.UUID `db:"run_id" json:"run_id,omitempty"`
	SessionID uuid.UUID  `db:"session_id" json:"session_id"`
	Control   string     `db:"control" json:"control"`
	Action    string     `db:"action" json:"action"`
	Checked   bool       `db:"checked" json:"checked"`
	Rationale string     `db:"rationale" json:"rationale,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type TriageRunRepository interface {
	Create(ctx context.Context, r *TriageRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*TriageRun, error)
	List(ctx context.Context, limit, offset int) ([]*TriageRun, int, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*TriageRun, int, error)
}

type SmartDefaultEventRepository interface {
	Create(ctx context.Context, e *SmartDefaultEvent) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*SmartDefaultEvent, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*SmartDefaultEvent, error)
}
