package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/epicare/epicare/internal/platform/db"
)

// ErrRunNotFound is returned when an audit run does not exist.
var ErrRunNotFound = errors.New("triage run not found")

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Triage Run Repository ===========

type triageRunRepoPG struct{ pool *pgxpool.Pool }

func NewTriageRunRepoPG(pool *pgxpool.Pool) TriageRunRepository { return &triageRunRepoPG{pool: pool} }

func (r *triageRunRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const runCols = `id, session_id, patient_id, user_id, generation, available, degraded,
	plan_text, plan_tone, critical_count, recommendation_count, suppressed_count,
	referral_auto, medication_auto, error_text, plan, created_at`

func (r *triageRunRepoPG) scanRun(row pgx.Row) (*TriageRun, error) {
	var run TriageRun
	err := row.Scan(&run.ID, &run.SessionID, &run.PatientID, &run.UserID, &run.Generation, &run.Available, &run.Degraded,
		&run.PlanText, &run.PlanTone, &run.CriticalCount, &run.RecommendationCount, &run.SuppressedCount,
		&run.ReferralAuto, &run.MedicationAuto, &run.ErrorText, &run.Plan, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return &run, err
}

func (r *triageRunRepoPG) Create(ctx context.Context, run *TriageRun) error {
	run.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO triage_run (id, session_id, patient_id, user_id, generation, available, degraded,
			plan_text, plan_tone, critical_count, recommendation_count, suppressed_count,
			referral_auto, medication_auto, error_text, plan)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at`,
		run.ID, run.SessionID, run.PatientID, run.UserID, run.Generation, run.Available, run.Degraded,
		run.PlanText, run.PlanTone, run.CriticalCount, run.RecommendationCount, run.SuppressedCount,
		run.ReferralAuto, run.MedicationAuto, run.ErrorText, run.Plan).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert triage run: %w", err)
	}
	return nil
}

func (r *triageRunRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TriageRun, error) {
	return r.scanRun(r.conn(ctx).QueryRow(ctx, `SELECT `+runCols+` FROM triage_run WHERE id = $1`, id))
}

func (r *triageRunRepoPG) List(ctx context.Context, limit, offset int) ([]*TriageRun, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM triage_run`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+runCols+` FROM triage_run ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *triageRunRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*TriageRun, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM triage_run WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+runCols+` FROM triage_run WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *triageRunRepoPG) collect(rows pgx.Rows) ([]*TriageRun, error) {
	var items []*TriageRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, run)
	}
	return items, rows.Err()
}

// =========== Smart Default Event Repository ===========

type smartDefaultEventRepoPG struct{ pool *pgxpool.Pool }

func NewSmartDefaultEventRepoPG(pool *pgxpool.Pool) SmartDefaultEventRepository {
	return &smartDefaultEventRepoPG{pool: pool}
}

func (r *smartDefaultEventRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const eventCols = `id, run_id, session_id, control, action, checked, rationale, created_at`

func (r *smartDefaultEventRepoPG) scanEvent(row pgx.Row) (*SmartDefaultEvent, error) {
	var e SmartDefaultEvent
	err := row.Scan(&e.ID, &e.RunID, &e.SessionID, &e.Control, &e.Action, &e.Checked, &e.Rationale, &e.CreatedAt)
	return &e, err
}

func (r *smartDefaultEventRepoPG) Create(ctx context.Context, e *SmartDefaultEvent) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO smart_default_event (id, run_id, session_id, control, action, checked, rationale)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		e.ID, e.RunID, e.SessionID, e.Control, e.Action, e.Checked, e.Rationale).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert smart default event: %w", err)
	}
	return nil
}

func (r *smartDefaultEventRepoPG) ListByRun(ctx context.Context, runID uuid.UUID) ([]*SmartDefaultEvent, error) {
	return r.list(ctx, `SELECT `+eventCols+` FROM smart_default_event WHERE run_id = $1 ORDER BY created_at`, runID)
}

func (r *smartDefaultEventRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*SmartDefaultEvent, error) {
	return r.list(ctx, `SELECT `+eventCols+` FROM smart_default_event WHERE session_id = $1 ORDER BY created_at`, sessionID)
}

func (r *smartDefaultEventRepoPG) list(ctx context.Context, query string, arg uuid.UUID) ([]*SmartDefaultEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*SmartDefaultEvent
	for rows.Next() {
		e, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
