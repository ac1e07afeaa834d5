package triage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory audit repositories, used when no DATABASE_URL is configured.

type triageRunRepoMemory struct {
	mu   sync.RWMutex
	data map[uuid.UUID]*TriageRun
}

func NewTriageRunRepoMemory() TriageRunRepository {
	return &triageRunRepoMemory{data: make(map[uuid.UUID]*TriageRun)}
}

func (m *triageRunRepoMemory) Create(_ context.Context, r *TriageRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	cp := *r
	m.data[r.ID] = &cp
	return nil
}

func (m *triageRunRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*TriageRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.data[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *triageRunRepoMemory) List(_ context.Context, limit, offset int) ([]*TriageRun, int, error) {
	return m.filter(func(*TriageRun) bool { return true }, limit, offset)
}

func (m *triageRunRepoMemory) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*TriageRun, int, error) {
	return m.filter(func(r *TriageRun) bool { return r.PatientID == patientID }, limit, offset)
}

func (m *triageRunRepoMemory) filter(keep func(*TriageRun) bool, limit, offset int) ([]*TriageRun, int, error) {
	m.mu.RLock()
	var all []*TriageRun
	for _, r := range m.data {
		if keep(r) {
			cp := *r
			all = append(all, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return page(all, limit, offset), len(all), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

type smartDefaultEventRepoMemory struct {
	mu     sync.RWMutex
	events []*SmartDefaultEvent
}

func NewSmartDefaultEventRepoMemory() SmartDefaultEventRepository {
	return &smartDefaultEventRepoMemory{}
}

func (m *smartDefaultEventRepoMemory) Create(_ context.Context, e *SmartDefaultEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *smartDefaultEventRepoMemory) ListByRun(_ context.Context, runID uuid.UUID) ([]*SmartDefaultEvent, error) {
	return m.filter(func(e *SmartDefaultEvent) bool { return e.RunID != nil && *e.RunID == runID }), nil
}

func (m *smartDefaultEventRepoMemory) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*SmartDefaultEvent, error) {
	return m.filter(func(e *SmartDefaultEvent) bool { return e.SessionID == sessionID }), nil
}

func (m *smartDefaultEventRepoMemory) filter(keep func(*SmartDefaultEvent) bool) []*SmartDefaultEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SmartDefaultEvent
	for _, e := range m.events {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
