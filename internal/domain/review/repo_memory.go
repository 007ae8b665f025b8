package review

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/pkg/pagination"
)

type memoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	order   []uuid.UUID
}

func NewMemoryRepo() Repository {
	return &memoryRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[r.BatchID]; ok {
		return existing.clone(), nil
	}
	r.Version = 1
	m.records[r.BatchID] = r.clone()
	m.order = append(m.order, r.BatchID)
	return r, nil
}

func (m *memoryRepo) Get(_ context.Context, batchID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (m *memoryRepo) Update(_ context.Context, r *Record, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[r.BatchID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.Version = expectedVersion + 1
	m.records[r.BatchID] = r.clone()
	return nil
}

func (m *memoryRepo) List(_ context.Context, status Status, limit, offset int) ([]*Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*Record, 0)
	for _, id := range m.order {
		r := m.records[id]
		if status == "" || r.Status == status {
			matched = append(matched, r.clone())
		}
	}
	start, end := pagination.Window(len(matched), limit, offset)
	return matched[start:end], len(matched), nil
}
