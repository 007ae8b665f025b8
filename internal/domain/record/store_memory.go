package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type commitKey struct {
	document uuid.UUID
	patient  uuid.UUID
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	patients  map[uuid.UUID]*Patient
	records   map[uuid.UUID]*CumulativeRecord
	commits   map[commitKey]json.RawMessage
	completed map[commitKey]time.Time
	conflicts []ConflictEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:  make(map[uuid.UUID]*Patient),
		records:   make(map[uuid.UUID]*CumulativeRecord),
		commits:   make(map[commitKey]json.RawMessage),
		completed: make(map[commitKey]time.Time),
	}
}

func (s *MemoryStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SavePatient(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("save patient: id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, patientID uuid.UUID) (*CumulativeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[patientID]
	if !ok {
		return NewCumulativeRecord(patientID), nil
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Commit(_ context.Context, c *Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitKey{document: c.DocumentID, patient: c.PatientID}
	if _, ok := s.commits[key]; ok {
		return ErrCommitExists
	}
	rec, ok := s.records[c.PatientID]
	if !ok {
		rec = NewCumulativeRecord(c.PatientID)
	}
	if rec.Version != c.ExpectedVersion {
		return fmt.Errorf("%w: at %d, expected %d", ErrVersionConflict, rec.Version, c.ExpectedVersion)
	}

	rec.Append(c.Resources, c.Supersessions)
	rec.Version++
	s.records[c.PatientID] = rec
	s.commits[key] = append(json.RawMessage(nil), c.Result...)
	s.conflicts = append(s.conflicts, c.Conflicts...)
	return nil
}

func (s *MemoryStore) LookupCommit(_ context.Context, documentID, patientID uuid.UUID) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.commits[commitKey{document: documentID, patient: patientID}]
	if !ok {
		return nil, ErrCommitNotFound
	}
	return append(json.RawMessage(nil), res...), nil
}

func (s *MemoryStore) ClaimCompletion(_ context.Context, documentID, patientID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := commitKey{document: documentID, patient: patientID}
	if _, ok := s.commits[key]; !ok {
		return false, ErrCommitNotFound
	}
	if _, done := s.completed[key]; done {
		return false, nil
	}
	s.completed[key] = at
	return true, nil
}

func (s *MemoryStore) SearchCode(_ context.Context, patientID uuid.UUID, system, code string) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[patientID]
	if !ok {
		return nil, nil
	}
	return rec.SearchCode(system, code), nil
}

func (s *MemoryStore) Timeline(_ context.Context, patientID uuid.UUID, from, to time.Time) ([]*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[patientID]
	if !ok {
		return nil, nil
	}
	return rec.Timeline(from, to), nil
}

func (s *MemoryStore) ListConflicts(_ context.Context, batchID uuid.UUID) ([]ConflictEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConflictEntry
	for _, c := range s.conflicts {
		if c.BatchID == batchID {
			out = append(out, c)
		}
	}
	return out, nil
}
