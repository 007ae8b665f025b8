package record

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_CommitAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	patient, doc := uuid.New(), uuid.New()

	commit := &Commit{
		DocumentID: doc,
		PatientID:  patient,
		BatchID:    uuid.New(),
		Resources:  []*Resource{condition(patient, "I10")},
		Result:     json.RawMessage(`{"status":"completed"}`),
	}
	if err := s.Commit(ctx, commit); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rec, err := s.Load(ctx, patient)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Version != 1 || rec.Len() != 1 {
		t.Errorf("expected version 1 with 1 resource, got %d / %d", rec.Version, rec.Len())
	}

	res, err := s.LookupCommit(ctx, doc, patient)
	if err != nil {
		t.Fatalf("LookupCommit: %v", err)
	}
	if string(res) != `{"status":"completed"}` {
		t.Errorf("unexpected stored result %s", res)
	}

	if err := s.Commit(ctx, commit); !errors.Is(err, ErrCommitExists) {
		t.Errorf("expected ErrCommitExists on replay, got %v", err)
	}
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	patient := uuid.New()

	if err := s.Commit(ctx, &Commit{DocumentID: uuid.New(), PatientID: patient}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	err := s.Commit(ctx, &Commit{DocumentID: uuid.New(), PatientID: patient, ExpectedVersion: 0})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestMemoryStore_LoadReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	patient := uuid.New()
	if err := s.Commit(ctx, &Commit{DocumentID: uuid.New(), PatientID: patient,
		Resources: []*Resource{condition(patient, "I10")}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snap, _ := s.Load(ctx, patient)
	snap.Append([]*Resource{condition(patient, "E11.9")}, nil)

	again, _ := s.Load(ctx, patient)
	if again.Len() != 1 {
		t.Errorf("mutating a snapshot must not change the store, got %d resources", again.Len())
	}
}

func TestMemoryStore_Patients(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := uuid.New()
	if _, err := s.GetPatient(ctx, id); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if err := s.SavePatient(ctx, &Patient{ID: id, BirthDate: "1970-01-01", Gender: "female"}); err != nil {
		t.Fatalf("SavePatient: %v", err)
	}
	p, err := s.GetPatient(ctx, id)
	if err != nil || p.BirthDate != "1970-01-01" {
		t.Errorf("GetPatient = %+v, %v", p, err)
	}
	if err := s.SavePatient(ctx, &Patient{}); err == nil {
		t.Error("expected error for patient without id")
	}
}

func TestMemoryStore_ListConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	patient, batch := uuid.New(), uuid.New()
	if err := s.Commit(ctx, &Commit{
		DocumentID: uuid.New(),
		PatientID:  patient,
		BatchID:    batch,
		Conflicts:  []ConflictEntry{{ID: uuid.New(), BatchID: batch, Severity: "high"}},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := s.ListConflicts(ctx, batch)
	if err != nil || len(got) != 1 {
		t.Errorf("ListConflicts = %v, %v", got, err)
	}
	if got, _ := s.ListConflicts(ctx, uuid.New()); len(got) != 0 {
		t.Errorf("expected no conflicts for unknown batch, got %d", len(got))
	}
}

func TestMemoryStore_ClaimCompletionOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	patient, doc := uuid.New(), uuid.New()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.ClaimCompletion(ctx, doc, patient, at); !errors.Is(err, ErrCommitNotFound) {
		t.Fatalf("expected ErrCommitNotFound before commit, got %v", err)
	}
	if err := s.Commit(ctx, &Commit{DocumentID: doc, PatientID: patient, Result: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimCompletion(ctx, doc, patient, at)
			if err != nil {
				t.Errorf("ClaimCompletion: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claimed != 1 {
		t.Errorf("claims granted = %d, want 1", claimed)
	}
}
