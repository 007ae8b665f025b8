package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/audit"
)

// Auditor receives one entry per transition out of pending and per human
// decision.
type Auditor interface {
	Record(ctx context.Context, eventType audit.EventType, actor string, targets map[string]string, outcome audit.Outcome)
}

type Service struct {
	repo    Repository
	gate    Gate
	auditor Auditor
	now     func() time.Time
}

func NewService(repo Repository, gate Gate, auditor Auditor) *Service {
	return &Service{repo: repo, gate: gate, auditor: auditor, now: time.Now}
}

// Open creates the pending record for a batch, or returns the existing one
// when the batch was seen before.
func (s *Service) Open(ctx context.Context, batchID, documentID, patientID uuid.UUID) (*Record, error) {
	return s.repo.Create(ctx, &Record{
		BatchID:    batchID,
		DocumentID: documentID,
		PatientID:  patientID,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	})
}

func (s *Service) Get(ctx context.Context, batchID uuid.UUID) (*Record, error) {
	return s.repo.Get(ctx, batchID)
}

func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]*Record, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("unknown review status %q", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Evaluate runs the quality gate for a pending batch. A batch already past
// pending is returned as is, so replays neither re-decide nor re-audit.
func (s *Service) Evaluate(ctx context.Context, batchID uuid.UUID, in GateInput, conflictIDs []uuid.UUID) (*Record, error) {
	rec, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return rec, nil
	}

	d := s.gate.Evaluate(in)
	expected := rec.Version
	rec.Status = d.Status
	rec.FlagReasons = d.Reasons
	rec.ConflictIDs = conflictIDs
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, rec, expected); err != nil {
		// Another run evaluated the same batch first.
		if errors.Is(err, ErrVersionConflict) {
			if cur, gerr := s.repo.Get(ctx, batchID); gerr == nil && cur.Status != StatusPending {
				return cur, nil
			}
		}
		return nil, fmt.Errorf("record gate decision: %w", err)
	}

	event := audit.EventReviewAutoApproved
	if d.Status == StatusFlagged {
		event = audit.EventReviewFlagged
	}
	s.auditor.Record(ctx, event, "system", targets(rec), audit.Outcome{
		Status:  string(d.Status),
		Reasons: d.Reasons,
		Counts: map[string]int{
			"resources":        len(in.ResourceConfidences),
			"review_conflicts": in.ReviewConflicts,
			"dropped_records":  in.DroppedRecords,
		},
		Flags: map[string]bool{
			"fallback_producer": in.Fallback,
			"identity_conflict": in.IdentityConflict,
		},
	})
	return rec, nil
}

// Decide applies a reviewer's decision. expectedVersion must match the
// stored record.
func (s *Service) Decide(ctx context.Context, batchID uuid.UUID, to Status, expectedVersion int, actor string) (*Record, error) {
	if to != StatusReviewed && to != StatusRejected {
		return nil, fmt.Errorf("%w: %q is not a reviewer decision", ErrInvalidTransition, to)
	}
	rec, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if rec.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if !CanTransition(rec.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, rec.Status, to)
	}

	now := s.now().UTC()
	rec.Status = to
	rec.ReviewedBy = &actor
	rec.ReviewedAt = &now
	rec.UpdatedAt = now
	if err := s.repo.Update(ctx, rec, expectedVersion); err != nil {
		return nil, err
	}

	event := audit.EventReviewReviewed
	if to == StatusRejected {
		event = audit.EventReviewRejected
	}
	s.auditor.Record(ctx, event, actor, targets(rec), audit.Outcome{
		Status:  string(to),
		Reasons: []string{"human decision"},
	})
	return rec, nil
}

func targets(r *Record) map[string]string {
	return map[string]string{
		audit.TargetBatch:    r.BatchID.String(),
		audit.TargetDocument: r.DocumentID.String(),
		audit.TargetPatient:  r.PatientID.String(),
	}
}
