// Package review holds the per-batch review record, the quality gate that
// sets its first decision, and the human decisions that close it.
package review

import (
	"time"

	"github.com/google/uuid"
)

// Status is the single source of truth for a batch's review state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoApproved Status = "auto_approved"
	StatusFlagged      Status = "flagged"
	StatusReviewed     Status = "reviewed"
	StatusRejected     Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusAutoApproved, StatusFlagged},
	StatusAutoApproved: {StatusReviewed, StatusRejected},
	StatusFlagged:      {StatusReviewed, StatusRejected},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusReviewed || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAutoApproved, StatusFlagged, StatusReviewed, StatusRejected:
		return true
	}
	return false
}

// Generic flag reasons. They never mention clinical content.
const (
	ReasonLowConfidence      = "low confidence"
	ReasonFallbackProducer   = "fallback producer used"
	ReasonZeroResources      = "zero resources extracted"
	ReasonSmallBatch         = "low confidence small batch"
	ReasonIdentityConflict   = "identity conflict"
	ReasonConflictReview     = "conflict requires review"
	ReasonConversionFailures = "conversion failures"
)

// Record is the review state of one extraction batch.
type Record struct {
	BatchID     uuid.UUID   `json:"batch_id"`
	DocumentID  uuid.UUID   `json:"document_id"`
	PatientID   uuid.UUID   `json:"patient_id"`
	Status      Status      `json:"status"`
	FlagReasons []string    `json:"flag_reasons"`
	ConflictIDs []uuid.UUID `json:"conflict_ids"`
	Version     int         `json:"version"`
	ReviewedBy  *string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time  `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (r *Record) clone() *Record {
	cp := *r
	cp.FlagReasons = append([]string(nil), r.FlagReasons...)
	cp.ConflictIDs = append([]uuid.UUID(nil), r.ConflictIDs...)
	return &cp
}
