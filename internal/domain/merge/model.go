// Package merge reconciles an extraction batch into a patient's cumulative
// record and hands the outcome to the quality gate.
package merge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/convert"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/review"
)

// ErrMergeFailed means the batch could not be committed. The Result that
// comes with it is retryable.
var ErrMergeFailed = errors.New("merge failed")

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result summarizes one merge. A completed Result is stored with the commit
// and returned unchanged on replay.
type Result struct {
	BatchID    uuid.UUID `json:"batch_id"`
	DocumentID uuid.UUID `json:"document_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	Status     Status    `json:"status"`
	Retryable  bool      `json:"retryable,omitempty"`
	// FailureReason is a generic reason for a failed merge.
	FailureReason string `json:"failure_reason,omitempty"`

	Merged             int `json:"merged"`
	Conflicted         int `json:"conflicted"`
	Resolved           int `json:"resolved"`
	ReviewConflicts    int `json:"review_conflicts"`
	UnresolvedCritical int `json:"unresolved_critical"`
	Superseded         int `json:"superseded"`
	Duplicates         int `json:"duplicates"`

	ByKind       map[extraction.Kind]int `json:"by_kind,omitempty"`
	Dropped      []convert.Dropped       `json:"dropped,omitempty"`
	DroppedKinds []extraction.Kind       `json:"dropped_kinds,omitempty"`
	ResourceIDs  []uuid.UUID             `json:"resource_ids,omitempty"`
	ConflictIDs  []uuid.UUID             `json:"conflict_ids,omitempty"`
	// ReviewConflictIDs are the conflicts attached to the review record.
	ReviewConflictIDs []uuid.UUID `json:"review_conflict_ids,omitempty"`

	// Gate holds the quality gate inputs so a replay can finish a gate
	// evaluation interrupted after the commit.
	Gate review.GateInput `json:"gate"`
}

func encodeResult(r *Result) (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode merge result: %w", err)
	}
	return b, nil
}

func decodeResult(b json.RawMessage) (*Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode merge result: %w", err)
	}
	return &r, nil
}

// counts is the PHI-free tally written to the audit trail and notifications.
func (r *Result) counts() map[string]int {
	return map[string]int{
		"merged":              r.Merged,
		"conflicted":          r.Conflicted,
		"resolved":            r.Resolved,
		"review_conflicts":    r.ReviewConflicts,
		"unresolved_critical": r.UnresolvedCritical,
		"superseded":          r.Superseded,
		"duplicates":          r.Duplicates,
		"dropped_records":     len(r.Dropped),
	}
}
