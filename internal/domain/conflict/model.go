// Package conflict finds disagreements between incoming resources and a
// patient's record and decides how each one is resolved.
package conflict

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/record"
)

// Severity is the four-level conflict ordinal.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown severities rank above critical so they
// are never treated as harmless.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 5
}

func (s Severity) Valid() bool { return s.Rank() <= 4 }

type Type string

const (
	TypeValueMismatch     Type = "value-mismatch"
	TypeTemporalAnomaly   Type = "temporal-anomaly"
	TypeDosageDiscrepancy Type = "dosage-discrepancy"
	TypeIdentityMismatch  Type = "identity-mismatch"
)

// Conflict is one detected disagreement. Field names what disagreed, never
// the values. Incoming and Existing are nil for identity mismatches.
type Conflict struct {
	ID         uuid.UUID
	Severity   Severity
	Type       Type
	Field      string
	Incoming   *record.Resource
	Existing   *record.Resource
	DetectedAt time.Time
}

// Entry is the stored form of c once a strategy has been chosen.
func (c Conflict) Entry(batchID uuid.UUID, strategy Strategy) record.ConflictEntry {
	e := record.ConflictEntry{
		ID:         c.ID,
		BatchID:    batchID,
		Severity:   string(c.Severity),
		Type:       string(c.Type),
		Field:      c.Field,
		Strategy:   string(strategy),
		DetectedAt: c.DetectedAt,
	}
	if c.Incoming != nil {
		e.IncomingID = c.Incoming.ID
	}
	if c.Existing != nil {
		e.ExistingID = c.Existing.ID
	}
	return e
}
