package record

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrCommitNotFound  = errors.New("merge commit not found")
	// ErrCommitExists means (document, patient) was already merged.
	ErrCommitExists = errors.New("merge commit already exists")
	// ErrVersionConflict means the record changed since it was loaded.
	ErrVersionConflict = errors.New("cumulative record version conflict")
)

// Store persists patients and their cumulative records.
type Store interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	SavePatient(ctx context.Context, p *Patient) error

	// Load returns a snapshot of the patient's record. A patient with no
	// merges yet has an empty record at version 0.
	Load(ctx context.Context, patientID uuid.UUID) (*CumulativeRecord, error)
	// Commit appends c atomically. It fails with ErrCommitExists when
	// (DocumentID, PatientID) was already committed and ErrVersionConflict
	// when the record is no longer at c.ExpectedVersion.
	Commit(ctx context.Context, c *Commit) error
	// LookupCommit returns the stored merge result for (documentID, patientID).
	LookupCommit(ctx context.Context, documentID, patientID uuid.UUID) (json.RawMessage, error)
	// ClaimCompletion marks the committed merge for (documentID, patientID)
	// as completed. It reports true to exactly one caller per commit; later
	// callers get false. ErrCommitNotFound when nothing was committed.
	ClaimCompletion(ctx context.Context, documentID, patientID uuid.UUID, at time.Time) (bool, error)

	// ListConflicts returns the conflicts committed by a batch.
	ListConflicts(ctx context.Context, batchID uuid.UUID) ([]ConflictEntry, error)

	SearchCode(ctx context.Context, patientID uuid.UUID, system, code string) ([]*Resource, error)
	Timeline(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Resource, error)
}
