package review

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("review record not found")
	ErrVersionConflict   = errors.New("review record version conflict")
	ErrInvalidTransition = errors.New("invalid review transition")
)

type Repository interface {
	// Create stores r unless a record for r.BatchID exists, in which case
	// the existing record is returned unchanged.
	Create(ctx context.Context, r *Record) (*Record, error)
	Get(ctx context.Context, batchID uuid.UUID) (*Record, error)
	// Update writes r if the stored version is expectedVersion, and bumps
	// r.Version.
	Update(ctx context.Context, r *Record, expectedVersion int) error
	// List returns records in creation order; an empty status lists all.
	List(ctx context.Context, status Status, limit, offset int) ([]*Record, int, error)
}
