// Package lock serializes merges per patient.
package lock

import (
	"context"
	"errors"
)

// ErrNotHeld is returned by Release when the lease expired or was taken
// over before release.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires exclusive leases on string keys. Acquire blocks until the
// lease is granted or ctx ends.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

// PatientKey is the lock key for a patient's cumulative record.
func PatientKey(patientID string) string {
	return "clinicalmerge:patient:" + patientID
}
