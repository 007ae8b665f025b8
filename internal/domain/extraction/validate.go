package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
)

// ErrMalformedBatch marks structural problems that abort a merge before
// anything is converted.
var ErrMalformedBatch = errors.New("malformed extraction batch")

// ValidationOptions toggles the optional structural checks.
type ValidationOptions struct {
	ResourceCounts  bool
	ConfidenceRange bool
}

// DefaultValidation enables every check.
func DefaultValidation() ValidationOptions {
	return ValidationOptions{ResourceCounts: true, ConfidenceRange: true}
}

// Validate checks the batch's structural integrity. Unknown kinds and shapes
// are left to the converters.
func (b *Batch) Validate(opts ValidationOptions) error {
	if b.BatchID == uuid.Nil {
		return fmt.Errorf("%w: batch_id is required", ErrMalformedBatch)
	}
	if b.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: document_id is required", ErrMalformedBatch)
	}
	if b.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrMalformedBatch)
	}
	if b.Producer.Name == "" {
		return fmt.Errorf("%w: producer.name is required", ErrMalformedBatch)
	}
	if opts.ConfidenceRange && !inUnitRange(b.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedBatch, b.Confidence)
	}
	for i, r := range b.Records {
		if r.Kind == "" {
			return fmt.Errorf("%w: records[%d]: kind is required", ErrMalformedBatch, i)
		}
		payload := bytes.TrimSpace(r.Payload)
		if len(payload) == 0 || payload[0] != '{' {
			return fmt.Errorf("%w: records[%d]: payload must be an object", ErrMalformedBatch, i)
		}
		if opts.ConfidenceRange && r.Confidence != nil && !inUnitRange(*r.Confidence) {
			return fmt.Errorf("%w: records[%d]: confidence outside [0,1]", ErrMalformedBatch, i)
		}
	}
	if opts.ResourceCounts && len(b.ResourceCounts) > 0 {
		actual := b.CountByKind()
		kinds := make([]string, 0, len(b.ResourceCounts)+len(actual))
		seen := make(map[Kind]bool)
		for k := range b.ResourceCounts {
			kinds = append(kinds, string(k))
			seen[k] = true
		}
		for k := range actual {
			if !seen[k] {
				kinds = append(kinds, string(k))
			}
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			if b.ResourceCounts[Kind(k)] != actual[Kind(k)] {
				return fmt.Errorf("%w: resource_counts[%s]=%d but %d records present",
					ErrMalformedBatch, k, b.ResourceCounts[Kind(k)], actual[Kind(k)])
			}
		}
	}
	return nil
}

// Decode reads a JSON batch, rejecting unknown top-level fields.
func Decode(r io.Reader) (*Batch, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var b Batch
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return &b, nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
