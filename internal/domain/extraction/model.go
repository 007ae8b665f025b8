package extraction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind tags one extracted clinical fact with the resource it converts to.
type Kind string

const (
	KindCondition        Kind = "condition"
	KindMedication       Kind = "medication"
	KindVitalSign        Kind = "vital_sign"
	KindLabResult        Kind = "lab_result"
	KindProcedure        Kind = "procedure"
	KindPractitioner     Kind = "practitioner"
	KindEncounter        Kind = "encounter"
	KindServiceRequest   Kind = "service_request"
	KindDiagnosticReport Kind = "diagnostic_report"
	KindAllergy          Kind = "allergy_intolerance"
	KindCarePlan         Kind = "care_plan"
	KindOrganization     Kind = "organization"
)

var allKinds = []Kind{
	KindCondition,
	KindMedication,
	KindVitalSign,
	KindLabResult,
	KindProcedure,
	KindPractitioner,
	KindEncounter,
	KindServiceRequest,
	KindDiagnosticReport,
	KindAllergy,
	KindCarePlan,
	KindOrganization,
}

// AllKinds returns every kind the extraction schema can emit, in a stable
// order. Every one of them must have a registered converter.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Known reports whether k is part of the extraction schema.
func (k Kind) Known() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Shape is the producer-declared layout of a record's payload.
type Shape string

const (
	ShapeStructured Shape = "structured"
	ShapeLegacy     Shape = "legacy"
)

// Producer identifies the extraction engine that produced a batch.
type Producer struct {
	Name     string `json:"name"`
	Fallback bool   `json:"fallback"`
}

// Subject is what the document says about who it describes. It is only
// compared against the target patient, never merged.
type Subject struct {
	BirthDate string `json:"birth_date,omitempty"`
	Gender    string `json:"gender,omitempty"`
	MRN       string `json:"mrn,omitempty"`
}

// SourceRef locates a record within the source document.
type SourceRef struct {
	Page    int    `json:"page,omitempty"`
	Section string `json:"section,omitempty"`
	Start   int    `json:"start,omitempty"`
	End     int    `json:"end,omitempty"`
}

// Record is one extracted clinical fact.
type Record struct {
	Kind       Kind            `json:"kind"`
	Shape      Shape           `json:"shape"`
	Payload    json.RawMessage `json:"payload"`
	Source     SourceRef       `json:"source"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// ConfidenceOr returns the record's own confidence, or fallback when the
// producer did not score it.
func (r Record) ConfidenceOr(fallback float64) float64 {
	if r.Confidence == nil {
		return fallback
	}
	return *r.Confidence
}

// Batch is one document's extraction output.
type Batch struct {
	BatchID        uuid.UUID    `json:"batch_id"`
	DocumentID     uuid.UUID    `json:"document_id"`
	PatientID      uuid.UUID    `json:"patient_id"`
	Producer       Producer     `json:"producer"`
	Confidence     float64      `json:"confidence"`
	Subject        Subject      `json:"subject"`
	Records        []Record     `json:"records"`
	ResourceCounts map[Kind]int `json:"resource_counts,omitempty"`
	ExtractedAt    time.Time    `json:"extracted_at"`
}

// CountByKind tallies the batch's records per kind.
func (b *Batch) CountByKind() map[Kind]int {
	out := make(map[Kind]int)
	for _, r := range b.Records {
		out[r.Kind]++
	}
	return out
}
