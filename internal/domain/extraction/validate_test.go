package extraction

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func validBatch() *Batch {
	return &Batch{
		BatchID:    uuid.New(),
		DocumentID: uuid.New(),
		PatientID:  uuid.New(),
		Producer:   Producer{Name: "primary-extractor"},
		Confidence: 0.9,
		Records: []Record{
			{Kind: KindCondition, Shape: ShapeStructured, Payload: json.RawMessage(`{"name":"Hypertension"}`)},
			{Kind: KindMedication, Shape: ShapeLegacy, Payload: json.RawMessage(`{"medication_name":"Lisinopril"}`)},
		},
	}
}

func TestBatchValidate_OK(t *testing.T) {
	b := validBatch()
	b.ResourceCounts = map[Kind]int{KindCondition: 1, KindMedication: 1}
	if err := b.Validate(DefaultValidation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBatchValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Batch)
	}{
		{"missing batch id", func(b *Batch) { b.BatchID = uuid.Nil }},
		{"missing document id", func(b *Batch) { b.DocumentID = uuid.Nil }},
		{"missing patient id", func(b *Batch) { b.PatientID = uuid.Nil }},
		{"missing producer", func(b *Batch) { b.Producer.Name = "" }},
		{"confidence above one", func(b *Batch) { b.Confidence = 1.2 }},
		{"record without kind", func(b *Batch) { b.Records[0].Kind = "" }},
		{"array payload", func(b *Batch) { b.Records[0].Payload = json.RawMessage(`[1]`) }},
		{"empty payload", func(b *Batch) { b.Records[1].Payload = nil }},
		{"record confidence negative", func(b *Batch) {
			c := -0.1
			b.Records[0].Confidence = &c
		}},
		{"count mismatch", func(b *Batch) { b.ResourceCounts = map[Kind]int{KindCondition: 2, KindMedication: 1} }},
		{"unreported kind", func(b *Batch) { b.ResourceCounts = map[Kind]int{KindCondition: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBatch()
			tt.mutate(b)
			err := b.Validate(DefaultValidation())
			if !errors.Is(err, ErrMalformedBatch) {
				t.Fatalf("expected ErrMalformedBatch, got %v", err)
			}
		})
	}
}

func TestBatchValidate_TogglesDisableChecks(t *testing.T) {
	b := validBatch()
	b.Confidence = 1.5
	b.ResourceCounts = map[Kind]int{KindCondition: 7}
	if err := b.Validate(ValidationOptions{}); err != nil {
		t.Fatalf("expected disabled checks to pass, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	body := `{
		"batch_id": "7b0f4a55-4a32-4c1e-9d38-0f7e1a1e2b10",
		"document_id": "c8b1f1a4-1d8e-4e34-9f1f-0d9d3f6a8c21",
		"patient_id": "0b6a2d3e-52a9-4d47-a7b5-2a4c52f5e0f3",
		"producer": {"name": "primary-extractor"},
		"confidence": 0.88,
		"records": [{"kind": "condition", "shape": "structured", "payload": {"name": "Hypertension"}, "confidence": 0.97}]
	}`
	b, err := Decode(strings.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Records) != 1 || b.Records[0].Kind != KindCondition {
		t.Fatalf("unexpected records: %+v", b.Records)
	}
	if got := b.Records[0].ConfidenceOr(b.Confidence); got != 0.97 {
		t.Errorf("ConfidenceOr = %v, want 0.97", got)
	}

	_, err = Decode(strings.NewReader(`{"batch_id": "x", "surprise": 1}`))
	if !errors.Is(err, ErrMalformedBatch) {
		t.Errorf("expected ErrMalformedBatch, got %v", err)
	}
}

func TestAllKinds(t *testing.T) {
	kinds := AllKinds()
	if len(kinds) != 12 {
		t.Fatalf("expected 12 kinds, got %d", len(kinds))
	}
	seen := make(map[Kind]bool)
	for _, k := range kinds {
		if seen[k] {
			t.Errorf("duplicate kind %s", k)
		}
		seen[k] = true
		if !k.Known() {
			t.Errorf("kind %s not Known()", k)
		}
	}
	if Kind("immunization").Known() {
		t.Error("immunization is not part of the schema")
	}
	kinds[0] = "mutated"
	if AllKinds()[0] != KindCondition {
		t.Error("AllKinds must return a copy")
	}
}
