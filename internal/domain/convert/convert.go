// Package convert turns extracted records into canonical resources.
package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

var (
	// ErrConversion marks a single record that could not be converted. The
	// record is dropped and the batch continues.
	ErrConversion = errors.New("record conversion failed")
	// ErrNoConverter means a record kind has no registered converter. It
	// aborts the whole batch.
	ErrNoConverter = errors.New("no converter registered for kind")
)

// Converter converts one extracted record of its kind.
type Converter interface {
	Kind() extraction.Kind
	Convert(cc *Context, rec extraction.Record) (*record.Resource, error)
}

// Context carries what a converter needs to know about the batch a record
// belongs to.
type Context struct {
	DocumentID uuid.UUID
	BatchID    uuid.UUID
	PatientID  uuid.UUID
	Producer   extraction.Producer
	// Confidence is the batch confidence, used when a record carries none.
	Confidence float64
	// Index is the record's position in the batch.
	Index      int
	Dates      clinicaldate.Normalizer
	RecordedAt time.Time
}

// newResource fills the fields every converter sets the same way.
func (cc *Context) newResource(kind extraction.Kind, rec extraction.Record) *record.Resource {
	return &record.Resource{
		ID:        record.ResourceID(cc.DocumentID, cc.PatientID, kind, cc.Index),
		Kind:      kind,
		PatientID: cc.PatientID,
		Provenance: record.Provenance{
			DocumentID: cc.DocumentID,
			BatchID:    cc.BatchID,
			Producer:   cc.Producer.Name,
			Fallback:   cc.Producer.Fallback,
			Confidence: rec.ConfidenceOr(cc.Confidence),
			Source:     rec.Source,
		},
		RecordedAt: cc.RecordedAt,
	}
}

// date normalizes an optional date field. Empty text is no date.
func (cc *Context) date(field, text string) (clinicaldate.Date, error) {
	if strings.TrimSpace(text) == "" {
		return clinicaldate.Date{}, nil
	}
	d, err := cc.Dates.Normalize(text)
	if err != nil {
		return clinicaldate.Date{}, fmt.Errorf("%w: %s: %w", ErrConversion, field, err)
	}
	return d, nil
}

// decodeShape decodes rec's payload into the struct matching its declared
// shape. Exactly one of structured or legacy is filled.
func decodeShape(rec extraction.Record, structured, legacy any) error {
	var target any
	switch rec.Shape {
	case extraction.ShapeStructured:
		target = structured
	case extraction.ShapeLegacy:
		target = legacy
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrConversion, rec.Shape)
	}
	dec := json.NewDecoder(bytes.NewReader(rec.Payload))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", ErrConversion, rec.Shape, err)
	}
	return nil
}

// codeInput is a producer-supplied coding.
type codeInput struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// concept builds the primary concept for a term. A supplied code on a
// standard system wins; otherwise the table is consulted; otherwise the
// term is kept as text only.
func concept(table *terminology.Table, supplied codeInput, text string) (*fhir.CodeableConcept, error) {
	text = strings.TrimSpace(text)
	if supplied.Code != "" && fhir.StandardSystems[supplied.System] {
		if text == "" {
			text = supplied.Display
		}
		return fhir.CodedConcept(supplied.System, strings.TrimSpace(supplied.Code), supplied.Display, text), nil
	}
	if text == "" {
		text = strings.TrimSpace(supplied.Display)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: no term or code", ErrConversion)
	}
	cc, _ := table.Concept(text)
	return cc, nil
}

// conceptKey is the identity of a concept: its coding when coded, otherwise
// its folded text.
func conceptKey(cc *fhir.CodeableConcept) string {
	if cc.IsCoded() {
		p := cc.Primary()
		return record.CodeKey(p.System, p.Code)
	}
	if cc == nil {
		return ""
	}
	return "text:" + textnorm.Fold(cc.Text)
}

// setAttr stores a pass-through field when the producer supplied it.
func setAttr(r *record.Resource, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]string)
	}
	r.Attributes[key] = value
}

// lower trims and lower-cases a status-like code.
func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// firstNonEmpty returns the first argument that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// flexString accepts a JSON string, number or boolean. Producers are loose
// about quoting values.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexString(fmt.Sprint(v))
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", b)
}

func (f flexString) String() string { return string(f) }
