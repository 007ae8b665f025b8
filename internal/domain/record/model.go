package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

// Pass-through attribute keys. Converters copy these verbatim when the
// producer supplies them and omit them otherwise.
const (
	AttrSeverity       = "severity"
	AttrCriticality    = "criticality"
	AttrPriority       = "priority"
	AttrInterpretation = "interpretation"
	AttrConclusion     = "conclusion"
	AttrCategory       = "category"
	AttrAllergyType    = "type"
	AttrReaction       = "reaction"
	AttrIntent         = "intent"
	AttrReason         = "reason"
	AttrBodySite       = "body_site"
	AttrPerformer      = "performer"
	AttrLocation       = "location"
	AttrEncounterType  = "encounter_type"
	AttrDescription    = "description"
	AttrPhone          = "phone"
	AttrAddress        = "address"
	AttrQualification  = "qualification"
	AttrNote           = "note"
)

var resourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:clinicalmerge:resource"))

// ResourceID derives the resource id for the index-th record of a document
// merged into a patient. Replays of the same batch get the same ids.
func ResourceID(documentID, patientID uuid.UUID, kind extraction.Kind, index int) uuid.UUID {
	return uuid.NewSHA1(resourceNamespace, []byte(fmt.Sprintf("%s/%s/%s/%d", documentID, patientID, kind, index)))
}

// Provenance links a resource to the extraction it came from.
type Provenance struct {
	DocumentID uuid.UUID            `json:"document_id"`
	BatchID    uuid.UUID            `json:"batch_id"`
	Producer   string               `json:"producer"`
	Fallback   bool                 `json:"fallback,omitempty"`
	Confidence float64              `json:"confidence"`
	Source     extraction.SourceRef `json:"source"`
}

// Value is an observed result: a quantity when the source was numeric,
// text otherwise, and components for panels such as blood pressure.
type Value struct {
	Quantity   *fhir.Quantity `json:"quantity,omitempty"`
	Text       string         `json:"text,omitempty"`
	Components []Component    `json:"components,omitempty"`
}

type Component struct {
	Code     *fhir.CodeableConcept `json:"code"`
	Quantity *fhir.Quantity        `json:"quantity,omitempty"`
	Text     string                `json:"text,omitempty"`
}

// Numeric returns the single comparable magnitude of v. Panels use their
// first component.
func (v *Value) Numeric() (float64, bool) {
	if v == nil {
		return 0, false
	}
	if v.Quantity != nil && v.Quantity.Comparator == "" {
		return v.Quantity.Value, true
	}
	if len(v.Components) > 0 && v.Components[0].Quantity != nil && v.Components[0].Quantity.Comparator == "" {
		return v.Components[0].Quantity.Value, true
	}
	return 0, false
}

type ReferenceRange struct {
	Text string         `json:"text,omitempty"`
	Low  *fhir.Quantity `json:"low,omitempty"`
	High *fhir.Quantity `json:"high,omitempty"`
}

type Dosage struct {
	Text      string         `json:"text,omitempty"`
	Dose      *fhir.Quantity `json:"dose,omitempty"`
	Route     string         `json:"route,omitempty"`
	Frequency string         `json:"frequency,omitempty"`
}

// Resource is one canonical clinical fact. Resources are immutable once
// committed; corrections arrive as new resources plus a Supersession.
type Resource struct {
	ID             uuid.UUID             `json:"id"`
	Kind           extraction.Kind       `json:"kind"`
	PatientID      uuid.UUID             `json:"patient_id"`
	IdentityKey    string                `json:"identity_key"`
	Display        string                `json:"display,omitempty"`
	Code           *fhir.CodeableConcept `json:"code,omitempty"`
	Value          *Value                `json:"value,omitempty"`
	Status         string                `json:"status,omitempty"`
	Verification   string                `json:"verification,omitempty"`
	Effective      clinicaldate.Date     `json:"effective"`
	EffectiveEnd   clinicaldate.Date     `json:"effective_end"`
	Identifiers    []fhir.Identifier     `json:"identifiers,omitempty"`
	Attributes     map[string]string     `json:"attributes,omitempty"`
	ReferenceRange *ReferenceRange       `json:"reference_range,omitempty"`
	Dosage         *Dosage               `json:"dosage,omitempty"`
	Provenance     Provenance            `json:"provenance"`
	RecordedAt     time.Time             `json:"recorded_at"`
}

// Attr returns a pass-through attribute or "".
func (r *Resource) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// Fingerprint hashes the clinical content of r, ignoring ids, provenance
// and timestamps. Two resources with equal fingerprints state the same fact.
func (r *Resource) Fingerprint() string {
	content := struct {
		Kind           extraction.Kind       `json:"k"`
		IdentityKey    string                `json:"i"`
		Display        string                `json:"d"`
		Code           *fhir.CodeableConcept `json:"c"`
		Value          *Value                `json:"v"`
		Status         string                `json:"s"`
		Verification   string                `json:"vs"`
		Effective      string                `json:"e"`
		EffectiveEnd   string                `json:"ee"`
		Identifiers    []fhir.Identifier     `json:"id"`
		Attributes     map[string]string     `json:"a"`
		ReferenceRange *ReferenceRange       `json:"rr"`
		Dosage         *Dosage               `json:"ds"`
	}{
		r.Kind, r.IdentityKey, r.Display, r.Code, r.Value, r.Status, r.Verification,
		r.Effective.String(), r.EffectiveEnd.String(), r.Identifiers, r.Attributes,
		r.ReferenceRange, r.Dosage,
	}
	b, _ := json.Marshal(content)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Codings returns the complete codings on r's primary concept.
func (r *Resource) Codings() []fhir.Coding {
	if r.Code == nil {
		return nil
	}
	var out []fhir.Coding
	for _, c := range r.Code.Coding {
		if c.System != "" && c.Code != "" {
			out = append(out, c)
		}
	}
	return out
}

// SupersessionReason says why a resource left the current view.
type SupersessionReason string

const (
	ReasonNewestWins      SupersessionReason = "newest_wins"
	ReasonConfidenceBased SupersessionReason = "confidence_based"
	ReasonDuplicate       SupersessionReason = "duplicate"
	ReasonRestated        SupersessionReason = "restated"
)

// Supersession marks Superseded as replaced by By in the current view.
type Supersession struct {
	Superseded uuid.UUID          `json:"superseded"`
	By         uuid.UUID          `json:"by"`
	Reason     SupersessionReason `json:"reason"`
	BatchID    uuid.UUID          `json:"batch_id"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Patient is the identity the record belongs to.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	BirthDate string    `json:"birth_date,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	MRN       string    `json:"mrn,omitempty"`
}

// ConflictEntry is the stored form of a detected conflict.
type ConflictEntry struct {
	ID         uuid.UUID `json:"id"`
	BatchID    uuid.UUID `json:"batch_id"`
	Severity   string    `json:"severity"`
	Type       string    `json:"type"`
	Field      string    `json:"field"`
	IncomingID uuid.UUID `json:"incoming_id"`
	ExistingID uuid.UUID `json:"existing_id"`
	Strategy   string    `json:"strategy"`
	DetectedAt time.Time `json:"detected_at"`
}

// Commit is everything one merge appends. It is keyed by (DocumentID,
// PatientID) and applied atomically.
type Commit struct {
	DocumentID      uuid.UUID
	PatientID       uuid.UUID
	BatchID         uuid.UUID
	ExpectedVersion int64
	Resources       []*Resource
	Supersessions   []Supersession
	Conflicts       []ConflictEntry
	Result          json.RawMessage
	CommittedAt     time.Time
}
