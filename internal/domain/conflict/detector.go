package conflict

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
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

// Detector compares incoming resources against a record. Thresholds are
// fields so tests and deployments can tune them.
type Detector struct {
	VitalWindow time.Duration
	LabWindow   time.Duration
	// VitalDelta and LabDelta are the largest plausible relative change
	// between two readings inside their window.
	VitalDelta float64
	LabDelta   float64
	// DosageRatio is the dose ratio above which a discrepancy is critical.
	DosageRatio float64
	// Dates reads subject birth dates. It must share the converters'
	// locale so both sides of an identity check agree.
	Dates clinicaldate.Normalizer
	Now   func() time.Time
}

func NewDetector(dates clinicaldate.Normalizer) *Detector {
	return &Detector{
		Dates:       dates,
		VitalWindow: 24 * time.Hour,
		LabWindow:   72 * time.Hour,
		VitalDelta:  0.5,
		LabDelta:    1.0,
		DosageRatio: 2.0,
		Now:         time.Now,
	}
}

// Detection is what the detector found for one batch.
type Detection struct {
	Conflicts []Conflict
	// Supersessions the detector settles on its own: exact duplicates and
	// restatements of an unchanged fact.
	Supersessions []record.Supersession
}

// IdentityConflict reports whether any conflict is an identity mismatch.
func (d *Detection) IdentityConflict() bool {
	for _, c := range d.Conflicts {
		if c.Type == TypeIdentityMismatch {
			return true
		}
	}
	return false
}

// Detect checks the batch subject against the patient, then each incoming
// resource against the current same-identity resources. Incoming resources
// are considered in order and each one is visible to those after it, so
// repeats inside a batch are caught too. rec is not modified.
func (d *Detector) Detect(batchID uuid.UUID, subject extraction.Subject, patient *record.Patient, rec *record.CumulativeRecord, incoming []*record.Resource) *Detection {
	now := d.now()
	out := &Detection{}
	out.Conflicts = append(out.Conflicts, d.identity(batchID, subject, patient, now)...)

	work := rec.Clone()
	for _, in := range incoming {
		matches := work.CurrentByIdentity(in.Kind, in.IdentityKey)
		if dup := duplicateOf(in, matches); dup != nil {
			sp := record.Supersession{Superseded: in.ID, By: dup.ID, Reason: record.ReasonDuplicate, BatchID: batchID, CreatedAt: now}
			work.Append([]*record.Resource{in}, []record.Supersession{sp})
			out.Supersessions = append(out.Supersessions, sp)
			continue
		}

		var sups []record.Supersession
		for _, ex := range matches {
			if ex.ID == in.ID {
				continue
			}
			if c, ok := d.compare(in, ex); ok {
				c.ID = conflictID(batchID, c.Type, in.ID, ex.ID)
				c.DetectedAt = now
				out.Conflicts = append(out.Conflicts, c)
				continue
			}
			if series(in.Kind) && !sameInstant(in.Effective, ex.Effective) {
				continue
			}
			older, newer := ex, in
			if in.Effective.Compare(ex.Effective) < 0 {
				older, newer = in, ex
			}
			sups = append(sups, record.Supersession{Superseded: older.ID, By: newer.ID, Reason: record.ReasonRestated, BatchID: batchID, CreatedAt: now})
		}
		work.Append([]*record.Resource{in}, sups)
		out.Supersessions = append(out.Supersessions, sups...)
	}
	return out
}

func duplicateOf(in *record.Resource, matches []*record.Resource) *record.Resource {
	fp := in.Fingerprint()
	for _, ex := range matches {
		if ex.ID != in.ID && ex.Fingerprint() == fp {
			return ex
		}
	}
	return nil
}

func (d *Detector) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// identity compares what the document says about its subject with the
// target patient. Absent values on either side are not evidence.
func (d *Detector) identity(batchID uuid.UUID, subject extraction.Subject, patient *record.Patient, now time.Time) []Conflict {
	if patient == nil {
		return nil
	}
	var fields []string
	if subject.BirthDate != "" && patient.BirthDate != "" && !d.sameBirthDate(subject.BirthDate, patient.BirthDate) {
		fields = append(fields, "birth_date")
	}
	if subject.Gender != "" && patient.Gender != "" && !strings.EqualFold(strings.TrimSpace(subject.Gender), strings.TrimSpace(patient.Gender)) {
		fields = append(fields, "gender")
	}
	if subject.MRN != "" && patient.MRN != "" && strings.TrimSpace(subject.MRN) != strings.TrimSpace(patient.MRN) {
		fields = append(fields, "mrn")
	}
	out := make([]Conflict, 0, len(fields))
	for _, f := range fields {
		out = append(out, Conflict{
			ID:         uuid.NewSHA1(batchID, []byte("identity/"+f)),
			Severity:   SeverityCritical,
			Type:       TypeIdentityMismatch,
			Field:      f,
			DetectedAt: now,
		})
	}
	return out
}

// sameBirthDate compares two birth dates at the coarser of their
// precisions. Text that does not parse is compared folded.
func (d *Detector) sameBirthDate(a, b string) bool {
	da, errA := d.Dates.Normalize(a)
	db, errB := d.Dates.Normalize(b)
	if errA != nil || errB != nil {
		return textnorm.Fold(a) == textnorm.Fold(b)
	}
	p := min(da.Precision, db.Precision, clinicaldate.PrecisionDay)
	return da.Truncate(p).String() == db.Truncate(p).String()
}

// compare decides whether in and ex, which share an identity, disagree.
func (d *Detector) compare(in, ex *record.Resource) (Conflict, bool) {
	c := Conflict{Incoming: in, Existing: ex}
	found := func(t Type, s Severity, field string) (Conflict, bool) {
		c.Type, c.Severity, c.Field = t, s, field
		return c, true
	}

	switch in.Kind {
	case extraction.KindCondition:
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityHigh, "clinical_status")
		}
		if differs(in.Verification, ex.Verification) {
			return found(TypeValueMismatch, SeverityHigh, "verification_status")
		}
		if !in.Effective.IsZero() && !ex.Effective.IsZero() && in.Effective.Year != ex.Effective.Year {
			return found(TypeValueMismatch, SeverityLow, "onset")
		}

	case extraction.KindAllergy:
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityHigh, "clinical_status")
		}
		if differs(in.Attr(record.AttrCriticality), ex.Attr(record.AttrCriticality)) {
			return found(TypeValueMismatch, SeverityHigh, "criticality")
		}
		if differs(in.Verification, ex.Verification) {
			return found(TypeValueMismatch, SeverityHigh, "verification_status")
		}

	case extraction.KindMedication:
		if s, field, ok := d.dosage(in.Dosage, ex.Dosage); ok {
			return found(TypeDosageDiscrepancy, s, field)
		}
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityMedium, "status")
		}

	case extraction.KindVitalSign, extraction.KindLabResult:
		if sameInstant(in.Effective, ex.Effective) {
			if !sameValue(in.Value, ex.Value) {
				return found(TypeValueMismatch, SeverityMedium, "value")
			}
			return c, false
		}
		window, limit := d.VitalWindow, d.VitalDelta
		if in.Kind == extraction.KindLabResult {
			window, limit = d.LabWindow, d.LabDelta
		}
		if in.Effective.Within(ex.Effective, window) && implausibleDelta(in.Value, ex.Value, limit) {
			return found(TypeTemporalAnomaly, SeverityMedium, "value")
		}

	case extraction.KindDiagnosticReport:
		if differs(in.Attr(record.AttrConclusion), ex.Attr(record.AttrConclusion)) {
			return found(TypeValueMismatch, SeverityMedium, "conclusion")
		}
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityMedium, "status")
		}

	case extraction.KindProcedure:
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityMedium, "status")
		}

	default:
		// Administrative kinds: any change of stated metadata is low.
		if differs(in.Status, ex.Status) {
			return found(TypeValueMismatch, SeverityLow, "status")
		}
		if differs(in.Display, ex.Display) {
			return found(TypeValueMismatch, SeverityLow, "name")
		}
		for _, key := range attrKeys(in, ex) {
			if differs(in.Attr(key), ex.Attr(key)) {
				return found(TypeValueMismatch, SeverityLow, key)
			}
		}
	}
	return c, false
}

// dosage compares two medication dosages. Doses are brought to a common
// unit first; the ratio between them decides between a medium and a
// critical discrepancy. Doses whose units cannot be compared are critical.
func (d *Detector) dosage(a, b *record.Dosage) (Severity, string, bool) {
	if a == nil || b == nil {
		return "", "", false
	}
	if a.Dose != nil && b.Dose != nil {
		va, vb, ok := comparableDoses(a.Dose, b.Dose)
		if !ok {
			return SeverityCritical, "dose", true
		}
		hi, lo := math.Max(va, vb), math.Min(va, vb)
		switch {
		case hi-lo <= 1e-9*hi:
		case lo <= 0 || hi/lo > d.DosageRatio:
			return SeverityCritical, "dose", true
		default:
			return SeverityMedium, "dose", true
		}
	} else if (a.Dose == nil) != (b.Dose == nil) || differs(a.Text, b.Text) {
		return SeverityMedium, "dose", true
	}
	if differs(a.Frequency, b.Frequency) {
		return SeverityMedium, "frequency", true
	}
	if differs(a.Route, b.Route) {
		return SeverityMedium, "route", true
	}
	return "", "", false
}

// comparableDoses returns both dose values in one unit.
func comparableDoses(a, b *fhir.Quantity) (float64, float64, bool) {
	ua, ub := doseUnit(a), doseUnit(b)
	if ua == ub {
		return a.Value, b.Value, true
	}
	va, dimA, okA := terminology.ToBase(a.Value, ua)
	vb, dimB, okB := terminology.ToBase(b.Value, ub)
	if !okA || !okB || dimA != dimB {
		return 0, 0, false
	}
	return va, vb, true
}

func doseUnit(q *fhir.Quantity) string {
	if q.Code != "" {
		return q.Code
	}
	return textnorm.Fold(q.Unit)
}

// differs is true when both sides state a value and the values differ.
// A value present on one side only is not a contradiction.
func differs(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return textnorm.Fold(a) != textnorm.Fold(b)
}

func series(k extraction.Kind) bool {
	return k == extraction.KindVitalSign || k == extraction.KindLabResult
}

func sameInstant(a, b clinicaldate.Date) bool {
	if a.Precision < clinicaldate.PrecisionDay || b.Precision < clinicaldate.PrecisionDay {
		return a.IsZero() && b.IsZero()
	}
	if a.Precision == clinicaldate.PrecisionTime && b.Precision == clinicaldate.PrecisionTime {
		return a.Compare(b) == 0
	}
	return a.SameDay(b)
}

func sameValue(a, b *record.Value) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return bytes.Equal(ja, jb)
}

func implausibleDelta(a, b *record.Value, limit float64) bool {
	va, okA := a.Numeric()
	vb, okB := b.Numeric()
	if !okA || !okB || vb == 0 || unitOf(a) != unitOf(b) {
		return false
	}
	return math.Abs(va-vb)/math.Abs(vb) > limit
}

func unitOf(v *record.Value) string {
	q := v.Quantity
	if q == nil && len(v.Components) > 0 {
		q = v.Components[0].Quantity
	}
	if q == nil {
		return ""
	}
	return q.Unit
}

func attrKeys(a, b *record.Resource) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range []map[string]string{a.Attributes, b.Attributes} {
		for k := range m {
			if !seen[k] && k != record.AttrNote {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func conflictID(batchID uuid.UUID, t Type, incoming, existing uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(batchID, []byte(string(t)+"/"+incoming.String()+"/"+existing.String()))
}
