package convert

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

var (
	quantityRe = regexp.MustCompile(`^(<=|>=|≤|≥|<|>)?\s*([-+]?(?:\d{1,3}(?:[, ]\d{3})+|\d+)?(?:\.\d+)?)\s*(.*)$`)
	bpRe       = regexp.MustCompile(`^(\d{2,3})\s*/\s*(\d{2,3})\s*(.*)$`)
	rangeRe    = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)\s*(?:-|–|to)\s*([-+]?\d+(?:\.\d+)?)\s*(.*)$`)
)

var comparators = map[string]string{
	"<": "<", "<=": "<=", "≤": "<=",
	">": ">", ">=": ">=", "≥": ">=",
}

// parseQuantity reads a measured value such as "98.6 F", "1,250", "< 5" or
// "7.2" with a separate unit. It reports false when text holds no number.
func parseQuantity(text, unit string) (*fhir.Quantity, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, false
	}
	m := quantityRe.FindStringSubmatch(s)
	if m == nil || m[2] == "" || m[2] == "+" || m[2] == "-" {
		return nil, false
	}
	digits := strings.NewReplacer(",", "", " ", "").Replace(m[2])
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil, false
	}
	written := strings.TrimSpace(m[3])
	if written == "" {
		written = strings.TrimSpace(unit)
	} else if strings.TrimSpace(unit) != "" {
		if _, ok := terminology.NormalizeUnit(written); !ok {
			// trailing text that is not a unit means this was not a value
			return nil, false
		}
	}
	q := &fhir.Quantity{Value: v, Comparator: comparators[m[1]]}
	setUnit(q, written)
	if written != "" && q.Code == "" && strings.ContainsAny(written, "0123456789 \t") {
		return nil, false
	}
	return q, true
}

func setUnit(q *fhir.Quantity, unit string) {
	if unit == "" {
		return
	}
	if code, ok := terminology.NormalizeUnit(unit); ok {
		q.Unit = code
		q.System = fhir.SystemUCUM
		q.Code = code
		return
	}
	q.Unit = unit
}

// parseBloodPressure splits "120/80" into systolic and diastolic
// components.
func parseBloodPressure(text, unit string) ([]record.Component, bool) {
	m := bpRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, false
	}
	written := firstNonEmpty(m[3], unit, "mmHg")
	var comps []record.Component
	for i, code := range []string{"8480-6", "8462-4"} {
		v, _ := strconv.ParseFloat(m[i+1], 64)
		c, _ := terminology.VitalSigns.ByCode(code)
		q := &fhir.Quantity{Value: v}
		setUnit(q, written)
		comps = append(comps, record.Component{
			Code:     fhir.CodedConcept(fhir.SystemLOINC, c.Code, c.Display, ""),
			Quantity: q,
		})
	}
	return comps, true
}

// observedValue builds a Value from a raw result: a quantity when it parses,
// text otherwise.
func observedValue(text, unit string) *record.Value {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if q, ok := parseQuantity(text, unit); ok {
		return &record.Value{Quantity: q}
	}
	if u := strings.TrimSpace(unit); u != "" {
		return &record.Value{Text: text + " " + u}
	}
	return &record.Value{Text: text}
}

// parseReferenceRange reads "70-99 mg/dL", "< 200" or "> 40" into bounds.
// The original text is always kept.
func parseReferenceRange(text, unit string) *record.ReferenceRange {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	rr := &record.ReferenceRange{Text: s}
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		u := firstNonEmpty(m[3], unit)
		rr.Low = boundQuantity(m[1], u)
		rr.High = boundQuantity(m[2], u)
		return rr
	}
	if q, ok := parseQuantity(s, unit); ok && q.Comparator != "" {
		switch q.Comparator {
		case "<", "<=":
			rr.High = &fhir.Quantity{Value: q.Value, Unit: q.Unit, System: q.System, Code: q.Code}
		case ">", ">=":
			rr.Low = &fhir.Quantity{Value: q.Value, Unit: q.Unit, System: q.System, Code: q.Code}
		}
	}
	return rr
}

func boundQuantity(value, unit string) *fhir.Quantity {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	q := &fhir.Quantity{Value: v}
	setUnit(q, unit)
	return q
}
