package convert

import (
	"strings"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

const bpPanelCode = "85354-9"

// impliedUnits are units a measure is only ever reported in, so a bare
// number can carry them. Anything else stays unitless when the source
// gives no unit.
var impliedUnits = map[string]bool{
	"/min":   true,
	"%":      true,
	"mm[Hg]": true,
	"kg/m2":  true,
}

type observationFields struct {
	code           codeInput
	term           string
	value          string
	unit           string
	effective      string
	status         string
	interpretation string
	referenceRange string
	note           string
}

func convertObservation(cc *Context, kind extraction.Kind, table *terminology.Table, rec extraction.Record, f observationFields) (*record.Resource, error) {
	code, err := concept(table, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(kind, rec)
	r.Code = code
	r.Display = code.Text
	r.IdentityKey = conceptKey(code)
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("effective", f.effective); err != nil {
		return nil, err
	}

	primary := code.Primary()
	if comps, ok := parseBloodPressure(f.value, f.unit); ok && (primary.Code == bpPanelCode || kind == extraction.KindVitalSign && !code.IsCoded()) {
		r.Value = &record.Value{Components: comps}
	} else {
		r.Value = observedValue(f.value, f.unit)
	}
	if r.Value != nil && r.Value.Quantity != nil && r.Value.Quantity.Unit == "" && primary.System == table.System() {
		if c, ok := table.ByCode(primary.Code); ok && impliedUnits[c.Unit] {
			setUnit(r.Value.Quantity, c.Unit)
		}
	}

	r.ReferenceRange = parseReferenceRange(f.referenceRange, f.unit)
	setAttr(r, record.AttrInterpretation, f.interpretation)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}

type vitalStructured struct {
	Code           codeInput  `json:"code"`
	Name           string     `json:"name"`
	Value          flexString `json:"value"`
	Unit           string     `json:"unit"`
	Effective      string     `json:"effective"`
	Status         string     `json:"status"`
	Interpretation string     `json:"interpretation"`
	ReferenceRange string     `json:"reference_range"`
	Note           string     `json:"note"`
}

type vitalLegacy struct {
	VitalName  string     `json:"vital_name"`
	LOINCCode  string     `json:"loinc_code"`
	Value      flexString `json:"value"`
	Unit       string     `json:"unit"`
	MeasuredAt string     `json:"measured_at"`
	Flag       string     `json:"flag"`
	Notes      string     `json:"notes"`
}

type vitalSignConverter struct{}

func (vitalSignConverter) Kind() extraction.Kind { return extraction.KindVitalSign }

func (c vitalSignConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s vitalStructured
	var l vitalLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := observationFields{
		code: s.Code, term: s.Name, value: s.Value.String(), unit: s.Unit, effective: s.Effective,
		status: s.Status, interpretation: s.Interpretation, referenceRange: s.ReferenceRange, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = observationFields{
			term: l.VitalName, value: l.Value.String(), unit: l.Unit, effective: l.MeasuredAt,
			interpretation: l.Flag, note: l.Notes,
		}
		if l.LOINCCode != "" {
			f.code = codeInput{System: fhir.SystemLOINC, Code: strings.TrimSpace(l.LOINCCode)}
		}
	}
	return convertObservation(cc, c.Kind(), terminology.VitalSigns, rec, f)
}

type labStructured struct {
	Code           codeInput  `json:"code"`
	TestName       string     `json:"test_name"`
	Value          flexString `json:"value"`
	Unit           string     `json:"unit"`
	ReferenceRange string     `json:"reference_range"`
	Interpretation string     `json:"interpretation"`
	Status         string     `json:"status"`
	Effective      string     `json:"effective"`
	Note           string     `json:"note"`
}

type labLegacy struct {
	TestName      string     `json:"test_name"`
	LOINCCode     string     `json:"loinc_code"`
	Result        flexString `json:"result"`
	Units         string     `json:"units"`
	NormalRange   string     `json:"normal_range"`
	Flag          string     `json:"flag"`
	Status        string     `json:"status"`
	CollectedDate string     `json:"collected_date"`
	Notes         string     `json:"notes"`
}

type labResultConverter struct{}

func (labResultConverter) Kind() extraction.Kind { return extraction.KindLabResult }

func (c labResultConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s labStructured
	var l labLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := observationFields{
		code: s.Code, term: s.TestName, value: s.Value.String(), unit: s.Unit, effective: s.Effective,
		status: s.Status, interpretation: s.Interpretation, referenceRange: s.ReferenceRange, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = observationFields{
			term: l.TestName, value: l.Result.String(), unit: l.Units, effective: l.CollectedDate,
			status: l.Status, interpretation: l.Flag, referenceRange: l.NormalRange, note: l.Notes,
		}
		if l.LOINCCode != "" {
			f.code = codeInput{System: fhir.SystemLOINC, Code: strings.TrimSpace(l.LOINCCode)}
		}
	}
	return convertObservation(cc, c.Kind(), terminology.LabTests, rec, f)
}
