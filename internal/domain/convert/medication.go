package convert

import (
	"strings"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type medicationStructured struct {
	Medication struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"medication"`
	Status string `json:"status"`
	Dosage struct {
		Text      string     `json:"text"`
		Dose      flexString `json:"dose"`
		DoseUnit  string     `json:"dose_unit"`
		Route     string     `json:"route"`
		Frequency string     `json:"frequency"`
	} `json:"dosage"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

type medicationLegacy struct {
	MedicationName string     `json:"medication_name"`
	RxNormCode     string     `json:"rxnorm_code"`
	Dose           flexString `json:"dose"`
	Route          string     `json:"route"`
	Frequency      string     `json:"frequency"`
	Sig            string     `json:"sig"`
	Status         string     `json:"status"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	Indication     string     `json:"indication"`
	Notes          string     `json:"notes"`
}

type medicationFields struct {
	code      codeInput
	term      string
	status    string
	doseText  string
	dose      string
	doseUnit  string
	route     string
	frequency string
	start     string
	end       string
	reason    string
	note      string
}

type medicationConverter struct{}

func (medicationConverter) Kind() extraction.Kind { return extraction.KindMedication }

func (c medicationConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s medicationStructured
	var l medicationLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := medicationFields{
		code: s.Medication.Code, term: s.Medication.Text, status: s.Status,
		doseText: s.Dosage.Text, dose: s.Dosage.Dose.String(), doseUnit: s.Dosage.DoseUnit,
		route: s.Dosage.Route, frequency: s.Dosage.Frequency,
		start: s.Start, end: s.End, reason: s.Reason, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = medicationFields{
			term: l.MedicationName, status: l.Status, doseText: l.Sig, dose: l.Dose.String(),
			route: l.Route, frequency: l.Frequency,
			start: l.StartDate, end: l.EndDate, reason: l.Indication, note: l.Notes,
		}
		if l.RxNormCode != "" {
			f.code = codeInput{System: fhir.SystemRxNorm, Code: l.RxNormCode}
		}
	}

	code, err := concept(terminology.Medications, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(c.Kind(), rec)
	r.Code = code
	r.Display = code.Text
	r.IdentityKey = conceptKey(code)
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("start", f.start); err != nil {
		return nil, err
	}
	if r.EffectiveEnd, err = cc.date("end", f.end); err != nil {
		return nil, err
	}
	r.Dosage = buildDosage(f)
	setAttr(r, record.AttrReason, f.reason)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}

func buildDosage(f medicationFields) *record.Dosage {
	d := &record.Dosage{
		Text:      strings.TrimSpace(f.doseText),
		Route:     lower(f.route),
		Frequency: strings.TrimSpace(f.frequency),
	}
	if q, ok := parseQuantity(f.dose, f.doseUnit); ok {
		d.Dose = q
	} else if dose := strings.TrimSpace(strings.TrimSpace(f.dose) + " " + strings.TrimSpace(f.doseUnit)); dose != "" && d.Text == "" {
		d.Text = dose
	}
	if d.Text == "" && d.Dose == nil && d.Route == "" && d.Frequency == "" {
		return nil
	}
	return d
}
