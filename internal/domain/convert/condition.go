package convert

import (
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type conditionStructured struct {
	Code               codeInput `json:"code"`
	Text               string    `json:"text"`
	ClinicalStatus     string    `json:"clinical_status"`
	VerificationStatus string    `json:"verification_status"`
	Onset              string    `json:"onset"`
	Abatement          string    `json:"abatement"`
	Severity           string    `json:"severity"`
	Note               string    `json:"note"`
}

type conditionLegacy struct {
	ConditionName string `json:"condition_name"`
	ICD10Code     string `json:"icd10_code"`
	Status        string `json:"status"`
	Verification  string `json:"verification"`
	OnsetDate     string `json:"onset_date"`
	ResolvedDate  string `json:"resolved_date"`
	Severity      string `json:"severity"`
	Notes         string `json:"notes"`
}

type conditionFields struct {
	code         codeInput
	term         string
	status       string
	verification string
	onset        string
	abatement    string
	severity     string
	note         string
}

type conditionConverter struct{}

func (conditionConverter) Kind() extraction.Kind { return extraction.KindCondition }

func (c conditionConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s conditionStructured
	var l conditionLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := conditionFields{
		code: s.Code, term: s.Text, status: s.ClinicalStatus, verification: s.VerificationStatus,
		onset: s.Onset, abatement: s.Abatement, severity: s.Severity, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = conditionFields{
			term: l.ConditionName, status: l.Status, verification: l.Verification,
			onset: l.OnsetDate, abatement: l.ResolvedDate, severity: l.Severity, note: l.Notes,
		}
		if l.ICD10Code != "" {
			f.code = codeInput{System: fhir.SystemICD10CM, Code: l.ICD10Code}
		}
	}

	code, err := concept(terminology.Conditions, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(c.Kind(), rec)
	r.Code = code
	r.Display = code.Text
	r.IdentityKey = conceptKey(code)
	r.Status = lower(f.status)
	r.Verification = lower(f.verification)
	if r.Effective, err = cc.date("onset", f.onset); err != nil {
		return nil, err
	}
	if r.EffectiveEnd, err = cc.date("abatement", f.abatement); err != nil {
		return nil, err
	}
	setAttr(r, record.AttrSeverity, f.severity)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}
