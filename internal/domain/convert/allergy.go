package convert

import (
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type allergyStructured struct {
	Substance struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"substance"`
	Category           string `json:"category"`
	ClinicalStatus     string `json:"clinical_status"`
	VerificationStatus string `json:"verification_status"`
	Criticality        string `json:"criticality"`
	Reaction           string `json:"reaction"`
	Severity           string `json:"severity"`
	Onset              string `json:"onset"`
	Note               string `json:"note"`
}

type allergyLegacy struct {
	Allergen    string `json:"allergen"`
	Type        string `json:"type"`
	Reaction    string `json:"reaction"`
	Severity    string `json:"severity"`
	Criticality string `json:"criticality"`
	Status      string `json:"status"`
	OnsetDate   string `json:"onset_date"`
	Notes       string `json:"notes"`
}

type allergyFields struct {
	code         codeInput
	term         string
	category     string
	status       string
	verification string
	criticality  string
	reaction     string
	severity     string
	onset        string
	note         string
}

type allergyConverter struct{}

func (allergyConverter) Kind() extraction.Kind { return extraction.KindAllergy }

func (c allergyConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s allergyStructured
	var l allergyLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := allergyFields{
		code: s.Substance.Code, term: s.Substance.Text, category: s.Category,
		status: s.ClinicalStatus, verification: s.VerificationStatus, criticality: s.Criticality,
		reaction: s.Reaction, severity: s.Severity, onset: s.Onset, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = allergyFields{
			term: l.Allergen, category: l.Type, status: l.Status, criticality: l.Criticality,
			reaction: l.Reaction, severity: l.Severity, onset: l.OnsetDate, note: l.Notes,
		}
	}

	code, err := allergenConcept(f)
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
	setAttr(r, record.AttrAllergyType, lower(f.category))
	setAttr(r, record.AttrCriticality, lower(f.criticality))
	setAttr(r, record.AttrReaction, f.reaction)
	setAttr(r, record.AttrSeverity, lower(f.severity))
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}

// allergenConcept looks the substance up among drug allergens first unless
// the producer said it is a food or environmental allergen.
func allergenConcept(f allergyFields) (*fhir.CodeableConcept, error) {
	if f.code.Code != "" && fhir.StandardSystems[f.code.System] {
		return concept(terminology.DrugAllergens, f.code, f.term)
	}
	tables := []*terminology.Table{terminology.DrugAllergens, terminology.SubstanceAllergens, terminology.Medications}
	switch lower(f.category) {
	case "food", "environment", "environmental", "biologic":
		tables = []*terminology.Table{terminology.SubstanceAllergens, terminology.DrugAllergens, terminology.Medications}
	}
	for _, t := range tables {
		if _, ok := t.Lookup(f.term); ok {
			return concept(t, codeInput{}, f.term)
		}
	}
	return concept(tables[0], f.code, f.term)
}
