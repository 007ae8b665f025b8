package convert

import (
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

// systemCPT is accepted on legacy payloads but is not a system codes are
// kept on, so CPT-only procedures end up text-only unless the name maps.
const systemCPT = "http://www.ama-assn.org/go/cpt"

type procedureStructured struct {
	Code      codeInput `json:"code"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Performed string    `json:"performed"`
	BodySite  string    `json:"body_site"`
	Performer string    `json:"performer"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note"`
}

type procedureLegacy struct {
	ProcedureName string `json:"procedure_name"`
	SNOMEDCode    string `json:"snomed_code"`
	CPTCode       string `json:"cpt_code"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	BodySite      string `json:"body_site"`
	Surgeon       string `json:"surgeon"`
	Indication    string `json:"indication"`
	Notes         string `json:"notes"`
}

type procedureFields struct {
	code      codeInput
	term      string
	status    string
	performed string
	bodySite  string
	performer string
	reason    string
	note      string
}

type procedureConverter struct{}

func (procedureConverter) Kind() extraction.Kind { return extraction.KindProcedure }

func (c procedureConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s procedureStructured
	var l procedureLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := procedureFields{
		code: s.Code, term: s.Text, status: s.Status, performed: s.Performed,
		bodySite: s.BodySite, performer: s.Performer, reason: s.Reason, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = procedureFields{
			term: l.ProcedureName, status: l.Status, performed: l.Date,
			bodySite: l.BodySite, performer: l.Surgeon, reason: l.Indication, note: l.Notes,
		}
		switch {
		case l.SNOMEDCode != "":
			f.code = codeInput{System: fhir.SystemSNOMED, Code: l.SNOMEDCode}
		case l.CPTCode != "":
			f.code = codeInput{System: systemCPT, Code: l.CPTCode}
		}
	}

	code, err := concept(terminology.Procedures, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(c.Kind(), rec)
	r.Code = code
	r.Display = code.Text
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("performed", f.performed); err != nil {
		return nil, err
	}
	r.IdentityKey = conceptKey(code) + "@" + r.Effective.String()
	setAttr(r, record.AttrBodySite, f.bodySite)
	setAttr(r, record.AttrPerformer, f.performer)
	setAttr(r, record.AttrReason, f.reason)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}
