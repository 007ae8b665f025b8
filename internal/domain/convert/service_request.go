package convert

import (
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type serviceRequestStructured struct {
	Code      codeInput `json:"code"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Intent    string    `json:"intent"`
	Priority  string    `json:"priority"`
	Authored  string    `json:"authored"`
	Reason    string    `json:"reason"`
	Requester string    `json:"requester"`
	Note      string    `json:"note"`
}

type serviceRequestLegacy struct {
	OrderName string `json:"order_name"`
	LOINCCode string `json:"loinc_code"`
	OrderDate string `json:"order_date"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	OrderedBy string `json:"ordered_by"`
	Notes     string `json:"notes"`
}

type serviceRequestFields struct {
	code      codeInput
	term      string
	status    string
	intent    string
	priority  string
	authored  string
	reason    string
	requester string
	note      string
}

type serviceRequestConverter struct{}

func (serviceRequestConverter) Kind() extraction.Kind { return extraction.KindServiceRequest }

func (c serviceRequestConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s serviceRequestStructured
	var l serviceRequestLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := serviceRequestFields{
		code: s.Code, term: s.Text, status: s.Status, intent: s.Intent, priority: s.Priority,
		authored: s.Authored, reason: s.Reason, requester: s.Requester, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = serviceRequestFields{
			term: l.OrderName, status: l.Status, priority: l.Priority,
			authored: l.OrderDate, reason: l.Reason, requester: l.OrderedBy, note: l.Notes,
		}
		if l.LOINCCode != "" {
			f.code = codeInput{System: fhir.SystemLOINC, Code: l.LOINCCode}
		}
	}

	code, err := concept(terminology.Orders, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(c.Kind(), rec)
	r.Code = code
	r.Display = code.Text
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("authored", f.authored); err != nil {
		return nil, err
	}
	r.IdentityKey = conceptKey(code) + "@" + r.Effective.String()
	setAttr(r, record.AttrIntent, lower(f.intent))
	setAttr(r, record.AttrPriority, lower(f.priority))
	setAttr(r, record.AttrReason, f.reason)
	setAttr(r, record.AttrPerformer, f.requester)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}
