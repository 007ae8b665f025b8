package convert

import (
	"fmt"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
)

type encounterStructured struct {
	Class struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"class"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
	Reason       string `json:"reason"`
	Location     string `json:"location"`
	Practitioner string `json:"practitioner"`
	Note         string `json:"note"`
}

type encounterLegacy struct {
	EncounterType string `json:"encounter_type"`
	Setting       string `json:"setting"`
	VisitDate     string `json:"visit_date"`
	DischargeDate string `json:"discharge_date"`
	Facility      string `json:"facility"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	Notes         string `json:"notes"`
}

type encounterFields struct {
	class         codeInput
	classText     string
	encounterType string
	status        string
	start         string
	end           string
	reason        string
	location      string
	practitioner  string
	note          string
}

type encounterConverter struct{}

func (encounterConverter) Kind() extraction.Kind { return extraction.KindEncounter }

func (c encounterConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s encounterStructured
	var l encounterLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := encounterFields{
		class: s.Class.Code, classText: s.Class.Text, encounterType: s.Type, status: s.Status,
		start: s.Period.Start, end: s.Period.End, reason: s.Reason, location: s.Location,
		practitioner: s.Practitioner, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = encounterFields{
			classText: l.Setting, encounterType: l.EncounterType, status: l.Status,
			start: l.VisitDate, end: l.DischargeDate, reason: l.Reason, location: l.Facility,
			practitioner: l.Provider, note: l.Notes,
		}
	}
	classText := firstNonEmpty(f.classText, f.encounterType)

	r := cc.newResource(c.Kind(), rec)
	var err error
	if r.Effective, err = cc.date("start", f.start); err != nil {
		return nil, err
	}
	if r.EffectiveEnd, err = cc.date("end", f.end); err != nil {
		return nil, err
	}
	if f.class.Code != "" || classText != "" {
		if r.Code, err = concept(terminology.EncounterClasses, f.class, classText); err != nil {
			return nil, err
		}
		r.Display = r.Code.Text
	}
	if r.Effective.IsZero() && r.Code == nil {
		return nil, fmt.Errorf("%w: encounter has no date or class", ErrConversion)
	}
	classKey := "unclassified"
	if r.Code != nil {
		classKey = conceptKey(r.Code)
	}
	r.IdentityKey = r.Effective.String() + "|" + classKey
	r.Status = lower(f.status)
	setAttr(r, record.AttrEncounterType, f.encounterType)
	setAttr(r, record.AttrReason, f.reason)
	setAttr(r, record.AttrLocation, f.location)
	setAttr(r, record.AttrPerformer, f.practitioner)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}
