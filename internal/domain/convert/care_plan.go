package convert

import (
	"fmt"
	"strings"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

type carePlanStructured struct {
	Title    string `json:"title"`
	Category struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"category"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Period      struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
	Note string `json:"note"`
}

type carePlanLegacy struct {
	PlanName  string `json:"plan_name"`
	PlanType  string `json:"plan_type"`
	Details   string `json:"details"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

type carePlanFields struct {
	title        string
	category     codeInput
	categoryText string
	status       string
	description  string
	start        string
	end          string
	note         string
}

type carePlanConverter struct{}

func (carePlanConverter) Kind() extraction.Kind { return extraction.KindCarePlan }

func (c carePlanConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s carePlanStructured
	var l carePlanLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := carePlanFields{
		title: s.Title, category: s.Category.Code, categoryText: s.Category.Text, status: s.Status,
		description: s.Description, start: s.Period.Start, end: s.Period.End, note: s.Note,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = carePlanFields{
			title: l.PlanName, categoryText: l.PlanType, status: l.Status,
			description: l.Details, start: l.StartDate, end: l.EndDate, note: l.Notes,
		}
	}

	r := cc.newResource(c.Kind(), rec)
	var err error
	if f.category.Code != "" || strings.TrimSpace(f.categoryText) != "" {
		if r.Code, err = concept(terminology.CarePlanCategories, f.category, f.categoryText); err != nil {
			return nil, err
		}
	}
	r.Display = strings.TrimSpace(f.title)
	switch {
	case r.Display != "":
		r.IdentityKey = "title:" + textnorm.Fold(r.Display)
	case r.Code != nil:
		r.IdentityKey = "category:" + conceptKey(r.Code)
	case strings.TrimSpace(f.description) != "":
		r.IdentityKey = "description:" + textnorm.Fold(f.description)
	default:
		return nil, fmt.Errorf("%w: care plan has no title, category or description", ErrConversion)
	}
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("start", f.start); err != nil {
		return nil, err
	}
	if r.EffectiveEnd, err = cc.date("end", f.end); err != nil {
		return nil, err
	}
	setAttr(r, record.AttrDescription, f.description)
	setAttr(r, record.AttrNote, f.note)
	return r, nil
}
