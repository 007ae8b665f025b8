package convert

import (
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

type diagnosticReportStructured struct {
	Code       codeInput `json:"code"`
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	Effective  string    `json:"effective"`
	Conclusion string    `json:"conclusion"`
	Category   string    `json:"category"`
	Performer  string    `json:"performer"`
}

type diagnosticReportLegacy struct {
	ReportName string `json:"report_name"`
	LOINCCode  string `json:"loinc_code"`
	ReportDate string `json:"report_date"`
	Impression string `json:"impression"`
	Findings   string `json:"findings"`
	Status     string `json:"status"`
	Category   string `json:"category"`
	ReadBy     string `json:"read_by"`
}

type diagnosticReportFields struct {
	code       codeInput
	term       string
	status     string
	effective  string
	conclusion string
	category   string
	performer  string
}

type diagnosticReportConverter struct{}

func (diagnosticReportConverter) Kind() extraction.Kind { return extraction.KindDiagnosticReport }

func (c diagnosticReportConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s diagnosticReportStructured
	var l diagnosticReportLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := diagnosticReportFields{
		code: s.Code, term: s.Text, status: s.Status, effective: s.Effective,
		conclusion: s.Conclusion, category: s.Category, performer: s.Performer,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = diagnosticReportFields{
			term: l.ReportName, status: l.Status, effective: l.ReportDate,
			conclusion: firstNonEmpty(l.Impression, l.Findings), category: l.Category, performer: l.ReadBy,
		}
		if l.LOINCCode != "" {
			f.code = codeInput{System: fhir.SystemLOINC, Code: l.LOINCCode}
		}
	}

	code, err := concept(terminology.Reports, f.code, f.term)
	if err != nil {
		return nil, err
	}
	r := cc.newResource(c.Kind(), rec)
	r.Code = code
	r.Display = code.Text
	r.Status = lower(f.status)
	if r.Effective, err = cc.date("effective", f.effective); err != nil {
		return nil, err
	}
	r.IdentityKey = conceptKey(code) + "@" + r.Effective.String()
	setAttr(r, record.AttrConclusion, f.conclusion)
	setAttr(r, record.AttrCategory, f.category)
	setAttr(r, record.AttrPerformer, f.performer)
	return r, nil
}
