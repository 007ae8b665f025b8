package convert

import (
	"fmt"
	"strings"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/terminology"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
	"github.com/ehr/clinicalmerge/internal/platform/textnorm"
)

type practitionerStructured struct {
	Name struct {
		Text   string `json:"text"`
		Prefix string `json:"prefix"`
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"name"`
	NPI       string `json:"npi"`
	Specialty struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"specialty"`
	Qualification string `json:"qualification"`
	Phone         string `json:"phone"`
}

type practitionerLegacy struct {
	ProviderName string `json:"provider_name"`
	NPI          string `json:"npi"`
	Specialty    string `json:"specialty"`
	Credentials  string `json:"credentials"`
	Phone        string `json:"phone"`
}

type practitionerFields struct {
	name          string
	npi           string
	specialty     codeInput
	specialtyText string
	qualification string
	phone         string
}

type practitionerConverter struct{}

func (practitionerConverter) Kind() extraction.Kind { return extraction.KindPractitioner }

func (c practitionerConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s practitionerStructured
	var l practitionerLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := practitionerFields{
		name: firstNonEmpty(s.Name.Text, strings.Join(strings.Fields(s.Name.Prefix+" "+s.Name.Given+" "+s.Name.Family), " ")),
		npi:  s.NPI, specialty: s.Specialty.Code, specialtyText: s.Specialty.Text,
		qualification: s.Qualification, phone: s.Phone,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = practitionerFields{
			name: l.ProviderName, npi: l.NPI, specialtyText: l.Specialty,
			qualification: l.Credentials, phone: l.Phone,
		}
	}
	if strings.TrimSpace(f.name) == "" && strings.TrimSpace(f.npi) == "" {
		return nil, fmt.Errorf("%w: practitioner has no name or npi", ErrConversion)
	}

	r := cc.newResource(c.Kind(), rec)
	r.Display = strings.TrimSpace(f.name)
	if npi := strings.TrimSpace(f.npi); npi != "" {
		r.Identifiers = []fhir.Identifier{{System: fhir.SystemNPI, Value: npi}}
		r.IdentityKey = "npi:" + npi
	} else {
		r.IdentityKey = "name:" + textnorm.Fold(f.name)
	}
	if f.specialty.Code != "" || strings.TrimSpace(f.specialtyText) != "" {
		code, err := concept(terminology.Specialties, f.specialty, f.specialtyText)
		if err != nil {
			return nil, err
		}
		r.Code = code
	}
	setAttr(r, record.AttrQualification, f.qualification)
	setAttr(r, record.AttrPhone, f.phone)
	return r, nil
}
