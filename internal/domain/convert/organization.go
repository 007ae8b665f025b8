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

type organizationStructured struct {
	Name       string `json:"name"`
	Identifier struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"identifier"`
	Type struct {
		Code codeInput `json:"code"`
		Text string    `json:"text"`
	} `json:"type"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type organizationLegacy struct {
	OrgName string `json:"org_name"`
	NPI     string `json:"npi"`
	OrgType string `json:"org_type"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type organizationFields struct {
	name     string
	idSystem string
	idValue  string
	orgType  codeInput
	typeText string
	phone    string
	address  string
}

type organizationConverter struct{}

func (organizationConverter) Kind() extraction.Kind { return extraction.KindOrganization }

func (c organizationConverter) Convert(cc *Context, rec extraction.Record) (*record.Resource, error) {
	var s organizationStructured
	var l organizationLegacy
	if err := decodeShape(rec, &s, &l); err != nil {
		return nil, err
	}
	f := organizationFields{
		name: s.Name, idSystem: s.Identifier.System, idValue: s.Identifier.Value,
		orgType: s.Type.Code, typeText: s.Type.Text, phone: s.Phone, address: s.Address,
	}
	if rec.Shape == extraction.ShapeLegacy {
		f = organizationFields{
			name: l.OrgName, typeText: l.OrgType, phone: l.Phone, address: l.Address,
		}
		if l.NPI != "" {
			f.idSystem, f.idValue = fhir.SystemNPI, l.NPI
		}
	}
	name := strings.TrimSpace(f.name)
	idValue := strings.TrimSpace(f.idValue)
	if name == "" && idValue == "" {
		return nil, fmt.Errorf("%w: organization has no name or identifier", ErrConversion)
	}

	r := cc.newResource(c.Kind(), rec)
	r.Display = name
	if idValue != "" {
		r.Identifiers = []fhir.Identifier{{System: strings.TrimSpace(f.idSystem), Value: idValue}}
		r.IdentityKey = "id:" + strings.TrimSpace(f.idSystem) + "|" + idValue
	} else {
		r.IdentityKey = "name:" + textnorm.Fold(name)
	}
	if f.orgType.Code != "" || strings.TrimSpace(f.typeText) != "" {
		code, err := concept(terminology.OrganizationTypes, f.orgType, f.typeText)
		if err != nil {
			return nil, err
		}
		r.Code = code
	}
	setAttr(r, record.AttrPhone, f.phone)
	setAttr(r, record.AttrAddress, f.address)
	return r, nil
}
