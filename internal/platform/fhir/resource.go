package fhir

import (
	"fmt"
	"time"
)

// Code system URIs used by the canonical resource model.
const (
	SystemLOINC       = "http://loinc.org"
	SystemSNOMED      = "http://snomed.info/sct"
	SystemRxNorm      = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemICD10CM     = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemUCUM        = "http://unitsofmeasure.org"
	SystemNPI         = "http://hl7.org/fhir/sid/us-npi"
	SystemNUCC        = "http://nucc.org/provider-taxonomy"
	SystemActCode     = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	SystemOrgType     = "http://terminology.hl7.org/CodeSystem/organization-type"
	SystemCarePlanCat = "http://hl7.org/fhir/us/core/CodeSystem/careplan-category"
	SystemObsCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
)

// StandardSystems is the set of code systems a producer-supplied code may be
// kept on. Anything else is stored text-only.
var StandardSystems = map[string]bool{
	SystemLOINC:       true,
	SystemSNOMED:      true,
	SystemRxNorm:      true,
	SystemICD10CM:     true,
	SystemNPI:         true,
	SystemNUCC:        true,
	SystemActCode:     true,
	SystemOrgType:     true,
	SystemCarePlanCat: true,
}

// Resource is the base FHIR resource representation.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Meta         *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Source      string    `json:"source,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// IsCoded reports whether the concept carries at least one coding with both
// a system and a code.
func (c *CodeableConcept) IsCoded() bool {
	if c == nil {
		return false
	}
	for _, cd := range c.Coding {
		if cd.System != "" && cd.Code != "" {
			return true
		}
	}
	return false
}

// Primary returns the first complete coding, or the zero Coding.
func (c *CodeableConcept) Primary() Coding {
	if c == nil {
		return Coding{}
	}
	for _, cd := range c.Coding {
		if cd.System != "" && cd.Code != "" {
			return cd
		}
	}
	return Coding{}
}

// TextConcept builds a text-only concept.
func TextConcept(text string) *CodeableConcept {
	return &CodeableConcept{Text: text}
}

// CodedConcept builds a concept with a single coding; text defaults to the
// display.
func CodedConcept(system, code, display, text string) *CodeableConcept {
	if text == "" {
		text = display
	}
	return &CodeableConcept{
		Coding: []Coding{{System: system, Code: code, Display: display}},
		Text:   text,
	}
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Quantity is a measured amount. Comparator is one of <, <=, >=, > when the
// source value was bounded.
type Quantity struct {
	Value      float64 `json:"value"`
	Comparator string  `json:"comparator,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	System     string  `json:"system,omitempty"`
	Code       string  `json:"code,omitempty"`
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// FormatReference builds a relative reference such as "Patient/123".
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
