package fhir

import (
	"encoding/json"
	"testing"
)

func TestCodeableConcept_IsCodedAndPrimary(t *testing.T) {
	tests := []struct {
		name    string
		c       *CodeableConcept
		coded   bool
		primary string
	}{
		{"nil", nil, false, ""},
		{"text only", TextConcept("Headache"), false, ""},
		{"missing system", &CodeableConcept{Coding: []Coding{{Code: "I10"}}}, false, ""},
		{"coded", CodedConcept(SystemICD10CM, "I10", "Essential hypertension", ""), true, "I10"},
		{"second coding complete", &CodeableConcept{Coding: []Coding{
			{Display: "x"},
			{System: SystemSNOMED, Code: "38341003"},
		}}, true, "38341003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.IsCoded(); got != tt.coded {
				t.Errorf("IsCoded() = %v, want %v", got, tt.coded)
			}
			if got := tt.c.Primary().Code; got != tt.primary {
				t.Errorf("Primary().Code = %q, want %q", got, tt.primary)
			}
		})
	}
}

func TestCodedConcept_TextDefaultsToDisplay(t *testing.T) {
	c := CodedConcept(SystemLOINC, "8480-6", "Systolic blood pressure", "")
	if c.Text != "Systolic blood pressure" {
		t.Errorf("expected text from display, got %q", c.Text)
	}
	c = CodedConcept(SystemLOINC, "8480-6", "Systolic blood pressure", "SBP")
	if c.Text != "SBP" {
		t.Errorf("expected explicit text kept, got %q", c.Text)
	}
}

func TestQuantity_OmitsEmptyComparator(t *testing.T) {
	data, err := json.Marshal(Quantity{Value: 10, Unit: "mg", System: SystemUCUM, Code: "mg"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"value":10,"unit":"mg","system":"http://unitsofmeasure.org","code":"mg"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestStandardSystems(t *testing.T) {
	for _, s := range []string{SystemLOINC, SystemSNOMED, SystemRxNorm, SystemICD10CM} {
		if !StandardSystems[s] {
			t.Errorf("%s should be standard", s)
		}
	}
	if StandardSystems["http://www.ama-assn.org/go/cpt"] {
		t.Error("CPT should not be kept as a standard system")
	}
	if StandardSystems[SystemUCUM] {
		t.Error("UCUM is a unit system, not a concept system")
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "123"); got != "Patient/123" {
		t.Errorf("FormatReference = %q", got)
	}
}
