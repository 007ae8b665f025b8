package record

import (
	"time"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/platform/fhir"
)

const (
	systemConditionClinical = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	systemConditionVerStat  = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	systemAllergyClinical   = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
)

var fhirResourceTypes = map[extraction.Kind]string{
	extraction.KindCondition:        "Condition",
	extraction.KindMedication:       "MedicationStatement",
	extraction.KindVitalSign:        "Observation",
	extraction.KindLabResult:        "Observation",
	extraction.KindProcedure:        "Procedure",
	extraction.KindPractitioner:     "Practitioner",
	extraction.KindEncounter:        "Encounter",
	extraction.KindServiceRequest:   "ServiceRequest",
	extraction.KindDiagnosticReport: "DiagnosticReport",
	extraction.KindAllergy:          "AllergyIntolerance",
	extraction.KindCarePlan:         "CarePlan",
	extraction.KindOrganization:     "Organization",
}

// FHIRResourceType returns the FHIR resource type a kind renders as.
func FHIRResourceType(k extraction.Kind) string {
	return fhirResourceTypes[k]
}

// ToFHIR renders r as a FHIR R4 resource.
func (r *Resource) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": FHIRResourceType(r.Kind),
		"id":           r.ID.String(),
		"meta": fhir.Meta{
			LastUpdated: r.RecordedAt,
			Source:      "urn:uuid:" + r.Provenance.DocumentID.String(),
		},
	}
	subject := fhir.Reference{Reference: fhir.FormatReference("Patient", r.PatientID.String())}

	switch r.Kind {
	case extraction.KindCondition:
		result["subject"] = subject
		result["code"] = r.Code
		if r.Status != "" {
			result["clinicalStatus"] = fhir.CodedConcept(systemConditionClinical, r.Status, "", "")
		}
		if r.Verification != "" {
			result["verificationStatus"] = fhir.CodedConcept(systemConditionVerStat, r.Verification, "", "")
		}
		if s := r.Attr(AttrSeverity); s != "" {
			result["severity"] = fhir.TextConcept(s)
		}
		if !r.Effective.IsZero() {
			result["onsetDateTime"] = r.Effective.String()
		}
		if !r.EffectiveEnd.IsZero() {
			result["abatementDateTime"] = r.EffectiveEnd.String()
		}

	case extraction.KindMedication:
		result["subject"] = subject
		result["medicationCodeableConcept"] = r.Code
		result["status"] = r.Status
		if !r.Effective.IsZero() || !r.EffectiveEnd.IsZero() {
			result["effectivePeriod"] = period(r)
		}
		if r.Dosage != nil {
			result["dosage"] = []map[string]interface{}{dosage(r.Dosage)}
		}
		if s := r.Attr(AttrReason); s != "" {
			result["reasonCode"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}

	case extraction.KindVitalSign, extraction.KindLabResult:
		result["subject"] = subject
		result["code"] = r.Code
		result["status"] = r.Status
		category := "laboratory"
		if r.Kind == extraction.KindVitalSign {
			category = "vital-signs"
		}
		result["category"] = []*fhir.CodeableConcept{fhir.CodedConcept(fhir.SystemObsCategory, category, "", "")}
		if !r.Effective.IsZero() {
			result["effectiveDateTime"] = r.Effective.String()
		}
		if r.Value != nil {
			switch {
			case r.Value.Quantity != nil:
				result["valueQuantity"] = r.Value.Quantity
			case r.Value.Text != "":
				result["valueString"] = r.Value.Text
			}
			if len(r.Value.Components) > 0 {
				comps := make([]map[string]interface{}, 0, len(r.Value.Components))
				for _, c := range r.Value.Components {
					comp := map[string]interface{}{"code": c.Code}
					if c.Quantity != nil {
						comp["valueQuantity"] = c.Quantity
					} else if c.Text != "" {
						comp["valueString"] = c.Text
					}
					comps = append(comps, comp)
				}
				result["component"] = comps
			}
		}
		if s := r.Attr(AttrInterpretation); s != "" {
			result["interpretation"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}
		if rr := r.ReferenceRange; rr != nil {
			rng := map[string]interface{}{}
			if rr.Low != nil {
				rng["low"] = rr.Low
			}
			if rr.High != nil {
				rng["high"] = rr.High
			}
			if rr.Text != "" {
				rng["text"] = rr.Text
			}
			result["referenceRange"] = []map[string]interface{}{rng}
		}

	case extraction.KindProcedure:
		result["subject"] = subject
		result["code"] = r.Code
		result["status"] = r.Status
		if !r.Effective.IsZero() {
			result["performedDateTime"] = r.Effective.String()
		}
		if s := r.Attr(AttrBodySite); s != "" {
			result["bodySite"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}
		if s := r.Attr(AttrPerformer); s != "" {
			result["performer"] = []map[string]interface{}{{"actor": fhir.Reference{Display: s}}}
		}

	case extraction.KindPractitioner:
		result["name"] = []map[string]string{{"text": r.Display}}
		if len(r.Identifiers) > 0 {
			result["identifier"] = r.Identifiers
		}
		if r.Code != nil {
			result["qualification"] = []map[string]interface{}{{"code": r.Code}}
		}
		if s := r.Attr(AttrPhone); s != "" {
			result["telecom"] = []map[string]string{{"system": "phone", "value": s}}
		}

	case extraction.KindEncounter:
		result["subject"] = subject
		result["status"] = r.Status
		if r.Code != nil {
			result["class"] = r.Code.Primary()
		}
		if s := r.Attr(AttrEncounterType); s != "" {
			result["type"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}
		if !r.Effective.IsZero() || !r.EffectiveEnd.IsZero() {
			result["period"] = period(r)
		}
		if s := r.Attr(AttrReason); s != "" {
			result["reasonCode"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}
		if s := r.Attr(AttrLocation); s != "" {
			result["location"] = []map[string]interface{}{{"location": fhir.Reference{Display: s}}}
		}

	case extraction.KindServiceRequest:
		result["subject"] = subject
		result["code"] = r.Code
		result["status"] = r.Status
		result["intent"] = r.Attr(AttrIntent)
		if s := r.Attr(AttrPriority); s != "" {
			result["priority"] = s
		}
		if !r.Effective.IsZero() {
			result["authoredOn"] = r.Effective.String()
		}
		if s := r.Attr(AttrReason); s != "" {
			result["reasonCode"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}

	case extraction.KindDiagnosticReport:
		result["subject"] = subject
		result["code"] = r.Code
		result["status"] = r.Status
		if !r.Effective.IsZero() {
			result["effectiveDateTime"] = r.Effective.String()
		}
		if s := r.Attr(AttrConclusion); s != "" {
			result["conclusion"] = s
		}
		if s := r.Attr(AttrCategory); s != "" {
			result["category"] = []*fhir.CodeableConcept{fhir.TextConcept(s)}
		}

	case extraction.KindAllergy:
		result["patient"] = subject
		result["code"] = r.Code
		if r.Status != "" {
			result["clinicalStatus"] = fhir.CodedConcept(systemAllergyClinical, r.Status, "", "")
		}
		if s := r.Attr(AttrCriticality); s != "" {
			result["criticality"] = s
		}
		if s := r.Attr(AttrAllergyType); s != "" {
			result["category"] = []string{s}
		}
		if s := r.Attr(AttrReaction); s != "" {
			reaction := map[string]interface{}{
				"manifestation": []*fhir.CodeableConcept{fhir.TextConcept(s)},
			}
			if sev := r.Attr(AttrSeverity); sev != "" {
				reaction["severity"] = sev
			}
			result["reaction"] = []map[string]interface{}{reaction}
		}
		if !r.Effective.IsZero() {
			result["onsetDateTime"] = r.Effective.String()
		}

	case extraction.KindCarePlan:
		result["subject"] = subject
		result["status"] = r.Status
		result["intent"] = "plan"
		if r.Display != "" {
			result["title"] = r.Display
		}
		if r.Code != nil {
			result["category"] = []*fhir.CodeableConcept{r.Code}
		}
		if s := r.Attr(AttrDescription); s != "" {
			result["description"] = s
		}
		if !r.Effective.IsZero() || !r.EffectiveEnd.IsZero() {
			result["period"] = period(r)
		}

	case extraction.KindOrganization:
		result["name"] = r.Display
		if len(r.Identifiers) > 0 {
			result["identifier"] = r.Identifiers
		}
		if r.Code != nil {
			result["type"] = []*fhir.CodeableConcept{r.Code}
		}
		if s := r.Attr(AttrPhone); s != "" {
			result["telecom"] = []map[string]string{{"system": "phone", "value": s}}
		}
		if s := r.Attr(AttrAddress); s != "" {
			result["address"] = []map[string]string{{"text": s}}
		}
	}

	if note := r.Attr(AttrNote); note != "" {
		result["note"] = []map[string]string{{"text": note}}
	}
	return result
}

// ProvenanceFHIR renders the link between r and its source document as a
// FHIR Provenance resource.
func (r *Resource) ProvenanceFHIR() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Provenance",
		"target": []fhir.Reference{{
			Reference: fhir.FormatReference(FHIRResourceType(r.Kind), r.ID.String()),
		}},
		"recorded": r.RecordedAt.Format(time.RFC3339),
		"agent": []map[string]interface{}{{
			"who": fhir.Reference{Display: r.Provenance.Producer},
		}},
		"entity": []map[string]interface{}{{
			"role": "source",
			"what": fhir.Reference{Reference: "urn:uuid:" + r.Provenance.DocumentID.String()},
		}},
	}
}

func period(r *Resource) fhir.Period {
	return fhir.Period{Start: r.Effective.String(), End: r.EffectiveEnd.String()}
}

func dosage(d *Dosage) map[string]interface{} {
	out := map[string]interface{}{}
	if d.Text != "" {
		out["text"] = d.Text
	}
	if d.Route != "" {
		out["route"] = fhir.TextConcept(d.Route)
	}
	if d.Frequency != "" {
		out["timing"] = map[string]interface{}{"code": fhir.TextConcept(d.Frequency)}
	}
	if d.Dose != nil {
		out["doseAndRate"] = []map[string]interface{}{{"doseQuantity": d.Dose}}
	}
	return out
}
