package translate

import (
	"context"
	"strings"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

func statusConcept(system, code string) *fhir.CodeableConcept {
	if code == "" {
		return nil
	}
	cc := fhir.NewCodeableConcept(system, code, strings.ToUpper(code))
	return &cc
}

// clinicalStatus maps the host's condition status onto condition-clinical.
func clinicalStatus(status string) string {
	switch strings.ToUpper(status) {
	case "":
		return ""
	case "ACTIVE":
		return fhirmodels.ConditionActive
	case "INACTIVE":
		return fhirmodels.ConditionInactive
	case "HISTORY_OF", "RESOLVED":
		return fhirmodels.ConditionResolved
	default:
		return strings.ToLower(status)
	}
}

func verificationStatus(status string) string {
	switch strings.ToUpper(status) {
	case "":
		return ""
	case "CONFIRMED":
		return fhirmodels.ConditionConfirmed
	case "PROVISIONAL":
		return fhirmodels.ConditionProvisional
	default:
		return strings.ToLower(status)
	}
}

func conditionCategory(code, display string) []fhir.CodeableConcept {
	return []fhir.CodeableConcept{fhir.NewCodeableConcept(fhirmodels.SystemConditionCategory, code, display)}
}

func codeOrText(c *clinical.Concept, nonCoded string) *fhir.CodeableConcept {
	if cc := Concept(c); cc != nil {
		return cc
	}
	if nonCoded != "" {
		return &fhir.CodeableConcept{Text: nonCoded}
	}
	return nil
}

// Condition translates a problem-list condition.
func (t *Translator) Condition(ctx context.Context, c *clinical.Condition) *fhir.Condition {
	if c == nil || c.UUID == "" {
		return nil
	}
	out := &fhir.Condition{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeCondition,
			ID:           c.UUID,
			Meta:         lastUpdated(c.DateCreated, c.DateChanged),
		},
		ClinicalStatus:     statusConcept(fhirmodels.SystemConditionClinical, clinicalStatus(c.ClinicalStatus)),
		VerificationStatus: statusConcept(fhirmodels.SystemConditionVerStatus, verificationStatus(c.VerificationStatus)),
		Category:           conditionCategory(fhirmodels.ConditionCategoryProblemListItem, "Problem List Item"),
		Code:               codeOrText(c.Concept, c.NonCoded),
		Subject:            t.refs.Patient(ctx, c.Patient),
		Encounter:          EncounterReference(c.EncounterUUID),
		OnsetDateTime:      c.OnsetDate,
		AbatementDateTime:  c.EndDate,
		RecordedDate:       timePtr(c.DateCreated),
		Note:               note(c.AdditionalDetail),
	}
	if c.Voided {
		out.VerificationStatus = statusConcept(fhirmodels.SystemConditionVerStatus, fhirmodels.ConditionEnteredInError)
	}
	return out
}

// Diagnosis translates an encounter diagnosis. Certainty becomes the
// verification status; the diagnosis is always clinically active.
func (t *Translator) Diagnosis(ctx context.Context, d *clinical.Diagnosis) *fhir.Condition {
	if d == nil || d.UUID == "" {
		return nil
	}
	out := &fhir.Condition{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeCondition,
			ID:           d.UUID,
			Meta:         lastUpdated(d.DateCreated, d.DateChanged),
		},
		ClinicalStatus:     statusConcept(fhirmodels.SystemConditionClinical, fhirmodels.ConditionActive),
		VerificationStatus: statusConcept(fhirmodels.SystemConditionVerStatus, verificationStatus(d.Certainty)),
		Category:           conditionCategory(fhirmodels.ConditionCategoryEncounterDiagnosis, "Encounter Diagnosis"),
		Code:               codeOrText(d.Concept, d.NonCoded),
		Subject:            t.refs.Patient(ctx, d.Patient),
		Encounter:          EncounterReference(d.EncounterUUID),
		OnsetDateTime:      timePtr(d.DateCreated),
		RecordedDate:       timePtr(d.DateCreated),
	}
	if d.Voided {
		out.VerificationStatus = statusConcept(fhirmodels.SystemConditionVerStatus, fhirmodels.ConditionEnteredInError)
	}
	return out
}

// DiagnosisObs translates a diagnosis captured as a coded obs. The coded
// answer is the condition; an obs without one still yields a provisional
// condition without code.
func (t *Translator) DiagnosisObs(ctx context.Context, obs *clinical.Obs, patient *clinical.Patient) *fhir.Condition {
	if obs == nil || obs.UUID == "" {
		return nil
	}
	return &fhir.Condition{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeCondition,
			ID:           obs.UUID,
			Meta:         lastUpdated(obs.DateCreated, obs.DateChanged),
		},
		ClinicalStatus:     statusConcept(fhirmodels.SystemConditionClinical, fhirmodels.ConditionActive),
		VerificationStatus: statusConcept(fhirmodels.SystemConditionVerStatus, fhirmodels.ConditionProvisional),
		Category:           conditionCategory(fhirmodels.ConditionCategoryEncounterDiagnosis, "Encounter Diagnosis"),
		Code:               Concept(obs.ValueCoded),
		Subject:            t.refs.Patient(ctx, patient),
		Encounter:          EncounterReference(obs.EncounterUUID),
		RecordedDate:       timePtr(obs.DateCreated),
	}
}
