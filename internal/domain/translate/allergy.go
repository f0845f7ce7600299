package translate

import (
	"context"
	"strings"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

func allergyCategory(allergenType string) []string {
	switch strings.ToUpper(allergenType) {
	case "DRUG":
		return []string{fhirmodels.AllergyCategoryMedication}
	case "FOOD":
		return []string{fhirmodels.AllergyCategoryFood}
	case "ENVIRONMENT":
		return []string{fhirmodels.AllergyCategoryEnvironment}
	default:
		return nil
	}
}

func allergySeverity(c *clinical.Concept) string {
	if c == nil {
		return ""
	}
	s := strings.ToLower(c.Display)
	switch {
	case strings.Contains(s, "mild"):
		return "mild"
	case strings.Contains(s, "moderate"):
		return "moderate"
	case strings.Contains(s, "severe"), strings.Contains(s, "fatal"):
		return "severe"
	default:
		return ""
	}
}

// Allergy translates an allergy into an AllergyIntolerance. Reactions are
// collapsed into one reaction entry carrying every manifestation.
func (t *Translator) Allergy(ctx context.Context, a *clinical.Allergy) *fhir.AllergyIntolerance {
	if a == nil || a.UUID == "" {
		return nil
	}
	cs := fhir.NewCodeableConcept(fhirmodels.SystemAllergyClinical, "active", "Active")
	if a.Voided {
		cs = fhir.NewCodeableConcept(fhirmodels.SystemAllergyClinical, "inactive", "Inactive")
	}
	vs := fhir.NewCodeableConcept(fhirmodels.SystemAllergyVerification, "confirmed", "Confirmed")
	out := &fhir.AllergyIntolerance{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeAllergyIntolerance,
			ID:           a.UUID,
			Meta:         lastUpdated(a.DateCreated, nil),
		},
		ClinicalStatus:     &cs,
		VerificationStatus: &vs,
		Category:           allergyCategory(a.AllergenType),
		Code:               codeOrText(a.Allergen, a.NonCoded),
		Patient:            t.refs.Patient(ctx, a.Patient),
		RecordedDate:       timePtr(a.DateCreated),
		Note:               note(a.Comment),
	}
	var manifestations []fhir.CodeableConcept
	for i := range a.Reactions {
		if cc := Concept(&a.Reactions[i]); cc != nil {
			manifestations = append(manifestations, *cc)
		}
	}
	if len(manifestations) > 0 {
		out.Reaction = []fhir.AllergyReaction{{
			Manifestation: manifestations,
			Severity:      allergySeverity(a.Severity),
		}}
	}
	return out
}
