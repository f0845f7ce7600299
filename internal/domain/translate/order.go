package translate

import (
	"context"
	"strconv"
	"strings"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

// Medication translates the drug of a drug order.
func (t *Translator) Medication(drug *clinical.Drug) *fhir.Medication {
	if drug == nil || drug.UUID == "" {
		return nil
	}
	out := &fhir.Medication{
		Resource: fhir.Resource{ResourceType: fhir.TypeMedication, ID: drug.UUID},
		Code:     Concept(drug.Concept),
		Status:   fhirmodels.RequestStatusActive,
		Form:     Concept(drug.DosageForm),
	}
	if drug.Name != "" {
		if out.Code == nil {
			out.Code = &fhir.CodeableConcept{}
		}
		out.Code.Text = drug.Name
	}
	return out
}

func orderStatus(o *clinical.Order) string {
	switch {
	case o.Voided || strings.EqualFold(o.Action, "DISCONTINUE"):
		return fhirmodels.RequestStatusRevoked
	case o.DateStopped != nil:
		return fhirmodels.RequestStatusCompleted
	default:
		return fhirmodels.RequestStatusActive
	}
}

func (t *Translator) orderer(ctx context.Context, p *clinical.Provider) *fhir.Reference {
	if p == nil {
		return nil
	}
	return &fhir.Reference{
		Reference:  fhir.FormatReference(fhir.TypePractitioner, p.UUID),
		Type:       fhir.TypePractitioner,
		Identifier: t.refs.ProviderIdentifier(ctx, p),
		Display:    p.Name,
	}
}

func dosageText(o *clinical.Order) string {
	if o.DosingInstructions != "" {
		return o.DosingInstructions
	}
	var parts []string
	if o.Dose != nil {
		dose := strconv.FormatFloat(*o.Dose, 'f', -1, 64)
		if o.DoseUnits != nil && o.DoseUnits.Display != "" {
			dose += " " + o.DoseUnits.Display
		}
		parts = append(parts, dose)
	}
	if o.Frequency != nil && o.Frequency.Display != "" {
		parts = append(parts, o.Frequency.Display)
	}
	return strings.Join(parts, " ")
}

// MedicationRequest translates a drug order. The medication is referenced
// by drug uuid when the order names a drug, else carried as a concept.
func (t *Translator) MedicationRequest(ctx context.Context, o *clinical.Order) *fhir.MedicationRequest {
	if o == nil || o.UUID == "" {
		return nil
	}
	out := &fhir.MedicationRequest{
		Resource:   fhir.Resource{ResourceType: fhir.TypeMedicationRequest, ID: o.UUID},
		Status:     orderStatus(o),
		Intent:     fhirmodels.RequestIntentOrder,
		Subject:    t.refs.Patient(ctx, o.Patient),
		Encounter:  EncounterReference(o.EncounterUUID),
		AuthoredOn: o.DateActivated,
		Requester:  t.orderer(ctx, o.Orderer),
		Note:       note(o.Instructions),
	}
	if o.Drug != nil && o.Drug.UUID != "" {
		out.MedicationReference = &fhir.Reference{
			Reference: fhir.FormatReference(fhir.TypeMedication, o.Drug.UUID),
			Type:      fhir.TypeMedication,
			Display:   o.Drug.Name,
		}
	} else {
		out.MedicationCodeableConcept = Concept(o.Concept)
	}
	dosage := fhir.Dosage{
		Text:   dosageText(o),
		Route:  Concept(o.Route),
		Timing: Concept(o.Frequency),
	}
	if dosage.Text != "" || dosage.Route != nil || dosage.Timing != nil {
		out.DosageInstruction = []fhir.Dosage{dosage}
	}
	return out
}

func priority(urgency string) string {
	switch strings.ToUpper(urgency) {
	case "STAT":
		return "stat"
	case "":
		return ""
	default:
		return "routine"
	}
}

// TestOrder translates a lab test order into a ServiceRequest keyed by the
// order uuid.
func (t *Translator) TestOrder(ctx context.Context, o *clinical.Order) *fhir.ServiceRequest {
	if o == nil || o.UUID == "" {
		return nil
	}
	out := &fhir.ServiceRequest{
		Resource: fhir.Resource{ResourceType: fhir.TypeServiceRequest, ID: o.UUID},
		Status:   orderStatus(o),
		Intent:   fhirmodels.RequestIntentOrder,
		Category: []fhir.CodeableConcept{
			fhir.NewCodeableConcept("http://snomed.info/sct", "108252007", "Laboratory procedure"),
		},
		Priority:   priority(o.Urgency),
		Code:       Concept(o.Concept),
		Subject:    t.refs.Patient(ctx, o.Patient),
		Encounter:  EncounterReference(o.EncounterUUID),
		AuthoredOn: o.DateActivated,
		Requester:  t.orderer(ctx, o.Orderer),
		Note:       note(o.Instructions),
	}
	if o.OrderNumber != "" {
		out.Identifier = []fhir.Identifier{{Use: fhirmodels.IdentifierUseUsual, Value: o.OrderNumber}}
	}
	return out
}
