// Package translate converts single clinical records into FHIR resources.
// Each translation is deterministic: resource ids are the source record's
// uuid, so translating the same record twice yields the same upsert path.
// Translators return nil when the record cannot produce a usable resource;
// callers omit the entry.
package translate

import (
	"context"
	"strings"
	"time"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/reference"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

// SystemEncounterType identifies encounter types by their uuid.
const SystemEncounterType = "http://fhir.openmrs.org/code-system/encounter-type"

// Translator carries the reference resolver used for subject, facility and
// provider references.
type Translator struct {
	refs *reference.Resolver
}

func New(refs *reference.Resolver) *Translator {
	return &Translator{refs: refs}
}

// Refs exposes the resolver so callers can build the same references the
// translator does.
func (t *Translator) Refs() *reference.Resolver {
	return t.refs
}

// CIELCode derives the CIEL code from a concept uuid by stripping the "A"
// padding, e.g. "5085AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" becomes "5085".
func CIELCode(uuid string) string {
	return strings.ReplaceAll(uuid, "A", "")
}

// Concept maps a concept to a CodeableConcept in the CIEL system.
func Concept(c *clinical.Concept) *fhir.CodeableConcept {
	if c == nil || c.UUID == "" {
		return nil
	}
	cc := fhir.NewCodeableConcept(fhirmodels.SystemCIEL, CIELCode(c.UUID), c.Display)
	return &cc
}

// EncounterReference points at Encounter/<uuid>.
func EncounterReference(uuid string) *fhir.Reference {
	if uuid == "" {
		return nil
	}
	return &fhir.Reference{
		Reference: fhir.FormatReference(fhir.TypeEncounter, uuid),
		Type:      fhir.TypeEncounter,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func lastUpdated(created time.Time, changed *time.Time) *fhir.Meta {
	if changed != nil {
		return &fhir.Meta{LastUpdated: changed}
	}
	if created.IsZero() {
		return nil
	}
	return &fhir.Meta{LastUpdated: &created}
}

func note(text string) []fhir.Annotation {
	if text == "" {
		return nil
	}
	return []fhir.Annotation{{Text: text}}
}

// Observation translates an obs recorded for patient. Group members are
// linked through hasMember; they are not translated inline.
func (t *Translator) Observation(ctx context.Context, obs *clinical.Obs, patient *clinical.Patient) *fhir.Observation {
	if obs == nil || obs.UUID == "" {
		return nil
	}
	code := Concept(&obs.Concept)
	if code == nil {
		return nil
	}
	out := &fhir.Observation{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeObservation,
			ID:           obs.UUID,
			Meta:         lastUpdated(obs.DateCreated, obs.DateChanged),
		},
		Status:            fhirmodels.ObsStatusFinal,
		Code:              *code,
		Subject:           t.refs.Patient(ctx, patient),
		Encounter:         EncounterReference(obs.EncounterUUID),
		EffectiveDateTime: timePtr(obs.ObsDatetime),
		Issued:            timePtr(obs.DateCreated),
		Note:              note(obs.Comment),
	}
	if obs.DateChanged != nil {
		out.Status = fhirmodels.ObsStatusAmended
	}

	switch {
	case obs.ValueNumeric != nil:
		v := *obs.ValueNumeric
		out.ValueQuantity = &fhir.Quantity{Value: &v, Unit: obs.Units}
	case obs.ValueCoded != nil:
		out.ValueCodeableConcept = Concept(obs.ValueCoded)
	case obs.ValueBoolean != nil:
		v := *obs.ValueBoolean
		out.ValueBoolean = &v
	case obs.ValueDatetime != nil:
		v := *obs.ValueDatetime
		out.ValueDateTime = &v
	case obs.ValueText != "":
		v := obs.ValueText
		out.ValueString = &v
	}

	for _, m := range obs.GroupMembers {
		if m.Voided || m.UUID == "" {
			continue
		}
		out.HasMember = append(out.HasMember, fhir.Reference{
			Reference: fhir.FormatReference(fhir.TypeObservation, m.UUID),
			Type:      fhir.TypeObservation,
		})
	}
	return out
}

// Encounter translates an encounter with its participants, location and
// visit linkage.
func (t *Translator) Encounter(ctx context.Context, enc *clinical.Encounter) *fhir.Encounter {
	if enc == nil || enc.UUID == "" {
		return nil
	}
	out := &fhir.Encounter{
		Resource: fhir.Resource{
			ResourceType: fhir.TypeEncounter,
			ID:           enc.UUID,
			Meta:         lastUpdated(enc.DateCreated, enc.DateChanged),
		},
		Status: fhirmodels.EncounterStatusFinished,
		Class: &fhir.Coding{
			System:  fhirmodels.SystemActCode,
			Code:    fhirmodels.EncounterClassAmbulatory,
			Display: "ambulatory",
		},
		Subject: t.refs.Patient(ctx, enc.Patient),
	}
	if enc.Voided {
		out.Status = fhirmodels.EncounterStatusEnteredInError
	}
	if enc.EncounterType.UUID != "" {
		out.Type = []fhir.CodeableConcept{
			fhir.NewCodeableConcept(SystemEncounterType, enc.EncounterType.UUID, enc.EncounterType.Name),
		}
	}
	if start := timePtr(enc.EncounterDatetime); start != nil {
		out.Period = &fhir.Period{Start: start}
	}
	for _, p := range enc.Providers {
		if p.Voided {
			continue
		}
		ref := &fhir.Reference{
			Reference:  fhir.FormatReference(fhir.TypePractitioner, p.Provider.UUID),
			Type:       fhir.TypePractitioner,
			Identifier: t.refs.ProviderIdentifier(ctx, &p.Provider),
			Display:    p.Provider.Name,
		}
		out.Participant = append(out.Participant, fhir.EncounterParticipant{Individual: ref})
	}
	if enc.Location != nil {
		out.Location = []fhir.EncounterLocation{{
			Location: fhir.Reference{
				Reference: fhir.FormatReference(fhir.TypeLocation, enc.Location.UUID),
				Type:      fhir.TypeLocation,
				Display:   enc.Location.Name,
			},
		}}
	}
	if enc.VisitUUID != "" {
		out.PartOf = &fhir.Reference{
			Reference: fhir.FormatReference(fhir.TypeEncounter, enc.VisitUUID),
			Type:      fhir.TypeEncounter,
		}
	}
	return out
}

// ServiceRequest is the referral shell for an encounter: keyed by the
// encounter uuid, active, intent order.
func (t *Translator) ServiceRequest(ctx context.Context, enc *clinical.Encounter) *fhir.ServiceRequest {
	if enc == nil || enc.UUID == "" {
		return nil
	}
	return &fhir.ServiceRequest{
		Resource: fhir.Resource{ResourceType: fhir.TypeServiceRequest, ID: enc.UUID},
		Status:   fhirmodels.RequestStatusActive,
		Intent:   fhirmodels.RequestIntentOrder,
		Subject:  t.refs.Patient(ctx, enc.Patient),
	}
}
