package processor

import (
	"context"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

// decorator adds category specific detail to a translated observation.
type decorator func(ctx context.Context, principal auth.Principal, obs *clinical.Obs, out *fhir.Observation)

// ObservationProcessor translates selected observations and tags them with
// an observation category.
type ObservationProcessor struct {
	name        string
	category    fhir.CodeableConcept
	typesKey    string
	conceptsKey string
	props       *property.Reader
	tr          *translate.Translator
	decorate    decorator
}

func (p *ObservationProcessor) Name() string { return p.name }

func (p *ObservationProcessor) Rule(ctx context.Context) Rule {
	return loadRule(ctx, p.props, p.typesKey, p.conceptsKey)
}

func (p *ObservationProcessor) Process(ctx context.Context, principal auth.Principal, enc *clinical.Encounter) []*fhir.Observation {
	var out []*fhir.Observation
	for _, obs := range p.Rule(ctx).Select(enc) {
		o := p.tr.Observation(ctx, obs, enc.Patient)
		if o == nil {
			continue
		}
		if o.Encounter == nil {
			o.Encounter = translate.EncounterReference(enc.UUID)
		}
		o.AddCategory(p.category)
		if p.decorate != nil {
			p.decorate(ctx, principal, obs, o)
		}
		out = append(out, o)
	}
	return out
}

func observationCategory(code, display string) fhir.CodeableConcept {
	return fhir.NewCodeableConcept(fhirmodels.SystemObservationCategory, code, display)
}

// NewVitals builds the vital-signs processor. Vitals carry the registry
// identifier of the source obs and the recording user as performer.
func NewVitals(props *property.Reader, tr *translate.Translator) *ObservationProcessor {
	return &ObservationProcessor{
		name:        "vitals",
		category:    observationCategory(fhirmodels.ObsCategoryVitalSigns, "Vital Signs"),
		typesKey:    property.KeyVitalsEncounterTypes,
		conceptsKey: property.KeyVitalsConcepts,
		props:       props,
		tr:          tr,
		decorate: func(ctx context.Context, principal auth.Principal, obs *clinical.Obs, out *fhir.Observation) {
			out.Identifier = append(out.Identifier, fhir.Identifier{
				Use:    fhirmodels.IdentifierUseOfficial,
				System: fhirmodels.SystemSHR,
				Value:  obs.UUID,
			})
			if performer := tr.Refs().Performer(ctx, principal, obs.Creator); performer != nil {
				out.Performer = append(out.Performer, *performer)
			}
		},
	}
}

func NewComplaints(props *property.Reader, tr *translate.Translator) *ObservationProcessor {
	return &ObservationProcessor{
		name:        "complaints",
		category:    observationCategory(fhirmodels.ObsCategoryExam, "Exam"),
		typesKey:    property.KeyComplaintsEncounterTypes,
		conceptsKey: property.KeyComplaintsConcepts,
		props:       props,
		tr:          tr,
	}
}

func NewLabResults(props *property.Reader, tr *translate.Translator) *ObservationProcessor {
	return &ObservationProcessor{
		name:        "labResults",
		category:    observationCategory(fhirmodels.ObsCategoryLaboratory, "Laboratory"),
		typesKey:    property.KeyLabEncounterTypes,
		conceptsKey: property.KeyLabConcepts,
		props:       props,
		tr:          tr,
	}
}
