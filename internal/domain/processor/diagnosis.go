package processor

import (
	"context"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// DiagnosisProcessor turns diagnosis observations into encounter-diagnosis
// Conditions recorded by the encounter's provider.
type DiagnosisProcessor struct {
	props *property.Reader
	tr    *translate.Translator
}

func NewDiagnosis(props *property.Reader, tr *translate.Translator) *DiagnosisProcessor {
	return &DiagnosisProcessor{props: props, tr: tr}
}

func (p *DiagnosisProcessor) Name() string { return "diagnosis" }

func (p *DiagnosisProcessor) Rule(ctx context.Context) Rule {
	return loadRule(ctx, p.props, property.KeyDiagnosisEncounterTypes, property.KeyDiagnosisConcepts)
}

func (p *DiagnosisProcessor) Process(ctx context.Context, _ auth.Principal, enc *clinical.Encounter) []*fhir.Condition {
	selected := p.Rule(ctx).Select(enc)
	if len(selected) == 0 {
		return nil
	}
	recorder := &fhir.Reference{
		Type:       fhir.TypePractitioner,
		Identifier: p.tr.Refs().EncounterProviderIdentifier(ctx, enc),
	}
	var out []*fhir.Condition
	for _, obs := range selected {
		c := p.tr.DiagnosisObs(ctx, obs, enc.Patient)
		if c == nil {
			continue
		}
		c.Encounter = translate.EncounterReference(enc.UUID)
		c.Recorder = recorder
		out = append(out, c)
	}
	return out
}
