// Package processor selects the observations of an encounter that belong to
// a clinical category and turns them into resources. Every processor is
// gated on configured encounter types and filters on configured concepts;
// unset configuration yields empty sets, which disables the processor.
package processor

import (
	"context"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// Processor produces resources of type R from an encounter.
type Processor[R fhir.DomainResource] interface {
	Name() string
	Rule(ctx context.Context) Rule
	Process(ctx context.Context, principal auth.Principal, enc *clinical.Encounter) []R
}

// Rule is the applicability configuration of a processor, read through on
// every call.
type Rule struct {
	EncounterTypes property.CodeSet
	Concepts       property.CodeSet
}

func loadRule(ctx context.Context, props *property.Reader, typesKey, conceptsKey string) Rule {
	return Rule{
		EncounterTypes: props.Codes(ctx, typesKey),
		Concepts:       props.Codes(ctx, conceptsKey),
	}
}

// Applies reports whether the encounter's type passes the gate.
func (r Rule) Applies(enc *clinical.Encounter) bool {
	return enc != nil && r.EncounterTypes.Contains(enc.EncounterType.UUID)
}

// Select returns the encounter's observations, grouped members included,
// whose concept is configured. Source order is preserved. An encounter that
// fails the gate selects nothing.
func (r Rule) Select(enc *clinical.Encounter) []*clinical.Obs {
	if !r.Applies(enc) {
		return nil
	}
	var out []*clinical.Obs
	for _, obs := range enc.AllObs() {
		if r.Concepts.Contains(obs.Concept.UUID) {
			out = append(out, obs)
		}
	}
	return out
}
