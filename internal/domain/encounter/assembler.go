// Package encounter turns an encounter into one transaction bundle: the
// encounter itself followed by the observations and referral that the
// configured processors select from it.
package encounter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/processor"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

// ErrNotEnabled is returned for encounters whose type is outside the
// configured interop.encounterTypes.enabled list.
var ErrNotEnabled = errors.New("encounter type not enabled for interop")

// Assembler builds encounter bundles.
type Assembler struct {
	props    *property.Reader
	clinical *clinical.Service
	tr       *translate.Translator
	logger   zerolog.Logger

	observations []processor.Processor[*fhir.Observation]
	referral     processor.Processor[*fhir.ServiceRequest]
	diagnosis    processor.Processor[*fhir.Condition]
}

// NewAssembler wires the vitals, complaints and lab processors in that
// order, followed by the referral processor. Diagnoses are kept out of
// the bundle and published on their own.
func NewAssembler(props *property.Reader, svc *clinical.Service, tr *translate.Translator, logger zerolog.Logger) *Assembler {
	return &Assembler{
		props:    props,
		clinical: svc,
		tr:       tr,
		logger:   logger,
		observations: []processor.Processor[*fhir.Observation]{
			processor.NewVitals(props, tr),
			processor.NewComplaints(props, tr),
			processor.NewLabResults(props, tr),
		},
		referral:  processor.NewReferral(props, tr, svc, logger),
		diagnosis: processor.NewDiagnosis(props, tr),
	}
}

// Load fetches the encounter as principal.
func (a *Assembler) Load(ctx context.Context, principal auth.Principal, uuid string) (*clinical.Encounter, error) {
	return a.clinical.Encounter(ctx, principal, uuid)
}

// Build loads the encounter and assembles its bundle.
func (a *Assembler) Build(ctx context.Context, principal auth.Principal, uuid string) (*fhir.Bundle, error) {
	enc, err := a.Load(ctx, principal, uuid)
	if err != nil {
		return nil, err
	}
	return a.Assemble(ctx, principal, enc)
}

// Diagnoses returns the diagnosis Conditions recorded on enc.
func (a *Assembler) Diagnoses(ctx context.Context, principal auth.Principal, enc *clinical.Encounter) []fhir.DomainResource {
	conds := a.diagnosis.Process(ctx, principal, enc)
	out := make([]fhir.DomainResource, 0, len(conds))
	for _, c := range conds {
		out = append(out, c)
	}
	return out
}

// Enabled reports whether enc passes the global encounter type gate. An
// unset gate lets every encounter through.
func (a *Assembler) Enabled(ctx context.Context, enc *clinical.Encounter) bool {
	gate := a.props.Codes(ctx, property.KeyEnabledEncounterTypes)
	return gate.IsEmpty() || gate.Contains(enc.EncounterType.UUID)
}

// Assemble builds the transaction bundle for enc. Every entry is a PUT to
// <ResourceType>/<id>, so assembling an unchanged encounter twice yields the
// same entries.
func (a *Assembler) Assemble(ctx context.Context, principal auth.Principal, enc *clinical.Encounter) (*fhir.Bundle, error) {
	if !a.Enabled(ctx, enc) {
		return nil, fmt.Errorf("encounter %s type %s: %w", enc.UUID, enc.EncounterType.UUID, ErrNotEnabled)
	}
	primary := a.tr.Encounter(ctx, enc)
	if primary == nil {
		return nil, fmt.Errorf("encounter %s: no translatable encounter", enc.UUID)
	}
	primary.Participant = nil
	primary.PartOf = nil
	primary.Location = nil
	if facility := a.tr.Refs().Facility(ctx, enc.Location); facility != nil {
		primary.Location = []fhir.EncounterLocation{{Location: *facility}}
	}
	primary.Subject = a.tr.Refs().Patient(ctx, enc.Patient)

	bundle := fhir.NewTransactionBundle()
	if err := bundle.AddPut(primary); err != nil {
		return nil, err
	}
	for _, p := range a.observations {
		for _, obs := range p.Process(ctx, principal, enc) {
			if err := bundle.AddPut(obs); err != nil {
				a.logger.Error().Err(err).Str("uuid", enc.UUID).Str("processor", p.Name()).Msg("skipping observation")
			}
		}
	}
	if requests := a.referral.Process(ctx, principal, enc); len(requests) > 0 {
		if err := bundle.AddPut(requests[0]); err != nil {
			a.logger.Error().Err(err).Str("uuid", enc.UUID).Msg("skipping referral")
		}
	}
	return bundle, nil
}
