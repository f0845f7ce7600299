package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

// ReferralProcessor derives at most one ServiceRequest from an encounter
// carrying screening observations. Symptoms become reason codes, referral
// reasons become categories, and the facility observation selects the
// performer. Missing pieces leave the matching field out.
type ReferralProcessor struct {
	props    *property.Reader
	tr       *translate.Translator
	clinical *clinical.Service
	logger   zerolog.Logger
}

func NewReferral(props *property.Reader, tr *translate.Translator, svc *clinical.Service, logger zerolog.Logger) *ReferralProcessor {
	return &ReferralProcessor{props: props, tr: tr, clinical: svc, logger: logger}
}

func (p *ReferralProcessor) Name() string { return "referral" }

// Rule gates on referral encounter types and the screening concepts.
func (p *ReferralProcessor) Rule(ctx context.Context) Rule {
	return loadRule(ctx, p.props, property.KeyReferralEncounterTypes, property.KeyReferralScreening)
}

type referralObs struct {
	screening []*clinical.Obs
	symptoms  []*clinical.Obs
	reasons   []*clinical.Obs
	note      string
	facility  string
}

func (p *ReferralProcessor) collect(ctx context.Context, enc *clinical.Encounter, rule Rule) referralObs {
	symptoms := p.props.Codes(ctx, property.KeyReferralSymptoms)
	reasons := p.props.Codes(ctx, property.KeyReferralReasons)
	noteConcept := p.props.String(ctx, property.KeyReferralNoteConcept)
	facilityConcept := p.props.StringOr(ctx, property.KeyReferralFacilityConcept, property.DefaultReferralFacilityConcept)

	var c referralObs
	for _, obs := range enc.AllObs() {
		concept := obs.Concept.UUID
		if rule.Concepts.Contains(concept) {
			c.screening = append(c.screening, obs)
		}
		if symptoms.Contains(concept) {
			c.symptoms = append(c.symptoms, obs)
		}
		if reasons.Contains(concept) {
			c.reasons = append(c.reasons, obs)
		}
		if noteConcept != "" && concept == noteConcept && obs.ValueText != "" {
			c.note = obs.ValueText
		}
		if concept == facilityConcept && obs.ValueText != "" {
			c.facility = obs.ValueText
		}
	}
	return c
}

func (p *ReferralProcessor) Process(ctx context.Context, principal auth.Principal, enc *clinical.Encounter) []*fhir.ServiceRequest {
	rule := p.Rule(ctx)
	if !rule.Applies(enc) {
		return nil
	}
	c := p.collect(ctx, enc, rule)
	if len(c.screening) == 0 {
		return nil
	}
	sr := p.tr.ServiceRequest(ctx, enc)
	if sr == nil {
		return nil
	}
	sr.Encounter = translate.EncounterReference(enc.UUID)
	if !enc.EncounterDatetime.IsZero() {
		authored := enc.EncounterDatetime
		sr.AuthoredOn = &authored
	}
	if c.note != "" {
		sr.Note = append(sr.Note, fhir.Annotation{Text: c.note})
	}
	for _, obs := range c.symptoms {
		if cc := translate.Concept(obs.ValueCoded); cc != nil {
			sr.ReasonCode = append(sr.ReasonCode, *cc)
		}
	}
	for _, obs := range c.reasons {
		if cc := translate.Concept(obs.ValueCoded); cc != nil {
			sr.Category = append(sr.Category, *cc)
		}
	}
	if len(sr.Category) == 0 {
		sr.Category = []fhir.CodeableConcept{fhir.NewCodeableConcept(fhirmodels.SystemCIEL,
			fhirmodels.ReferralDefaultCategoryCode, fhirmodels.ReferralDefaultCategoryDisplay)}
	}
	for _, obs := range c.screening {
		sr.SupportingInfo = append(sr.SupportingInfo, fhir.Reference{
			Reference: fhir.FormatReference(fhir.TypeObservation, obs.UUID),
			Type:      fhir.TypeObservation,
		})
	}

	refs := p.tr.Refs()
	sr.Requester = refs.DefaultFacility(ctx)
	if loc := p.facilityLocation(ctx, principal, enc.UUID, c.facility); loc != nil {
		sr.Performer = []fhir.Reference{*refs.Facility(ctx, loc)}
	} else if fallback := refs.FacilityByCode(ctx, p.props.String(ctx, property.KeyReferralFacilityMFLCode)); fallback != nil {
		sr.Performer = []fhir.Reference{*fallback}
	}
	return []*fhir.ServiceRequest{sr}
}

// facilityLocation resolves the facility observation value. Values look
// like "<facility code>-<name>"; the code is tried first, then the whole
// value as a location uuid.
func (p *ReferralProcessor) facilityLocation(ctx context.Context, principal auth.Principal, encUUID, value string) *clinical.Location {
	if value == "" {
		return nil
	}
	code := strings.TrimSpace(strings.SplitN(value, "-", 2)[0])
	loc, err := p.tr.Refs().LocationByCode(ctx, principal, code)
	if err == nil {
		return loc
	}
	if !errors.Is(err, clinical.ErrNotFound) {
		p.logger.Error().Err(err).Str("encounter", encUUID).Msg("referral facility lookup failed")
		return nil
	}
	loc, err = p.clinical.Location(ctx, principal, strings.TrimSpace(value))
	if err != nil {
		p.logger.Warn().Str("encounter", encUUID).Str("facility", value).Msg("referral facility not found")
		return nil
	}
	return loc
}
