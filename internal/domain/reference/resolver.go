// Package reference maps clinical entities to external registry references.
//
// Resolution falls back in a fixed order so that bundles stay well formed
// when master data is incomplete:
//
//	patient   registry id -> "" (never absent)
//	provider  national id attribute -> provider name
//	facility  facility code attribute -> Organization shell without identifier
package reference

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/pkg/fhirmodels"
)

// Resolver builds references using configured identifier systems and
// attribute types.
type Resolver struct {
	props    *property.Reader
	clinical *clinical.Service
	logger   zerolog.Logger
}

func NewResolver(props *property.Reader, svc *clinical.Service, logger zerolog.Logger) *Resolver {
	return &Resolver{props: props, clinical: svc, logger: logger}
}

func officialIdentifier(system, value string) *fhir.Identifier {
	return &fhir.Identifier{
		Use:    fhirmodels.IdentifierUseOfficial,
		System: system,
		Value:  value,
	}
}

// PatientRegistryID returns the patient's client registry id, or "".
func (r *Resolver) PatientRegistryID(ctx context.Context, p *clinical.Patient) string {
	typeUUID := r.props.String(ctx, property.KeyCRIdentifierType)
	if typeUUID == "" {
		typeUUID = r.props.String(ctx, property.KeyNUPIIdentifierType)
	}
	return p.Identifier(typeUUID)
}

// Patient builds "Patient/<registry id>" with an official registry
// identifier. A patient without a registry id yields an empty value.
func (r *Resolver) Patient(ctx context.Context, p *clinical.Patient) *fhir.Reference {
	id := r.PatientRegistryID(ctx, p)
	return &fhir.Reference{
		Reference:  fhir.FormatReference(fhir.TypePatient, id),
		Type:       fhir.TypePatient,
		Identifier: officialIdentifier(r.props.String(ctx, property.KeyCRSystemURL), id),
	}
}

// ProviderIdentifier identifies a provider by national id, falling back to
// the provider name.
func (r *Resolver) ProviderIdentifier(ctx context.Context, p *clinical.Provider) *fhir.Identifier {
	ident := officialIdentifier(r.props.String(ctx, property.KeySystemURL), "")
	if p == nil {
		return ident
	}
	if id := p.Attribute(r.props.String(ctx, property.KeyProviderAttributeType)); id != "" {
		ident.Value = id
		return ident
	}
	ident.Value = p.Name
	return ident
}

// EncounterProviderIdentifier identifies the first active provider of the
// encounter. An encounter without providers yields an empty value.
func (r *Resolver) EncounterProviderIdentifier(ctx context.Context, enc *clinical.Encounter) *fhir.Identifier {
	for i := range enc.Providers {
		if enc.Providers[i].Voided {
			continue
		}
		return r.ProviderIdentifier(ctx, &enc.Providers[i].Provider)
	}
	return r.ProviderIdentifier(ctx, nil)
}

// UserIdentifier identifies a user through their provider account, falling
// back to the user's display name.
func (r *Resolver) UserIdentifier(ctx context.Context, principal auth.Principal, user *clinical.User) *fhir.Identifier {
	provider, err := r.clinical.ProviderForUser(ctx, principal, user)
	if err == nil {
		return r.ProviderIdentifier(ctx, provider)
	}
	ident := r.ProviderIdentifier(ctx, nil)
	if user != nil {
		ident.Value = user.Display
		if ident.Value == "" {
			ident.Value = user.Username
		}
	}
	return ident
}

// Performer is a Practitioner reference carrying the user's identifier.
func (r *Resolver) Performer(ctx context.Context, principal auth.Principal, user *clinical.User) *fhir.Reference {
	if user == nil {
		return nil
	}
	ident := r.UserIdentifier(ctx, principal, user)
	return &fhir.Reference{
		Type:       fhir.TypePractitioner,
		Identifier: ident,
		Display:    ident.Value,
	}
}

func (r *Resolver) facilityCode(ctx context.Context, loc *clinical.Location) string {
	attrType := r.props.StringOr(ctx, property.KeyMFLCodeAttributeType, property.DefaultMFLCodeAttributeType)
	return loc.Attribute(attrType)
}

func (r *Resolver) organizationShell(ctx context.Context) *fhir.Reference {
	return &fhir.Reference{
		Reference: r.props.String(ctx, property.KeyKMHFLSystemURL),
		Type:      fhir.TypeOrganization,
	}
}

// Facility builds an Organization reference for a location. When the
// location has a facility code the reference carries it as identifier and
// display; otherwise only the shell is returned.
func (r *Resolver) Facility(ctx context.Context, loc *clinical.Location) *fhir.Reference {
	ref := r.organizationShell(ctx)
	if code := r.facilityCode(ctx, loc); code != "" {
		ref.Identifier = officialIdentifier(r.props.String(ctx, property.KeyKMHFLSystemURL), code)
		ref.Display = code
	}
	return ref
}

// Organization is Facility without the display.
func (r *Resolver) Organization(ctx context.Context, loc *clinical.Location) *fhir.Reference {
	ref := r.organizationShell(ctx)
	if code := r.facilityCode(ctx, loc); code != "" {
		ref.Identifier = officialIdentifier(r.props.String(ctx, property.KeyKMHFLSystemURL), code)
	}
	return ref
}

// FacilityByCode builds a facility reference straight from a configured
// facility code. It returns nil when the code is empty.
func (r *Resolver) FacilityByCode(ctx context.Context, code string) *fhir.Reference {
	if code == "" {
		return nil
	}
	ref := r.organizationShell(ctx)
	ref.Identifier = officialIdentifier(r.props.String(ctx, property.KeyKMHFLSystemURL), code)
	ref.Display = code
	return ref
}

// DefaultFacility references the facility this deployment runs at.
func (r *Resolver) DefaultFacility(ctx context.Context) *fhir.Reference {
	return r.FacilityByCode(ctx, r.props.String(ctx, property.KeyDefaultFacilityMFLCode))
}

// LocationByCode finds the location carrying facility code code.
func (r *Resolver) LocationByCode(ctx context.Context, principal auth.Principal, code string) (*clinical.Location, error) {
	attrType := r.props.StringOr(ctx, property.KeyMFLCodeAttributeType, property.DefaultMFLCodeAttributeType)
	return r.clinical.LocationByAttribute(ctx, principal, attrType, code)
}
