package reference

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
)

const (
	crType    = "cr-type"
	nupiType  = "nupi-type"
	provAttr  = "prov-attr"
	crSystem  = "https://cr.example"
	sysURL    = "https://system.example"
	mflSystem = "https://kmhfl.example"
)

var system = auth.SystemPrincipal("test")

func newTestResolver(t *testing.T, extra map[string]string) (*Resolver, *clinical.MemoryRepo) {
	t.Helper()
	values := map[string]string{
		property.KeyCRIdentifierType:      crType,
		property.KeyProviderAttributeType: provAttr,
		property.KeyCRSystemURL:           crSystem,
		property.KeySystemURL:             sysURL,
		property.KeyKMHFLSystemURL:        mflSystem,
	}
	for k, v := range extra {
		values[k] = v
	}
	repo := clinical.NewMemoryRepo()
	props := property.NewReader(property.NewMemoryStore(values), zerolog.Nop())
	return NewResolver(props, clinical.NewService(repo), zerolog.Nop()), repo
}

func TestResolver_PatientWithRegistryID(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	p := &clinical.Patient{UUID: "pat-1", Identifiers: []clinical.PatientIdentifier{
		{IdentifierTypeUUID: "other", Identifier: "X"},
		{IdentifierTypeUUID: crType, Identifier: "CR123"},
	}}

	ref := r.Patient(context.Background(), p)
	if ref.Reference != "Patient/CR123" {
		t.Errorf("expected Patient/CR123, got %q", ref.Reference)
	}
	if ref.Type != fhir.TypePatient {
		t.Errorf("expected type Patient, got %q", ref.Type)
	}
	if ref.Identifier == nil || ref.Identifier.System != crSystem || ref.Identifier.Value != "CR123" {
		t.Errorf("unexpected identifier: %+v", ref.Identifier)
	}
	if ref.Identifier.Use != "official" {
		t.Errorf("expected official use, got %q", ref.Identifier.Use)
	}
}

func TestResolver_PatientWithoutRegistryIDYieldsEmptyValue(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	ref := r.Patient(context.Background(), &clinical.Patient{UUID: "pat-1"})
	if ref == nil || ref.Identifier == nil {
		t.Fatalf("expected a reference with identifier, got %+v", ref)
	}
	if ref.Identifier.Value != "" {
		t.Errorf("expected empty identifier value, got %q", ref.Identifier.Value)
	}
	if ref.Reference != "Patient/" {
		t.Errorf("expected Patient/, got %q", ref.Reference)
	}
}

func TestResolver_PatientNilIsTolerated(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	ref := r.Patient(context.Background(), nil)
	if ref.Identifier.Value != "" {
		t.Errorf("expected empty value, got %q", ref.Identifier.Value)
	}
}

func TestResolver_PatientFallsBackToNUPIType(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{
		property.KeyCRIdentifierType:   "",
		property.KeyNUPIIdentifierType: nupiType,
	})
	p := &clinical.Patient{Identifiers: []clinical.PatientIdentifier{{IdentifierTypeUUID: nupiType, Identifier: "N1"}}}
	if got := r.PatientRegistryID(context.Background(), p); got != "N1" {
		t.Errorf("expected N1, got %q", got)
	}
}

func TestResolver_ProviderIdentifier(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	tests := []struct {
		name     string
		provider *clinical.Provider
		want     string
	}{
		{"national id", &clinical.Provider{Name: "Dr Otieno", Attributes: []clinical.Attribute{{AttributeTypeUUID: provAttr, Value: "PUID-9"}}}, "PUID-9"},
		{"voided attribute falls back to name", &clinical.Provider{Name: "Dr Otieno", Attributes: []clinical.Attribute{{AttributeTypeUUID: provAttr, Value: "PUID-9", Voided: true}}}, "Dr Otieno"},
		{"name", &clinical.Provider{Name: "Dr Achieng"}, "Dr Achieng"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident := r.ProviderIdentifier(context.Background(), tt.provider)
			if ident.Value != tt.want {
				t.Errorf("expected %q, got %q", tt.want, ident.Value)
			}
			if ident.System != sysURL {
				t.Errorf("expected system %q, got %q", sysURL, ident.System)
			}
		})
	}
}

func TestResolver_EncounterProviderSkipsVoided(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	enc := &clinical.Encounter{Providers: []clinical.EncounterProvider{
		{Provider: clinical.Provider{Name: "Gone"}, Voided: true},
		{Provider: clinical.Provider{Name: "Present"}},
	}}
	if got := r.EncounterProviderIdentifier(context.Background(), enc).Value; got != "Present" {
		t.Errorf("expected Present, got %q", got)
	}
	if got := r.EncounterProviderIdentifier(context.Background(), &clinical.Encounter{}).Value; got != "" {
		t.Errorf("expected empty value without providers, got %q", got)
	}
}

func TestResolver_UserIdentifier(t *testing.T) {
	r, repo := newTestResolver(t, nil)
	if err := repo.Put(clinical.KindProvider, "prov-1", &clinical.Provider{
		UUID: "prov-1", PersonUUID: "person-1", Name: "Nurse Wanjiru",
		Attributes: []clinical.Attribute{{AttributeTypeUUID: provAttr, Value: "PUID-1"}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name string
		user *clinical.User
		want string
	}{
		{"via provider account", &clinical.User{PersonUUID: "person-1", Display: "wanjiru"}, "PUID-1"},
		{"display fallback", &clinical.User{PersonUUID: "person-2", Display: "Clerk One", Username: "clerk"}, "Clerk One"},
		{"username fallback", &clinical.User{Username: "clerk"}, "clerk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.UserIdentifier(ctx, system, tt.user).Value; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolver_Performer(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if ref := r.Performer(context.Background(), system, nil); ref != nil {
		t.Errorf("expected nil performer without user, got %+v", ref)
	}
	ref := r.Performer(context.Background(), system, &clinical.User{Display: "Clerk"})
	if ref.Type != fhir.TypePractitioner || ref.Display != "Clerk" || ref.Identifier.Value != "Clerk" {
		t.Errorf("unexpected performer: %+v", ref)
	}
}

func TestResolver_Facility(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	loc := &clinical.Location{UUID: "loc-1", Attributes: []clinical.Attribute{
		{AttributeTypeUUID: property.DefaultMFLCodeAttributeType, Value: "13939"},
	}}

	ref := r.Facility(context.Background(), loc)
	if ref.Type != fhir.TypeOrganization || ref.Reference != mflSystem {
		t.Errorf("unexpected shell: %+v", ref)
	}
	if ref.Identifier == nil || ref.Identifier.Value != "13939" || ref.Identifier.System != mflSystem {
		t.Errorf("unexpected identifier: %+v", ref.Identifier)
	}
	if ref.Display != "13939" {
		t.Errorf("expected display 13939, got %q", ref.Display)
	}

	org := r.Organization(context.Background(), loc)
	if org.Display != "" || org.Identifier == nil {
		t.Errorf("organization should carry identifier without display: %+v", org)
	}
}

func TestResolver_FacilityWithoutCodeIsShell(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	for _, loc := range []*clinical.Location{nil, {UUID: "loc-2"}} {
		ref := r.Facility(context.Background(), loc)
		if ref.Type != fhir.TypeOrganization {
			t.Errorf("expected Organization type, got %q", ref.Type)
		}
		if ref.Identifier != nil {
			t.Errorf("expected no identifier, got %+v", ref.Identifier)
		}
	}
}

func TestResolver_FacilityUsesConfiguredAttributeType(t *testing.T) {
	r, _ := newTestResolver(t, map[string]string{property.KeyMFLCodeAttributeType: "custom"})
	loc := &clinical.Location{Attributes: []clinical.Attribute{
		{AttributeTypeUUID: property.DefaultMFLCodeAttributeType, Value: "ignored"},
		{AttributeTypeUUID: "custom", Value: "555"},
	}}
	if got := r.Facility(context.Background(), loc).Identifier.Value; got != "555" {
		t.Errorf("expected 555, got %q", got)
	}
}

func TestResolver_DefaultFacility(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	if ref := r.DefaultFacility(context.Background()); ref != nil {
		t.Errorf("expected nil without configured code, got %+v", ref)
	}

	r, _ = newTestResolver(t, map[string]string{property.KeyDefaultFacilityMFLCode: "10001"})
	ref := r.DefaultFacility(context.Background())
	if ref == nil || ref.Identifier.Value != "10001" {
		t.Fatalf("unexpected default facility: %+v", ref)
	}
}

func TestResolver_LocationByCode(t *testing.T) {
	r, repo := newTestResolver(t, nil)
	if err := repo.Put(clinical.KindLocation, "loc-1", &clinical.Location{UUID: "loc-1", Attributes: []clinical.Attribute{
		{AttributeTypeUUID: property.DefaultMFLCodeAttributeType, Value: "13939"},
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loc, err := r.LocationByCode(context.Background(), system, "13939")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.UUID != "loc-1" {
		t.Errorf("expected loc-1, got %q", loc.UUID)
	}
	if _, err := r.LocationByCode(context.Background(), system, "00000"); err == nil {
		t.Error("expected error for unknown code")
	}
}
