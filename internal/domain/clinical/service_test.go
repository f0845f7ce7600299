package clinical

import (
	"context"
	"errors"
	"testing"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
)

var system = auth.SystemPrincipal("test")

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(repo.Put(KindPatient, "pat-1", &Patient{UUID: "pat-1", GivenName: "Jane"}))
	must(repo.Put(KindLocation, "loc-1", &Location{UUID: "loc-1", Name: "Siaya CRH", Attributes: []Attribute{
		{AttributeTypeUUID: "mfl", Value: "13939"},
	}}))
	must(repo.Put(KindEncounter, "enc-1", &Encounter{UUID: "enc-1", PatientUUID: "pat-1", LocationUUID: "loc-1"}))
	must(repo.Put(KindOrder, "ord-1", &Order{UUID: "ord-1", PatientUUID: "pat-1",
		Patient: &Patient{UUID: "pat-1", GivenName: "Stale"}}))
	must(repo.Put(KindProvider, "prov-2", &Provider{UUID: "prov-2", PersonUUID: "person-1", Name: "Second"}))
	must(repo.Put(KindProvider, "prov-1", &Provider{UUID: "prov-1", PersonUUID: "person-1", Name: "First"}))
	return NewService(repo), repo
}

func TestService_RequiresElevatedPrincipal(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Encounter(context.Background(), auth.AnonymousPrincipal(), "enc-1")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestService_EncounterHydratesReferences(t *testing.T) {
	svc, _ := newTestService(t)
	enc, err := svc.Encounter(context.Background(), system, "enc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.Patient == nil || enc.Patient.GivenName != "Jane" {
		t.Errorf("expected patient to be attached, got %+v", enc.Patient)
	}
	if enc.Location == nil || enc.Location.Name != "Siaya CRH" {
		t.Errorf("expected location to be attached, got %+v", enc.Location)
	}
}

func TestService_EncounterNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Encounter(context.Background(), system, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_OrderReResolvesSubject(t *testing.T) {
	svc, _ := newTestService(t)
	o, err := svc.Order(context.Background(), system, "ord-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Patient.GivenName != "Jane" {
		t.Errorf("expected subject from the patient record, got %q", o.Patient.GivenName)
	}
}

func TestService_LocationByAttribute(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	loc, err := svc.LocationByAttribute(ctx, system, "mfl", "13939")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.UUID != "loc-1" {
		t.Errorf("expected loc-1, got %s", loc.UUID)
	}
	if _, err := svc.LocationByAttribute(ctx, system, "mfl", "99999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.LocationByAttribute(ctx, system, "", "13939"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty type, got %v", err)
	}
}

func TestService_ProviderForUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.ProviderForUser(ctx, system, &User{UUID: "u1", PersonUUID: "person-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UUID != "prov-1" {
		t.Errorf("expected prov-1 (first by uuid), got %s", p.UUID)
	}
	if _, err := svc.ProviderForUser(ctx, system, &User{UUID: "u2", PersonUUID: "nobody"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ProviderForUser(ctx, system, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for nil user, got %v", err)
	}
}

func TestService_Ingest(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if err := svc.Ingest(ctx, system, KindAllergy, "al-1", []byte(`{"uuid":"al-1","patientUuid":"pat-1"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err := svc.Allergy(ctx, system, "al-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Patient == nil || a.Patient.UUID != "pat-1" {
		t.Errorf("expected patient attached, got %+v", a.Patient)
	}
	if err := svc.Ingest(ctx, system, Kind("visit"), "v1", []byte(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := repo.Save(ctx, KindObs, "bad", []byte(`not json`)); err == nil {
		t.Error("expected error for invalid payload")
	}
}
