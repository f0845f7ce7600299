package clinical

import (
	"context"
	"errors"
	"fmt"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
)

// ErrForbidden is returned when a lookup is attempted without an elevated
// principal.
var ErrForbidden = errors.New("clinical lookups require an elevated principal")

// Service is the privileged entry point to clinical data. Every lookup takes
// the caller's principal explicitly; event handlers receive an elevated one
// from the router.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func authorize(p auth.Principal) error {
	if !p.Elevated() {
		return fmt.Errorf("%s: %w", p.Name(), ErrForbidden)
	}
	return nil
}

// Encounter loads an encounter with its patient and location attached.
func (s *Service) Encounter(ctx context.Context, p auth.Principal, uuid string) (*Encounter, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	enc, err := s.repo.GetEncounter(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if enc.Patient == nil && enc.PatientUUID != "" {
		if enc.Patient, err = s.repo.GetPatient(ctx, enc.PatientUUID); err != nil {
			return nil, fmt.Errorf("encounter %s patient: %w", uuid, err)
		}
	}
	if enc.Location == nil && enc.LocationUUID != "" {
		loc, err := s.repo.GetLocation(ctx, enc.LocationUUID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("encounter %s location: %w", uuid, err)
		}
		enc.Location = loc
	}
	return enc, nil
}

func (s *Service) Patient(ctx context.Context, p auth.Principal, uuid string) (*Patient, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	return s.repo.GetPatient(ctx, uuid)
}

func (s *Service) attachPatient(ctx context.Context, current *Patient, patientUUID string) (*Patient, error) {
	if current != nil || patientUUID == "" {
		return current, nil
	}
	return s.repo.GetPatient(ctx, patientUUID)
}

func (s *Service) Condition(ctx context.Context, p auth.Principal, uuid string) (*Condition, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	c, err := s.repo.GetCondition(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if c.Patient, err = s.attachPatient(ctx, c.Patient, c.PatientUUID); err != nil {
		return nil, fmt.Errorf("condition %s patient: %w", uuid, err)
	}
	return c, nil
}

func (s *Service) Diagnosis(ctx context.Context, p auth.Principal, uuid string) (*Diagnosis, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	d, err := s.repo.GetDiagnosis(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if d.Patient, err = s.attachPatient(ctx, d.Patient, d.PatientUUID); err != nil {
		return nil, fmt.Errorf("diagnosis %s patient: %w", uuid, err)
	}
	return d, nil
}

// Order loads an order. The subject is always re-read from the patient
// record rather than trusted from the order snapshot.
func (s *Service) Order(ctx context.Context, p auth.Principal, uuid string) (*Order, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	o, err := s.repo.GetOrder(ctx, uuid)
	if err != nil {
		return nil, err
	}
	patientUUID := o.PatientUUID
	if patientUUID == "" && o.Patient != nil {
		patientUUID = o.Patient.UUID
	}
	if patientUUID != "" {
		if o.Patient, err = s.repo.GetPatient(ctx, patientUUID); err != nil {
			return nil, fmt.Errorf("order %s patient: %w", uuid, err)
		}
	}
	return o, nil
}

func (s *Service) Allergy(ctx context.Context, p auth.Principal, uuid string) (*Allergy, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	a, err := s.repo.GetAllergy(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if a.Patient, err = s.attachPatient(ctx, a.Patient, a.PatientUUID); err != nil {
		return nil, fmt.Errorf("allergy %s patient: %w", uuid, err)
	}
	return a, nil
}

func (s *Service) Location(ctx context.Context, p auth.Principal, uuid string) (*Location, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	return s.repo.GetLocation(ctx, uuid)
}

// LocationByAttribute finds a location carrying attribute type=value.
func (s *Service) LocationByAttribute(ctx context.Context, p auth.Principal, attributeTypeUUID, value string) (*Location, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	if attributeTypeUUID == "" || value == "" {
		return nil, fmt.Errorf("location attribute lookup without type or value: %w", ErrNotFound)
	}
	return s.repo.FindLocationByAttribute(ctx, attributeTypeUUID, value)
}

// ProviderForUser returns the first provider account of the user's person.
func (s *Service) ProviderForUser(ctx context.Context, p auth.Principal, user *User) (*Provider, error) {
	if err := authorize(p); err != nil {
		return nil, err
	}
	if user == nil || user.PersonUUID == "" {
		return nil, fmt.Errorf("user without person: %w", ErrNotFound)
	}
	providers, err := s.repo.FindProvidersByPerson(ctx, user.PersonUUID)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("providers for person %s: %w", user.PersonUUID, ErrNotFound)
	}
	return providers[0], nil
}

// Ingest stores a snapshot pushed by the host system.
func (s *Service) Ingest(ctx context.Context, p auth.Principal, kind Kind, uuid string, payload []byte) error {
	if err := authorize(p); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return s.repo.Save(ctx, kind, uuid, payload)
}
