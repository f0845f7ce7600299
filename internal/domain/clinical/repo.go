package clinical

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an entity is missing from the read model.
var ErrNotFound = errors.New("clinical entity not found")

// Repository reads clinical entity snapshots by uuid. Lookups of a missing
// entity return ErrNotFound.
type Repository interface {
	GetPatient(ctx context.Context, uuid string) (*Patient, error)
	GetEncounter(ctx context.Context, uuid string) (*Encounter, error)
	GetObs(ctx context.Context, uuid string) (*Obs, error)
	GetCondition(ctx context.Context, uuid string) (*Condition, error)
	GetDiagnosis(ctx context.Context, uuid string) (*Diagnosis, error)
	GetOrder(ctx context.Context, uuid string) (*Order, error)
	GetAllergy(ctx context.Context, uuid string) (*Allergy, error)
	GetLocation(ctx context.Context, uuid string) (*Location, error)
	GetProvider(ctx context.Context, uuid string) (*Provider, error)
	GetUser(ctx context.Context, uuid string) (*User, error)
	FindLocationByAttribute(ctx context.Context, attributeTypeUUID, value string) (*Location, error)
	FindProvidersByPerson(ctx context.Context, personUUID string) ([]*Provider, error)
	Save(ctx context.Context, kind Kind, uuid string, payload []byte) error
}
