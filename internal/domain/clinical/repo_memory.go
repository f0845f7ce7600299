package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo keeps snapshots in memory. It backs development deployments
// without PostgreSQL and the package tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	entities map[Kind]map[string][]byte
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{entities: make(map[Kind]map[string][]byte)}
}

// Put stores v as the snapshot for kind/uuid.
func (m *MemoryRepo) Put(kind Kind, uuid string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Save(context.Background(), kind, uuid, payload)
}

func (m *MemoryRepo) Save(_ context.Context, kind Kind, uuid string, payload []byte) error {
	if _, err := payloadVoided(payload); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entities[kind] == nil {
		m.entities[kind] = make(map[string][]byte)
	}
	m.entities[kind][uuid] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryRepo) load(kind Kind, uuid string, dst interface{}) error {
	m.mu.RLock()
	payload, ok := m.entities[kind][uuid]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, uuid, ErrNotFound)
	}
	return json.Unmarshal(payload, dst)
}

func (m *MemoryRepo) GetPatient(_ context.Context, uuid string) (*Patient, error) {
	var v Patient
	if err := m.load(KindPatient, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetEncounter(_ context.Context, uuid string) (*Encounter, error) {
	var v Encounter
	if err := m.load(KindEncounter, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetObs(_ context.Context, uuid string) (*Obs, error) {
	var v Obs
	if err := m.load(KindObs, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetCondition(_ context.Context, uuid string) (*Condition, error) {
	var v Condition
	if err := m.load(KindCondition, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetDiagnosis(_ context.Context, uuid string) (*Diagnosis, error) {
	var v Diagnosis
	if err := m.load(KindDiagnosis, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetOrder(_ context.Context, uuid string) (*Order, error) {
	var v Order
	if err := m.load(KindOrder, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetAllergy(_ context.Context, uuid string) (*Allergy, error) {
	var v Allergy
	if err := m.load(KindAllergy, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetLocation(_ context.Context, uuid string) (*Location, error) {
	var v Location
	if err := m.load(KindLocation, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetProvider(_ context.Context, uuid string) (*Provider, error) {
	var v Provider
	if err := m.load(KindProvider, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) GetUser(_ context.Context, uuid string) (*User, error) {
	var v User
	if err := m.load(KindUser, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryRepo) sortedUUIDs(kind Kind) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entities[kind]))
	for uuid := range m.entities[kind] {
		out = append(out, uuid)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryRepo) FindLocationByAttribute(ctx context.Context, attributeTypeUUID, value string) (*Location, error) {
	if value == "" {
		return nil, fmt.Errorf("location with empty attribute value: %w", ErrNotFound)
	}
	for _, uuid := range m.sortedUUIDs(KindLocation) {
		loc, err := m.GetLocation(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if !loc.Retired && loc.Attribute(attributeTypeUUID) == value {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("location with attribute %s=%s: %w", attributeTypeUUID, value, ErrNotFound)
}

func (m *MemoryRepo) FindProvidersByPerson(ctx context.Context, personUUID string) ([]*Provider, error) {
	var out []*Provider
	for _, uuid := range m.sortedUUIDs(KindProvider) {
		p, err := m.GetProvider(ctx, uuid)
		if err != nil {
			return nil, err
		}
		if !p.Retired && p.PersonUUID == personUUID {
			out = append(out, p)
		}
	}
	return out, nil
}
