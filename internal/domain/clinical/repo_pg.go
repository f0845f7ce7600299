package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG reads snapshots from the clinical_entity table.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) load(ctx context.Context, kind Kind, uuid string, dst interface{}) error {
	var payload []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT payload FROM clinical_entity WHERE kind = $1 AND uuid = $2`,
		string(kind), uuid).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, uuid, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", kind, uuid, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, uuid, err)
	}
	return nil
}

func (r *repoPG) GetPatient(ctx context.Context, uuid string) (*Patient, error) {
	var v Patient
	if err := r.load(ctx, KindPatient, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetEncounter(ctx context.Context, uuid string) (*Encounter, error) {
	var v Encounter
	if err := r.load(ctx, KindEncounter, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetObs(ctx context.Context, uuid string) (*Obs, error) {
	var v Obs
	if err := r.load(ctx, KindObs, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetCondition(ctx context.Context, uuid string) (*Condition, error) {
	var v Condition
	if err := r.load(ctx, KindCondition, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetDiagnosis(ctx context.Context, uuid string) (*Diagnosis, error) {
	var v Diagnosis
	if err := r.load(ctx, KindDiagnosis, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetOrder(ctx context.Context, uuid string) (*Order, error) {
	var v Order
	if err := r.load(ctx, KindOrder, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetAllergy(ctx context.Context, uuid string) (*Allergy, error) {
	var v Allergy
	if err := r.load(ctx, KindAllergy, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetLocation(ctx context.Context, uuid string) (*Location, error) {
	var v Location
	if err := r.load(ctx, KindLocation, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetProvider(ctx context.Context, uuid string) (*Provider, error) {
	var v Provider
	if err := r.load(ctx, KindProvider, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) GetUser(ctx context.Context, uuid string) (*User, error) {
	var v User
	if err := r.load(ctx, KindUser, uuid, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) FindLocationByAttribute(ctx context.Context, attributeTypeUUID, value string) (*Location, error) {
	filter, err := json.Marshal([]Attribute{{AttributeTypeUUID: attributeTypeUUID, Value: value}})
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT payload FROM clinical_entity
		WHERE kind = $1 AND voided = FALSE AND payload->'attributes' @> $2::jsonb
		ORDER BY updated_at DESC LIMIT 1`,
		string(KindLocation), string(filter)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("location with attribute %s=%s: %w", attributeTypeUUID, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find location by attribute: %w", err)
	}
	var loc Location
	if err := json.Unmarshal(payload, &loc); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, nil
}

func (r *repoPG) FindProvidersByPerson(ctx context.Context, personUUID string) ([]*Provider, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT payload FROM clinical_entity
		WHERE kind = $1 AND voided = FALSE AND payload->>'personUuid' = $2
		ORDER BY uuid`,
		string(KindProvider), personUUID)
	if err != nil {
		return nil, fmt.Errorf("find providers by person: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p Provider
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode provider: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) Save(ctx context.Context, kind Kind, uuid string, payload []byte) error {
	voided, err := payloadVoided(payload)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical_entity (kind, uuid, payload, voided, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, NOW())
		ON CONFLICT (kind, uuid) DO UPDATE
		SET payload = EXCLUDED.payload, voided = EXCLUDED.voided, updated_at = NOW()`,
		string(kind), uuid, string(payload), voided)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", kind, uuid, err)
	}
	return nil
}

// payloadVoided validates the snapshot and reports its voided/retired flag.
func payloadVoided(payload []byte) (bool, error) {
	var flags struct {
		Voided  bool `json:"voided"`
		Retired bool `json:"retired"`
	}
	if err := json.Unmarshal(payload, &flags); err != nil {
		return false, fmt.Errorf("invalid entity payload: %w", err)
	}
	return flags.Voided || flags.Retired, nil
}
