package property

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps properties in the global_property table.
type PGStore struct {
	db querier
}

// NewPGStore creates a Postgres-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

func (s *PGStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx,
		`SELECT property_value FROM global_property WHERE property = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get property %s: %w", key, err)
	}
	return value, nil
}

func (s *PGStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO global_property (property, property_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (property) DO UPDATE SET property_value = EXCLUDED.property_value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}
