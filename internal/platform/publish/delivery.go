package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery records the outcome of one hand-off to the shared health record.
type Delivery struct {
	SourceKind  string    `json:"source_kind"`
	SourceUUID  string    `json:"source_uuid"`
	Entries     int       `json:"entries"`
	StatusCode  int       `json:"status_code"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// DeliveryLog persists delivery outcomes.
type DeliveryLog interface {
	Record(ctx context.Context, d *Delivery) error
}

// MemoryDeliveryLog keeps deliveries in insertion order.
type MemoryDeliveryLog struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func NewMemoryDeliveryLog() *MemoryDeliveryLog { return &MemoryDeliveryLog{} }

func (m *MemoryDeliveryLog) Record(_ context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, *d)
	return nil
}

// Deliveries returns a copy of the recorded deliveries.
func (m *MemoryDeliveryLog) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

type pgDeliveryLog struct{ pool *pgxpool.Pool }

// NewPGDeliveryLog writes deliveries to the publish_log table.
func NewPGDeliveryLog(pool *pgxpool.Pool) DeliveryLog { return &pgDeliveryLog{pool: pool} }

func (l *pgDeliveryLog) Record(ctx context.Context, d *Delivery) error {
	var status *int
	if d.StatusCode != 0 {
		status = &d.StatusCode
	}
	var errText *string
	if d.Error != "" {
		errText = &d.Error
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO publish_log (source_kind, source_uuid, entries, status_code, error, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.SourceKind, d.SourceUUID, d.Entries, status, errText, d.PublishedAt)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
