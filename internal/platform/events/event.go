// Package events delivers clinical-record lifecycle events to handlers.
// Handlers are registered per entity kind and action; delivery is fire and
// forget on a goroutine per event, under an elevated principal built by the
// router.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
)

// ErrInvalidEvent is returned for events lacking a uuid or action.
var ErrInvalidEvent = errors.New("invalid event")

type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionVoided    Action = "voided"
	ActionUnvoided  Action = "unvoided"
	ActionRetired   Action = "retired"
	ActionUnretired Action = "unretired"
	ActionPurged    Action = "purged"
)

// DefaultActions is the action set most handlers subscribe to.
func DefaultActions() []Action {
	return []Action{ActionCreated, ActionUpdated}
}

// DomainEvent is one lifecycle notification as delivered by the host.
type DomainEvent struct {
	ID        string    `json:"id,omitempty"`
	Kind      string    `json:"kind"`
	Action    Action    `json:"action"`
	UUID      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the fields every handler relies on.
func (e DomainEvent) Validate() error {
	switch {
	case e.Kind == "":
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	case e.UUID == "":
		return fmt.Errorf("%w: missing uuid", ErrInvalidEvent)
	case e.Action == "":
		return fmt.Errorf("%w: missing action", ErrInvalidEvent)
	}
	return nil
}

// withDefaults assigns a delivery id and timestamp when the host omitted them.
func (e DomainEvent) withDefaults(now time.Time) DomainEvent {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return e
}

// HandlerFunc processes one event. Returned errors are logged by the router
// and never reach the event source.
type HandlerFunc func(ctx context.Context, principal auth.Principal, evt DomainEvent) error
