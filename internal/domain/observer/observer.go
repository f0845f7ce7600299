// Package observer publishes single clinical records as they change:
// conditions, diagnoses, orders and allergies each become a small
// transaction bundle.
package observer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/events"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/publish"
)

// Observer holds the per-record handlers.
type Observer struct {
	props     *property.Reader
	clinical  *clinical.Service
	tr        *translate.Translator
	publisher publish.Publisher
	logger    zerolog.Logger
}

func New(props *property.Reader, svc *clinical.Service, tr *translate.Translator, publisher publish.Publisher, logger zerolog.Logger) *Observer {
	return &Observer{props: props, clinical: svc, tr: tr, publisher: publisher, logger: logger}
}

// Register subscribes every handler to created and updated events.
func (o *Observer) Register(reg *events.Registry) error {
	subs := []struct {
		kind clinical.Kind
		name string
		fn   events.HandlerFunc
	}{
		{clinical.KindCondition, "condition", o.HandleCondition},
		{clinical.KindDiagnosis, "diagnosis", o.HandleDiagnosis},
		{clinical.KindOrder, "order", o.HandleOrder},
		{clinical.KindAllergy, "allergy", o.HandleAllergy},
	}
	for _, s := range subs {
		if err := reg.Register(string(s.kind), s.name, events.DefaultActions(), s.fn); err != nil {
			return err
		}
	}
	return nil
}

// missing logs and swallows not-found lookups; the record may have been
// purged before the event was handled.
func (o *Observer) missing(err error, kind clinical.Kind, uuid string) error {
	if errors.Is(err, clinical.ErrNotFound) {
		o.logger.Error().Err(err).Str("kind", string(kind)).Str("uuid", uuid).Msg("entity not found, dropping event")
		return nil
	}
	return err
}

func (o *Observer) publish(ctx context.Context, kind clinical.Kind, uuid string, resources ...fhir.DomainResource) error {
	if len(resources) == 0 {
		o.logger.Warn().Str("kind", string(kind)).Str("uuid", uuid).Msg("nothing to publish")
		return nil
	}
	env, err := publish.Single(string(kind), uuid, resources...)
	if err != nil {
		return err
	}
	return o.publisher.Publish(ctx, env)
}

// HandleCondition publishes a problem-list condition. When
// interop.conditions is set only conditions with a listed concept are sent.
func (o *Observer) HandleCondition(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	c, err := o.clinical.Condition(ctx, principal, evt.UUID)
	if err != nil {
		return o.missing(err, clinical.KindCondition, evt.UUID)
	}
	if allow := o.props.Codes(ctx, property.KeyConditions); !allow.IsEmpty() {
		if c.Concept == nil || !allow.Contains(c.Concept.UUID) {
			o.logger.Debug().Str("uuid", evt.UUID).Msg("condition concept not configured")
			return nil
		}
	}
	cond := o.tr.Condition(ctx, c)
	if cond == nil {
		return o.publish(ctx, clinical.KindCondition, evt.UUID)
	}
	cond.Recorder = o.tr.Refs().Performer(ctx, principal, c.Creator)
	return o.publish(ctx, clinical.KindCondition, evt.UUID, cond)
}

// HandleDiagnosis publishes an encounter diagnosis as a Condition.
func (o *Observer) HandleDiagnosis(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	d, err := o.clinical.Diagnosis(ctx, principal, evt.UUID)
	if err != nil {
		return o.missing(err, clinical.KindDiagnosis, evt.UUID)
	}
	cond := o.tr.Diagnosis(ctx, d)
	if cond == nil {
		return o.publish(ctx, clinical.KindDiagnosis, evt.UUID)
	}
	cond.Recorder = o.tr.Refs().Performer(ctx, principal, d.Creator)
	return o.publish(ctx, clinical.KindDiagnosis, evt.UUID, cond)
}

// HandleOrder publishes drug orders as Medication plus MedicationRequest
// and test orders as a ServiceRequest. Other order types are ignored.
func (o *Observer) HandleOrder(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	ord, err := o.clinical.Order(ctx, principal, evt.UUID)
	if err != nil {
		return o.missing(err, clinical.KindOrder, evt.UUID)
	}
	var resources []fhir.DomainResource
	switch ord.OrderTypeUUID {
	case clinical.OrderTypeDrug:
		if med := o.tr.Medication(ord.Drug); med != nil {
			resources = append(resources, med)
		}
		if req := o.tr.MedicationRequest(ctx, ord); req != nil {
			resources = append(resources, req)
		}
	case clinical.OrderTypeTest:
		if req := o.tr.TestOrder(ctx, ord); req != nil {
			resources = append(resources, req)
		}
	default:
		o.logger.Debug().Str("uuid", evt.UUID).Str("order_type", ord.OrderTypeUUID).Msg("order type not published")
		return nil
	}
	if err := o.publish(ctx, clinical.KindOrder, evt.UUID, resources...); err != nil {
		return fmt.Errorf("order %s: %w", evt.UUID, err)
	}
	return nil
}

// HandleAllergy publishes an AllergyIntolerance.
func (o *Observer) HandleAllergy(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	a, err := o.clinical.Allergy(ctx, principal, evt.UUID)
	if err != nil {
		return o.missing(err, clinical.KindAllergy, evt.UUID)
	}
	allergy := o.tr.Allergy(ctx, a)
	if allergy == nil {
		return o.publish(ctx, clinical.KindAllergy, evt.UUID)
	}
	return o.publish(ctx, clinical.KindAllergy, evt.UUID, allergy)
}
