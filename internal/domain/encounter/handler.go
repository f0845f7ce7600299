package encounter

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/events"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/publish"
)

// Handler publishes encounter bundles in response to encounter events.
type Handler struct {
	asm       *Assembler
	publisher publish.Publisher
	logger    zerolog.Logger
}

func NewHandler(asm *Assembler, publisher publish.Publisher, logger zerolog.Logger) *Handler {
	return &Handler{asm: asm, publisher: publisher, logger: logger}
}

// Register subscribes the handler to created and updated encounters.
func (h *Handler) Register(reg *events.Registry) error {
	return reg.Register(string(clinical.KindEncounter), "encounter-bundle", events.DefaultActions(), h.Handle)
}

// Handle builds and publishes the bundle for the event's encounter, then
// publishes any diagnoses as a separate bundle. A missing encounter or a
// disabled encounter type drops the event.
func (h *Handler) Handle(ctx context.Context, principal auth.Principal, evt events.DomainEvent) error {
	enc, err := h.asm.Load(ctx, principal, evt.UUID)
	if errors.Is(err, clinical.ErrNotFound) {
		h.logger.Error().Err(err).Str("uuid", evt.UUID).Msg("encounter not found, dropping event")
		return nil
	}
	if err != nil {
		return err
	}
	bundle, err := h.asm.Assemble(ctx, principal, enc)
	switch {
	case errors.Is(err, ErrNotEnabled):
		h.logger.Debug().Str("uuid", evt.UUID).Msg("encounter type not enabled")
		return nil
	case err != nil:
		return err
	}
	pubErr := h.publisher.Publish(ctx, publish.Envelope{
		Kind:     string(clinical.KindEncounter),
		SourceID: evt.UUID,
		Bundle:   bundle,
	})

	diagnoses := h.asm.Diagnoses(ctx, principal, enc)
	if len(diagnoses) == 0 {
		return pubErr
	}
	env, err := publish.Single(string(clinical.KindDiagnosis), evt.UUID, diagnoses...)
	if err != nil {
		return errors.Join(pubErr, err)
	}
	return errors.Join(pubErr, h.publisher.Publish(ctx, env))
}

// RegisterRoutes mounts a read-only preview of an encounter's bundle.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/encounters/:uuid/bundle", h.Preview)
}

// Preview assembles the bundle without publishing it.
func (h *Handler) Preview(c echo.Context) error {
	bundle, err := h.asm.Build(c.Request().Context(), auth.SystemPrincipal("preview"), c.Param("uuid"))
	switch {
	case errors.Is(err, clinical.ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.ErrorOutcome("encounter not found"))
	case errors.Is(err, ErrNotEnabled):
		return c.JSON(http.StatusUnprocessableEntity, fhir.InvalidOutcome(err.Error()))
	case err != nil:
		h.logger.Error().Err(err).Str("uuid", c.Param("uuid")).Msg("failed to assemble bundle")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to assemble bundle"))
	}
	return c.JSON(http.StatusOK, bundle)
}
