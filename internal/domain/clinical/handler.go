package clinical

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
)

const maxSnapshotBytes = 4 << 20

// Handler accepts entity snapshots pushed by the host when the read model
// is not backed by the host's database.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts PUT /entities/:kind/:uuid.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.PUT("/entities/:kind/:uuid", h.Put)
}

// Put stores the JSON body as the snapshot of kind/uuid.
func (h *Handler) Put(c echo.Context) error {
	kind := Kind(c.Param("kind"))
	uuid := c.Param("uuid")
	if !kind.Valid() {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("unknown entity kind "+string(kind)))
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSnapshotBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("unreadable body"))
	}
	var head struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("malformed snapshot: "+err.Error()))
	}
	if head.UUID != "" && head.UUID != uuid {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("snapshot uuid does not match path"))
	}
	if err := h.svc.Ingest(c.Request().Context(), auth.SystemPrincipal("ingest"), kind, uuid, body); err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Str("uuid", uuid).Msg("failed to store snapshot")
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome("failed to store snapshot"))
	}
	return c.NoContent(http.StatusNoContent)
}
