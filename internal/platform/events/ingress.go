package events

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/fhir"
)

const maxEventBytes = 64 << 10

// Ingress accepts events from the host over HTTP.
type Ingress struct {
	router *Router
	logger zerolog.Logger
}

func NewIngress(router *Router, logger zerolog.Logger) *Ingress {
	return &Ingress{router: router, logger: logger}
}

// RegisterRoutes mounts POST /events.
func (h *Ingress) RegisterRoutes(e *echo.Echo) {
	e.POST("/events", h.Receive)
}

type receipt struct {
	Status    string `json:"status"`
	Scheduled int    `json:"scheduled"`
}

// Receive acknowledges the event before any processing happens. Bodies
// that are not JSON are rejected; events missing a uuid or action are
// accepted and dropped.
func (h *Ingress) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEventBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("unreadable body"))
	}
	var evt DomainEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("malformed event: "+err.Error()))
	}
	if err := evt.Validate(); err != nil {
		h.logger.Warn().Err(err).Str("kind", evt.Kind).Str("uuid", evt.UUID).Msg("dropping event")
		return c.JSON(http.StatusAccepted, receipt{Status: "dropped"})
	}
	n := h.router.Dispatch(evt)
	return c.JSON(http.StatusAccepted, receipt{Status: "accepted", Scheduled: n})
}
