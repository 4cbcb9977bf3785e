package handlers

import (
	"net/http"
	"strconv"

	"pulsepay/internal/common"
	"pulsepay/internal/repositories"

	"github.com/labstack/echo/v4"
)

// EventHandlers exposes the durable payment event log.
type EventHandlers struct {
	eventRepo repositories.PaymentEventRepository
}

func NewEventHandlers(eventRepo repositories.PaymentEventRepository) *EventHandlers {
	return &EventHandlers{eventRepo: eventRepo}
}

// ListEvents handles GET /v1/events (owner only)
func (h *EventHandlers) ListEvents(c echo.Context) error {
	ctx := c.Request().Context()
	if err := common.RequireOwner(ctx); err != nil {
		return common.SendLedgerError(c, err)
	}

	limit, offset := 50, 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	events, err := h.eventRepo.List(ctx, limit, offset)
	if err != nil {
		return common.SendServerError(c, "failed to list events")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"limit":  limit,
		"offset": offset,
	})
}
