package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hkipo/ipo-calendar-backend/services"
)

type CalendarHandler struct {
	Service *services.CachedCalendarService
	Events  *services.EventIndexService
}

func NewCalendarHandler(service *services.CachedCalendarService, events *services.EventIndexService) *CalendarHandler {
	return &CalendarHandler{Service: service, Events: events}
}

// GetCalendar returns the reconciled IPO calendar with provenance metadata.
// Pass live=false to serve the bundled sample dataset.
func (h *CalendarHandler) GetCalendar(c *fiber.Ctx) error {
	useLive := c.QueryBool("live", true)
	records, meta := h.Service.GetIPOCalendar(c.Context(), useLive)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    records,
		"meta":    meta,
	})
}

// GetCalendarEvents returns the day-keyed event index derived from the calendar
func (h *CalendarHandler) GetCalendarEvents(c *fiber.Ctx) error {
	useLive := c.QueryBool("live", true)
	records, meta := h.Service.GetIPOCalendar(c.Context(), useLive)
	events := h.Events.BuildEventIndex(records)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    events,
		"meta":    meta,
	})
}

// RefreshCalendar drops the cached calendar and refetches from live sources
func (h *CalendarHandler) RefreshCalendar(c *fiber.Ctx) error {
	h.Service.InvalidateCalendarCache()
	records, meta := h.Service.GetIPOCalendar(c.Context(), true)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    records,
		"meta":    meta,
	})
}
