package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hkipo/ipo-calendar-backend/services"
)

type DetailsHandler struct {
	Service *services.CachedCalendarService
}

func NewDetailsHandler(service *services.CachedCalendarService) *DetailsHandler {
	return &DetailsHandler{Service: service}
}

// GetIPODetails resolves filings and extracted terms for one calendar record
func (h *DetailsHandler) GetIPODetails(c *fiber.Ctx) error {
	id := c.Params("id")
	record, found := h.Service.GetRecordByID(c.Context(), id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "IPO not found",
		})
	}

	details := h.Service.GetIPODetails(c.Context(), record)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    details,
	})
}
