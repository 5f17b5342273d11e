package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hkipo/ipo-calendar-backend/services"
)

type CacheHandler struct {
	Service *services.CachedCalendarService
}

func NewCacheHandler(service *services.CachedCalendarService) *CacheHandler {
	return &CacheHandler{Service: service}
}

// GetCacheStats reports cache occupancy for diagnostics
func (h *CacheHandler) GetCacheStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Service.GetCacheStats(),
	})
}

// InvalidateCalendarCache forces the next calendar request to refetch
func (h *CacheHandler) InvalidateCalendarCache(c *fiber.Ctx) error {
	h.Service.InvalidateCalendarCache()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Calendar cache invalidated",
	})
}
