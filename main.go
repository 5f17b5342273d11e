package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"

	"github.com/hkipo/ipo-calendar-backend/config"
	"github.com/hkipo/ipo-calendar-backend/handlers"
	"github.com/hkipo/ipo-calendar-backend/jobs"
	"github.com/hkipo/ipo-calendar-backend/services"
	"github.com/hkipo/ipo-calendar-backend/shared"
)

func main() {
	// Load config
	cfg := config.LoadConfig()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		log.Printf("Invalid LOG_LEVEL %q, keeping default: %v", cfg.LogLevel, err)
	}

	rateLimitConfig := config.DefaultRateLimitConfig()
	cacheConfig := config.DefaultCacheConfig()
	if cfg.CacheTTLMinutes != "" {
		cacheConfig.DefaultTTL = cfg.GetCacheTTL()
	}

	// Shared infrastructure. The rate limiter enforces whichever is slower:
	// the request-rate floor or the politeness delay.
	httpFactory := shared.NewHTTPClientFactory(cfg.GetHTTPTimeout())
	minimumDelay := rateLimitConfig.PolitenessDelay
	if rateLimitConfig.RequestsPerSecond > 0 {
		if rateDelay := time.Duration(float64(time.Second) / rateLimitConfig.RequestsPerSecond); rateDelay > minimumDelay {
			minimumDelay = rateDelay
		}
	}
	rateLimiter := shared.NewHTTPRequestRateLimiter(minimumDelay)

	// Acquisition and normalization services
	normalizer := services.NewNormalizerService()
	listingReport := services.NewListingReportAdapter(httpFactory, rateLimiter, normalizer)
	secondarySite := services.NewSecondarySiteAdapter(httpFactory, rateLimiter, normalizer)
	applicationProof := services.NewApplicationProofAdapter(httpFactory, rateLimiter, normalizer)
	fallbackCalendar := services.NewFallbackCalendarAdapter(httpFactory, rateLimiter, normalizer, cfg.LegacyCalendarURL)
	sampleData := services.NewSampleDataService(cfg.DataDir, normalizer)

	calendarService := services.NewCalendarService(
		listingReport,
		secondarySite,
		applicationProof,
		fallbackCalendar,
		sampleData,
		normalizer,
	)
	eventIndex := services.NewEventIndexService()

	// Detail resolution services
	searchService := services.NewFilingSearchService(httpFactory, rateLimiter, normalizer)
	pdfExtractor := services.NewPDFExtractorService()
	detailsService := services.NewDetailsService(httpFactory, rateLimiter, normalizer, searchService, pdfExtractor, cfg.DataDir)

	// Caching layer
	cacheService := services.NewCacheService(cacheConfig.DefaultTTL, cacheConfig.MaxSize)
	cachedCalendar := services.NewCachedCalendarService(calendarService, detailsService, cacheService)

	logrus.Info("IPO calendar backend services initialized:")
	logrus.Infof("  - HTTP client factory (timeout: %v)", cfg.GetHTTPTimeout())
	logrus.Infof("  - Rate limiter (%.1f req/s, politeness delay: %v)",
		rateLimitConfig.RequestsPerSecond, rateLimitConfig.PolitenessDelay)
	logrus.Infof("  - Cache service (TTL: %v, max size: %d)", cacheConfig.DefaultTTL, cacheConfig.MaxSize)
	logrus.Infof("  - Sample dataset directory: %s", cfg.DataDir)

	// Background jobs
	refreshJob := jobs.NewCalendarRefreshJob(cachedCalendar, cacheConfig.DefaultTTL)
	cleanupJob := jobs.NewCacheCleanupJob(cacheService)

	go func() {
		refreshJob.Start()

		cleanupTicker := time.NewTicker(12 * time.Hour)
		for range cleanupTicker.C {
			cleanupJob.Run()
		}
	}()

	// Initialize handlers
	calendarHandler := handlers.NewCalendarHandler(cachedCalendar, eventIndex)
	detailsHandler := handlers.NewDetailsHandler(cachedCalendar)
	cacheHandler := handlers.NewCacheHandler(cachedCalendar)

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Routes
	api := app.Group("/api/v1")

	// Calendar Routes
	api.Get("/calendar", calendarHandler.GetCalendar)
	api.Get("/calendar/events", calendarHandler.GetCalendarEvents)
	api.Post("/calendar/refresh", calendarHandler.RefreshCalendar)

	// Details Route
	api.Get("/ipos/:id/details", detailsHandler.GetIPODetails)

	// Cache Routes
	api.Get("/cache/stats", cacheHandler.GetCacheStats)
	api.Delete("/cache/calendar", cacheHandler.InvalidateCalendarCache)

	// Start server
	log.Printf("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
