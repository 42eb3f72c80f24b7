package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "accountpulse/api/v1"
	"accountpulse/internal/config"
	"accountpulse/internal/http/middleware"
	"accountpulse/internal/metrics"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// Landing pages live on their own domains and call the tracking API cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// browserFetchSites are the Sec-Fetch-Site values accepted on tracking routes.
var browserFetchSites = []string{"cross-site", "same-site", "same-origin"}

// NewServerConfig returns the server configuration shared by the application
// and the handler tests. The global Sec-Fetch-Site check is off because it
// runs before route middleware and would reject the scripted admin API; the
// tracking routes mount the check themselves.
func NewServerConfig() *cartridge.ServerConfig {
	cfg := cartridge.DefaultServerConfig()
	cfg.EnableSecFetchSite = false
	return cfg
}

// NewRouteMounter returns the function that mounts every route on srv.
func NewRouteMounter(cfg *config.Config, m *metrics.Metrics) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		mountRoutes(srv, cfg, m)
	}
}

func mountRoutes(srv *cartridge.Server, cfg *config.Config, m *metrics.Metrics) {
	handlers := v1.NewHandlers(cfg, m)
	logger := srv.GetLogger()

	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// A page view, a few metric flushes and chat turns per visitor minute.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Only browsers running the landing-page tracker may write visits.
	browserOnly := cartridgemiddleware.SecFetchSiteMiddleware(cartridgemiddleware.SecFetchSiteConfig{
		AllowedValues: browserFetchSites,
		Methods:       []string{fiber.MethodPost},
	})

	// Public tracking API
	// Rate limiting + CORS + Sec-Fetch-Site; CORS runs first so 403 responses carry CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter, browserOnly},
		CORSConfig:       publicCORSConfig,
	}

	// Operator API, called from scripts and cron rather than browsers
	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{middleware.AdminTokenAuth(cfg.AdminToken, logger)},
	}

	opsConfig := &cartridge.RouteConfig{}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === OPERATIONS ===
	srv.Get("/_health", handlers.HealthHandler, opsConfig)
	srv.Head("/_health", handlers.HealthHandler, opsConfig)

	prometheusHandler := adaptor.HTTPHandler(m.Handler())
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return prometheusHandler(ctx.Ctx)
	}, opsConfig)

	// === PUBLIC TRACKING ROUTES ===
	srv.Post("/x/api/v1/visits", handlers.CreateVisitHandler, publicAPIConfig)
	srv.Options("/x/api/v1/visits", preflight, publicAPIConfig)

	visitRoutes := map[string]func(*cartridge.Context) error{
		"metrics": handlers.RecordMetricsHandler,
		"cta":     handlers.RecordCtaHandler,
		"form":    handlers.RecordFormHandler,
		"chat":    handlers.RecordChatHandler,
	}
	for suffix, handler := range visitRoutes {
		path := "/x/api/v1/visits/:id/" + suffix
		srv.Post(path, handler, publicAPIConfig)
		srv.Options(path, preflight, publicAPIConfig)
	}

	// === ADMIN API ROUTES ===
	srv.Post("/api/v1/admin/aggregations", handlers.AggregateDayHandler, adminAPIConfig)
	srv.Post("/api/v1/admin/aggregations/backfill", handlers.BackfillHandler, adminAPIConfig)
	srv.Get("/api/v1/admin/campaigns/:id/dashboard", handlers.CampaignDashboardHandler, adminAPIConfig)

	srv.Post("/api/v1/admin/scores", handlers.RescoreHandler, adminAPIConfig)
	srv.Post("/api/v1/admin/contacts/:id/score", handlers.ContactScoreHandler, adminAPIConfig)

	srv.Post("/api/v1/admin/enrollments", handlers.EnrollHandler, adminAPIConfig)
	srv.Post("/api/v1/admin/enrollments/:id/advance", handlers.AdvanceEnrollmentHandler, adminAPIConfig)
	srv.Get("/api/v1/admin/contacts/:id/next-touch", handlers.NextTouchHandler, adminAPIConfig)
}
