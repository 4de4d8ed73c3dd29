package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/access-service/internal/api/http/handlers"
	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health             *handlers.HealthHandler
	Access             *handlers.AccessHandler
	Auth               *handlers.AuthHandler
	Terminals          *handlers.TerminalsHandler
	PendingAssignments *handlers.PendingAssignmentsHandler
	AuthMiddleware     *auth.AuthMiddleware

	// Tap pipeline, applied in this order: rate limit, body validation, terminal auth, dedup.
	RateLimit    fiber.Handler
	TerminalAuth fiber.Handler
	Dedup        fiber.Handler

	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	access := app.Group("/access", passThrough(cfg.RateLimit))
	access.Post("/check", handlers.ValidateCardUID, cfg.TerminalAuth, passThrough(cfg.Dedup), cfg.Access.Check)
	access.Post("/terminals/ping", cfg.TerminalAuth, cfg.Access.Ping)

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Auth.Login)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)

	terminals := admin.Group("/terminals", auth.RequireStaffRole(domain.StaffRoleOwner, domain.StaffRoleAdmin))
	terminals.Get("/", cfg.Terminals.List)
	terminals.Post("/", cfg.Terminals.Create)
	terminals.Patch("/:id", cfg.Terminals.Update)
	terminals.Post("/:id/rotate-secret", cfg.Terminals.RotateSecret)

	pending := admin.Group("/branches/:branchId/pending-assignment",
		auth.RequireStaffRole(domain.StaffRoleOwner, domain.StaffRoleAdmin, domain.StaffRoleManager))
	pending.Put("/", cfg.PendingAssignments.Put)
	pending.Get("/", cfg.PendingAssignments.Get)
	pending.Delete("/", cfg.PendingAssignments.Delete)
}

func passThrough(h fiber.Handler) fiber.Handler {
	if h != nil {
		return h
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}
