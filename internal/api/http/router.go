package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Dashboards     *handlers.DashboardHandler
	AuthMiddleware *auth.AuthMiddleware
	RoleGate       *auth.RoleGate
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Each path and method is registered once.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", cfg.Health.Root)
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	app.Post("/login", cfg.Users.Login)
	app.Post("/user/login", cfg.Users.Login)
	app.Post("/user", cfg.Users.Register)

	authn := cfg.AuthMiddleware.Handle
	anyRole := cfg.RoleGate.Require(domain.RoleUser, domain.RoleAdmin)
	adminOnly := cfg.RoleGate.Require(domain.RoleAdmin)
	selfOrAdmin := auth.RequireSelfOrAdmin("id")

	app.Get("/admin/dashboard", authn, adminOnly, cfg.Dashboards.Admin)
	app.Get("/user/dashboard", authn, anyRole, cfg.Dashboards.User)

	app.Get("/user", authn, adminOnly, cfg.Users.List)
	app.Post("/delete", authn, adminOnly, cfg.Users.BulkDelete)
	app.Delete("/user/:id", authn, adminOnly, cfg.Users.Delete)

	app.Get("/user/:id", authn, anyRole, selfOrAdmin, cfg.Users.Get)
	app.Put("/user/:id", authn, anyRole, selfOrAdmin, cfg.Users.Update)
	app.Get("/user/:id/profile-image", authn, anyRole, selfOrAdmin, cfg.Users.ProfileImage)
	app.Get("/user/:id/document", authn, anyRole, selfOrAdmin, cfg.Users.Document)
}
