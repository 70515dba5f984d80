package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	SLA            *handlers.SLAHandler
	Policies       *handlers.PoliciesHandler
	Agents         *handlers.AgentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/agents/login", cfg.Agents.Login)
	authGroup.Post("/agents/register",
		cfg.AuthMiddleware.Handle, auth.RequireRole(domain.AgentRoleAdmin), cfg.Agents.Register)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/assign", cfg.Tickets.AssignTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/timeline", cfg.Tickets.GetTimeline)
	tickets.Get("/:id/audit", cfg.Tickets.GetAuditLog)

	tickets.Post("/:id/sla/apply", cfg.SLA.ApplyPolicy)
	tickets.Post("/:id/sla/pause", cfg.SLA.PauseSLA)
	tickets.Post("/:id/sla/resume", cfg.SLA.ResumeSLA)

	sla := app.Group("/sla", cfg.AuthMiddleware.Handle, auth.RequireRole())
	sla.Post("/scan",
		auth.RequireRole(domain.AgentRoleTeamLead, domain.AgentRoleAdmin), cfg.SLA.RunScan)

	sla.Get("/policies", cfg.Policies.ListPolicies)
	sla.Get("/policies/:id", cfg.Policies.GetPolicy)
	sla.Post("/policies",
		auth.RequireRole(domain.AgentRoleTeamLead, domain.AgentRoleAdmin), cfg.Policies.CreatePolicy)
	sla.Put("/policies/:id",
		auth.RequireRole(domain.AgentRoleTeamLead, domain.AgentRoleAdmin), cfg.Policies.UpdatePolicy)
	sla.Delete("/policies/:id",
		auth.RequireRole(domain.AgentRoleAdmin), cfg.Policies.DeactivatePolicy)
}
