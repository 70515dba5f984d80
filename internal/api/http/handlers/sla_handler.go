package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// SLAHandler exposes SLA clock operations and the manual breach sweep.
type SLAHandler struct {
	sla     *service.SLAService
	scanner *service.ScannerService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(sla *service.SLAService, scanner *service.ScannerService) *SLAHandler {
	return &SLAHandler{sla: sla, scanner: scanner}
}

// ApplyPolicy POST /tickets/:id/sla/apply.
func (h *SLAHandler) ApplyPolicy(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ApplyPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.PolicyID) == "" {
		return apperrors.NewValidationError("policy_id required", nil)
	}
	ticket, err := h.sla.ApplyPolicyToTicket(c.Context(), c.Params("id"), req.PolicyID, principal.Agent.OrganizationID, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// PauseSLA POST /tickets/:id/sla/pause.
func (h *SLAHandler) PauseSLA(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.PauseSLARequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.sla.PauseSLA(c.Context(), c.Params("id"), req.Reason, principal.Agent.OrganizationID, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ResumeSLA POST /tickets/:id/sla/resume.
func (h *SLAHandler) ResumeSLA(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.sla.ResumeSLA(c.Context(), c.Params("id"), principal.Agent.OrganizationID, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// RunScan POST /sla/scan triggers a breach sweep for the caller's
// organization. The scheduled worker runs the same sweep unscoped.
func (h *SLAHandler) RunScan(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	orgID := principal.Agent.OrganizationID
	report, err := h.scanner.CheckSLABreaches(c.Context(), &orgID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
