package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TicketsHandler manages ticket lifecycle and timeline endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	timeline *service.TimelineService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, timeline *service.TimelineService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, timeline: timeline}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.RequesterEmail) == "" {
		return apperrors.NewValidationError("title, requester_email required", nil)
	}
	if req.Priority != "" && !validPriority(req.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}

	input := service.TicketCreateInput{
		OrganizationID: principal.Agent.OrganizationID,
		RequesterEmail: req.RequesterEmail,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		PolicyID:       req.PolicyID,
	}
	ticket, err := h.tickets.CreateTicket(c.Context(), input, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"), principal.Agent.OrganizationID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !validStatus(req.Status) {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}
	ticket, err := h.tickets.UpdateStatus(c.Context(), c.Params("id"), principal.Agent.OrganizationID, req.Status, req.Reason, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdatePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if !validPriority(req.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}
	ticket, err := h.tickets.UpdatePriority(c.Context(), c.Params("id"), principal.Agent.OrganizationID, req.Priority, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AssigneeID) == "" {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	ticket, err := h.tickets.AssignTicket(c.Context(), c.Params("id"), principal.Agent.OrganizationID, req.AssigneeID, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.tickets.AddComment(c.Context(), c.Params("id"), principal.Agent.OrganizationID, req.Body, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": auditEntryResponse(*entry)})
}

// GetTimeline GET /tickets/:id/timeline.
func (h *TicketsHandler) GetTimeline(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	groups, err := h.timeline.BuildTimeline(c.Context(), c.Params("id"), principal.Agent.OrganizationID)
	if err != nil {
		return err
	}
	items := make([]dto.TimelineGroupResponse, 0, len(groups))
	for _, group := range groups {
		items = append(items, timelineGroupResponse(group))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *TicketsHandler) GetAuditLog(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	entries, err := h.timeline.GetAuditLog(c.Context(), c.Params("id"), principal.Agent.OrganizationID)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, auditEntryResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

func validStatus(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusPending,
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled:
		return true
	}
	return false
}

func validPriority(priority domain.TicketPriority) bool {
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium,
		domain.TicketPriorityHigh, domain.TicketPriorityCritical:
		return true
	}
	return false
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:             ticket.ID,
		ExternalKey:    ticket.ExternalKey,
		OrganizationID: ticket.OrganizationID,
		RequesterEmail: ticket.RequesterEmail,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		AssigneeID:     ticket.AssigneeID,
		SLA:            slaStateResponse(ticket.SLA),
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ClosedAt:       ticket.ClosedAt,
	}
}

func slaStateResponse(state domain.TicketSLAState) dto.SLAStateResponse {
	return dto.SLAStateResponse{
		PolicyID:                      state.PolicyID,
		ResponseDeadline:              state.ResponseDeadline,
		ResolutionDeadline:            state.ResolutionDeadline,
		ResponseBreached:              state.ResponseBreached,
		ResolutionBreached:            state.ResolutionBreached,
		ResponseApproachingNotified:   state.ResponseApproachingNotified,
		ResolutionApproachingNotified: state.ResolutionApproachingNotified,
		PausedAt:                      state.PausedAt,
		PauseReason:                   state.PauseReason,
		TotalPausedMinutes:            state.TotalPausedMinutes,
	}
}

func auditEntryResponse(entry domain.AuditLogEntry) dto.AuditEntryResponse {
	return dto.AuditEntryResponse{
		ID:          entry.ID,
		Action:      entry.Action,
		Timestamp:   entry.Timestamp,
		PerformedBy: entry.PerformedBy,
		Details:     entry.Details,
	}
}

func timelineGroupResponse(group domain.TimelineGroup) dto.TimelineGroupResponse {
	activities := make([]dto.AuditEntryResponse, 0, len(group.Activities))
	for _, entry := range group.Activities {
		activities = append(activities, auditEntryResponse(entry))
	}
	return dto.TimelineGroupResponse{
		Status:      group.Status,
		StatusLabel: group.StatusLabel,
		StartTime:   group.StartTime,
		EndTime:     group.EndTime,
		Activities:  activities,
	}
}
