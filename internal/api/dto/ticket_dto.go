package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	RequesterEmail string                `json:"requester_email"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	PolicyID       *string               `json:"policy_id"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
	Reason string              `json:"reason"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Body string `json:"body"`
}

// SLAStateResponse exposes the embedded SLA state of a ticket.
type SLAStateResponse struct {
	PolicyID                      *string    `json:"policy_id"`
	ResponseDeadline              *time.Time `json:"response_deadline"`
	ResolutionDeadline            *time.Time `json:"resolution_deadline"`
	ResponseBreached              bool       `json:"response_breached"`
	ResolutionBreached            bool       `json:"resolution_breached"`
	ResponseApproachingNotified   bool       `json:"response_approaching_notified"`
	ResolutionApproachingNotified bool       `json:"resolution_approaching_notified"`
	PausedAt                      *time.Time `json:"paused_at"`
	PauseReason                   string     `json:"pause_reason,omitempty"`
	TotalPausedMinutes            int        `json:"total_paused_minutes"`
}

// TicketResponse represents a ticket with its SLA state.
type TicketResponse struct {
	ID             string                `json:"id"`
	ExternalKey    string                `json:"external_key"`
	OrganizationID string                `json:"organization_id"`
	RequesterEmail string                `json:"requester_email"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	AssigneeID     *string               `json:"assignee_id"`
	SLA            SLAStateResponse      `json:"sla"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ClosedAt       *time.Time            `json:"closed_at"`
}

// AuditEntryResponse represents one audit log record.
type AuditEntryResponse struct {
	ID          string             `json:"id"`
	Action      domain.AuditAction `json:"action"`
	Timestamp   time.Time          `json:"timestamp"`
	PerformedBy *string            `json:"performed_by"`
	Details     map[string]any     `json:"details,omitempty"`
}

// TimelineGroupResponse is one status epoch of the rebuilt timeline.
type TimelineGroupResponse struct {
	Status      string               `json:"status"`
	StatusLabel string               `json:"status_label"`
	StartTime   time.Time            `json:"start_time"`
	EndTime     *time.Time           `json:"end_time"`
	Activities  []AuditEntryResponse `json:"activities"`
}
