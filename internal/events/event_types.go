package events

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventSLAPaused           EventType = "sla_paused"
	EventSLAResumed          EventType = "sla_resumed"
	EventSLABreached         EventType = "sla_breached"
	EventSLAApproaching      EventType = "sla_approaching"
	EventPriorityEscalated   EventType = "priority_escalated"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OrganizationID string                `json:"organization_id"`
	Priority       domain.TicketPriority `json:"priority"`
	PolicyID       *string               `json:"policy_id,omitempty"`
	Title          string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// SLAPausePayload payload for pause/resume events.
type SLAPausePayload struct {
	Reason        string `json:"reason,omitempty"`
	PausedMinutes int    `json:"paused_minutes,omitempty"`
}

// SLADeadlinePayload payload for breach/approaching events.
type SLADeadlinePayload struct {
	DeadlineType   domain.DeadlineType `json:"deadline_type"`
	Deadline       time.Time           `json:"deadline"`
	PercentElapsed float64             `json:"percent_elapsed,omitempty"`
}

// PriorityEscalatedPayload payload.
type PriorityEscalatedPayload struct {
	OldPriority domain.TicketPriority      `json:"old_priority"`
	NewPriority domain.TicketPriority      `json:"new_priority"`
	Trigger     domain.EscalationCondition `json:"trigger"`
}
