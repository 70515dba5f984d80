package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
	TicketStatusCancelled  TicketStatus = "cancelled"
)

// IsTerminal reports whether the status stops SLA tracking.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed || s == TicketStatusCancelled
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

var priorityLadder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// NextPriority returns the next level on the escalation ladder and whether a
// bump happened. A ticket already at critical stays at critical.
func NextPriority(p TicketPriority) (TicketPriority, bool) {
	for i, candidate := range priorityLadder {
		if candidate == p && i < len(priorityLadder)-1 {
			return priorityLadder[i+1], true
		}
	}
	return p, false
}

// Ticket is the aggregate for support requests. SLA state is embedded and
// owned exclusively by the ticket.
type Ticket struct {
	ID             string
	ExternalKey    string
	OrganizationID string
	RequesterEmail string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	AssigneeID     *string
	SLA            TicketSLAState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}
