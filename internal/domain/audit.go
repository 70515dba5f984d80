package domain

import "time"

// AuditAction captures what a ticket audit entry records.
type AuditAction string

const (
	AuditActionCreated           AuditAction = "created"
	AuditActionAssigned          AuditAction = "assigned"
	AuditActionStatusChanged     AuditAction = "status_changed"
	AuditActionCommentAdded      AuditAction = "comment_added"
	AuditActionSLAPolicyApplied  AuditAction = "sla_policy_applied"
	AuditActionSLABreached       AuditAction = "sla_breached"
	AuditActionSLAApproaching    AuditAction = "sla_approaching"
	AuditActionSLAPaused         AuditAction = "sla_paused"
	AuditActionSLAResumed        AuditAction = "sla_resumed"
	AuditActionSLARecalculated   AuditAction = "sla_recalculated"
	AuditActionPriorityEscalated AuditAction = "priority_escalated"
)

// AuditLogEntry is an immutable, append-only record of a discrete ticket
// event. PerformedBy is nil for entries written by the engine itself.
type AuditLogEntry struct {
	ID          string
	TicketID    string
	Action      AuditAction
	Timestamp   time.Time
	PerformedBy *string
	Details     map[string]any
}
