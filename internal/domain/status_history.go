package domain

import "time"

// StatusHistoryEntry is an append-only record of a single status transition.
// It parallels the audit log but carries only status changes; the two are
// reconciled by timestamp when the timeline is rebuilt.
type StatusHistoryEntry struct {
	ID        string
	TicketID  string
	Status    TicketStatus
	Timestamp time.Time
	ChangedBy *string
	Reason    string
}
