package domain

import (
	"strings"
	"time"
)

// TimelineGroup is a contiguous span of one ticket status together with the
// audit activities that occurred during it. EndTime is nil for the open
// (latest) group.
type TimelineGroup struct {
	Status      string
	StatusLabel string
	StartTime   time.Time
	EndTime     *time.Time
	Activities  []AuditLogEntry
}

var statusLabels = map[string]string{
	"created":     "Created",
	"open":        "Open",
	"in_progress": "In Progress",
	"pending":     "Pending",
	"resolved":    "Resolved",
	"closed":      "Closed",
	"cancelled":   "Cancelled",
}

// StatusLabel renders a display label for a status value. Known statuses use
// the fixed table; anything else is title-cased with underscores replaced.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	words := strings.Split(strings.ReplaceAll(status, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
