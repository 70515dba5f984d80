package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TimelineService rebuilds a ticket's grouped activity timeline from the two
// append-only logs. The audit log and the status history are not linked by
// reference; entries are matched to status epochs by timestamp windows.
type TimelineService struct {
	tickets repository.TicketRepository
	audit   repository.AuditLogRepository
	history repository.StatusHistoryRepository
	logger  *zap.Logger
}

// NewTimelineService constructs the service.
func NewTimelineService(tickets repository.TicketRepository, audit repository.AuditLogRepository, history repository.StatusHistoryRepository, logger *zap.Logger) *TimelineService {
	return &TimelineService{
		tickets: tickets,
		audit:   audit,
		history: history,
		logger:  logger,
	}
}

// BuildTimeline groups the full audit log by status epoch. Every audit entry
// lands in exactly one group; a ticket without status transitions degenerates
// to a single "created" group. Groups and the activities within them are
// ordered newest first for display.
func (s *TimelineService) BuildTimeline(ctx context.Context, ticketID, organizationID string) ([]domain.TimelineGroup, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID, organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}

	entries, err := s.audit.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	groups := buildGroups(ticket, entries, history)

	for i := range groups {
		activities := groups[i].Activities
		sort.SliceStable(activities, func(a, b int) bool {
			return activities[a].Timestamp.After(activities[b].Timestamp)
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].StartTime.After(groups[j].StartTime)
	})
	return groups, nil
}

// GetAuditLog returns the ticket's raw audit trail, newest first.
func (s *TimelineService) GetAuditLog(ctx context.Context, ticketID, organizationID string) ([]domain.AuditLogEntry, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID, organizationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}

	entries, err := s.audit.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func buildGroups(ticket *domain.Ticket, entries []domain.AuditLogEntry, history []domain.StatusHistoryEntry) []domain.TimelineGroup {
	used := make([]bool, len(entries))

	groups := []domain.TimelineGroup{{
		Status:      "created",
		StatusLabel: domain.StatusLabel("created"),
		StartTime:   ticket.CreatedAt,
	}}
	for i, entry := range entries {
		if entry.Action == domain.AuditActionCreated {
			groups[0].Activities = append(groups[0].Activities, entry)
			used[i] = true
			break
		}
	}

	// history[0] is the creation record already covered by the seed group;
	// every later entry opens a new status epoch at its timestamp
	boundaryStart := ticket.CreatedAt
	for h := 1; h < len(history); h++ {
		boundary := history[h]

		closeTime := boundary.Timestamp
		current := &groups[len(groups)-1]
		current.EndTime = &closeTime
		assignWindow(current, entries, used, boundaryStart, boundary.Timestamp)

		next := domain.TimelineGroup{
			Status:      string(boundary.Status),
			StatusLabel: domain.StatusLabel(string(boundary.Status)),
			StartTime:   boundary.Timestamp,
		}
		if idx := matchStatusChange(entries, used, boundary); idx >= 0 {
			next.Activities = append(next.Activities, entries[idx])
			used[idx] = true
		}
		groups = append(groups, next)
		boundaryStart = boundary.Timestamp
	}

	// everything left lands in the open group
	final := &groups[len(groups)-1]
	for i, entry := range entries {
		if used[i] {
			continue
		}
		final.Activities = append(final.Activities, entry)
		used[i] = true
	}
	return groups
}

// assignWindow moves unused non-status-change entries within
// [from, to) into the group.
func assignWindow(group *domain.TimelineGroup, entries []domain.AuditLogEntry, used []bool, from, to time.Time) {
	for i, entry := range entries {
		if used[i] || entry.Action == domain.AuditActionStatusChanged {
			continue
		}
		if entry.Timestamp.Before(from) || !entry.Timestamp.Before(to) {
			continue
		}
		group.Activities = append(group.Activities, entry)
		used[i] = true
	}
}

// matchStatusChange finds the audit entry recording the given status
// transition: same timestamp, same target status, not yet assigned.
func matchStatusChange(entries []domain.AuditLogEntry, used []bool, boundary domain.StatusHistoryEntry) int {
	for i, entry := range entries {
		if used[i] || entry.Action != domain.AuditActionStatusChanged {
			continue
		}
		if !entry.Timestamp.Equal(boundary.Timestamp) {
			continue
		}
		if newStatus, ok := entry.Details["new_status"].(string); ok && newStatus == string(boundary.Status) {
			return i
		}
	}
	return -1
}
