package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// SLAService owns the per-ticket SLA state machine: policy application,
// pause/resume of the SLA clock, and deadline recalculation on priority
// change. Every mutation takes the per-ticket lock so concurrent calls and
// the breach scanner are serialized per ticket.
type SLAService struct {
	tickets    repository.TicketRepository
	policies   repository.PolicyRepository
	audit      repository.AuditLogRepository
	locker     locking.TicketLocker
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
}

// SLADependencies bundles collaborators for the SLA service.
type SLADependencies struct {
	TicketRepo repository.TicketRepository
	PolicyRepo repository.PolicyRepository
	AuditRepo  repository.AuditLogRepository
	Locker     locking.TicketLocker
	Dispatcher events.Dispatcher
	Clock      Clock
	Logger     *zap.Logger
}

// NewSLAService constructs the service.
func NewSLAService(deps SLADependencies) *SLAService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &SLAService{
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		audit:      deps.AuditRepo,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     deps.Logger,
	}
}

// ApplyPolicyToTicket applies the given policy to a ticket, anchored at the
// ticket's creation time. Both deadlines are overwritten, breach and
// approaching flags reset, and accumulated pause time preserved.
func (s *SLAService) ApplyPolicyToTicket(ctx context.Context, ticketID, policyID, organizationID string, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}

	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPolicyNotFound(policyID)
		}
		return nil, err
	}

	if err := applyPolicyState(ticket, policy, ticket.CreatedAt); err != nil {
		return nil, err
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionSLAPolicyApplied,
		Timestamp:   now,
		PerformedBy: actorID,
		Details: map[string]any{
			"policy_id":           policy.ID,
			"policy_name":         policy.Name,
			"response_deadline":   ticket.SLA.ResponseDeadline,
			"resolution_deadline": ticket.SLA.ResolutionDeadline,
		},
	})
	return ticket, nil
}

// applyPolicyState resets a ticket's SLA state from a policy. Shared by the
// direct API call and ticket creation.
func applyPolicyState(ticket *domain.Ticket, policy *domain.SLAPolicy, anchor time.Time) error {
	deadlines, err := domain.CalculateDeadlines(ticket.Priority, anchor, policy)
	if err != nil {
		if errors.Is(err, domain.ErrPriorityUndefined) {
			return apperrors.NewPolicyPriorityUndefined(string(ticket.Priority))
		}
		return err
	}
	paused := ticket.SLA.TotalPausedMinutes
	ticket.SLA = domain.TicketSLAState{
		PolicyID:           &policy.ID,
		ResponseDeadline:   &deadlines.Response,
		ResolutionDeadline: &deadlines.Resolution,
		TotalPausedMinutes: paused,
	}
	return nil
}

// PauseSLA freezes the SLA clock for a ticket.
func (s *SLAService) PauseSLA(ctx context.Context, ticketID, reason, organizationID string, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	if !ticket.SLA.HasDeadlines() {
		return nil, apperrors.NewNoActiveSLA(ticketID)
	}
	if ticket.SLA.IsPaused() {
		return nil, apperrors.NewSLAAlreadyPaused(ticketID)
	}

	now := s.clock.Now()
	ticket.SLA.PausedAt = &now
	ticket.SLA.PauseReason = reason

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionSLAPaused,
		Timestamp:   now,
		PerformedBy: actorID,
		Details:     map[string]any{"reason": reason},
	})
	s.publish(ctx, events.Event{
		Type:     events.EventSLAPaused,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload:  events.SLAPausePayload{Reason: reason},
	})
	return ticket, nil
}

// ResumeSLA unfreezes the SLA clock. The completed pause interval, rounded to
// whole minutes, is added to the accumulated pause time and shifts every
// deadline that has not yet breached. Breached deadlines are never shifted.
func (s *SLAService) ResumeSLA(ctx context.Context, ticketID, organizationID string, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	if !ticket.SLA.IsPaused() {
		return nil, apperrors.NewSLANotPaused(ticketID)
	}

	now := s.clock.Now()
	elapsed := now.Sub(*ticket.SLA.PausedAt).Round(time.Minute)
	elapsedMinutes := int(elapsed / time.Minute)

	ticket.SLA.TotalPausedMinutes += elapsedMinutes
	if ticket.SLA.ResponseDeadline != nil && !ticket.SLA.ResponseBreached {
		shifted := ticket.SLA.ResponseDeadline.Add(time.Duration(elapsedMinutes) * time.Minute)
		ticket.SLA.ResponseDeadline = &shifted
	}
	if ticket.SLA.ResolutionDeadline != nil && !ticket.SLA.ResolutionBreached {
		shifted := ticket.SLA.ResolutionDeadline.Add(time.Duration(elapsedMinutes) * time.Minute)
		ticket.SLA.ResolutionDeadline = &shifted
	}
	ticket.SLA.PausedAt = nil
	ticket.SLA.PauseReason = ""

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionSLAResumed,
		Timestamp:   now,
		PerformedBy: actorID,
		Details:     map[string]any{"paused_minutes": elapsedMinutes},
	})
	s.publish(ctx, events.Event{
		Type:     events.EventSLAResumed,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload:  events.SLAPausePayload{PausedMinutes: elapsedMinutes},
	})
	return ticket, nil
}

// RecalculateOnPriorityChange recomputes both deadlines from the current time
// under the new priority, using the ticket's policy or the fallback table.
// Breach flags are deliberately not reset. The caller holds the ticket lock
// and persists the ticket; this keeps the escalation engine able to reuse the
// same path mid-scan.
func (s *SLAService) RecalculateOnPriorityChange(ctx context.Context, ticket *domain.Ticket, oldPriority domain.TicketPriority, actorID *string) error {
	var policy *domain.SLAPolicy
	if ticket.SLA.PolicyID != nil {
		loaded, err := s.policies.GetByID(ctx, *ticket.SLA.PolicyID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			// policy deleted since assignment, fall back to the hardcoded table
		} else {
			policy = loaded
		}
	}

	now := s.clock.Now()
	deadlines, err := domain.CalculateDeadlines(ticket.Priority, now, policy)
	if err != nil {
		if errors.Is(err, domain.ErrPriorityUndefined) {
			return apperrors.NewPolicyPriorityUndefined(string(ticket.Priority))
		}
		return err
	}

	oldResponse := ticket.SLA.ResponseDeadline
	oldResolution := ticket.SLA.ResolutionDeadline
	ticket.SLA.ResponseDeadline = &deadlines.Response
	ticket.SLA.ResolutionDeadline = &deadlines.Resolution

	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionSLARecalculated,
		Timestamp:   now,
		PerformedBy: actorID,
		Details: map[string]any{
			"old_priority":            oldPriority,
			"new_priority":            ticket.Priority,
			"old_response_deadline":   oldResponse,
			"old_resolution_deadline": oldResolution,
			"new_response_deadline":   deadlines.Response,
			"new_resolution_deadline": deadlines.Resolution,
		},
	})
	return nil
}

func (s *SLAService) loadTicket(ctx context.Context, ticketID, organizationID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID, organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}
	return ticket, nil
}

func (s *SLAService) appendAudit(ctx context.Context, entry *domain.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry",
			zap.String("ticket_id", entry.TicketID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

func (s *SLAService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
