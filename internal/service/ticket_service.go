package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TicketService coordinates ticket workflows around the SLA engine: creation
// applies a policy immediately, status and priority changes feed the audit
// and status-history logs the timeline is rebuilt from.
type TicketService struct {
	tickets    repository.TicketRepository
	policies   repository.PolicyRepository
	audit      repository.AuditLogRepository
	history    repository.StatusHistoryRepository
	sla        *SLAService
	locker     locking.TicketLocker
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	PolicyRepo  repository.PolicyRepository
	AuditRepo   repository.AuditLogRepository
	HistoryRepo repository.StatusHistoryRepository
	SLAService  *SLAService
	Locker      locking.TicketLocker
	Dispatcher  events.Dispatcher
	Clock       Clock
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	OrganizationID string
	RequesterEmail string
	Title          string
	Description    string
	Priority       domain.TicketPriority
	PolicyID       *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		policies:   deps.PolicyRepo,
		audit:      deps.AuditRepo,
		history:    deps.HistoryRepo,
		sla:        deps.SLAService,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     deps.Logger,
	}
}

// CreateTicket creates a ticket and applies its SLA immediately: the explicit
// policy when given, else the organization default for the priority, else the
// hardcoded fallback table.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput, actorID *string) (*domain.Ticket, error) {
	now := s.clock.Now()
	ticket := &domain.Ticket{
		ExternalKey:    generateTicketKey(),
		OrganizationID: input.OrganizationID,
		RequesterEmail: strings.TrimSpace(input.RequesterEmail),
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Status:         domain.TicketStatusOpen,
		Priority:       input.Priority,
		CreatedAt:      now,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	policy, err := s.resolvePolicy(ctx, input.PolicyID, ticket)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		if err := applyPolicyState(ticket, policy, now); err != nil {
			return nil, err
		}
	} else {
		deadlines, err := domain.CalculateDeadlines(ticket.Priority, now, nil)
		if err != nil {
			return nil, apperrors.NewPolicyPriorityUndefined(string(ticket.Priority))
		}
		ticket.SLA = domain.TicketSLAState{
			ResponseDeadline:   &deadlines.Response,
			ResolutionDeadline: &deadlines.Resolution,
		}
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionCreated,
		Timestamp:   now,
		PerformedBy: actorID,
		Details: map[string]any{
			"priority":  ticket.Priority,
			"policy_id": ticket.SLA.PolicyID,
		},
	})
	s.appendHistory(ctx, &domain.StatusHistoryEntry{
		TicketID:  ticket.ID,
		Status:    ticket.Status,
		Timestamp: now,
		ChangedBy: actorID,
		Reason:    "ticket created",
	})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload: events.TicketCreatedPayload{
			OrganizationID: ticket.OrganizationID,
			Priority:       ticket.Priority,
			PolicyID:       ticket.SLA.PolicyID,
			Title:          ticket.Title,
		},
	})
	return ticket, nil
}

func (s *TicketService) resolvePolicy(ctx context.Context, policyID *string, ticket *domain.Ticket) (*domain.SLAPolicy, error) {
	if policyID != nil {
		policy, err := s.policies.GetByID(ctx, *policyID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewPolicyNotFound(*policyID)
			}
			return nil, err
		}
		return policy, nil
	}
	policy, err := s.policies.FindDefaultForPriority(ctx, ticket.OrganizationID, ticket.Priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return policy, nil
}

// GetTicket fetches a ticket scoped to the organization.
func (s *TicketService) GetTicket(ctx context.Context, ticketID, organizationID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID, organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}
	return ticket, nil
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress: {domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusPending:    {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:     {},
	domain.TicketStatusCancelled:  {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// UpdateStatus transitions a ticket and records the change in both the audit
// log and the status history with one shared timestamp, so the timeline can
// match the two records.
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID, organizationID string, newStatus domain.TicketStatus, reason string, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.GetTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	now := s.clock.Now()
	oldStatus := ticket.Status
	ticket.Status = newStatus
	if newStatus == domain.TicketStatusClosed {
		ticket.ClosedAt = &now
	} else if ticket.ClosedAt != nil {
		ticket.ClosedAt = nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionStatusChanged,
		Timestamp:   now,
		PerformedBy: actorID,
		Details: map[string]any{
			"old_status": string(oldStatus),
			"new_status": string(newStatus),
			"reason":     reason,
		},
	})
	s.appendHistory(ctx, &domain.StatusHistoryEntry{
		TicketID:  ticket.ID,
		Status:    newStatus,
		Timestamp: now,
		ChangedBy: actorID,
		Reason:    reason,
	})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			Reason:    reason,
		},
	})
	return ticket, nil
}

// UpdatePriority changes ticket priority and recomputes both SLA deadlines
// from the current time under the new priority.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID, organizationID string, newPriority domain.TicketPriority, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.GetTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == newPriority {
		return ticket, nil
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.sla.RecalculateOnPriorityChange(ctx, ticket, oldPriority, actorID); err != nil {
		return nil, err
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// AssignTicket sets the assignee and audits the change.
func (s *TicketService) AssignTicket(ctx context.Context, ticketID, organizationID, assigneeID string, actorID *string) (*domain.Ticket, error) {
	release, err := s.locker.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.GetTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}

	ticket.AssigneeID = &assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionAssigned,
		Timestamp:   now,
		PerformedBy: actorID,
		Details:     map[string]any{"assignee_id": assigneeID},
	})
	s.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  actorID,
	})
	return ticket, nil
}

// AddComment appends a comment to the ticket's audit log.
func (s *TicketService) AddComment(ctx context.Context, ticketID, organizationID, body string, actorID *string) (*domain.AuditLogEntry, error) {
	ticket, err := s.GetTicket(ctx, ticketID, organizationID)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("comment body required", nil)
	}

	entry := &domain.AuditLogEntry{
		TicketID:    ticket.ID,
		Action:      domain.AuditActionCommentAdded,
		Timestamp:   s.clock.Now(),
		PerformedBy: actorID,
		Details:     map[string]any{"comment": stringPreview(body, 500)},
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

func (s *TicketService) appendAudit(ctx context.Context, entry *domain.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry",
			zap.String("ticket_id", entry.TicketID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

func (s *TicketService) appendHistory(ctx context.Context, entry *domain.StatusHistoryEntry) {
	if err := s.history.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append status history entry",
			zap.String("ticket_id", entry.TicketID),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
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
