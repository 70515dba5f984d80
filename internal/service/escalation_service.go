package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// EscalationService executes policy escalation rules in response to SLA
// breach/approaching events. Escalation is best-effort relative to the breach
// detection that triggered it: failures are logged, never propagated.
type EscalationService struct {
	policies   repository.PolicyRepository
	audit      repository.AuditLogRepository
	sla        *SLAService
	notifier   Notifier
	dispatcher events.Dispatcher
	clock      Clock
	logger     *zap.Logger
}

// EscalationDependencies bundles collaborators for the escalation engine.
type EscalationDependencies struct {
	PolicyRepo repository.PolicyRepository
	AuditRepo  repository.AuditLogRepository
	SLAService *SLAService
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Clock      Clock
	Logger     *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &EscalationService{
		policies:   deps.PolicyRepo,
		audit:      deps.AuditRepo,
		sla:        deps.SLAService,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		clock:      clock,
		logger:     deps.Logger,
	}
}

// ApplyEscalation runs every rule of the ticket's policy whose condition
// matches the event, mutating the ticket in place. The caller holds the
// ticket lock and persists the ticket afterwards. Returns whether the ticket
// was modified.
func (s *EscalationService) ApplyEscalation(ctx context.Context, ticket *domain.Ticket, condition domain.EscalationCondition) bool {
	if ticket.SLA.PolicyID == nil {
		return false
	}
	policy, err := s.policies.GetByID(ctx, *ticket.SLA.PolicyID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("escalation: failed to load policy",
				zap.String("ticket_id", ticket.ID),
				zap.String("policy_id", *ticket.SLA.PolicyID),
				zap.Error(err))
		}
		return false
	}
	rules := policy.RulesFor(condition)
	if len(rules) == 0 {
		return false
	}

	mutated := false
	for _, rule := range rules {
		for _, action := range rule.Actions {
			if s.executeAction(ctx, ticket, rule, action, condition) {
				mutated = true
			}
		}
	}
	return mutated
}

func (s *EscalationService) executeAction(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule, action domain.EscalationAction, condition domain.EscalationCondition) bool {
	switch action {
	case domain.ActionNotifyAssignee, domain.ActionNotifyTeamLead, domain.ActionNotifyManager:
		s.notifier.NotifyEscalation(ctx, ticket, rule)
		return false

	case domain.ActionIncreasePriority:
		return s.increasePriority(ctx, ticket, condition)

	case domain.ActionReassignTicket:
		// reassignment target resolution belongs to the surrounding ticket
		// service; log intent only
		s.logger.Info("escalation: reassign requested",
			zap.String("ticket_id", ticket.ID),
			zap.String("condition", string(condition)))
		return false

	default:
		s.logger.Warn("escalation: unknown action skipped",
			zap.String("ticket_id", ticket.ID),
			zap.String("action", string(action)))
		return false
	}
}

// increasePriority bumps the ticket one level on the ladder and recomputes
// both deadlines from the current time under the new priority. A ticket
// already at critical is left untouched.
func (s *EscalationService) increasePriority(ctx context.Context, ticket *domain.Ticket, condition domain.EscalationCondition) bool {
	oldPriority := ticket.Priority
	newPriority, bumped := domain.NextPriority(oldPriority)
	if !bumped {
		return false
	}
	ticket.Priority = newPriority

	now := s.clock.Now()
	if err := s.audit.Append(ctx, &domain.AuditLogEntry{
		TicketID:  ticket.ID,
		Action:    domain.AuditActionPriorityEscalated,
		Timestamp: now,
		Details: map[string]any{
			"old_priority": oldPriority,
			"new_priority": newPriority,
			"trigger":      condition,
		},
	}); err != nil {
		s.logger.Error("escalation: failed to append audit entry",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if err := s.sla.RecalculateOnPriorityChange(ctx, ticket, oldPriority, nil); err != nil {
		s.logger.Error("escalation: deadline recalculation failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publish(ctx, events.Event{
		Type:     events.EventPriorityEscalated,
		TicketID: ticket.ID,
		Payload: events.PriorityEscalatedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
			Trigger:     condition,
		},
	})
	return true
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
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
