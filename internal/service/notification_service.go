package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
)

// Notifier delivers SLA notifications. Fire-and-forget from the engine's
// perspective; implementations must never fail the caller.
type Notifier interface {
	NotifyApproaching(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType, thresholdPercent int)
	NotifyBreached(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType)
	NotifyEscalation(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule)
}

// NotificationService handles emitting notifications for SLA and ticket
// events. Delivery is stubbed to email/webhook endpoints from config.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to ticket lifecycle events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketEvent)
	n.dispatcher.Subscribe(events.EventPriorityEscalated, n.handleTicketEvent)
}

func (n *NotificationService) handleTicketEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket event",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	n.sendEmailStub(event.TicketID, string(event.Type))
	n.sendWebhookStub(event.TicketID, string(event.Type))
	return nil
}

// NotifyApproaching notifies watchers that a deadline passed the approaching
// threshold.
func (n *NotificationService) NotifyApproaching(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType, thresholdPercent int) {
	n.logger.Info("SLA approaching notification",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_key", ticket.ExternalKey),
		zap.String("deadline_type", string(deadlineType)),
		zap.Int("threshold_percent", thresholdPercent))
	n.sendEmailStub(ticket.ID, "sla_approaching")
	n.sendWebhookStub(ticket.ID, "sla_approaching")
}

// NotifyBreached notifies watchers that a deadline was breached.
func (n *NotificationService) NotifyBreached(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType) {
	n.logger.Warn("SLA breach notification",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_key", ticket.ExternalKey),
		zap.String("deadline_type", string(deadlineType)))
	n.sendEmailStub(ticket.ID, "sla_breached")
	n.sendWebhookStub(ticket.ID, "sla_breached")
}

// NotifyEscalation notifies the targets named by an escalation rule. The full
// rule is passed so manager resolution can happen at the organization level.
func (n *NotificationService) NotifyEscalation(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule) {
	n.logger.Info("SLA escalation notification",
		zap.String("ticket_id", ticket.ID),
		zap.String("condition", string(rule.Condition)),
		zap.Any("actions", rule.Actions))
	n.sendEmailStub(ticket.ID, "sla_escalation")
	n.sendWebhookStub(ticket.ID, "sla_escalation")
}

func (n *NotificationService) sendEmailStub(ticketID, kind string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", ticketID),
		zap.String("kind", kind))
}

func (n *NotificationService) sendWebhookStub(ticketID, kind string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", ticketID),
		zap.String("kind", kind))
}
