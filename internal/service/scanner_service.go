package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// DeadlineCounts splits a scan tally by deadline type.
type DeadlineCounts struct {
	Response   int `json:"response"`
	Resolution int `json:"resolution"`
}

// ScanReport summarizes one breach sweep.
type ScanReport struct {
	Checked     int            `json:"checked"`
	Breached    DeadlineCounts `json:"breached"`
	Approaching DeadlineCounts `json:"approaching"`
}

// ScannerService sweeps active tickets for breached and approaching SLA
// deadlines. The service is stateless between runs; a failure on one ticket
// is logged and never aborts the rest of the sweep.
type ScannerService struct {
	tickets      repository.TicketRepository
	audit        repository.AuditLogRepository
	escalation   *EscalationService
	notifier     Notifier
	locker       locking.TicketLocker
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	clock        Clock
	logger       *zap.Logger
	thresholdPct int
	workers      int
}

// ScannerDependencies bundles collaborators for the breach scanner.
type ScannerDependencies struct {
	TicketRepo   repository.TicketRepository
	AuditRepo    repository.AuditLogRepository
	Escalation   *EscalationService
	Notifier     Notifier
	Locker       locking.TicketLocker
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Clock        Clock
	Logger       *zap.Logger
	ThresholdPct int
	Workers      int
}

// NewScannerService constructs the service.
func NewScannerService(deps ScannerDependencies) *ScannerService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	threshold := deps.ThresholdPct
	if threshold <= 0 || threshold > 100 {
		threshold = 80
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	return &ScannerService{
		tickets:      deps.TicketRepo,
		audit:        deps.AuditRepo,
		escalation:   deps.Escalation,
		notifier:     deps.Notifier,
		locker:       deps.Locker,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		clock:        clock,
		logger:       deps.Logger,
		thresholdPct: threshold,
		workers:      workers,
	}
}

// CheckSLABreaches sweeps every non-terminal ticket with SLA deadlines,
// optionally scoped to one organization. Tickets are processed concurrently
// by a bounded worker pool; processing within a single ticket is serialized
// by the per-ticket lock.
func (s *ScannerService) CheckSLABreaches(ctx context.Context, organizationID *string) (*ScanReport, error) {
	tickets, err := s.tickets.FindActiveWithSLA(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		report ScanReport
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.workers)
	)

	for i := range tickets {
		ticket := tickets[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.scanTicket(ctx, &ticket)

			mu.Lock()
			report.Checked++
			report.Breached.Response += result.Breached.Response
			report.Breached.Resolution += result.Breached.Resolution
			report.Approaching.Response += result.Approaching.Response
			report.Approaching.Resolution += result.Approaching.Resolution
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.metrics.RecordScan(report.Checked)
	s.logger.Info("SLA sweep complete",
		zap.Int("checked", report.Checked),
		zap.Int("response_breaches", report.Breached.Response),
		zap.Int("resolution_breaches", report.Breached.Resolution),
		zap.Int("response_approaching", report.Approaching.Response),
		zap.Int("resolution_approaching", report.Approaching.Resolution))
	return &report, nil
}

// scanTicket advances one ticket's breach/approaching flags. All failures are
// contained here so the sweep continues with the remaining tickets.
func (s *ScannerService) scanTicket(ctx context.Context, ticket *domain.Ticket) ScanReport {
	var result ScanReport

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while scanning ticket",
				zap.String("ticket_id", ticket.ID), zap.Any("panic", r))
		}
	}()

	release, err := s.locker.Acquire(ctx, ticket.ID)
	if err != nil {
		s.logger.Warn("skipping ticket, lock unavailable",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return result
	}
	defer release()

	if ticket.SLA.IsPaused() {
		return result
	}

	now := s.clock.Now()
	mutated := false

	if s.checkBreach(ctx, ticket, domain.DeadlineTypeResponse, now) {
		result.Breached.Response++
		mutated = true
	}
	if s.checkBreach(ctx, ticket, domain.DeadlineTypeResolution, now) {
		result.Breached.Resolution++
		mutated = true
	}
	if s.checkApproaching(ctx, ticket, domain.DeadlineTypeResponse, now) {
		result.Approaching.Response++
		mutated = true
	}
	if s.checkApproaching(ctx, ticket, domain.DeadlineTypeResolution, now) {
		result.Approaching.Resolution++
		mutated = true
	}

	if mutated {
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Error("failed to persist scanned ticket",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return result
}

func (s *ScannerService) checkBreach(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType, now time.Time) bool {
	deadline, breached, _ := deadlineState(ticket, deadlineType)
	if deadline == nil || breached || !now.After(*deadline) {
		return false
	}

	setBreached(ticket, deadlineType)
	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:  ticket.ID,
		Action:    domain.AuditActionSLABreached,
		Timestamp: now,
		Details: map[string]any{
			"type":     deadlineType,
			"deadline": *deadline,
		},
	})
	s.publish(ctx, events.Event{
		Type:     events.EventSLABreached,
		TicketID: ticket.ID,
		Payload:  events.SLADeadlinePayload{DeadlineType: deadlineType, Deadline: *deadline},
	})
	s.notifier.NotifyBreached(ctx, ticket, deadlineType)
	s.metrics.RecordBreach(string(deadlineType))
	s.escalation.ApplyEscalation(ctx, ticket, breachCondition(deadlineType))
	return true
}

func (s *ScannerService) checkApproaching(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType, now time.Time) bool {
	deadline, breached, notified := deadlineState(ticket, deadlineType)
	if deadline == nil || breached || notified {
		return false
	}

	percent := percentElapsed(ticket.CreatedAt, *deadline, now)
	if percent < float64(s.thresholdPct) {
		return false
	}

	setApproachingNotified(ticket, deadlineType)
	s.appendAudit(ctx, &domain.AuditLogEntry{
		TicketID:  ticket.ID,
		Action:    domain.AuditActionSLAApproaching,
		Timestamp: now,
		Details: map[string]any{
			"type":            deadlineType,
			"deadline":        *deadline,
			"percent_elapsed": percent,
		},
	})
	s.publish(ctx, events.Event{
		Type:     events.EventSLAApproaching,
		TicketID: ticket.ID,
		Payload: events.SLADeadlinePayload{
			DeadlineType:   deadlineType,
			Deadline:       *deadline,
			PercentElapsed: percent,
		},
	})
	s.notifier.NotifyApproaching(ctx, ticket, deadlineType, s.thresholdPct)
	s.metrics.RecordApproaching(string(deadlineType))
	s.escalation.ApplyEscalation(ctx, ticket, approachingCondition(deadlineType))
	return true
}

// percentElapsed reports how much of the window between creation and deadline
// has passed. A zero or negative window counts as fully elapsed.
func percentElapsed(createdAt, deadline, now time.Time) float64 {
	total := deadline.Sub(createdAt)
	if total <= 0 {
		return 100
	}
	return float64(now.Sub(createdAt)) / float64(total) * 100
}

func deadlineState(ticket *domain.Ticket, deadlineType domain.DeadlineType) (deadline *time.Time, breached, approachingNotified bool) {
	if deadlineType == domain.DeadlineTypeResponse {
		return ticket.SLA.ResponseDeadline, ticket.SLA.ResponseBreached, ticket.SLA.ResponseApproachingNotified
	}
	return ticket.SLA.ResolutionDeadline, ticket.SLA.ResolutionBreached, ticket.SLA.ResolutionApproachingNotified
}

func setBreached(ticket *domain.Ticket, deadlineType domain.DeadlineType) {
	if deadlineType == domain.DeadlineTypeResponse {
		ticket.SLA.ResponseBreached = true
	} else {
		ticket.SLA.ResolutionBreached = true
	}
}

func setApproachingNotified(ticket *domain.Ticket, deadlineType domain.DeadlineType) {
	if deadlineType == domain.DeadlineTypeResponse {
		ticket.SLA.ResponseApproachingNotified = true
	} else {
		ticket.SLA.ResolutionApproachingNotified = true
	}
}

func breachCondition(deadlineType domain.DeadlineType) domain.EscalationCondition {
	if deadlineType == domain.DeadlineTypeResponse {
		return domain.ConditionResponseBreached
	}
	return domain.ConditionResolutionBreached
}

func approachingCondition(deadlineType domain.DeadlineType) domain.EscalationCondition {
	if deadlineType == domain.DeadlineTypeResponse {
		return domain.ConditionResponseApproaching
	}
	return domain.ConditionResolutionApproaching
}

func (s *ScannerService) appendAudit(ctx context.Context, entry *domain.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry",
			zap.String("ticket_id", entry.TicketID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

func (s *ScannerService) publish(ctx context.Context, event events.Event) {
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
