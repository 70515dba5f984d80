package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
)

type scannerFixture struct {
	tickets  *fakeTicketRepo
	policies *fakePolicyRepo
	audit    *fakeAuditRepo
	notifier *recordingNotifier
	clock    *fixedClock
	scanner  *ScannerService
}

func newScannerFixture(t *testing.T, clock *fixedClock, locker locking.TicketLocker, tickets ...*domain.Ticket) *scannerFixture {
	t.Helper()
	ticketRepo := newFakeTicketRepo(tickets...)
	policyRepo := newFakePolicyRepo()
	auditRepo := newFakeAuditRepo()
	notifier := newRecordingNotifier()

	slaSvc := newSLAFixture(clock, ticketRepo, policyRepo, auditRepo)
	escalation := NewEscalationService(EscalationDependencies{
		PolicyRepo: policyRepo,
		AuditRepo:  auditRepo,
		SLAService: slaSvc,
		Notifier:   notifier,
		Clock:      clock,
		Logger:     zap.NewNop(),
	})
	scanner := NewScannerService(ScannerDependencies{
		TicketRepo: ticketRepo,
		AuditRepo:  auditRepo,
		Escalation: escalation,
		Notifier:   notifier,
		Locker:     locker,
		Clock:      clock,
		Logger:     zap.NewNop(),
		Workers:    2,
	})
	return &scannerFixture{
		tickets:  ticketRepo,
		policies: policyRepo,
		audit:    auditRepo,
		notifier: notifier,
		clock:    clock,
		scanner:  scanner,
	}
}

func TestScanDetectsBreach(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	resolution := baseTime.Add(24 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.ResolutionDeadline = &resolution

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Breached.Response)
	assert.Equal(t, 0, report.Breached.Resolution)

	stored := fx.tickets.stored("t1")
	assert.True(t, stored.SLA.ResponseBreached)
	assert.False(t, stored.SLA.ResolutionBreached)

	breaches := fx.audit.byAction(domain.AuditActionSLABreached)
	require.Len(t, breaches, 1)
	assert.Equal(t, []string{"t1:response"}, fx.notifier.breachedCalls())
}

func TestScanBreachIsRecordedOnce(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	_, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Breached.Response, "breach must not re-fire")
	assert.Len(t, fx.audit.byAction(domain.AuditActionSLABreached), 1)
	assert.Len(t, fx.notifier.breachedCalls(), 1)
}

func TestScanDetectsApproachingDeadline(t *testing.T) {
	// 90 of the 100 minute window elapsed, past the 80% threshold
	clock := newFixedClock(baseTime.Add(90 * time.Minute))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(100 * time.Minute)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Approaching.Response)
	assert.Equal(t, 0, report.Breached.Response)

	stored := fx.tickets.stored("t1")
	assert.True(t, stored.SLA.ResponseApproachingNotified)
	assert.False(t, stored.SLA.ResponseBreached)

	warnings := fx.audit.byAction(domain.AuditActionSLAApproaching)
	require.Len(t, warnings, 1)
	percent, ok := warnings[0].Details["percent_elapsed"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 90.0, percent, 0.01)
}

func TestScanApproachingFiresOnce(t *testing.T) {
	clock := newFixedClock(baseTime.Add(85 * time.Minute))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(100 * time.Minute)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	_, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Approaching.Response)
	assert.Len(t, fx.notifier.approachingCalls(), 1)
}

func TestScanBelowThresholdIsQuiet(t *testing.T) {
	clock := newFixedClock(baseTime.Add(50 * time.Minute))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(100 * time.Minute)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Approaching.Response)
	assert.Equal(t, 0, report.Breached.Response)
	assert.Empty(t, fx.notifier.approachingCalls())
}

func TestScanSkipsPausedTickets(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.PausedAt = &baseTime

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Breached.Response)
	assert.False(t, fx.tickets.stored("t1").SLA.ResponseBreached)
}

func TestScanZeroWindowCountsAsFullyElapsed(t *testing.T) {
	// deadline at (or before) creation: window is empty, treated as 100%
	clock := newFixedClock(baseTime.Add(time.Second))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	// past the deadline entirely, so it breaches rather than warns
	assert.Equal(t, 1, report.Breached.Response)
}

func TestScanBreachesBothDeadlines(t *testing.T) {
	clock := newFixedClock(baseTime.Add(48 * time.Hour))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	resolution := baseTime.Add(24 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.ResolutionDeadline = &resolution

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Breached.Response)
	assert.Equal(t, 1, report.Breached.Resolution)
	assert.Len(t, fx.audit.byAction(domain.AuditActionSLABreached), 2)
}

func TestScanSkipsTerminalTickets(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	ticket.Status = domain.TicketStatusResolved
	response := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

// lockRefuser denies the lock for one ticket ID.
type lockRefuser struct{ refuse string }

func (l lockRefuser) Acquire(ctx context.Context, ticketID string) (func(), error) {
	if ticketID == l.refuse {
		return nil, &locking.ErrLockHeld{TicketID: ticketID}
	}
	return func() {}, nil
}

func TestScanContinuesWhenLockUnavailable(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))

	locked := newTestTicket("t1", domain.TicketPriorityMedium)
	free := newTestTicket("t2", domain.TicketPriorityMedium)
	for _, ticket := range []*domain.Ticket{locked, free} {
		response := baseTime.Add(2 * time.Hour)
		ticket.SLA.ResponseDeadline = &response
	}

	fx := newScannerFixture(t, clock, lockRefuser{refuse: "t1"}, locked, free)

	report, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Breached.Response)
	assert.False(t, fx.tickets.stored("t1").SLA.ResponseBreached)
	assert.True(t, fx.tickets.stored("t2").SLA.ResponseBreached)
}

func TestScanScopedToOrganization(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))

	inOrg := newTestTicket("t1", domain.TicketPriorityMedium)
	otherOrg := newTestTicket("t2", domain.TicketPriorityMedium)
	otherOrg.OrganizationID = "org-2"
	for _, ticket := range []*domain.Ticket{inOrg, otherOrg} {
		response := baseTime.Add(2 * time.Hour)
		ticket.SLA.ResponseDeadline = &response
	}

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, inOrg, otherOrg)

	org := testOrg
	report, err := fx.scanner.CheckSLABreaches(context.Background(), &org)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.True(t, fx.tickets.stored("t1").SLA.ResponseBreached)
	assert.False(t, fx.tickets.stored("t2").SLA.ResponseBreached)
}

func TestScanBreachTriggersEscalation(t *testing.T) {
	clock := newFixedClock(baseTime.Add(3 * time.Hour))

	policy := &domain.SLAPolicy{
		ID:                "policy-1",
		OrganizationID:    testOrg,
		Name:              "gold",
		ResponseMinutes:   map[domain.TicketPriority]int{domain.TicketPriorityMedium: 120},
		ResolutionMinutes: map[domain.TicketPriority]int{domain.TicketPriorityMedium: 1440},
		EscalationRules: []domain.EscalationRule{{
			Condition: domain.ConditionResponseBreached,
			Actions:   []domain.EscalationAction{domain.ActionNotifyTeamLead, domain.ActionIncreasePriority},
		}},
		IsActive: true,
	}
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	ticket.SLA.PolicyID = &policy.ID
	response := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &response

	fx := newScannerFixture(t, clock, locking.NoopTicketLocker{}, ticket)
	require.NoError(t, fx.policies.Create(context.Background(), policy))

	_, err := fx.scanner.CheckSLABreaches(context.Background(), nil)
	require.NoError(t, err)

	stored := fx.tickets.stored("t1")
	assert.Equal(t, domain.TicketPriorityHigh, stored.Priority)
	assert.True(t, stored.SLA.ResponseBreached)
	require.Len(t, fx.notifier.escalationCalls(), 1)
	assert.Len(t, fx.audit.byAction(domain.AuditActionPriorityEscalated), 1)
}
