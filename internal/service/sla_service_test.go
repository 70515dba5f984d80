package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

const testOrg = "org-1"

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestTicket(id string, priority domain.TicketPriority) *domain.Ticket {
	return &domain.Ticket{
		ID:             id,
		ExternalKey:    "TCK-" + id,
		OrganizationID: testOrg,
		RequesterEmail: "user@example.com",
		Title:          "printer on fire",
		Status:         domain.TicketStatusOpen,
		Priority:       priority,
		CreatedAt:      baseTime,
	}
}

func newSLAFixture(clock Clock, tickets *fakeTicketRepo, policies *fakePolicyRepo, audit *fakeAuditRepo) *SLAService {
	return NewSLAService(SLADependencies{
		TicketRepo: tickets,
		PolicyRepo: policies,
		AuditRepo:  audit,
		Locker:     locking.NoopTicketLocker{},
		Clock:      clock,
		Logger:     zap.NewNop(),
	})
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %v", err)
	return domainErr.Code
}

func TestApplyPolicyToTicket(t *testing.T) {
	clock := newFixedClock(baseTime.Add(45 * time.Minute))
	policy := &domain.SLAPolicy{
		ID:                "policy-1",
		OrganizationID:    testOrg,
		Name:              "gold",
		ResponseMinutes:   map[domain.TicketPriority]int{domain.TicketPriorityHigh: 20},
		ResolutionMinutes: map[domain.TicketPriority]int{domain.TicketPriorityHigh: 200},
		IsActive:          true,
	}
	ticket := newTestTicket("t1", domain.TicketPriorityHigh)
	ticket.SLA.ResponseBreached = true
	ticket.SLA.ResponseApproachingNotified = true
	ticket.SLA.TotalPausedMinutes = 17

	tickets := newFakeTicketRepo(ticket)
	audit := newFakeAuditRepo()
	svc := newSLAFixture(clock, tickets, newFakePolicyRepo(policy), audit)

	updated, err := svc.ApplyPolicyToTicket(context.Background(), "t1", "policy-1", testOrg, nil)
	require.NoError(t, err)

	// deadlines anchor at creation, not at the apply call
	require.NotNil(t, updated.SLA.ResponseDeadline)
	assert.Equal(t, baseTime.Add(20*time.Minute), *updated.SLA.ResponseDeadline)
	require.NotNil(t, updated.SLA.ResolutionDeadline)
	assert.Equal(t, baseTime.Add(200*time.Minute), *updated.SLA.ResolutionDeadline)

	assert.False(t, updated.SLA.ResponseBreached)
	assert.False(t, updated.SLA.ResponseApproachingNotified)
	assert.Equal(t, 17, updated.SLA.TotalPausedMinutes)
	require.NotNil(t, updated.SLA.PolicyID)
	assert.Equal(t, "policy-1", *updated.SLA.PolicyID)

	applied := audit.byAction(domain.AuditActionSLAPolicyApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, "policy-1", applied[0].Details["policy_id"])
}

func TestApplyPolicyToTicketPolicyNotFound(t *testing.T) {
	clock := newFixedClock(baseTime)
	tickets := newFakeTicketRepo(newTestTicket("t1", domain.TicketPriorityHigh))
	svc := newSLAFixture(clock, tickets, newFakePolicyRepo(), newFakeAuditRepo())

	_, err := svc.ApplyPolicyToTicket(context.Background(), "t1", "missing", testOrg, nil)
	assert.Equal(t, "POLICY_NOT_FOUND", domainCode(t, err))
}

func TestApplyPolicyToTicketTicketNotFound(t *testing.T) {
	clock := newFixedClock(baseTime)
	svc := newSLAFixture(clock, newFakeTicketRepo(), newFakePolicyRepo(), newFakeAuditRepo())

	_, err := svc.ApplyPolicyToTicket(context.Background(), "missing", "policy-1", testOrg, nil)
	assert.Equal(t, "TICKET_NOT_FOUND", domainCode(t, err))
}

func TestPauseSLA(t *testing.T) {
	clock := newFixedClock(baseTime.Add(30 * time.Minute))
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	deadline := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &deadline

	tickets := newFakeTicketRepo(ticket)
	audit := newFakeAuditRepo()
	svc := newSLAFixture(clock, tickets, newFakePolicyRepo(), audit)

	updated, err := svc.PauseSLA(context.Background(), "t1", "waiting on customer", testOrg, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.SLA.PausedAt)
	assert.Equal(t, clock.Now(), *updated.SLA.PausedAt)
	assert.Equal(t, "waiting on customer", updated.SLA.PauseReason)

	paused := audit.byAction(domain.AuditActionSLAPaused)
	require.Len(t, paused, 1)
	assert.Equal(t, "waiting on customer", paused[0].Details["reason"])
}

func TestPauseSLAWithoutDeadlines(t *testing.T) {
	clock := newFixedClock(baseTime)
	tickets := newFakeTicketRepo(newTestTicket("t1", domain.TicketPriorityMedium))
	svc := newSLAFixture(clock, tickets, newFakePolicyRepo(), newFakeAuditRepo())

	_, err := svc.PauseSLA(context.Background(), "t1", "", testOrg, nil)
	assert.Equal(t, "NO_ACTIVE_SLA", domainCode(t, err))
}

func TestPauseSLAAlreadyPaused(t *testing.T) {
	clock := newFixedClock(baseTime)
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	deadline := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &deadline
	ticket.SLA.PausedAt = &baseTime

	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), newFakeAuditRepo())

	_, err := svc.PauseSLA(context.Background(), "t1", "", testOrg, nil)
	assert.Equal(t, "SLA_ALREADY_PAUSED", domainCode(t, err))
}

func TestResumeSLAShiftsDeadlines(t *testing.T) {
	pausedAt := baseTime.Add(30 * time.Minute)
	clock := newFixedClock(pausedAt.Add(90 * time.Minute))

	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	resolution := baseTime.Add(24 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.ResolutionDeadline = &resolution
	ticket.SLA.PausedAt = &pausedAt
	ticket.SLA.PauseReason = "waiting on customer"
	ticket.SLA.TotalPausedMinutes = 10

	tickets := newFakeTicketRepo(ticket)
	audit := newFakeAuditRepo()
	svc := newSLAFixture(clock, tickets, newFakePolicyRepo(), audit)

	updated, err := svc.ResumeSLA(context.Background(), "t1", testOrg, nil)
	require.NoError(t, err)

	assert.Nil(t, updated.SLA.PausedAt)
	assert.Empty(t, updated.SLA.PauseReason)
	assert.Equal(t, 100, updated.SLA.TotalPausedMinutes)
	assert.Equal(t, response.Add(90*time.Minute), *updated.SLA.ResponseDeadline)
	assert.Equal(t, resolution.Add(90*time.Minute), *updated.SLA.ResolutionDeadline)

	resumed := audit.byAction(domain.AuditActionSLAResumed)
	require.Len(t, resumed, 1)
	assert.Equal(t, 90, resumed[0].Details["paused_minutes"])
}

func TestResumeSLARoundsToWholeMinutes(t *testing.T) {
	pausedAt := baseTime
	clock := newFixedClock(pausedAt.Add(92*time.Minute + 20*time.Second))

	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.PausedAt = &pausedAt

	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), newFakeAuditRepo())

	updated, err := svc.ResumeSLA(context.Background(), "t1", testOrg, nil)
	require.NoError(t, err)
	assert.Equal(t, 92, updated.SLA.TotalPausedMinutes)
	assert.Equal(t, response.Add(92*time.Minute), *updated.SLA.ResponseDeadline)
}

func TestResumeSLADoesNotShiftBreachedDeadline(t *testing.T) {
	pausedAt := baseTime.Add(30 * time.Minute)
	clock := newFixedClock(pausedAt.Add(time.Hour))

	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	response := baseTime.Add(10 * time.Minute)
	resolution := baseTime.Add(24 * time.Hour)
	ticket.SLA.ResponseDeadline = &response
	ticket.SLA.ResponseBreached = true
	ticket.SLA.ResolutionDeadline = &resolution
	ticket.SLA.PausedAt = &pausedAt

	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), newFakeAuditRepo())

	updated, err := svc.ResumeSLA(context.Background(), "t1", testOrg, nil)
	require.NoError(t, err)
	assert.Equal(t, response, *updated.SLA.ResponseDeadline, "breached deadline must stay put")
	assert.Equal(t, resolution.Add(time.Hour), *updated.SLA.ResolutionDeadline)
}

func TestResumeSLANotPaused(t *testing.T) {
	clock := newFixedClock(baseTime)
	ticket := newTestTicket("t1", domain.TicketPriorityMedium)
	deadline := baseTime.Add(time.Hour)
	ticket.SLA.ResponseDeadline = &deadline

	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), newFakeAuditRepo())

	_, err := svc.ResumeSLA(context.Background(), "t1", testOrg, nil)
	assert.Equal(t, "SLA_NOT_PAUSED", domainCode(t, err))
}

func TestRecalculateOnPriorityChangeAnchorsAtNow(t *testing.T) {
	now := baseTime.Add(3 * time.Hour)
	clock := newFixedClock(now)

	ticket := newTestTicket("t1", domain.TicketPriorityCritical)
	oldResponse := baseTime.Add(2 * time.Hour)
	ticket.SLA.ResponseDeadline = &oldResponse
	ticket.SLA.ResponseBreached = true

	audit := newFakeAuditRepo()
	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), audit)

	require.NoError(t, svc.RecalculateOnPriorityChange(context.Background(), ticket, domain.TicketPriorityMedium, nil))

	// fallback table for critical: 30/240 minutes from the recalc time
	assert.Equal(t, now.Add(30*time.Minute), *ticket.SLA.ResponseDeadline)
	assert.Equal(t, now.Add(240*time.Minute), *ticket.SLA.ResolutionDeadline)
	assert.True(t, ticket.SLA.ResponseBreached, "breach flags survive recalculation")

	recalced := audit.byAction(domain.AuditActionSLARecalculated)
	require.Len(t, recalced, 1)
	assert.Equal(t, domain.TicketPriorityMedium, recalced[0].Details["old_priority"])
	assert.Equal(t, domain.TicketPriorityCritical, recalced[0].Details["new_priority"])
}

func TestRecalculateFallsBackWhenPolicyDeleted(t *testing.T) {
	now := baseTime.Add(time.Hour)
	clock := newFixedClock(now)

	ticket := newTestTicket("t1", domain.TicketPriorityHigh)
	missing := "gone-policy"
	ticket.SLA.PolicyID = &missing

	svc := newSLAFixture(clock, newFakeTicketRepo(ticket), newFakePolicyRepo(), newFakeAuditRepo())

	require.NoError(t, svc.RecalculateOnPriorityChange(context.Background(), ticket, domain.TicketPriorityMedium, nil))
	assert.Equal(t, now.Add(60*time.Minute), *ticket.SLA.ResponseDeadline)
	assert.Equal(t, now.Add(480*time.Minute), *ticket.SLA.ResolutionDeadline)
}
