package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// fixedClock returns a preset time and can be advanced by tests.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	updates int
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, t := range tickets {
		repo.put(t)
	}
	return repo
}

func (r *fakeTicketRepo) put(ticket *domain.Ticket) {
	copied := *ticket
	r.tickets[ticket.ID] = &copied
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = "ticket-" + strconv.Itoa(len(r.tickets)+1)
	}
	r.put(ticket)
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.put(ticket)
	r.updates++
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id, organizationID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.OrganizationID != organizationID {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) FindActiveWithSLA(ctx context.Context, organizationID *string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status.IsTerminal() || !ticket.SLA.HasDeadlines() {
			continue
		}
		if organizationID != nil && ticket.OrganizationID != *organizationID {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func (r *fakeTicketRepo) stored(id string) *domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket, ok := r.tickets[id]; ok {
		copied := *ticket
		return &copied
	}
	return nil
}

func (r *fakeTicketRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*domain.SLAPolicy
}

func newFakePolicyRepo(policies ...*domain.SLAPolicy) *fakePolicyRepo {
	repo := &fakePolicyRepo{policies: make(map[string]*domain.SLAPolicy)}
	for _, p := range policies {
		repo.policies[p.ID] = p
	}
	return repo
}

func (r *fakePolicyRepo) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy.ID == "" {
		policy.ID = "policy-" + strconv.Itoa(len(r.policies)+1)
	}
	r.policies[policy.ID] = policy
	return nil
}

func (r *fakePolicyRepo) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.policies[policy.ID] = policy
	return nil
}

func (r *fakePolicyRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return pgx.ErrNoRows
	}
	policy.IsActive = active
	return nil
}

func (r *fakePolicyRepo) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return policy, nil
}

func (r *fakePolicyRepo) List(ctx context.Context, organizationID string) ([]domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SLAPolicy
	for _, policy := range r.policies {
		if policy.OrganizationID == organizationID {
			result = append(result, *policy)
		}
	}
	return result, nil
}

func (r *fakePolicyRepo) FindDefaultForPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.SLAPolicy
	for _, policy := range r.policies {
		if policy.OrganizationID != organizationID || !policy.IsActive {
			continue
		}
		if _, ok := policy.ResponseMinutes[priority]; !ok {
			continue
		}
		if best == nil || policy.CreatedAt.Before(best.CreatedAt) {
			best = policy
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return best, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = "audit-" + strconv.Itoa(len(r.entries)+1)
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r *fakeAuditRepo) byAction(action domain.AuditAction) []domain.AuditLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.AuditLogEntry
	for _, entry := range r.entries {
		if entry.Action == action {
			result = append(result, entry)
		}
	}
	return result
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.StatusHistoryEntry
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (r *fakeHistoryRepo) Append(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = "history-" + strconv.Itoa(len(r.entries)+1)
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.StatusHistoryEntry
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

// recordingNotifier captures notification calls for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	approaching []string
	breached    []string
	escalations []domain.EscalationRule
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (n *recordingNotifier) NotifyApproaching(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType, thresholdPercent int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approaching = append(n.approaching, ticket.ID+":"+string(deadlineType))
}

func (n *recordingNotifier) NotifyBreached(ctx context.Context, ticket *domain.Ticket, deadlineType domain.DeadlineType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.breached = append(n.breached, ticket.ID+":"+string(deadlineType))
}

func (n *recordingNotifier) NotifyEscalation(ctx context.Context, ticket *domain.Ticket, rule domain.EscalationRule) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalations = append(n.escalations, rule)
}

func (n *recordingNotifier) breachedCalls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.breached...)
}

func (n *recordingNotifier) approachingCalls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string{}, n.approaching...)
}

func (n *recordingNotifier) escalationCalls() []domain.EscalationRule {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.EscalationRule{}, n.escalations...)
}
