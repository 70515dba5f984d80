package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// TicketRepository encapsulates ticket persistence, SLA state included.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id, organizationID string) (*domain.Ticket, error)
	// FindActiveWithSLA returns non-terminal tickets that have SLA deadlines
	// assigned, optionally scoped to one organization.
	FindActiveWithSLA(ctx context.Context, organizationID *string) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, external_key, organization_id, requester_email, title, description,
        status, priority, assignee_id,
        sla_policy_id, response_deadline, resolution_deadline,
        response_breached, resolution_breached,
        response_approaching_notified, resolution_approaching_notified,
        paused_at, pause_reason, total_paused_minutes,
        created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, organization_id, requester_email, title, description,
            status, priority, assignee_id,
            sla_policy_id, response_deadline, resolution_deadline,
            response_breached, resolution_breached,
            response_approaching_notified, resolution_approaching_notified,
            paused_at, pause_reason, total_paused_minutes, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.OrganizationID,
		ticket.RequesterEmail,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.SLA.PolicyID,
		ticket.SLA.ResponseDeadline,
		ticket.SLA.ResolutionDeadline,
		ticket.SLA.ResponseBreached,
		ticket.SLA.ResolutionBreached,
		ticket.SLA.ResponseApproachingNotified,
		ticket.SLA.ResolutionApproachingNotified,
		ticket.SLA.PausedAt,
		ticket.SLA.PauseReason,
		ticket.SLA.TotalPausedMinutes,
		ticket.CreatedAt,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, assignee_id=$5,
            sla_policy_id=$6, response_deadline=$7, resolution_deadline=$8,
            response_breached=$9, resolution_breached=$10,
            response_approaching_notified=$11, resolution_approaching_notified=$12,
            paused_at=$13, pause_reason=$14, total_paused_minutes=$15,
            closed_at=$16, updated_at=NOW()
        WHERE id=$17`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssigneeID,
		ticket.SLA.PolicyID,
		ticket.SLA.ResponseDeadline,
		ticket.SLA.ResolutionDeadline,
		ticket.SLA.ResponseBreached,
		ticket.SLA.ResolutionBreached,
		ticket.SLA.ResponseApproachingNotified,
		ticket.SLA.ResolutionApproachingNotified,
		ticket.SLA.PausedAt,
		ticket.SLA.PauseReason,
		ticket.SLA.TotalPausedMinutes,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id, organizationID string) (*domain.Ticket, error) {
	query := `SELECT` + ticketColumns + ` FROM tickets WHERE id=$1 AND organization_id=$2`
	row := r.pool.QueryRow(ctx, query, id, organizationID)
	return scanTicket(row)
}

func (r *ticketRepository) FindActiveWithSLA(ctx context.Context, organizationID *string) ([]domain.Ticket, error) {
	query := `SELECT` + ticketColumns + `
        FROM tickets
        WHERE status NOT IN ('resolved','closed','cancelled')
          AND (response_deadline IS NOT NULL OR resolution_deadline IS NOT NULL)`
	args := []any{}
	if organizationID != nil {
		args = append(args, *organizationID)
		query += ` AND organization_id=$1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.OrganizationID,
		&ticket.RequesterEmail,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.AssigneeID,
		&ticket.SLA.PolicyID,
		&ticket.SLA.ResponseDeadline,
		&ticket.SLA.ResolutionDeadline,
		&ticket.SLA.ResponseBreached,
		&ticket.SLA.ResolutionBreached,
		&ticket.SLA.ResponseApproachingNotified,
		&ticket.SLA.ResolutionApproachingNotified,
		&ticket.SLA.PausedAt,
		&ticket.SLA.PauseReason,
		&ticket.SLA.TotalPausedMinutes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
