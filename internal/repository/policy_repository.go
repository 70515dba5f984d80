package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// PolicyRepository handles persistence for SLA policies.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	SetActive(ctx context.Context, id string, active bool) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context, organizationID string) ([]domain.SLAPolicy, error)
	// FindDefaultForPriority returns the oldest active policy of the
	// organization that defines minutes for the given priority, or
	// pgx.ErrNoRows when none exists.
	FindDefaultForPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLAPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates the repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

func (r *policyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	responseJSON, err := json.Marshal(policy.ResponseMinutes)
	if err != nil {
		return fmt.Errorf("marshal response minutes: %w", err)
	}
	resolutionJSON, err := json.Marshal(policy.ResolutionMinutes)
	if err != nil {
		return fmt.Errorf("marshal resolution minutes: %w", err)
	}
	rulesJSON, err := json.Marshal(policy.EscalationRules)
	if err != nil {
		return fmt.Errorf("marshal escalation rules: %w", err)
	}

	const query = `
        INSERT INTO sla_policies (organization_id, name, description, response_minutes, resolution_minutes, escalation_rules, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.OrganizationID,
		policy.Name,
		policy.Description,
		responseJSON,
		resolutionJSON,
		rulesJSON,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	responseJSON, err := json.Marshal(policy.ResponseMinutes)
	if err != nil {
		return fmt.Errorf("marshal response minutes: %w", err)
	}
	resolutionJSON, err := json.Marshal(policy.ResolutionMinutes)
	if err != nil {
		return fmt.Errorf("marshal resolution minutes: %w", err)
	}
	rulesJSON, err := json.Marshal(policy.EscalationRules)
	if err != nil {
		return fmt.Errorf("marshal escalation rules: %w", err)
	}

	const query = `
        UPDATE sla_policies
        SET name=$1, description=$2, response_minutes=$3, resolution_minutes=$4, escalation_rules=$5, is_active=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		policy.Name,
		policy.Description,
		responseJSON,
		resolutionJSON,
		rulesJSON,
		policy.IsActive,
		policy.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE sla_policies SET is_active=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, active, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, organization_id, name, description, response_minutes, resolution_minutes, escalation_rules, is_active, created_at, updated_at
        FROM sla_policies WHERE id=$1`
	return scanPolicy(r.pool.QueryRow(ctx, query, id))
}

func (r *policyRepository) List(ctx context.Context, organizationID string) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, organization_id, name, description, response_minutes, resolution_minutes, escalation_rules, is_active, created_at, updated_at
        FROM sla_policies WHERE organization_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func (r *policyRepository) FindDefaultForPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, organization_id, name, description, response_minutes, resolution_minutes, escalation_rules, is_active, created_at, updated_at
        FROM sla_policies
        WHERE organization_id=$1 AND is_active=TRUE AND response_minutes ? $2
        ORDER BY created_at ASC LIMIT 1`
	return scanPolicy(r.pool.QueryRow(ctx, query, organizationID, string(priority)))
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var (
		policy         domain.SLAPolicy
		responseJSON   []byte
		resolutionJSON []byte
		rulesJSON      []byte
	)
	if err := row.Scan(
		&policy.ID,
		&policy.OrganizationID,
		&policy.Name,
		&policy.Description,
		&responseJSON,
		&resolutionJSON,
		&rulesJSON,
		&policy.IsActive,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(responseJSON, &policy.ResponseMinutes); err != nil {
		return nil, fmt.Errorf("unmarshal response minutes: %w", err)
	}
	if err := json.Unmarshal(resolutionJSON, &policy.ResolutionMinutes); err != nil {
		return nil, fmt.Errorf("unmarshal resolution minutes: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &policy.EscalationRules); err != nil {
		return nil, fmt.Errorf("unmarshal escalation rules: %w", err)
	}
	return &policy, nil
}
