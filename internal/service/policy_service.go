package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// PolicyService manages SLA policy definitions.
type PolicyService struct {
	policies repository.PolicyRepository
	logger   *zap.Logger
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.PolicyRepository, logger *zap.Logger) *PolicyService {
	return &PolicyService{policies: policies, logger: logger}
}

// PolicyInput describes a policy create/update payload.
type PolicyInput struct {
	OrganizationID    string
	Name              string
	Description       string
	ResponseMinutes   map[domain.TicketPriority]int
	ResolutionMinutes map[domain.TicketPriority]int
	EscalationRules   []domain.EscalationRule
	IsActive          bool
}

// CreatePolicy validates and persists a new policy.
func (s *PolicyService) CreatePolicy(ctx context.Context, input PolicyInput) (*domain.SLAPolicy, error) {
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}
	policy := &domain.SLAPolicy{
		OrganizationID:    input.OrganizationID,
		Name:              strings.TrimSpace(input.Name),
		Description:       strings.TrimSpace(input.Description),
		ResponseMinutes:   input.ResponseMinutes,
		ResolutionMinutes: input.ResolutionMinutes,
		EscalationRules:   input.EscalationRules,
		IsActive:          input.IsActive,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, err
	}
	s.logger.Info("SLA policy created",
		zap.String("policy_id", policy.ID),
		zap.String("organization_id", policy.OrganizationID),
		zap.String("name", policy.Name))
	return policy, nil
}

// UpdatePolicy replaces a policy's definition. Tickets already carrying the
// policy keep their computed deadlines; the new minutes apply on the next
// recalculation.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policyID string, input PolicyInput) (*domain.SLAPolicy, error) {
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}
	policy, err := s.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	policy.Name = strings.TrimSpace(input.Name)
	policy.Description = strings.TrimSpace(input.Description)
	policy.ResponseMinutes = input.ResponseMinutes
	policy.ResolutionMinutes = input.ResolutionMinutes
	policy.EscalationRules = input.EscalationRules
	policy.IsActive = input.IsActive

	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPolicyNotFound(policyID)
		}
		return nil, err
	}
	return policy, nil
}

// DeactivatePolicy removes the policy from default lookup without touching
// tickets that reference it.
func (s *PolicyService) DeactivatePolicy(ctx context.Context, policyID string) error {
	if err := s.policies.SetActive(ctx, policyID, false); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewPolicyNotFound(policyID)
		}
		return err
	}
	return nil
}

// GetPolicy fetches a policy by ID.
func (s *PolicyService) GetPolicy(ctx context.Context, policyID string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPolicyNotFound(policyID)
		}
		return nil, err
	}
	return policy, nil
}

// ListPolicies returns all policies of an organization.
func (s *PolicyService) ListPolicies(ctx context.Context, organizationID string) ([]domain.SLAPolicy, error) {
	return s.policies.List(ctx, organizationID)
}

func validatePolicyInput(input PolicyInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("policy name required", nil)
	}
	if len(input.ResponseMinutes) == 0 && len(input.ResolutionMinutes) == 0 {
		return apperrors.NewValidationError("policy must define minutes for at least one priority", nil)
	}
	for priority, minutes := range input.ResponseMinutes {
		if minutes <= 0 {
			return apperrors.NewValidationError("response minutes must be positive",
				map[string]any{"priority": priority})
		}
	}
	for priority, minutes := range input.ResolutionMinutes {
		if minutes <= 0 {
			return apperrors.NewValidationError("resolution minutes must be positive",
				map[string]any{"priority": priority})
		}
	}
	for _, rule := range input.EscalationRules {
		if !validCondition(rule.Condition) {
			return apperrors.NewValidationError("unknown escalation condition",
				map[string]any{"condition": rule.Condition})
		}
		if len(rule.Actions) == 0 {
			return apperrors.NewValidationError("escalation rule needs at least one action",
				map[string]any{"condition": rule.Condition})
		}
	}
	return nil
}

func validCondition(condition domain.EscalationCondition) bool {
	switch condition {
	case domain.ConditionResponseApproaching,
		domain.ConditionResponseBreached,
		domain.ConditionResolutionApproaching,
		domain.ConditionResolutionBreached:
		return true
	}
	return false
}
