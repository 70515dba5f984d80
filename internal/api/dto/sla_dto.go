package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// ApplyPolicyRequest payload.
type ApplyPolicyRequest struct {
	PolicyID string `json:"policy_id"`
}

// PauseSLARequest payload.
type PauseSLARequest struct {
	Reason string `json:"reason"`
}

// CreatePolicyRequest payload for policy create/update.
type CreatePolicyRequest struct {
	Name              string                        `json:"name"`
	Description       string                        `json:"description"`
	ResponseMinutes   map[domain.TicketPriority]int `json:"response_minutes"`
	ResolutionMinutes map[domain.TicketPriority]int `json:"resolution_minutes"`
	EscalationRules   []domain.EscalationRule       `json:"escalation_rules"`
	IsActive          *bool                         `json:"is_active"`
}

// PolicyResponse represents an SLA policy.
type PolicyResponse struct {
	ID                string                        `json:"id"`
	OrganizationID    string                        `json:"organization_id"`
	Name              string                        `json:"name"`
	Description       string                        `json:"description"`
	ResponseMinutes   map[domain.TicketPriority]int `json:"response_minutes"`
	ResolutionMinutes map[domain.TicketPriority]int `json:"resolution_minutes"`
	EscalationRules   []domain.EscalationRule       `json:"escalation_rules"`
	IsActive          bool                          `json:"is_active"`
	CreatedAt         time.Time                     `json:"created_at"`
	UpdatedAt         time.Time                     `json:"updated_at"`
}
