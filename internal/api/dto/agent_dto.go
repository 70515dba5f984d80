package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// RegisterAgentRequest payload.
type RegisterAgentRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     domain.AgentRole `json:"role"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AgentResponse represents an agent account.
type AgentResponse struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Role           domain.AgentRole `json:"role"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Agent     AgentResponse `json:"agent"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
}
