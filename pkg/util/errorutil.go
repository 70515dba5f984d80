package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// SLA engine error taxonomy. Direct API calls propagate these to the caller
// unchanged; the scanner and escalation engine only log them.

func NewTicketNotFound(ticketID string) error {
	return NewDomainError("TICKET_NOT_FOUND", "ticket not found", http.StatusNotFound,
		map[string]any{"ticket_id": ticketID})
}

func NewPolicyNotFound(policyID string) error {
	return NewDomainError("POLICY_NOT_FOUND", "SLA policy not found", http.StatusNotFound,
		map[string]any{"policy_id": policyID})
}

func NewSLAAlreadyPaused(ticketID string) error {
	return NewDomainError("SLA_ALREADY_PAUSED", "SLA is already paused", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewSLANotPaused(ticketID string) error {
	return NewDomainError("SLA_NOT_PAUSED", "SLA is not paused", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewNoActiveSLA(ticketID string) error {
	return NewDomainError("NO_ACTIVE_SLA", "ticket has no active SLA", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewPolicyPriorityUndefined(priority string) error {
	return NewDomainError("POLICY_PRIORITY_UNDEFINED", "priority has no SLA minutes defined",
		http.StatusUnprocessableEntity, map[string]any{"priority": priority})
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
