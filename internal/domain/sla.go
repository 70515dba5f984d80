package domain

import (
	"errors"
	"time"
)

// DeadlineType distinguishes the two SLA clocks tracked per ticket.
type DeadlineType string

const (
	DeadlineTypeResponse   DeadlineType = "response"
	DeadlineTypeResolution DeadlineType = "resolution"
)

// EscalationCondition identifies the SLA event that triggers a rule.
type EscalationCondition string

const (
	ConditionResponseApproaching   EscalationCondition = "response_approaching"
	ConditionResponseBreached      EscalationCondition = "response_breached"
	ConditionResolutionApproaching EscalationCondition = "resolution_approaching"
	ConditionResolutionBreached    EscalationCondition = "resolution_breached"
)

// EscalationAction enumerates what a matching rule executes.
type EscalationAction string

const (
	ActionNotifyAssignee   EscalationAction = "notify_assignee"
	ActionNotifyTeamLead   EscalationAction = "notify_team_lead"
	ActionNotifyManager    EscalationAction = "notify_manager"
	ActionIncreasePriority EscalationAction = "increase_priority"
	ActionReassignTicket   EscalationAction = "reassign_ticket"
)

// EscalationRule maps an SLA condition to an ordered list of actions.
type EscalationRule struct {
	Condition EscalationCondition `json:"condition"`
	Actions   []EscalationAction  `json:"actions"`
}

// SLAPolicy is a named set of per-priority response/resolution targets plus
// escalation rules, scoped to an organization.
type SLAPolicy struct {
	ID                string
	OrganizationID    string
	Name              string
	Description       string
	ResponseMinutes   map[TicketPriority]int
	ResolutionMinutes map[TicketPriority]int
	EscalationRules   []EscalationRule
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RulesFor returns the rules matching the given condition, in policy order.
func (p *SLAPolicy) RulesFor(condition EscalationCondition) []EscalationRule {
	var matched []EscalationRule
	for _, rule := range p.EscalationRules {
		if rule.Condition == condition {
			matched = append(matched, rule)
		}
	}
	return matched
}

// TicketSLAState tracks deadlines, breach flags and the pause clock for a
// single ticket. Breach flags only ever transition false to true; resetting
// them requires a full policy reapplication.
type TicketSLAState struct {
	PolicyID                      *string
	ResponseDeadline              *time.Time
	ResolutionDeadline            *time.Time
	ResponseBreached              bool
	ResolutionBreached            bool
	ResponseApproachingNotified   bool
	ResolutionApproachingNotified bool
	PausedAt                      *time.Time
	PauseReason                   string
	TotalPausedMinutes            int
}

// HasDeadlines reports whether any SLA clock is set for the ticket.
func (s *TicketSLAState) HasDeadlines() bool {
	return s.ResponseDeadline != nil || s.ResolutionDeadline != nil
}

// IsPaused reports whether the SLA clock is currently frozen.
func (s *TicketSLAState) IsPaused() bool {
	return s.PausedAt != nil
}

// Fallback minute tables used when a ticket carries no policy.
var (
	fallbackResponseMinutes = map[TicketPriority]int{
		TicketPriorityCritical: 30,
		TicketPriorityHigh:     60,
		TicketPriorityMedium:   120,
		TicketPriorityLow:      240,
	}
	fallbackResolutionMinutes = map[TicketPriority]int{
		TicketPriorityCritical: 240,
		TicketPriorityHigh:     480,
		TicketPriorityMedium:   1440,
		TicketPriorityLow:      4320,
	}
)

// ErrPriorityUndefined is returned when neither the policy nor the fallback
// table defines minutes for a priority. Unreachable for the closed priority
// enum, kept for defense against unvalidated input.
var ErrPriorityUndefined = errors.New("sla: priority not defined in policy or fallback table")

// DeadlinePair carries the two absolute deadlines computed for a ticket.
type DeadlinePair struct {
	Response   time.Time
	Resolution time.Time
}

// CalculateDeadlines computes absolute response/resolution deadlines from the
// anchor time. Policy minutes win; a priority missing from the policy falls
// back to the policy's medium entry, then to the hardcoded table. A nil
// policy uses the hardcoded table directly. Pure function, no side effects.
func CalculateDeadlines(priority TicketPriority, anchor time.Time, policy *SLAPolicy) (DeadlinePair, error) {
	responseMin, err := resolveMinutes(priority, policyMinutes(policy, DeadlineTypeResponse), fallbackResponseMinutes)
	if err != nil {
		return DeadlinePair{}, err
	}
	resolutionMin, err := resolveMinutes(priority, policyMinutes(policy, DeadlineTypeResolution), fallbackResolutionMinutes)
	if err != nil {
		return DeadlinePair{}, err
	}
	return DeadlinePair{
		Response:   anchor.Add(time.Duration(responseMin) * time.Minute),
		Resolution: anchor.Add(time.Duration(resolutionMin) * time.Minute),
	}, nil
}

func policyMinutes(policy *SLAPolicy, deadlineType DeadlineType) map[TicketPriority]int {
	if policy == nil {
		return nil
	}
	if deadlineType == DeadlineTypeResponse {
		return policy.ResponseMinutes
	}
	return policy.ResolutionMinutes
}

func resolveMinutes(priority TicketPriority, policyTable, fallback map[TicketPriority]int) (int, error) {
	if policyTable != nil {
		if minutes, ok := policyTable[priority]; ok {
			return minutes, nil
		}
		if minutes, ok := policyTable[TicketPriorityMedium]; ok {
			return minutes, nil
		}
	}
	if minutes, ok := fallback[priority]; ok {
		return minutes, nil
	}
	if minutes, ok := fallback[TicketPriorityMedium]; ok {
		return minutes, nil
	}
	return 0, ErrPriorityUndefined
}
