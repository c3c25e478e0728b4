// Package calls drives outbound voice calls through the telephony provider
// with a local state machine that provider callbacks can only move forward.
package calls

import (
	"errors"
	"time"
)

// Status is a call lifecycle state.
type Status string

const (
	StatusInitiated Status = "INITIATED"
	StatusRinging   Status = "RINGING"
	StatusAnswered  Status = "ANSWERED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// DirectionOutbound is the only direction placed by the CRM.
const DirectionOutbound = "OUTBOUND"

var transitions = map[Status][]Status{
	StatusInitiated: {StatusRinging, StatusFailed},
	StatusRinging:   {StatusAnswered, StatusCompleted, StatusFailed},
	StatusAnswered:  {StatusCompleted, StatusFailed},
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusRinging, StatusAnswered, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Call is one outbound call attempt.
type Call struct {
	ID             string     `json:"id"`
	LeadID         string     `json:"lead_id,omitempty"`
	CallerID       string     `json:"caller_id"`
	PhoneNumber    string     `json:"phone_number"`
	Direction      string     `json:"direction"`
	Status         Status     `json:"status"`
	ExternalCallID string     `json:"external_call_id,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// apply moves the call to status at the given time, stamping start and end.
func (c *Call) apply(to Status, at time.Time) {
	c.Status = to
	c.UpdatedAt = at
	switch {
	case to == StatusRinging, to == StatusAnswered:
		if c.StartedAt == nil {
			c.StartedAt = &at
		}
	case to.Terminal():
		if c.StartedAt == nil && to == StatusCompleted {
			c.StartedAt = &at
		}
		c.EndedAt = &at
	}
}

var (
	ErrCallNotFound     = errors.New("calls: call not found")
	ErrForbidden        = errors.New("calls: caller may not call this lead")
	ErrLeadNotFound     = errors.New("calls: lead not found")
	ErrInvalidPhone     = errors.New("calls: a phone number is required")
	ErrInvalidStatus    = errors.New("calls: unknown call status")
	ErrPlacementFailed  = errors.New("calls: telephony provider rejected the call")
	ErrUnauthenticated  = errors.New("calls: caller is required")
	ErrPlacerNotEnabled = errors.New("calls: telephony is not configured")
)
