// Package domain holds the call session aggregate and its state machine.
package domain

import (
	"errors"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/qualification"
)

// State is a step of the call. States only move forward.
type State string

const (
	StateStart              State = "start"
	StateFactsGathering     State = "facts_gathering"
	StateClassified         State = "classified"
	StateConsentCheck       State = "consent_check"
	StateContactAcquisition State = "contact_acquisition"
	StateBranchAction       State = "branch_action"
	StateLogged             State = "logged"
	StateClosed             State = "closed"
)

var stateRank = map[State]int{
	StateStart:              0,
	StateFactsGathering:     1,
	StateClassified:         2,
	StateConsentCheck:       3,
	StateContactAcquisition: 4,
	StateBranchAction:       5,
	StateLogged:             6,
	StateClosed:             7,
}

// Rank orders states. Unknown states rank below start.
func (s State) Rank() int {
	if r, ok := stateRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is o or later.
func (s State) AtLeast(o State) bool { return s.Rank() >= o.Rank() }

// ErrInvalidTransition is returned for a backward move or a move out of closed.
var ErrInvalidTransition = errors.New("invalid state transition")

// EmailStatus tracks acquisition of the caller's address.
type EmailStatus string

const (
	EmailUnknown   EmailStatus = ""
	EmailRequested EmailStatus = "requested"
	EmailProvided  EmailStatus = "provided"
	EmailDeclined  EmailStatus = "declined"
)

// EmailSource says how an address reached the session.
type EmailSource string

const (
	EmailSourceVoice EmailSource = "voice"
	EmailSourceSMS   EmailSource = "sms"
)

// Session is one inbound call. It is persisted after every step.
type Session struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	State State  `json:"state"`

	Facts         qualification.Facts   `json:"facts"`
	Qualification *qualification.Result `json:"qualification,omitempty"`

	CRMConsent   *bool `json:"crm_consent,omitempty"`
	EmailConsent *bool `json:"email_consent,omitempty"`

	Email       string      `json:"email,omitempty"`
	EmailStatus EmailStatus `json:"email_status,omitempty"`
	EmailSource EmailSource `json:"email_source,omitempty"`

	Contact contacts.State `json:"contact"`

	Slot            *availability.MeetingSlot `json:"slot,omitempty"`
	FollowUpByEmail bool                      `json:"follow_up_by_email"`

	Outcome CallOutcome `json:"outcome"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession starts a call for a normalised caller phone.
func NewSession(id, phone string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Phone:     phone,
		State:     StateStart,
		Facts:     qualification.Facts{Phone: phone},
		Outcome:   CallOutcome{StartedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session to a later state. Moving to the current state
// is a no-op.
func (s *Session) Advance(to State) error {
	if s.State == StateClosed && to != StateClosed {
		return ErrInvalidTransition
	}
	if to.Rank() < 0 || to.Rank() < s.State.Rank() {
		return ErrInvalidTransition
	}
	s.State = to
	return nil
}

// Tier returns the qualification tier, empty before classification.
func (s *Session) Tier() qualification.Tier {
	if s.Qualification == nil {
		return ""
	}
	return s.Qualification.Tier
}

// Closed reports whether the session is terminal.
func (s *Session) Closed() bool { return s.State == StateClosed }

// CRMWritesAllowed reports whether the session may write to the CRM. When
// consent is required it must have been granted.
func (s *Session) CRMWritesAllowed(requireConsent bool) bool {
	if !requireConsent {
		return s.CRMConsent == nil || *s.CRMConsent
	}
	return s.CRMConsent != nil && *s.CRMConsent
}

// HasEmail reports whether an address was captured.
func (s *Session) HasEmail() bool { return s.EmailStatus == EmailProvided && s.Email != "" }

// EmailDecided reports whether the caller gave or refused an address.
func (s *Session) EmailDecided() bool {
	return s.EmailStatus == EmailProvided || s.EmailStatus == EmailDeclined
}

// FirstName returns the CRM first name when known.
func (s *Session) FirstName() string {
	if s.Contact.Record == nil {
		return ""
	}
	return s.Contact.Record.FirstName
}
