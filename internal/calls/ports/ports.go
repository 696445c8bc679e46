// Package ports defines what the calls service needs from other modules.
// Implementations are wired in cmd/api and faked in tests.
package ports

import (
	"context"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/contacts"
)

// SessionStore persists call sessions between requests.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	// Get returns an apperr NotFound error for unknown or expired sessions.
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	// FindOpenByPhone returns the id of the caller's open session, or "".
	FindOpenByPhone(ctx context.Context, phone string) (string, error)
	// Lock serializes work on one session across requests and processes.
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// ContactResolver finds or creates the CRM record for a caller.
type ContactResolver interface {
	Resolve(ctx context.Context, state *contacts.State, phone, email string) (*contacts.Record, error)
}

// SlotNegotiator checks and books meeting slots.
type SlotNegotiator interface {
	FindSlot(ctx context.Context, start, end time.Time) (availability.MeetingSlot, error)
	Confirm(ctx context.Context, slot availability.MeetingSlot, event availability.Event) (availability.MeetingSlot, error)
	ParseLocal(value, zone string) (time.Time, error)
}

// CallTask is the CRM activity written at the end of a call.
type CallTask struct {
	WhoID        string
	Subject      string
	Body         string
	ActivityDate time.Time
}

// TaskLogger writes a completed call to the CRM and returns the task id.
type TaskLogger interface {
	LogTask(ctx context.Context, task CallTask) (string, error)
}

// SMSSender sends a text message and returns the delivery id.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, body string) (string, error)
}

// EmailSender sends the templated emails of each tier branch.
type EmailSender interface {
	SendOnboardingEmail(ctx context.Context, toEmail, firstName string) (string, error)
	SendAcceptableUsePolicyEmail(ctx context.Context, toEmail, firstName string) (string, error)
	SendFollowUpEmail(ctx context.Context, toEmail, firstName string) (string, error)
}
