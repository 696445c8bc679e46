package transport

import (
	"time"

	"sales_agent_backend/internal/availability"
)

// SendEmailRequest is a free-form email.
type SendEmailRequest struct {
	To      []string `json:"to" validate:"required,min=1,max=20,dive,email"`
	Cc      []string `json:"cc,omitempty" validate:"omitempty,max=20,dive,email"`
	ReplyTo string   `json:"replyTo,omitempty" validate:"omitempty,email"`
	Subject string   `json:"subject" validate:"required,max=255"`
	Body    string   `json:"body" validate:"required,max=100000"`
	HTML    bool     `json:"html"`
}

// SendEmailResponse carries the provider's delivery id.
type SendEmailResponse struct {
	ID string `json:"id"`
}

// FreeBusyRequest asks for busy intervals in a window.
type FreeBusyRequest struct {
	TimeMin    time.Time `json:"timeMin" validate:"required"`
	TimeMax    time.Time `json:"timeMax" validate:"required"`
	CalendarID string    `json:"calendarId,omitempty" validate:"omitempty,max=255"`
}

// FreeBusyResponse lists busy intervals.
type FreeBusyResponse struct {
	Busy []availability.Interval `json:"busy"`
}

// CreateEventRequest books a calendar event.
type CreateEventRequest struct {
	CalendarID  string    `json:"calendarId,omitempty" validate:"omitempty,max=255"`
	Summary     string    `json:"summary" validate:"required,max=255"`
	Description string    `json:"description,omitempty" validate:"max=8000"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	TimeZone    string    `json:"timeZone,omitempty" validate:"omitempty,iana_tz"`
	Attendees   []string  `json:"attendees,omitempty" validate:"omitempty,max=50,dive,email"`
}

// UpdateEventRequest patches a calendar event. Omitted fields are unchanged.
type UpdateEventRequest struct {
	CalendarID  string    `json:"calendarId,omitempty" validate:"omitempty,max=255"`
	Summary     string    `json:"summary,omitempty" validate:"max=255"`
	Description string    `json:"description,omitempty" validate:"max=8000"`
	Start       time.Time `json:"start,omitempty"`
	End         time.Time `json:"end,omitempty"`
	TimeZone    string    `json:"timeZone,omitempty" validate:"omitempty,iana_tz"`
	Attendees   []string  `json:"attendees,omitempty" validate:"omitempty,max=50,dive,email"`
}

// EventResponse carries the calendar event id.
type EventResponse struct {
	ID string `json:"id"`
}

// FindPersonQuery looks a person up by email or phone.
type FindPersonQuery struct {
	Email string `form:"email" validate:"omitempty,email"`
	Phone string `form:"phone" validate:"omitempty,max=32"`
}

// PersonResponse is a matching Contact or Lead.
type PersonResponse struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// CreateLeadRequest inserts a Lead.
type CreateLeadRequest struct {
	FirstName        string `json:"firstName,omitempty" validate:"max=40"`
	LastName         string `json:"lastName,omitempty" validate:"max=80"`
	Company          string `json:"company,omitempty" validate:"max=255"`
	Email            string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            string `json:"phone,omitempty" validate:"max=40"`
	Title            string `json:"title,omitempty" validate:"max=128"`
	Website          string `json:"website,omitempty" validate:"omitempty,url"`
	Country          string `json:"country,omitempty" validate:"max=80"`
	LeadSourceDetail string `json:"leadSourceDetail,omitempty" validate:"max=255"`
}

// LogTaskRequest records a completed call.
type LogTaskRequest struct {
	WhoID        string    `json:"whoId" validate:"required,max=18"`
	Subject      string    `json:"subject" validate:"required,max=255"`
	Body         string    `json:"body,omitempty" validate:"max=32000"`
	Direction    string    `json:"direction,omitempty" validate:"omitempty,oneof=Inbound Outbound"`
	ActivityDate time.Time `json:"activityDate,omitempty"`
}

// IDResponse carries a created record id.
type IDResponse struct {
	ID string `json:"id"`
}
