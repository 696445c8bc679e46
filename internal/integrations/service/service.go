// Package service exposes the email, calendar and CRM tools that voice agents
// call directly, outside a call session.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/crm/salesforce"
	"sales_agent_backend/internal/email"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/sanitize"
)

// Mailer sends a free-form email.
type Mailer interface {
	SendCustomEmail(ctx context.Context, msg email.Message) (string, error)
}

// Calendar is the organizer's calendar.
type Calendar interface {
	QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarID string) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, calendarID string, event availability.Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event availability.Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// CRM is the CRM record and activity API.
type CRM interface {
	FindContactOrLead(ctx context.Context, email, phone string) (*salesforce.Person, error)
	CreateLead(ctx context.Context, in salesforce.LeadInput) (string, error)
	LogTask(ctx context.Context, in salesforce.TaskInput) (string, error)
}

// Config holds defaults applied when a request leaves them out.
type Config struct {
	CalendarID string
	Timezone   string
	Timeout    time.Duration
}

// Service provides the integration tool operations.
type Service struct {
	mail Mailer
	cal  Calendar
	crm  CRM
	cfg  Config
	log  *logger.Logger
}

// New creates an integrations service.
func New(mail Mailer, cal Calendar, crm CRM, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{mail: mail, cal: cal, crm: crm, cfg: cfg, log: log}
}

// SendEmail validates and delivers a free-form email.
func (s *Service) SendEmail(ctx context.Context, msg email.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid email", err)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	id, err := s.mail.SendCustomEmail(callCtx, msg)
	if err != nil {
		return "", external("send_email", "email delivery failed", err)
	}
	return id, nil
}

// FreeBusy returns the busy intervals in [min, max).
func (s *Service) FreeBusy(ctx context.Context, min, max time.Time, calendarID string) ([]availability.Interval, error) {
	if !max.After(min) {
		return nil, apperr.Validation("timeMax must be after timeMin")
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	busy, err := s.cal.QueryFreeBusy(callCtx, min, max, s.calendar(calendarID))
	if err != nil {
		return nil, external("free_busy", "calendar is unavailable", err)
	}
	return busy, nil
}

// CreateEvent books an event and invites the attendees.
func (s *Service) CreateEvent(ctx context.Context, calendarID string, event availability.Event) (string, error) {
	if strings.TrimSpace(event.Summary) == "" {
		return "", apperr.Validation("event summary is required")
	}
	if !event.End.After(event.Start) {
		return "", apperr.Validation("event must end after it starts")
	}
	if event.TimeZone == "" {
		event.TimeZone = s.cfg.Timezone
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	id, err := s.cal.CreateEvent(callCtx, s.calendar(calendarID), event)
	if err != nil {
		return "", external("create_event", "calendar is unavailable", err)
	}
	s.log.Info("calendar event created", "event_id", id)
	return id, nil
}

// UpdateEvent patches the fields set on event.
func (s *Service) UpdateEvent(ctx context.Context, calendarID, eventID string, event availability.Event) (string, error) {
	if !event.Start.IsZero() && !event.End.IsZero() && !event.End.After(event.Start) {
		return "", apperr.Validation("event must end after it starts")
	}
	if (!event.Start.IsZero() || !event.End.IsZero()) && event.TimeZone == "" {
		event.TimeZone = s.cfg.Timezone
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	id, err := s.cal.UpdateEvent(callCtx, s.calendar(calendarID), eventID, event)
	if err != nil {
		return "", external("update_event", "calendar is unavailable", err)
	}
	return id, nil
}

// DeleteEvent cancels an event and notifies attendees.
func (s *Service) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.cal.DeleteEvent(callCtx, s.calendar(calendarID), eventID); err != nil {
		return external("delete_event", "calendar is unavailable", err)
	}
	return nil
}

// FindPerson looks up a Contact, then a Lead, by email or phone.
func (s *Service) FindPerson(ctx context.Context, emailAddr, phone string) (*salesforce.Person, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	p, err := s.crm.FindContactOrLead(callCtx, emailAddr, phone)
	if err != nil {
		return nil, external("find_person", "CRM is unavailable", err)
	}
	if p == nil {
		return nil, apperr.NotFound("no contact or lead matches")
	}
	return p, nil
}

// CreateLead inserts a Lead. Text fields are stripped of markup.
func (s *Service) CreateLead(ctx context.Context, in salesforce.LeadInput) (string, error) {
	in.FirstName = sanitize.Line(in.FirstName)
	in.LastName = sanitize.Line(in.LastName)
	in.Company = sanitize.Line(in.Company)
	in.Title = sanitize.Line(in.Title)
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	id, err := s.crm.CreateLead(callCtx, in)
	if err != nil {
		return "", external("create_lead", "CRM is unavailable", err)
	}
	return id, nil
}

// LogTask records a completed call against a Contact or Lead.
func (s *Service) LogTask(ctx context.Context, in salesforce.TaskInput) (string, error) {
	in.Subject = sanitize.Line(in.Subject)
	in.Body = sanitize.Text(in.Body)
	if in.Subject == "" {
		return "", apperr.Validation("task subject is required")
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	id, err := s.crm.LogTask(callCtx, in)
	if err != nil {
		return "", external("log_task", "CRM is unavailable", err)
	}
	return id, nil
}

func (s *Service) calendar(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.cfg.CalendarID
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// external keeps typed errors and reports anything else as unavailable.
func external(op, message string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindUnavailable, message, err).WithOp(op)
}
