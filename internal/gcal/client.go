// Package gcal adapts the Google Calendar API to the availability negotiator
// and the calendar tool endpoints.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// sendUpdates makes Google email the attendees on every change.
const sendUpdates = "all"

// Client is a thin wrapper over calendar.Service acting as the organizer.
type Client struct {
	svc *calendar.Service
	log *logger.Logger
}

// New wraps an existing service. Tests build one against an httptest server.
func New(svc *calendar.Service, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{svc: svc, log: log}
}

// NewFromCredentialsFile impersonates subject with a service account that has
// domain-wide delegation.
func NewFromCredentialsFile(ctx context.Context, path, subject string, log *logger.Logger) (*Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(raw, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar service account: %w", err)
	}
	conf.Subject = subject

	svc, err := calendar.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return New(svc, log), nil
}

// QueryFreeBusy returns the busy intervals of calendarID between timeMin and timeMax.
func (c *Client) QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarID string) ([]availability.Interval, error) {
	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify("freebusy", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, apperr.Unavailable("freebusy response is missing the calendar")
	}
	if len(cal.Errors) > 0 {
		reason := cal.Errors[0].Reason
		if reason == "notFound" {
			return nil, apperr.NotFound("calendar not found: " + calendarID)
		}
		return nil, apperr.Unavailable("freebusy failed for calendar: " + reason)
	}

	busy := make([]availability.Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end: %w", err)
		}
		busy = append(busy, availability.Interval{Start: start, End: end})
	}
	return busy, nil
}

// CreateEvent inserts an event and invites the attendees.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, event availability.Event) (string, error) {
	created, err := c.svc.Events.Insert(calendarID, toGoogle(event)).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("create_event", err)
	}
	c.log.Info("calendar event created", "event_id", created.Id, "attendees", len(event.Attendees))
	return created.Id, nil
}

// UpdateEvent patches summary, description, times and attendees. Empty
// fields are left unchanged.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, event availability.Event) (string, error) {
	patch := &calendar.Event{Summary: event.Summary, Description: event.Description}
	if !event.Start.IsZero() {
		patch.Start = dateTime(event.Start, event.TimeZone)
	}
	if !event.End.IsZero() {
		patch.End = dateTime(event.End, event.TimeZone)
	}
	if len(event.Attendees) > 0 {
		patch.Attendees = attendees(event.Attendees)
	}

	updated, err := c.svc.Events.Patch(calendarID, eventID, patch).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("update_event", err)
	}
	return updated.Id, nil
}

// DeleteEvent removes an event and notifies attendees.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.svc.Events.Delete(calendarID, eventID).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return classify("delete_event", err)
	}
	return nil
}

func toGoogle(event availability.Event) *calendar.Event {
	return &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       dateTime(event.Start, event.TimeZone),
		End:         dateTime(event.End, event.TimeZone),
		Attendees:   attendees(event.Attendees),
	}
}

func dateTime(t time.Time, zone string) *calendar.EventDateTime {
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			t = t.In(loc)
		}
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: zone}
}

func attendees(emails []string) []*calendar.EventAttendee {
	out := make([]*calendar.EventAttendee, 0, len(emails))
	for _, e := range emails {
		if e != "" {
			out = append(out, &calendar.EventAttendee{Email: e})
		}
	}
	return out
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperr.Wrap(apperr.KindUnavailable, "calendar request failed", err).WithOp(op)
	}
	switch {
	case gerr.Code >= http.StatusInternalServerError || gerr.Code == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindUnavailable, "calendar is unavailable", err).WithOp(op)
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return apperr.Wrap(apperr.KindUnauthorized, "calendar rejected the credentials", err).WithOp(op)
	case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
		return apperr.Wrap(apperr.KindNotFound, "calendar event not found", err).WithOp(op)
	default:
		return apperr.Wrap(apperr.KindBadRequest, "calendar rejected the request", err).WithOp(op)
	}
}

var _ availability.Calendar = (*Client)(nil)
