// Package availability checks the organizer's calendar for a requested
// meeting window and books it once it is free.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/retry"
)

// DefaultTimezone is the organizer's working zone.
const DefaultTimezone = "America/Los_Angeles"

const maxMeetingLength = 4 * time.Hour

var (
	// ErrAvailabilityCheckFailed means free/busy could not be read even after a retry.
	ErrAvailabilityCheckFailed = errors.New("availability check failed")
	// ErrEventCreateFailed means the invite could not be created.
	ErrEventCreateFailed = errors.New("calendar event creation failed")
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps uses the same rule as appointment conflict checks: touching
// intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Event is what gets written to the organizer's calendar.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
}

// Calendar is the subset of the calendar service the negotiator needs.
type Calendar interface {
	QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarID string) ([]Interval, error)
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
}

// SlotStatus tracks whether a slot has been booked.
type SlotStatus string

const (
	SlotProposed  SlotStatus = "proposed"
	SlotConfirmed SlotStatus = "confirmed"
)

// MeetingSlot is a window in the organizer's zone.
type MeetingSlot struct {
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	TimeZone string     `json:"time_zone"`
	Status   SlotStatus `json:"status"`
	EventID  string     `json:"event_id,omitempty"`
}

// Confirmed reports whether the invite exists.
func (s MeetingSlot) Confirmed() bool { return s.Status == SlotConfirmed && s.EventID != "" }

// Interval returns the slot window.
func (s MeetingSlot) Interval() Interval { return Interval{Start: s.Start, End: s.End} }

// ConflictError reports the busy intervals that overlap a requested window.
// The caller is expected to offer another time.
type ConflictError struct {
	Requested Interval
	Busy      []Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("requested window %s to %s overlaps %d busy interval(s)",
		e.Requested.Start.Format(time.RFC3339), e.Requested.End.Format(time.RFC3339), len(e.Busy))
}

// Config wires a Negotiator.
type Config struct {
	CalendarID string
	Timezone   string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Negotiator proposes and confirms meeting slots.
type Negotiator struct {
	cal        Calendar
	calendarID string
	loc        *time.Location
	timeout    time.Duration
	retryDelay time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewNegotiator validates the organizer zone and builds a Negotiator.
func NewNegotiator(cal Calendar, cfg Config, log *logger.Logger) (*Negotiator, error) {
	zone := cfg.Timezone
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load organizer timezone: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	return &Negotiator{
		cal:        cal,
		calendarID: cfg.CalendarID,
		loc:        loc,
		timeout:    cfg.Timeout,
		retryDelay: cfg.RetryDelay,
		log:        log,
		now:        time.Now,
	}, nil
}

// Location returns the organizer zone.
func (n *Negotiator) Location() *time.Location { return n.loc }

// ParseLocal reads an RFC 3339 timestamp, or a wall-clock time such as
// "2025-03-04T10:00" interpreted in zone (organizer zone when empty).
func (n *Negotiator) ParseLocal(value, zone string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	loc := n.loc
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, apperr.Validation("unknown timezone " + zone)
		}
		loc = l
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("invalid time " + value)
}

// FindSlot checks the requested window against the organizer's free/busy.
// A busy overlap returns *ConflictError. It never picks another time.
func (n *Negotiator) FindSlot(ctx context.Context, start, end time.Time) (MeetingSlot, error) {
	window := Interval{Start: start.In(n.loc), End: end.In(n.loc)}
	if err := n.validateWindow(window); err != nil {
		return MeetingSlot{}, err
	}

	if err := n.checkFree(ctx, window); err != nil {
		return MeetingSlot{}, err
	}

	return MeetingSlot{
		Start:    window.Start,
		End:      window.End,
		TimeZone: n.loc.String(),
		Status:   SlotProposed,
	}, nil
}

// Confirm re-checks free/busy and creates the invite. The returned slot is
// Confirmed only when both succeed.
func (n *Negotiator) Confirm(ctx context.Context, slot MeetingSlot, event Event) (MeetingSlot, error) {
	if slot.Confirmed() {
		return slot, nil
	}
	window := slot.Interval()
	if err := n.validateWindow(window); err != nil {
		return slot, err
	}
	if err := n.checkFree(ctx, window); err != nil {
		return slot, err
	}

	event.Start = window.Start.In(n.loc)
	event.End = window.End.In(n.loc)
	event.TimeZone = n.loc.String()

	callCtx, cancel := n.callContext(ctx)
	defer cancel()
	started := time.Now()
	eventID, err := n.cal.CreateEvent(callCtx, n.calendarID, event)
	if err != nil {
		n.log.ExternalCallFailed("calendar", "create_event", 1, time.Since(started), err)
		return slot, &apperr.Error{
			Kind:    apperr.KindUnavailable,
			Message: "could not create the calendar invite",
			Op:      "availability.Confirm",
			Err:     errors.Join(ErrEventCreateFailed, err),
		}
	}

	slot.Start = event.Start
	slot.End = event.End
	slot.TimeZone = event.TimeZone
	slot.Status = SlotConfirmed
	slot.EventID = eventID
	return slot, nil
}

func (n *Negotiator) validateWindow(w Interval) error {
	if w.Start.IsZero() || w.End.IsZero() {
		return apperr.Validation("meeting start and end are required")
	}
	if !w.End.After(w.Start) {
		return apperr.Validation("meeting end must be after start")
	}
	if w.End.Sub(w.Start) > maxMeetingLength {
		return apperr.Validation("meeting cannot be longer than 4 hours")
	}
	if w.Start.Before(n.now()) {
		return apperr.Validation("meeting must start in the future")
	}
	return nil
}

// checkFree queries free/busy with one retry on transient failure.
func (n *Negotiator) checkFree(ctx context.Context, window Interval) error {
	var busy []Interval
	err := retry.Do(ctx, 2, n.retryDelay, func(ctx context.Context, attempt int) error {
		callCtx, cancel := n.callContext(ctx)
		defer cancel()
		started := time.Now()

		result, err := n.cal.QueryFreeBusy(callCtx, window.Start, window.End, n.calendarID)
		if err != nil {
			n.log.ExternalCallFailed("calendar", "freebusy", attempt, time.Since(started), err)
			if k := apperr.GetKind(err); k == apperr.KindValidation || k == apperr.KindUnauthorized {
				return retry.Permanent(err)
			}
			return err
		}
		busy = result
		return nil
	})
	if err != nil {
		return &apperr.Error{
			Kind:    apperr.KindUnavailable,
			Message: "could not check calendar availability",
			Op:      "availability.checkFree",
			Err:     errors.Join(ErrAvailabilityCheckFailed, err),
		}
	}

	var overlapping []Interval
	for _, b := range busy {
		if window.Overlaps(b) {
			overlapping = append(overlapping, Interval{Start: b.Start.In(n.loc), End: b.End.In(n.loc)})
		}
	}
	if len(overlapping) > 0 {
		return &ConflictError{Requested: window, Busy: overlapping}
	}
	return nil
}

func (n *Negotiator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.timeout)
}
