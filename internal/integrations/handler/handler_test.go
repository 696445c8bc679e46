package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/crm/salesforce"
	"sales_agent_backend/internal/email"
	"sales_agent_backend/internal/integrations/service"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type fakeMailer struct{ sent []email.Message }

func (f *fakeMailer) SendCustomEmail(ctx context.Context, msg email.Message) (string, error) {
	f.sent = append(f.sent, msg)
	return "msg-1", nil
}

type fakeCalendar struct {
	busy       []availability.Interval
	calendarID string
	created    []availability.Event
	deleteErr  error
}

func (f *fakeCalendar) QueryFreeBusy(ctx context.Context, min, max time.Time, calendarID string) ([]availability.Interval, error) {
	f.calendarID = calendarID
	return f.busy, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, event availability.Event) (string, error) {
	f.calendarID = calendarID
	f.created = append(f.created, event)
	return "evt-1", nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, calendarID, eventID string, event availability.Event) (string, error) {
	return eventID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return f.deleteErr
}

type fakeCRM struct {
	person *salesforce.Person
	tasks  []salesforce.TaskInput
	err    error
}

func (f *fakeCRM) FindContactOrLead(ctx context.Context, email, phone string) (*salesforce.Person, error) {
	return f.person, f.err
}

func (f *fakeCRM) CreateLead(ctx context.Context, in salesforce.LeadInput) (string, error) {
	return "00Q1", f.err
}

func (f *fakeCRM) LogTask(ctx context.Context, in salesforce.TaskInput) (string, error) {
	f.tasks = append(f.tasks, in)
	return "00T1", f.err
}

type fixture struct {
	mail *fakeMailer
	cal  *fakeCalendar
	crm  *fakeCRM
	r    *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{mail: &fakeMailer{}, cal: &fakeCalendar{}, crm: &fakeCRM{}}
	svc := service.New(f.mail, f.cal, f.crm, service.Config{
		CalendarID: "sales@example.com",
		Timezone:   "America/Los_Angeles",
	}, nil)
	f.r = gin.New()
	New(svc, validator.New()).RegisterRoutes(f.r.Group("/integrations"))
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.r.ServeHTTP(rec, req)
	return rec
}

func TestSendEmail(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/integrations/email/send", map[string]any{
		"to":      []string{"ada@example.com"},
		"cc":      []string{"ops@example.com"},
		"replyTo": "sales@example.com",
		"subject": "Hello",
		"body":    "<p>Hi</p>",
		"html":    true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.mail.sent) != 1 || !f.mail.sent[0].HTML || f.mail.sent[0].ReplyTo != "sales@example.com" {
		t.Fatalf("unexpected message %+v", f.mail.sent)
	}
}

func TestSendEmailRejectsBadRecipient(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/integrations/email/send", map[string]any{
		"to": []string{"nobody"}, "subject": "Hello", "body": "x",
	})
	if rec.Code != http.StatusBadRequest || len(f.mail.sent) != 0 {
		t.Fatalf("expected 400 and no send, got %d", rec.Code)
	}
}

func TestFreeBusyDefaultsCalendar(t *testing.T) {
	f := newFixture()
	start := time.Date(2030, 1, 7, 18, 0, 0, 0, time.UTC)
	f.cal.busy = []availability.Interval{{Start: start, End: start.Add(time.Hour)}}

	rec := f.do(http.MethodPost, "/integrations/calendar/freebusy", map[string]any{
		"timeMin": start.Add(-time.Hour), "timeMax": start.Add(2 * time.Hour),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.cal.calendarID != "sales@example.com" {
		t.Fatalf("expected organizer calendar, got %q", f.cal.calendarID)
	}
	var resp struct {
		Busy []availability.Interval `json:"busy"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Busy) != 1 || !resp.Busy[0].Start.Equal(start) {
		t.Fatalf("unexpected busy %+v", resp.Busy)
	}
}

func TestFreeBusyRejectsInvertedWindow(t *testing.T) {
	f := newFixture()
	start := time.Date(2030, 1, 7, 18, 0, 0, 0, time.UTC)
	rec := f.do(http.MethodPost, "/integrations/calendar/freebusy", map[string]any{
		"timeMin": start, "timeMax": start.Add(-time.Hour),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateEventAppliesOrganizerZone(t *testing.T) {
	f := newFixture()
	start := time.Date(2030, 1, 7, 18, 0, 0, 0, time.UTC)
	rec := f.do(http.MethodPost, "/integrations/calendar/events", map[string]any{
		"summary":   "Intro call",
		"start":     start,
		"end":       start.Add(30 * time.Minute),
		"attendees": []string{"ada@example.com"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.cal.created[0].TimeZone != "America/Los_Angeles" {
		t.Fatalf("expected organizer zone, got %q", f.cal.created[0].TimeZone)
	}
}

func TestDeleteMissingEventIsNotFound(t *testing.T) {
	f := newFixture()
	f.cal.deleteErr = apperr.NotFound("event not found")
	rec := f.do(http.MethodDelete, "/integrations/calendar/events/evt-9", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFindPerson(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/integrations/crm/person", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without email or phone, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/integrations/crm/person?phone=%2B14155552671", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for no match, got %d", rec.Code)
	}

	f.crm.person = &salesforce.Person{Type: salesforce.TypeContact, ID: "003A", FirstName: "Ada"}
	rec = f.do(http.MethodGet, "/integrations/crm/person?email=ada@example.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["type"] != "contact" || resp["firstName"] != "Ada" {
		t.Fatalf("unexpected person %v", resp)
	}
}

func TestCRMOutageIsUnavailable(t *testing.T) {
	f := newFixture()
	f.crm.err = context.DeadlineExceeded
	rec := f.do(http.MethodPost, "/integrations/crm/leads", map[string]any{"lastName": "Lovelace"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestLogTaskValidatesDirection(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/integrations/crm/tasks", map[string]any{
		"whoId": "00QB", "subject": "Call", "direction": "Sideways",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/integrations/crm/tasks", map[string]any{
		"whoId": "00QB", "subject": "Call", "direction": "Outbound",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.crm.tasks[0].Direction != salesforce.DirectionOutbound {
		t.Fatalf("unexpected direction %q", f.crm.tasks[0].Direction)
	}
}
