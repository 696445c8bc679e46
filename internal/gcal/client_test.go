package gcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/platform/apperr"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("calendar.NewService: %v", err)
	}
	return New(svc, nil)
}

func TestQueryFreeBusy(t *testing.T) {
	var got calendar.FreeBusyRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/freeBusy") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"calendars":{"sales@example.com":{"busy":[
			{"start":"2025-03-04T17:00:00Z","end":"2025-03-04T17:30:00Z"}]}}}`))
	})

	start := time.Date(2025, 3, 4, 16, 0, 0, 0, time.UTC)
	busy, err := client.QueryFreeBusy(context.Background(), start, start.Add(2*time.Hour), "sales@example.com")
	if err != nil {
		t.Fatalf("QueryFreeBusy: %v", err)
	}
	if len(busy) != 1 || !busy[0].Start.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected busy %+v", busy)
	}
	if got.TimeMin != "2025-03-04T16:00:00Z" || len(got.Items) != 1 || got.Items[0].Id != "sales@example.com" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestQueryFreeBusyCalendarError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"calendars":{"x@example.com":{"errors":[{"domain":"global","reason":"notFound"}]}}}`))
	})

	_, err := client.QueryFreeBusy(context.Background(), time.Now(), time.Now().Add(time.Hour), "x@example.com")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"backend error"}}`))
	})

	_, err := client.QueryFreeBusy(context.Background(), time.Now(), time.Now().Add(time.Hour), "x@example.com")
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestCreateEventSendsInvites(t *testing.T) {
	var got calendar.Event
	var sendUpdatesParam string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/calendars/sales@example.com/events") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		sendUpdatesParam = r.URL.Query().Get("sendUpdates")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"evt-1"}`))
	})

	start := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)
	id, err := client.CreateEvent(context.Background(), "sales@example.com", availability.Event{
		Summary:   "Intro call",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		TimeZone:  "America/Los_Angeles",
		Attendees: []string{"ada@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("expected evt-1, got %q", id)
	}
	if sendUpdatesParam != "all" {
		t.Fatalf("expected sendUpdates=all, got %q", sendUpdatesParam)
	}
	if got.Start == nil || got.Start.DateTime != "2025-03-04T10:00:00-08:00" || got.Start.TimeZone != "America/Los_Angeles" {
		t.Fatalf("unexpected start %+v", got.Start)
	}
	if len(got.Attendees) != 1 || got.Attendees[0].Email != "ada@example.com" {
		t.Fatalf("unexpected attendees %+v", got.Attendees)
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"deleted"}}`))
	})

	err := client.DeleteEvent(context.Background(), "sales@example.com", "evt-1")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateEventPatchesOnlyGivenFields(t *testing.T) {
	var raw map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"id":"evt-1"}`))
	})

	if _, err := client.UpdateEvent(context.Background(), "sales@example.com", "evt-1", availability.Event{Summary: "Renamed"}); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if raw["summary"] != "Renamed" {
		t.Fatalf("expected summary in patch, got %v", raw)
	}
	if _, ok := raw["start"]; ok {
		t.Fatal("start must not be sent when unchanged")
	}
}
