package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sales_agent_backend/internal/calls/repository"
	"sales_agent_backend/internal/calls/service"
	"sales_agent_backend/internal/calls/transport"
	"sales_agent_backend/internal/pricing"
	"sales_agent_backend/platform/httpkit"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	table, err := pricing.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	svc := service.New(service.Deps{
		Store: repository.NewMemory(time.Hour),
		Table: table,
	}, service.Config{PhoneRegion: "US"})

	h := New(svc, validator.New(), logger.Nop())
	r := gin.New()
	h.RegisterRoutes(r.Group("/calls"))
	h.RegisterWebhooks(r.Group("/webhooks"))
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) transport.SessionResponse {
	t.Helper()
	var resp transport.SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func startCall(t *testing.T, r http.Handler) transport.SessionResponse {
	t.Helper()
	rec := do(r, http.MethodPost, "/calls", map[string]string{"phone": "415-555-2671"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeSession(t, rec)
}

func TestStartAndResume(t *testing.T) {
	r := newRouter(t)
	first := startCall(t, r)
	if first.Phone != "+14155552671" || first.State != "start" {
		t.Fatalf("unexpected session %+v", first)
	}

	rec := do(r, http.MethodPost, "/calls", map[string]string{"phone": "+1 415 555 2671"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on resume, got %d", rec.Code)
	}
	if got := decodeSession(t, rec); got.ID != first.ID {
		t.Fatalf("expected resumed session %s, got %s", first.ID, got.ID)
	}
}

func TestStartRequiresPhone(t *testing.T) {
	r := newRouter(t)
	rec := do(r, http.MethodPost, "/calls", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFactsThenQualify(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/facts", map[string]any{
		"useCase": "notifications",
		"volumes": map[string]int64{"US": 200000},
		"numbers": map[string]int64{"10dlc": 1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("facts: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/calls/"+sess.ID+"/qualify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("qualify: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeSession(t, rec)
	if got.Qualification == nil || got.Qualification.Tier != "qualified" {
		t.Fatalf("expected qualified tier, got %+v", got.Qualification)
	}
	if got.Qualification.SpendTotal == nil || got.Qualification.SpendTotal.String() != "$2001.00" {
		t.Fatalf("unexpected spend %+v", got.Qualification.SpendTotal)
	}
}

func TestUnknownCountryReturnsUtterance(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/facts", map[string]any{
		"volumes": map[string]int64{"Atlantis": 10},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Kind    string                `json:"kind"`
		Details service.StepDetails `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "validation" || resp.Details.Utterance == "" || resp.Details.SessionID != sess.ID {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}
}

func TestFactsRejectsOversizedVolume(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/facts", map[string]any{
		"volumes": map[string]int64{"NZ": 200_000_000_000_000},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	got := decodeSession(t, do(r, http.MethodGet, "/calls/"+sess.ID, nil))
	if len(got.Volumes) != 0 {
		t.Fatalf("oversized volume must not be stored, got %+v", got.Volumes)
	}
}

func TestFactsRejectsMalformedEmail(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/facts", map[string]any{"email": "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp httpkit.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != msgValidationFailed {
		t.Fatalf("expected validation failure, got %+v", resp)
	}
}

func TestConsentRequiresAnswer(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/consent", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	r := newRouter(t)
	rec := do(r, http.MethodGet, "/calls/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSlotRejectsUnknownZone(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/calls/"+sess.ID+"/slot", map[string]string{
		"start":    "2030-01-07T10:00",
		"end":      "2030-01-07T10:30",
		"timeZone": "Mars/Olympus",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func inboundBody(from, text string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"event_type": "message.received",
			"payload": map[string]any{
				"id":   "msg-1",
				"text": text,
				"from": map[string]string{"phone_number": from},
				"to":   []map[string]string{{"phone_number": "+14155550000"}},
			},
		},
	}
}

func TestInboundSMSAttachesEmail(t *testing.T) {
	r := newRouter(t)
	sess := startCall(t, r)

	rec := do(r, http.MethodPost, "/webhooks/sms/inbound", inboundBody("+14155552671", "sure it's Ada@Example.com thanks"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ack map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &ack)
	if ack["status"] != "attached" || ack["sessionId"] != sess.ID {
		t.Fatalf("unexpected ack %v", ack)
	}

	got := decodeSession(t, do(r, http.MethodGet, "/calls/"+sess.ID, nil))
	if got.Email != "ada@example.com" || got.EmailStatus != "provided" {
		t.Fatalf("email not attached: %+v", got)
	}
}

func TestInboundSMSAlwaysAcknowledges(t *testing.T) {
	r := newRouter(t)

	cases := map[string]any{
		"garbage":     "not json",
		"no session":  inboundBody("+14155559999", "ada@example.com"),
		"no email":    inboundBody("+14155552671", "call me later"),
		"wrong event": map[string]any{"data": map[string]any{"event_type": "message.sent", "payload": map[string]any{"from": map[string]string{"phone_number": "+14155552671"}}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/webhooks/sms/inbound", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
		})
	}
}
