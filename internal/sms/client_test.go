package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sales_agent_backend/platform/apperr"
)

type stubConfig struct {
	url string
}

func (s stubConfig) GetSMSAPIURL() string             { return s.url }
func (s stubConfig) GetSMSAPIKey() string             { return "KEY123" }
func (s stubConfig) GetSMSFromNumber() string         { return "+14155550000" }
func (s stubConfig) GetSMSMessagingProfileID() string { return "profile-1" }

func TestSendSMS(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Header.Get("Authorization") != "Bearer KEY123" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{"id":"msg-42"}}`))
	}))
	defer srv.Close()

	client := NewClient(stubConfig{url: srv.URL + "/"}, nil)
	id, err := client.SendSMS(context.Background(), "(415) 555-2671", "hello")
	if err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if id != "msg-42" {
		t.Fatalf("expected msg-42, got %q", id)
	}
	if got.To != "+14155552671" || got.From != "+14155550000" || got.MessagingProfileID != "profile-1" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSendSMSMapsStatusCodes(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	client := NewClient(stubConfig{url: srv.URL}, nil)

	if _, err := client.SendSMS(context.Background(), "+14155552671", "x"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable for 502, got %v", err)
	}

	status = http.StatusUnprocessableEntity
	if _, err := client.SendSMS(context.Background(), "+14155552671", "x"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for 422, got %v", err)
	}
}

func TestNilClient(t *testing.T) {
	client := NewClient(stubConfig{}, nil)
	if client != nil {
		t.Fatal("expected nil client without url")
	}
	if _, err := client.SendSMS(context.Background(), "+14155552671", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
