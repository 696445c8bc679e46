package sms

import "testing"

func TestParseInbound(t *testing.T) {
	body := []byte(`{"data":{"event_type":"message.received","payload":{
		"id":"in-1","text":" sure it's Ada.Lovelace@Example.com thanks ",
		"from":{"phone_number":"+1 415 555 2671"},
		"to":[{"phone_number":"+14155550000"}]}}}`)

	msg, err := ParseInbound(body)
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if msg.From != "+14155552671" || msg.To != "+14155550000" || msg.EventType != EventMessageReceived {
		t.Fatalf("unexpected message %+v", msg)
	}

	email, ok := ExtractEmail(msg.Text)
	if !ok || email != "ada.lovelace@example.com" {
		t.Fatalf("expected extracted email, got %q %v", email, ok)
	}
}

func TestParseInboundRequiresSender(t *testing.T) {
	if _, err := ParseInbound([]byte(`{"data":{"payload":{"text":"hi"}}}`)); err == nil {
		t.Fatal("expected error without sender")
	}
	if _, err := ParseInbound([]byte(`not json`)); err == nil {
		t.Fatal("expected error for bad json")
	}
}

func TestExtractEmailNone(t *testing.T) {
	if _, ok := ExtractEmail("call me back tomorrow"); ok {
		t.Fatal("expected no email")
	}
	if got, ok := ExtractEmail("it's bob@example.com."); !ok || got != "bob@example.com" {
		t.Fatalf("expected trailing period trimmed, got %q", got)
	}
}
