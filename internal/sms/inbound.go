package sms

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"sales_agent_backend/platform/phone"
	"sales_agent_backend/platform/sanitize"
)

// EventMessageReceived is the webhook event type for inbound texts.
const EventMessageReceived = "message.received"

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// InboundMessage is an SMS received from a caller.
type InboundMessage struct {
	ID        string
	EventType string
	From      string
	To        string
	Text      string
}

type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"to"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseInbound decodes a messaging webhook body. The sender is normalised to E.164.
func ParseInbound(body []byte) (InboundMessage, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return InboundMessage{}, fmt.Errorf("decode sms webhook: %w", err)
	}

	p := env.Data.Payload
	msg := InboundMessage{
		ID:        p.ID,
		EventType: env.Data.EventType,
		From:      phone.NormalizeE164(p.From.PhoneNumber),
		Text:      sanitize.Text(p.Text),
	}
	if len(p.To) > 0 {
		msg.To = phone.NormalizeE164(p.To[0].PhoneNumber)
	}
	if msg.From == "" {
		return InboundMessage{}, fmt.Errorf("sms webhook has no sender")
	}
	return msg, nil
}

// ExtractEmail returns the first well-formed email address in text, lowercased.
func ExtractEmail(text string) (string, bool) {
	for _, candidate := range emailPattern.FindAllString(text, -1) {
		candidate = strings.Trim(candidate, ".")
		addr, err := mail.ParseAddress(candidate)
		if err != nil {
			continue
		}
		return strings.ToLower(addr.Address), true
	}
	return "", false
}
