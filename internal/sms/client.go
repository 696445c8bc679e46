// Package sms sends and receives text messages through a Telnyx-compatible
// messaging API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/phone"
)

// ErrNotConfigured is returned by a nil Client.
var ErrNotConfigured = errors.New("sms gateway not configured")

type Client struct {
	baseURL   string
	apiKey    string
	from      string
	profileID string
	http      *http.Client
	log       *logger.Logger
}

type sendRequest struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
}

type sendResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// NewClient returns nil when the gateway is not configured; a nil *Client
// fails every send with ErrNotConfigured.
func NewClient(cfg config.SMSConfig, log *logger.Logger) *Client {
	if cfg.GetSMSAPIURL() == "" || cfg.GetSMSAPIKey() == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.GetSMSAPIURL(), "/"),
		apiKey:    cfg.GetSMSAPIKey(),
		from:      cfg.GetSMSFromNumber(),
		profileID: cfg.GetSMSMessagingProfileID(),
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// SendSMS delivers body to phoneNumber and returns the gateway message id.
func (c *Client) SendSMS(ctx context.Context, phoneNumber, body string) (string, error) {
	if c == nil {
		return "", apperr.Wrap(apperr.KindUnavailable, "sms is not available", ErrNotConfigured)
	}

	to, err := phone.Parse(phoneNumber, phone.DefaultRegion)
	if err != nil {
		return "", apperr.Validation("invalid destination phone number")
	}

	payload, err := json.Marshal(sendRequest{
		From:               c.from,
		To:                 to,
		Text:               body,
		MessagingProfileID: c.profileID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnavailable, "sms request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return "", apperr.Wrap(apperr.KindUnavailable, "sms gateway unavailable",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", apperr.Wrap(apperr.KindBadRequest, "sms gateway rejected the message",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}

	c.log.Info("sms sent", "to", to, "message_id", out.Data.ID)
	return out.Data.ID, nil
}
