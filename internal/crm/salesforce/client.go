// Package salesforce is a small REST client for the Salesforce objects the
// sales line touches: Contact, Lead and Task.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"

	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// ErrDuplicate is returned when Salesforce duplicate rules reject a create.
var ErrDuplicate = errors.New("salesforce duplicate record")

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API and token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStaticToken skips the password grant. Intended for tests and for
// deployments that inject a session id.
func WithStaticToken(instanceURL, accessToken string) Option {
	return func(c *Client) {
		c.cached = &session{instanceURL: strings.TrimRight(instanceURL, "/"), accessToken: accessToken}
		c.static = true
	}
}

type session struct {
	instanceURL string
	accessToken string
}

// Client talks to one Salesforce org as an integration user.
type Client struct {
	oauth      *oauth2.Config
	username   string
	password   string
	apiVersion string

	taskRecordTypeID string
	taskOwnerID      string
	leadSourceDetail string

	http   *http.Client
	log    *logger.Logger
	mu     sync.Mutex
	cached *session
	static bool
}

// NewClient builds a client from configuration. No network calls are made
// until the first request.
func NewClient(cfg config.SalesforceConfig, log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Nop()
	}
	loginURL := strings.TrimRight(cfg.GetSalesforceLoginURL(), "/")

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetSalesforceClientID(),
			ClientSecret: cfg.GetSalesforceClientSecret(),
			Endpoint: oauth2.Endpoint{
				TokenURL:  loginURL + "/services/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username:         cfg.GetSalesforceUsername(),
		password:         cfg.GetSalesforcePassword() + cfg.GetSalesforceSecurityToken(),
		apiVersion:       cfg.GetSalesforceAPIVersion(),
		taskRecordTypeID: cfg.GetSalesforceTaskRecordTypeID(),
		taskOwnerID:      cfg.GetSalesforceTaskOwnerID(),
		leadSourceDetail: cfg.GetSalesforceLeadSourceDetail(),
		http:             &http.Client{Timeout: defaultTimeout},
		log:              log,
	}
	if c.apiVersion == "" {
		c.apiVersion = "v61.0"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// login performs the OAuth username-password flow. Salesforce returns no
// refresh token or expiry for it, so the session is reused until a 401.
func (c *Client) login(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return c.cached, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return nil, apperr.Wrap(apperr.KindUnauthorized, "salesforce login rejected", err)
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "salesforce login failed", err)
	}

	instance, _ := tok.Extra("instance_url").(string)
	if instance == "" {
		return nil, apperr.Internal("salesforce token response has no instance_url")
	}
	c.cached = &session{instanceURL: strings.TrimRight(instance, "/"), accessToken: tok.AccessToken}
	return c.cached, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.static {
		c.cached = nil
	}
}

// apiError is one entry of a Salesforce REST error body.
type apiError struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields"`
}

// do sends a request to the data API and decodes the JSON response into out.
// A 401 refreshes the session once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal salesforce payload: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		sess, err := c.login(ctx)
		if err != nil {
			return err
		}

		endpoint := fmt.Sprintf("%s/services/data/%s/%s", sess.instanceURL, c.apiVersion, strings.TrimLeft(path, "/"))
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+sess.accessToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "salesforce request failed", err)
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 && !c.static {
			c.log.Info("salesforce session expired, logging in again")
			c.invalidate()
			continue
		}
		if err := classifyStatus(resp.StatusCode, data); err != nil {
			return err
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode salesforce response: %w", err)
		}
		return nil
	}
	return apperr.Unauthorized("salesforce session could not be refreshed")
}

func classifyStatus(status int, body []byte) error {
	if status < http.StatusBadRequest {
		return nil
	}

	var errs []apiError
	_ = json.Unmarshal(body, &errs)
	detail := strings.TrimSpace(string(body))
	if len(errs) > 0 {
		detail = errs[0].ErrorCode + ": " + errs[0].Message
	}
	cause := fmt.Errorf("status %d: %s", status, detail)

	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindUnavailable, "salesforce is unavailable", cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.Wrap(apperr.KindUnauthorized, "salesforce rejected the credentials", cause)
	case status == http.StatusNotFound:
		return apperr.Wrap(apperr.KindNotFound, "salesforce record not found", cause)
	}

	for _, e := range errs {
		if e.ErrorCode == "DUPLICATES_DETECTED" || e.ErrorCode == "DUPLICATE_VALUE" {
			return apperr.Wrap(apperr.KindConflict, "salesforce record already exists", errors.Join(ErrDuplicate, cause))
		}
	}
	return apperr.Wrap(apperr.KindBadRequest, "salesforce rejected the request", cause)
}
