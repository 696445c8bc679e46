// Package service drives a call session through its steps: facts,
// classification, consent, contact resolution, the tier branch, CRM logging
// and close.
package service

import (
	"context"
	"errors"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/internal/pricing"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"
)

// Config holds call policy.
type Config struct {
	RequireCRMConsent bool
	// Timeout bounds each messaging and task-log call.
	Timeout       time.Duration
	PhoneRegion   string
	MeetingTitle  string
	SenderCompany string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      ports.SessionStore
	Table      *pricing.Table
	Resolver   ports.ContactResolver
	Negotiator ports.SlotNegotiator
	Tasks      ports.TaskLogger
	SMS        ports.SMSSender
	Email      ports.EmailSender
	Bus        events.Bus
	Log        *logger.Logger
}

// Service provides the call session operations.
type Service struct {
	store      ports.SessionStore
	table      *pricing.Table
	resolver   ports.ContactResolver
	negotiator ports.SlotNegotiator
	tasks      ports.TaskLogger
	sms        ports.SMSSender
	email      ports.EmailSender
	bus        events.Bus
	log        *logger.Logger
	cfg        Config
	now        func() time.Time
	newID      func() string
}

// New creates a calls service.
func New(deps Deps, cfg Config) *Service {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if cfg.MeetingTitle == "" {
		cfg.MeetingTitle = "Intro call"
	}
	return &Service{
		store:      deps.Store,
		table:      deps.Table,
		resolver:   deps.Resolver,
		negotiator: deps.Negotiator,
		tasks:      deps.Tasks,
		sms:        deps.SMS,
		email:      deps.Email,
		bus:        deps.Bus,
		log:        deps.Log,
		cfg:        cfg,
		now:        time.Now,
		newID:      newSessionID,
	}
}

// Get returns a session without locking it.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

// mutate runs fn on the locked session and always saves the result, so
// partial progress such as a create-attempted flag survives a failed step.
func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	unlock, err := s.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stepErr := fn(sess)
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	if stepErr != nil {
		return sess, stepErr
	}
	return sess, nil
}

func (s *Service) logFor(ctx context.Context, sess *domain.Session) *logger.Logger {
	return s.log.WithContext(ctx).WithSessionID(sess.ID)
}

// StepDetails is attached to every step error.
type StepDetails struct {
	SessionID string                  `json:"session_id"`
	State     domain.State            `json:"state"`
	Utterance string                  `json:"utterance"`
	Busy      []availability.Interval `json:"busy,omitempty"`
}

// fail decorates err with the session state and a spoken fallback.
func fail(sess *domain.Session, err error, utterance string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		clone := *ae
		ae = &clone
	} else {
		ae = apperr.Wrap(apperr.KindInternal, "call step failed", err)
	}
	ae.Details = StepDetails{SessionID: sess.ID, State: sess.State, Utterance: utterance}
	return ae
}

func outOfOrder(sess *domain.Session, message, utterance string) error {
	return fail(sess, apperr.Wrap(apperr.KindConflict, message, domain.ErrInvalidTransition), utterance)
}

func requireOpen(sess *domain.Session) error {
	if sess.Closed() {
		return outOfOrder(sess, "call is closed", uttCallClosed)
	}
	return nil
}

func (s *Service) advance(sess *domain.Session, to domain.State) error {
	if err := sess.Advance(to); err != nil {
		return outOfOrder(sess, "cannot move from "+string(sess.State)+" to "+string(to), uttOutOfOrder)
	}
	return nil
}

func (s *Service) record(sess *domain.Session, name domain.Action, status domain.ActionStatus, detail string) {
	sess.Outcome.Record(name, status, detail, s.now())
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// transient reports whether a failed side effect is worth retrying later.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch apperr.GetKind(err) {
	case apperr.KindUnavailable, apperr.KindUnknown, apperr.KindInternal:
		return true
	}
	return false
}
