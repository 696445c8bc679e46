// Package contacts deduplicates a caller against CRM records before anything
// is written about them.
package contacts

import (
	"context"
	"errors"
	"strings"
	"time"

	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/retry"

	"golang.org/x/sync/singleflight"
)

// RecordKind distinguishes CRM Contacts (existing customers) from Leads.
type RecordKind string

const (
	KindContact RecordKind = "contact"
	KindLead    RecordKind = "lead"
)

// Record is the CRM entity a call is attached to.
type Record struct {
	ID        string     `json:"id"`
	Kind      RecordKind `json:"kind"`
	FirstName string     `json:"first_name,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Created   bool       `json:"created"`
}

// Directory is what the resolver needs from the CRM. Find methods return
// (nil, nil) when nothing matches.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	Create(ctx context.Context, phone, email string) (*Record, error)
	UpdateEmail(ctx context.Context, id, email string) error
}

var (
	// ErrCrmUnavailable is returned once lookups have exhausted their retries.
	ErrCrmUnavailable = errors.New("crm unavailable")
	// ErrCreateConflict is returned by a Directory when the record already exists.
	ErrCreateConflict = errors.New("crm record already exists")
	// ErrCreateUnconfirmed is returned when an earlier create was issued for
	// this session but no record can be found yet.
	ErrCreateUnconfirmed = errors.New("lead creation not yet visible")
)

// State is the per-session memory of the resolver. It is persisted with the
// call session so a retried resolve never issues a second create.
type State struct {
	Record          *Record `json:"record,omitempty"`
	CreateAttempted bool    `json:"create_attempted"`
	EmailMerged     bool    `json:"email_merged"`
}

// Options tune retry behaviour.
type Options struct {
	Attempts  int
	BaseDelay time.Duration
	Timeout   time.Duration
}

// DefaultOptions matches the production call budget.
func DefaultOptions() Options {
	return Options{Attempts: 3, BaseDelay: 200 * time.Millisecond, Timeout: 8 * time.Second}
}

// Resolver finds or creates the CRM record for a caller.
type Resolver struct {
	dir   Directory
	opts  Options
	log   *logger.Logger
	group singleflight.Group
}

// NewResolver creates a resolver over dir.
func NewResolver(dir Directory, opts Options, log *logger.Logger) *Resolver {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{dir: dir, opts: opts, log: log}
}

type resolved struct {
	record  *Record
	created bool
}

// Resolve looks up by phone, then by email, and creates a lead keyed by phone
// only if neither matches. Concurrent resolves for the same phone share one
// round of lookups.
func (r *Resolver) Resolve(ctx context.Context, state *State, phone, email string) (*Record, error) {
	if state == nil {
		state = &State{}
	}
	phone = strings.TrimSpace(phone)
	email = strings.ToLower(strings.TrimSpace(email))
	if phone == "" {
		return nil, apperr.Validation("caller phone is required")
	}

	if state.Record != nil {
		r.mergeEmail(ctx, state, email)
		return state.Record, nil
	}

	createAllowed := !state.CreateAttempted
	v, err, _ := r.group.Do(phone, func() (interface{}, error) {
		return r.resolve(ctx, phone, email, createAllowed, func() { state.CreateAttempted = true })
	})
	if err != nil {
		return nil, err
	}

	res := v.(resolved)
	record := *res.record
	state.Record = &record
	if !res.created {
		r.mergeEmail(ctx, state, email)
	}
	return state.Record, nil
}

func (r *Resolver) resolve(ctx context.Context, phone, email string, createAllowed bool, markCreate func()) (resolved, error) {
	record, err := r.lookup(ctx, phone, email)
	if err != nil {
		return resolved{}, err
	}
	if record != nil {
		return resolved{record: record}, nil
	}

	if !createAllowed {
		return resolved{}, apperr.Wrap(apperr.KindUnavailable, "lead creation is still pending in the CRM", ErrCreateUnconfirmed)
	}

	markCreate()
	created, err := r.create(ctx, phone, email)
	if err == nil {
		created.Created = true
		return resolved{record: created, created: true}, nil
	}

	if !errors.Is(err, ErrCreateConflict) {
		return resolved{}, err
	}

	r.log.Info("lead create conflicted, re-checking", "phone", phone)
	record, lookupErr := r.lookup(ctx, phone, email)
	if lookupErr != nil {
		return resolved{}, lookupErr
	}
	if record != nil {
		return resolved{record: record}, nil
	}
	return resolved{}, apperr.Wrap(apperr.KindConflict, "lead already exists but could not be found", err)
}

func (r *Resolver) lookup(ctx context.Context, phone, email string) (*Record, error) {
	record, err := r.find(ctx, "find_by_phone", func(c context.Context) (*Record, error) {
		return r.dir.FindByPhone(c, phone)
	})
	if err != nil || record != nil {
		return record, err
	}
	if email == "" {
		return nil, nil
	}
	return r.find(ctx, "find_by_email", func(c context.Context) (*Record, error) {
		return r.dir.FindByEmail(c, email)
	})
}

func (r *Resolver) find(ctx context.Context, op string, fn func(context.Context) (*Record, error)) (*Record, error) {
	var found *Record
	err := retry.Do(ctx, r.opts.Attempts, r.opts.BaseDelay, func(ctx context.Context, attempt int) error {
		start := time.Now()
		callCtx, cancel := r.callContext(ctx)
		defer cancel()

		rec, err := fn(callCtx)
		if err != nil {
			r.log.ExternalCallFailed("crm", op, attempt, time.Since(start), err)
			if !transient(err) {
				return retry.Permanent(err)
			}
			return err
		}
		found = rec
		return nil
	})
	if err == nil {
		return found, nil
	}
	if !transient(err) {
		return nil, err
	}
	return nil, &apperr.Error{
		Kind:    apperr.KindUnavailable,
		Message: "CRM is unavailable",
		Op:      op,
		Err:     errors.Join(ErrCrmUnavailable, err),
	}
}

// create is never retried: the CRM gives no idempotency key for inserts.
func (r *Resolver) create(ctx context.Context, phone, email string) (*Record, error) {
	start := time.Now()
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	record, err := r.dir.Create(callCtx, phone, email)
	if err != nil {
		r.log.ExternalCallFailed("crm", "create_lead", 1, time.Since(start), err)
		if errors.Is(err, ErrCreateConflict) || !transient(err) {
			return nil, err
		}
		return nil, &apperr.Error{
			Kind:    apperr.KindUnavailable,
			Message: "CRM is unavailable",
			Op:      "create_lead",
			Err:     errors.Join(ErrCrmUnavailable, err),
		}
	}
	return record, nil
}

func (r *Resolver) mergeEmail(ctx context.Context, state *State, email string) {
	rec := state.Record
	if email == "" || rec == nil || rec.Email != "" || state.EmailMerged {
		return
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.dir.UpdateEmail(callCtx, rec.ID, email); err != nil {
		r.log.ExternalCallFailed("crm", "update_email", 1, 0, err)
		return
	}
	rec.Email = email
	state.EmailMerged = true
}

func (r *Resolver) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}

// transient treats untyped errors, timeouts and KindUnavailable as retryable.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindBadRequest, apperr.KindUnauthorized, apperr.KindNotFound, apperr.KindConflict:
		return false
	}
	return true
}
