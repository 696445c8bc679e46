package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/calls/repository"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/internal/pricing"
	"sales_agent_backend/platform/apperr"
)

type fakeDirectory struct {
	mu        sync.Mutex
	byPhone   map[string]*contacts.Record
	creates   int
	createErr error
	updates   map[string]string
	findErr   error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byPhone: map[string]*contacts.Record{}, updates: map[string]string{}}
}

func (d *fakeDirectory) FindByPhone(ctx context.Context, phone string) (*contacts.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	if r, ok := d.byPhone[phone]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (d *fakeDirectory) FindByEmail(ctx context.Context, email string) (*contacts.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	for _, r := range d.byPhone {
		if r.Email == email {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) Create(ctx context.Context, phone, email string) (*contacts.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if d.createErr != nil {
		return nil, d.createErr
	}
	r := &contacts.Record{ID: "00Q-new", Kind: contacts.KindLead, Phone: phone, Email: email}
	d.byPhone[phone] = r
	c := *r
	return &c, nil
}

func (d *fakeDirectory) UpdateEmail(ctx context.Context, id, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates[id] = email
	return nil
}

type fakeCalendar struct {
	mu          sync.Mutex
	busy        []availability.Interval
	freeBusyErr error
	createErr   error
	created     []availability.Event
}

func (c *fakeCalendar) QueryFreeBusy(ctx context.Context, min, max time.Time, calendarID string) ([]availability.Interval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freeBusyErr != nil {
		return nil, c.freeBusyErr
	}
	return append([]availability.Interval(nil), c.busy...), nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, event availability.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created = append(c.created, event)
	return "evt-1", nil
}

type fakeTasks struct {
	mu    sync.Mutex
	calls []ports.CallTask
	err   error
}

func (f *fakeTasks) LogTask(ctx context.Context, task ports.CallTask) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, task)
	if f.err != nil {
		return "", f.err
	}
	return "00T-1", nil
}

type sentSMS struct {
	phone string
	body  string
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (f *fakeSMS) SendSMS(ctx context.Context, phone, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentSMS{phone: phone, body: body})
	return "sms-1", nil
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeEmail) record(kind, to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, kind+":"+to)
	return "msg-1", nil
}

func (f *fakeEmail) SendOnboardingEmail(ctx context.Context, to, name string) (string, error) {
	return f.record("onboarding", to)
}

func (f *fakeEmail) SendAcceptableUsePolicyEmail(ctx context.Context, to, name string) (string, error) {
	return f.record("aup", to)
}

func (f *fakeEmail) SendFollowUpEmail(ctx context.Context, to, name string) (string, error) {
	return f.record("follow_up", to)
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *fakeBus) Publish(ctx context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *fakeBus) Subscribe(string, events.Handler) {}

func (b *fakeBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	svc      *Service
	dir      *fakeDirectory
	calendar *fakeCalendar
	tasks    *fakeTasks
	sms      *fakeSMS
	email    *fakeEmail
	bus      *fakeBus
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	table, err := pricing.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}

	h := &harness{
		dir:      newFakeDirectory(),
		calendar: &fakeCalendar{},
		tasks:    &fakeTasks{},
		sms:      &fakeSMS{},
		email:    &fakeEmail{},
		bus:      &fakeBus{},
	}
	negotiator, err := availability.NewNegotiator(h.calendar, availability.Config{
		CalendarID: "sales@example.com",
		Timezone:   "America/Los_Angeles",
		RetryDelay: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewNegotiator: %v", err)
	}
	resolver := contacts.NewResolver(h.dir, contacts.Options{Attempts: 2, BaseDelay: time.Millisecond}, nil)

	h.svc = New(Deps{
		Store:      repository.NewMemory(time.Hour),
		Table:      table,
		Resolver:   resolver,
		Negotiator: negotiator,
		Tasks:      h.tasks,
		SMS:        h.sms,
		Email:      h.email,
		Bus:        h.bus,
	}, cfg)
	return h
}

func unavailable(msg string) error { return apperr.Unavailable(msg) }

// futureSlot returns an RFC 3339 window a few days out.
func futureSlot(offset time.Duration, length time.Duration) (string, string, time.Time) {
	start := time.Now().Add(72 * time.Hour).Truncate(time.Hour).Add(offset).UTC()
	return start.Format(time.RFC3339), start.Add(length).Format(time.RFC3339), start
}
