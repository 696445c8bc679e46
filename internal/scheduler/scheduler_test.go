package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
)

type stubSchedulerConfig struct{ url string }

func (s stubSchedulerConfig) GetRedisURL() string       { return s.url }
func (s stubSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (s stubSchedulerConfig) GetAsynqQueueName() string { return "" }
func (s stubSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

type fakeResolver struct {
	record *contacts.Record
	err    error
	states []contacts.State
}

func (f *fakeResolver) Resolve(ctx context.Context, state *contacts.State, phone, email string) (*contacts.Record, error) {
	f.states = append(f.states, *state)
	if f.err != nil {
		return nil, f.err
	}
	state.Record = f.record
	return f.record, nil
}

type fakeTasks struct {
	calls []ports.CallTask
	err   error
}

func (f *fakeTasks) LogTask(ctx context.Context, task ports.CallTask) (string, error) {
	f.calls = append(f.calls, task)
	if f.err != nil {
		return "", f.err
	}
	return "00T1", nil
}

func newTestWorker(resolver *fakeResolver, tasks *fakeTasks) *Worker {
	return &Worker{resolver: resolver, tasks: tasks, log: logger.Nop()}
}

func TestEnqueueTaskLogIsOncePerSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(stubSchedulerConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	payload := CallTaskLogPayload{SessionID: "s-1", Phone: "+14155552671", Subject: "Inbound sales call"}
	for i := 0; i < 2; i++ {
		if err := client.EnqueueTaskLog(context.Background(), payload); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if !mr.Exists("asynq:{default}:t:" + TaskCallLogTask + ":s-1") {
		t.Fatalf("expected task hash, keys: %v", mr.Keys())
	}
	pending, err := mr.List("asynq:{default}:pending")
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly one pending task, got %d", len(pending))
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	if err := c.EnqueueTaskLog(context.Background(), CallTaskLogPayload{SessionID: "s"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

type recordingScheduler struct {
	got chan CallTaskLogPayload
}

func (r *recordingScheduler) EnqueueTaskLog(ctx context.Context, payload CallTaskLogPayload) error {
	r.got <- payload
	return nil
}

func TestDeferredEventIsEnqueued(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	rec := &recordingScheduler{got: make(chan CallTaskLogPayload, 1)}
	SubscribeDeferredTaskLogs(bus, rec, logger.Nop())

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	bus.Publish(context.Background(), events.CallTaskLogDeferred{
		BaseEvent:       events.NewBaseEvent(),
		SessionID:       "s-1",
		Phone:           "+14155552671",
		CreateAttempted: true,
		Subject:         "Inbound sales call",
		ActivityDate:    day,
		Reason:          "crm unavailable",
	})
	bus.Wait()

	select {
	case p := <-rec.got:
		if p.SessionID != "s-1" || !p.CreateAttempted || !p.ActivityDate.Equal(day) {
			t.Fatalf("unexpected payload %+v", p)
		}
	default:
		t.Fatal("expected the deferred event to be enqueued")
	}
}

func TestWorkerLogsWithKnownRecord(t *testing.T) {
	resolver := &fakeResolver{}
	tasks := &fakeTasks{}
	w := newTestWorker(resolver, tasks)

	err := w.logCallTask(context.Background(), CallTaskLogPayload{SessionID: "s-1", WhoID: "003A", Subject: "s"})
	if err != nil {
		t.Fatalf("logCallTask: %v", err)
	}
	if len(resolver.states) != 0 {
		t.Fatal("resolver must not run when the record is known")
	}
	if len(tasks.calls) != 1 || tasks.calls[0].WhoID != "003A" {
		t.Fatalf("unexpected task calls %+v", tasks.calls)
	}
}

func TestWorkerResolvesWithoutRecreating(t *testing.T) {
	resolver := &fakeResolver{record: &contacts.Record{ID: "00QB", Kind: contacts.KindLead}}
	tasks := &fakeTasks{}
	w := newTestWorker(resolver, tasks)

	err := w.logCallTask(context.Background(), CallTaskLogPayload{
		SessionID: "s-1", Phone: "+14155552671", CreateAttempted: true, Subject: "s",
	})
	if err != nil {
		t.Fatalf("logCallTask: %v", err)
	}
	if !resolver.states[0].CreateAttempted {
		t.Fatal("expected the earlier create attempt to be carried into resolution")
	}
	if tasks.calls[0].WhoID != "00QB" {
		t.Fatalf("expected resolved who id, got %q", tasks.calls[0].WhoID)
	}
}

func TestWorkerRetriesUntilRecordVisible(t *testing.T) {
	w := newTestWorker(&fakeResolver{}, &fakeTasks{})
	err := w.logCallTask(context.Background(), CallTaskLogPayload{SessionID: "s-1", Phone: "+14155552671"})
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
}

func TestWorkerRetryClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		skip bool
	}{
		{"unavailable", apperr.Unavailable("crm down"), false},
		{"timeout", context.DeadlineExceeded, false},
		{"validation", apperr.Validation("bad who id"), true},
		{"not found", apperr.NotFound("deleted"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWorker(&fakeResolver{}, &fakeTasks{err: tc.err})
			err := w.logCallTask(context.Background(), CallTaskLogPayload{SessionID: "s", WhoID: "003A"})
			if got := errors.Is(err, asynq.SkipRetry); got != tc.skip {
				t.Fatalf("expected skip=%v, got %v (%v)", tc.skip, got, err)
			}
		})
	}
}

func TestHandlerSkipsMalformedPayload(t *testing.T) {
	w := newTestWorker(&fakeResolver{}, &fakeTasks{})
	err := w.handleCallTaskLog(context.Background(), asynq.NewTask(TaskCallLogTask, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
