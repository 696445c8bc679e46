package scheduler

import (
	"context"
	"errors"
	"fmt"

	"sales_agent_backend/internal/events"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/rediskit"

	"github.com/hibiken/asynq"
)

// taskLogMaxRetry spreads retries over roughly a day with asynq's default backoff.
const taskLogMaxRetry = 12

type Client struct {
	client *asynq.Client
	queue  string
}

// TaskLogScheduler enqueues deferred CRM task writes.
type TaskLogScheduler interface {
	EnqueueTaskLog(ctx context.Context, payload CallTaskLogPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueTaskLog queues one write per session. A second deferral for the same
// session is dropped while the first is still pending.
func (c *Client) EnqueueTaskLog(ctx context.Context, payload CallTaskLogPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewCallTaskLogTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(TaskCallLogTask+":"+payload.SessionID),
		asynq.MaxRetry(taskLogMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// SubscribeDeferredTaskLogs forwards CallTaskLogDeferred events to the queue.
func SubscribeDeferredTaskLogs(bus events.Bus, scheduler TaskLogScheduler, log *logger.Logger) {
	bus.Subscribe(events.CallTaskLogDeferred{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.CallTaskLogDeferred)
		if !ok {
			return nil
		}
		err := scheduler.EnqueueTaskLog(ctx, CallTaskLogPayload{
			SessionID:       e.SessionID,
			Phone:           e.Phone,
			Email:           e.Email,
			WhoID:           e.WhoID,
			CreateAttempted: e.CreateAttempted,
			Subject:         e.Subject,
			Body:            e.Body,
			ActivityDate:    e.ActivityDate,
		})
		if err != nil {
			log.Error("enqueue deferred task log failed", "session_id", e.SessionID, "error", err)
			return err
		}
		log.Info("task log deferred", "session_id", e.SessionID, "reason", e.Reason)
		return nil
	}))
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := rediskit.Options(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
