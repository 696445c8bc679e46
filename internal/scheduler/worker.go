package scheduler

import (
	"context"
	"errors"
	"fmt"

	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	resolver ports.ContactResolver
	tasks    ports.TaskLogger
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, resolver ports.ContactResolver, tasks ports.TaskLogger, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		resolver: resolver,
		tasks:    tasks,
		log:      log,
	}

	mux.HandleFunc(TaskCallLogTask, w.handleCallTaskLog)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleCallTaskLog(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallTaskLogPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.logCallTask(ctx, payload)
}

// logCallTask writes the Task, resolving the caller first when the call ended
// before a CRM record was found. Permanent failures skip retry.
func (w *Worker) logCallTask(ctx context.Context, payload CallTaskLogPayload) error {
	log := w.log.WithSessionID(payload.SessionID)

	whoID := payload.WhoID
	if whoID == "" {
		state := &contacts.State{CreateAttempted: payload.CreateAttempted}
		rec, err := w.resolver.Resolve(ctx, state, payload.Phone, payload.Email)
		if err != nil {
			return retryable(err)
		}
		if rec == nil {
			// An earlier create may not be visible yet; look again next run.
			return errors.New("caller has no crm record yet")
		}
		whoID = rec.ID
	}

	id, err := w.tasks.LogTask(ctx, ports.CallTask{
		WhoID:        whoID,
		Subject:      payload.Subject,
		Body:         payload.Body,
		ActivityDate: payload.ActivityDate,
	})
	if err != nil {
		log.Warn("deferred task log failed", "error", err)
		return retryable(err)
	}
	log.Info("deferred task logged", "task_id", id, "who_id", whoID)
	return nil
}

func retryable(err error) error {
	switch apperr.GetKind(err) {
	case apperr.KindValidation, apperr.KindBadRequest, apperr.KindNotFound, apperr.KindConflict:
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}
