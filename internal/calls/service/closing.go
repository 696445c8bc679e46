package service

import (
	"context"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/internal/qualification"
)

// Close writes the CRM task once, sends the qualified closing text and ends
// the call. A failed task write is recorded and handed to the background
// worker; the call still closes.
func (s *Service) Close(ctx context.Context, id string) (*domain.Session, error) {
	var closed bool
	sess, err := s.mutate(ctx, id, func(sess *domain.Session) error {
		if sess.Closed() {
			return nil
		}
		if !sess.State.AtLeast(domain.StateBranchAction) {
			return outOfOrder(sess, "dispatch the tier actions before closing", uttOutOfOrder)
		}

		s.logTask(ctx, sess)

		if sess.Tier() == qualification.TierQualified && !sess.Outcome.Attempted(domain.ActionSendClosingSMS) {
			callCtx, cancel := s.callContext(ctx)
			deliveryID, err := s.sms.SendSMS(callCtx, sess.Phone, closingText(sess))
			cancel()
			if err != nil {
				s.record(sess, domain.ActionSendClosingSMS, domain.StatusFailed, err.Error())
			} else {
				s.record(sess, domain.ActionSendClosingSMS, domain.StatusDone, deliveryID)
			}
		}

		s.finish(sess)
		closed = true
		return nil
	})
	if err == nil && closed {
		s.publishClosed(ctx, sess)
	}
	return sess, err
}

// Hangup ends the call from any state. If the task was not yet written a
// partial one is attempted; nothing else is sent.
func (s *Service) Hangup(ctx context.Context, id string) (*domain.Session, error) {
	var closed bool
	sess, err := s.mutate(ctx, id, func(sess *domain.Session) error {
		if sess.Closed() {
			return nil
		}
		sess.Outcome.HungUp = true
		s.logTask(ctx, sess)
		s.finish(sess)
		closed = true
		return nil
	})
	if err == nil && closed {
		s.logFor(ctx, sess).Info("caller hung up", "task_id", sess.Outcome.TaskID)
		s.publishClosed(ctx, sess)
	}
	return sess, err
}

func (s *Service) finish(sess *domain.Session) {
	ended := s.now()
	sess.Outcome.EndedAt = &ended
	_ = sess.Advance(domain.StateClosed)
}

// logTask makes the single in-call attempt to write the CRM task. Without a
// resolved record it tries one resolution first; if that fails the write is
// deferred with everything the worker needs to resolve and log later.
func (s *Service) logTask(ctx context.Context, sess *domain.Session) {
	if sess.Outcome.LogAttempted {
		return
	}
	if !sess.CRMWritesAllowed(s.cfg.RequireCRMConsent) {
		s.record(sess, domain.ActionLogCRMTask, domain.StatusSkipped, "no CRM consent")
		return
	}

	if sess.Contact.Record == nil {
		_ = s.resolve(ctx, sess)
	}

	sess.Outcome.LogAttempted = true
	task := ports.CallTask{
		Subject:      sess.TaskSubject(),
		Body:         sess.TaskBody(),
		ActivityDate: sess.Outcome.StartedAt,
	}

	if sess.Contact.Record == nil {
		s.record(sess, domain.ActionLogCRMTask, domain.StatusFailed, "no CRM record for caller")
		s.deferTask(ctx, sess, task, "contact unresolved")
		return
	}
	task.WhoID = sess.Contact.Record.ID

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	taskID, err := s.tasks.LogTask(callCtx, task)
	if err != nil {
		s.record(sess, domain.ActionLogCRMTask, domain.StatusFailed, err.Error())
		s.logFor(ctx, sess).Warn("crm task write failed", "error", err)
		if transient(err) {
			s.deferTask(ctx, sess, task, err.Error())
		}
		return
	}

	sess.Outcome.TaskID = taskID
	s.record(sess, domain.ActionLogCRMTask, domain.StatusDone, taskID)
	_ = sess.Advance(domain.StateLogged)
}

func (s *Service) deferTask(ctx context.Context, sess *domain.Session, task ports.CallTask, reason string) {
	sess.Outcome.LogDeferred = true
	email := ""
	if sess.HasEmail() {
		email = sess.Email
	}
	s.publish(ctx, events.CallTaskLogDeferred{
		BaseEvent:       events.NewBaseEvent(),
		SessionID:       sess.ID,
		Phone:           sess.Phone,
		Email:           email,
		WhoID:           task.WhoID,
		CreateAttempted: sess.Contact.CreateAttempted,
		Subject:         task.Subject,
		Body:            task.Body,
		ActivityDate:    task.ActivityDate,
		Reason:          reason,
	})
}

func (s *Service) publishClosed(ctx context.Context, sess *domain.Session) {
	failed := make([]string, 0, len(sess.Outcome.FailedEffects))
	for _, f := range sess.Outcome.FailedEffects {
		failed = append(failed, string(f))
	}
	s.publish(ctx, events.CallClosed{
		BaseEvent:     events.NewBaseEvent(),
		SessionID:     sess.ID,
		Phone:         sess.Phone,
		Tier:          string(sess.Tier()),
		HungUp:        sess.Outcome.HungUp,
		TaskID:        sess.Outcome.TaskID,
		FailedEffects: failed,
	})
}
