package service

import (
	"context"
	"errors"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/qualification"
	"sales_agent_backend/platform/apperr"
)

// Dispatch runs the tier branch. Every branch action runs at most once per
// session; a failed action is recorded and not repeated. Repeated calls
// after dispatch return the session unchanged.
func (s *Service) Dispatch(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			return nil
		}
		if err := s.readyForDispatch(sess); err != nil {
			return err
		}
		if err := s.advance(sess, domain.StateContactAcquisition); err != nil {
			return err
		}

		switch sess.Tier() {
		case qualification.TierQualified:
			s.dispatchQualified(ctx, sess)
		case qualification.TierSelfService:
			s.sendTemplated(ctx, sess, domain.ActionSendOnboardingEmail, s.email.SendOnboardingEmail)
		case qualification.TierUnqualified:
			s.sendTemplated(ctx, sess, domain.ActionSendAUPEmail, s.email.SendAcceptableUsePolicyEmail)
		}
		return s.advance(sess, domain.StateBranchAction)
	})
}

func (s *Service) readyForDispatch(sess *domain.Session) error {
	if sess.Tier() == "" {
		return outOfOrder(sess, "classify the call before dispatch", uttOutOfOrder)
	}
	if s.cfg.RequireCRMConsent && sess.CRMConsent == nil {
		return fail(sess, apperr.Conflict("CRM consent has not been asked"), uttConsentNeeded)
	}
	if !sess.Outcome.Attempted(domain.ActionResolveContact) {
		return outOfOrder(sess, "resolve the contact before dispatch", uttContactPending)
	}
	if !sess.EmailDecided() {
		return fail(sess, apperr.Conflict("email has not been provided or declined"), uttEmailPending)
	}
	if sess.Tier() == qualification.TierQualified && sess.Slot == nil && !sess.FollowUpByEmail {
		return fail(sess, apperr.Conflict("no meeting slot has been proposed"), uttSlotPending)
	}
	return nil
}

func (s *Service) dispatchQualified(ctx context.Context, sess *domain.Session) {
	if sess.Slot != nil && !sess.FollowUpByEmail && !sess.Outcome.Attempted(domain.ActionCreateCalendarInvite) {
		s.createInvite(ctx, sess)
	}
	if sess.FollowUpByEmail {
		s.sendTemplated(ctx, sess, domain.ActionSendFollowUpEmail, s.email.SendFollowUpEmail)
	}
}

func (s *Service) createInvite(ctx context.Context, sess *domain.Session) {
	event := availability.Event{
		Summary:     s.cfg.MeetingTitle,
		Description: meetingDescription(sess),
	}
	if name := sess.FirstName(); name != "" {
		event.Summary += " with " + name
	}
	if sess.HasEmail() {
		event.Attendees = []string{sess.Email}
	}

	confirmed, err := s.negotiator.Confirm(ctx, *sess.Slot, event)
	if err != nil {
		detail := err.Error()
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			detail = "slot was taken before booking"
		}
		s.record(sess, domain.ActionCreateCalendarInvite, domain.StatusFailed, detail)
		s.logFor(ctx, sess).Warn("calendar invite failed, falling back to email follow-up", "error", err)
		sess.FollowUpByEmail = true
		return
	}

	sess.Slot = &confirmed
	meeting := confirmed
	sess.Outcome.Meeting = &meeting
	detail := confirmed.EventID
	if len(event.Attendees) == 0 {
		detail += "; no attendee, caller gave no email"
	}
	s.record(sess, domain.ActionCreateCalendarInvite, domain.StatusDone, detail)
}

type templatedSend func(ctx context.Context, toEmail, firstName string) (string, error)

// sendTemplated sends one branch email at most once. Without an address the
// action is recorded as skipped.
func (s *Service) sendTemplated(ctx context.Context, sess *domain.Session, action domain.Action, send templatedSend) {
	if sess.Outcome.Attempted(action) {
		return
	}
	if !sess.HasEmail() {
		s.record(sess, action, domain.StatusSkipped, "no email address")
		return
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	deliveryID, err := send(callCtx, sess.Email, sess.FirstName())
	if err != nil {
		s.record(sess, action, domain.StatusFailed, err.Error())
		s.logFor(ctx, sess).Warn("branch email failed", "action", action, "error", err)
		return
	}
	s.record(sess, action, domain.StatusDone, deliveryID)
}
