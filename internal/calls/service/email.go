package service

import (
	"context"
	"net/mail"
	"strings"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/qualification"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/phone"
)

// EmailRequest asks the caller for an address. Consent is required for
// unqualified callers; ViaSMS sends a text the caller can reply to.
type EmailRequest struct {
	Consent *bool
	ViaSMS  bool
}

// RequestEmail starts email acquisition. Qualified callers always get a text
// so the address arrives spelled correctly.
func (s *Service) RequestEmail(ctx context.Context, id string, in EmailRequest) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.Tier() == "" {
			return outOfOrder(sess, "classify the call before asking for an email", uttOutOfOrder)
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			return outOfOrder(sess, "email is collected before dispatch", uttOutOfOrder)
		}
		if sess.HasEmail() {
			return nil
		}

		if sess.Tier() == qualification.TierUnqualified {
			if in.Consent == nil && sess.EmailConsent == nil {
				return fail(sess, apperr.Conflict("caller has not agreed to share an email"), uttEmailConsentNeeded)
			}
			if in.Consent != nil {
				sess.EmailConsent = in.Consent
			}
			if !*sess.EmailConsent {
				sess.EmailStatus = domain.EmailDeclined
				s.record(sess, domain.ActionRequestEmail, domain.StatusSkipped, "caller declined")
				return nil
			}
		}

		viaSMS := in.ViaSMS || sess.Tier() == qualification.TierQualified
		if !viaSMS {
			sess.EmailStatus = domain.EmailRequested
			s.record(sess, domain.ActionRequestEmail, domain.StatusDone, "voice")
			return nil
		}
		if sess.Outcome.Succeeded(domain.ActionRequestEmail) && sess.EmailStatus == domain.EmailRequested {
			if e, _ := sess.Outcome.Last(domain.ActionRequestEmail); strings.HasPrefix(e.Detail, "sms") {
				return nil
			}
		}

		callCtx, cancel := s.callContext(ctx)
		defer cancel()
		sess.EmailStatus = domain.EmailRequested
		deliveryID, err := s.sms.SendSMS(callCtx, sess.Phone, emailRequestText(s.cfg.SenderCompany))
		if err != nil {
			s.record(sess, domain.ActionRequestEmail, domain.StatusFailed, err.Error())
			s.logFor(ctx, sess).Warn("email request sms failed", "error", err)
			return fail(sess, err, uttSMSFailed)
		}
		s.record(sess, domain.ActionRequestEmail, domain.StatusDone, "sms "+deliveryID)
		return nil
	})
}

// ProvideEmail records an address spoken by the caller.
func (s *Service) ProvideEmail(ctx context.Context, id, address string) (*domain.Session, error) {
	return s.provideEmail(ctx, id, address, domain.EmailSourceVoice)
}

// AttachEmailByPhone routes an address received by text to the sender's open
// session.
func (s *Service) AttachEmailByPhone(ctx context.Context, callerPhone, address string) (*domain.Session, error) {
	e164, err := phone.Parse(callerPhone, s.cfg.PhoneRegion)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid sender phone number", err)
	}
	id, err := s.store.FindOpenByPhone(ctx, e164)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperr.NotFound("no open call for " + e164)
	}
	return s.provideEmail(ctx, id, address, domain.EmailSourceSMS)
}

func (s *Service) provideEmail(ctx context.Context, id, address string, source domain.EmailSource) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		addr, err := parseEmail(address)
		if err != nil {
			return fail(sess, err, uttEmailInvalid)
		}
		if sess.HasEmail() && sess.Email == addr {
			return nil
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			return outOfOrder(sess, "email can no longer change after dispatch", uttOutOfOrder)
		}

		if !sess.State.AtLeast(domain.StateClassified) {
			sess.Facts.Email = addr
		}
		s.captureEmail(sess, addr, source)

		if sess.Contact.Record != nil && sess.CRMWritesAllowed(s.cfg.RequireCRMConsent) {
			if _, err := s.resolver.Resolve(ctx, &sess.Contact, sess.Phone, addr); err != nil {
				s.logFor(ctx, sess).Warn("email merge failed", "error", err)
			}
		}
		return nil
	})
}

func (s *Service) captureEmail(sess *domain.Session, addr string, source domain.EmailSource) {
	sess.Email = addr
	sess.EmailStatus = domain.EmailProvided
	sess.EmailSource = source
	// Giving an address is consent to be emailed.
	granted := true
	sess.EmailConsent = &granted
	s.record(sess, domain.ActionCaptureEmail, domain.StatusDone, string(source))
}

// DeclineEmail records that the caller would rather not give an address.
// The call still closes normally and the CRM task is still written.
func (s *Service) DeclineEmail(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.HasEmail() || sess.EmailStatus == domain.EmailDeclined {
			return nil
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			return outOfOrder(sess, "email is collected before dispatch", uttOutOfOrder)
		}
		sess.EmailStatus = domain.EmailDeclined
		s.record(sess, domain.ActionCaptureEmail, domain.StatusSkipped, "caller declined")
		return nil
	})
}

func parseEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", apperr.Validation("invalid email address")
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 1 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", apperr.Validation("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}
