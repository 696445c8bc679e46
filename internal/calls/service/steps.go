package service

import (
	"context"
	"errors"
	"strings"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/internal/pricing"
	"sales_agent_backend/internal/qualification"
	"sales_agent_backend/platform/apperr"
	"sales_agent_backend/platform/phone"

	"github.com/google/uuid"
)

func newSessionID() string { return uuid.NewString() }

// Start opens a session for an inbound caller. A caller who redials while
// their previous session is still open gets that session back.
func (s *Service) Start(ctx context.Context, callerPhone string) (*domain.Session, bool, error) {
	e164, err := phone.Parse(callerPhone, s.cfg.PhoneRegion)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindValidation, "invalid caller phone number", err)
	}

	if id, err := s.store.FindOpenByPhone(ctx, e164); err != nil {
		return nil, false, err
	} else if id != "" {
		existing, err := s.store.Get(ctx, id)
		if err == nil && !existing.Closed() {
			return existing, false, nil
		}
	}

	sess := domain.NewSession(s.newID(), e164, s.now())
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, false, err
	}
	s.logFor(ctx, sess).Info("call session started", "phone", e164)
	return sess, true, nil
}

// FactsUpdate carries newly learned facts. Nil or empty fields are left as is.
type FactsUpdate struct {
	UseCase *string
	Volumes map[string]int64
	Numbers map[string]int64
	Email   *string
}

// UpdateFacts merges facts until the call is classified. Volumes and counts
// replace earlier values for the same key.
func (s *Service) UpdateFacts(ctx context.Context, id string, in FactsUpdate) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.State.AtLeast(domain.StateClassified) {
			return outOfOrder(sess, "facts are frozen once the call is classified", uttOutOfOrder)
		}

		volumes, err := s.normalizeVolumes(in.Volumes)
		if err != nil {
			return fail(sess, err, uttFactsInvalid)
		}
		numbers, err := s.normalizeNumbers(in.Numbers)
		if err != nil {
			return fail(sess, err, uttFactsInvalid)
		}

		if in.UseCase != nil {
			sess.Facts.UseCase = qualification.ParseUseCase(*in.UseCase)
		}
		sess.Facts.Volumes = merge(sess.Facts.Volumes, volumes)
		sess.Facts.Numbers = merge(sess.Facts.Numbers, numbers)
		if in.Email != nil && strings.TrimSpace(*in.Email) != "" {
			addr, err := parseEmail(*in.Email)
			if err != nil {
				return fail(sess, err, uttEmailInvalid)
			}
			sess.Facts.Email = addr
			s.captureEmail(sess, addr, domain.EmailSourceVoice)
		}
		return s.advance(sess, domain.StateFactsGathering)
	})
}

func (s *Service) normalizeVolumes(in map[string]int64) (map[string]int64, error) {
	out := make(map[string]int64, len(in))
	for raw, v := range in {
		if v < 0 {
			return nil, apperr.Validation("monthly volume for " + raw + " cannot be negative")
		}
		country, ok := s.table.Country(raw)
		if !ok {
			return nil, apperr.Validation("no SMS rate for country " + raw)
		}
		if v > pricing.MaxQuantity-out[country] {
			return nil, apperr.Wrap(apperr.KindValidation, "monthly volume for "+raw+" is too large", pricing.ErrQuantityTooLarge)
		}
		out[country] += v
	}
	return out, nil
}

func (s *Service) normalizeNumbers(in map[string]int64) (map[string]int64, error) {
	out := make(map[string]int64, len(in))
	for raw, v := range in {
		if v < 0 {
			return nil, apperr.Validation("number count for " + raw + " cannot be negative")
		}
		typ, ok := s.table.NumberType(raw)
		if !ok {
			return nil, apperr.Validation("unknown number type " + raw)
		}
		if v > pricing.MaxQuantity-out[string(typ)] {
			return nil, apperr.Wrap(apperr.KindValidation, "number count for "+raw+" is too large", pricing.ErrQuantityTooLarge)
		}
		out[string(typ)] += v
	}
	return out, nil
}

func merge(dst, src map[string]int64) map[string]int64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int64, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Qualify prices the facts and fixes the tier. Repeated calls return the
// first result.
func (s *Service) Qualify(ctx context.Context, id string) (*domain.Session, error) {
	var qualified *domain.Session
	sess, err := s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.Qualification != nil {
			return nil
		}

		result, err := qualification.Qualify(s.table, sess.Facts)
		if err != nil {
			return fail(sess, apperr.Wrap(apperr.KindValidation, "cannot price the stated usage", err), uttFactsInvalid)
		}
		if err := s.advance(sess, domain.StateClassified); err != nil {
			return err
		}
		sess.Qualification = &result
		sess.Outcome.Tier = result.Tier
		s.record(sess, domain.ActionClassify, domain.StatusDone, result.Reason)
		qualified = sess
		return nil
	})
	if err == nil && qualified != nil {
		event := events.CallQualified{
			BaseEvent: events.NewBaseEvent(),
			SessionID: sess.ID,
			Phone:     sess.Phone,
			Tier:      string(sess.Tier()),
		}
		if sess.Qualification.Spend != nil {
			event.SpendUSD = sess.Qualification.Spend.Total.String()
		}
		s.publish(ctx, event)
		s.logFor(ctx, sess).Info("call qualified", "tier", sess.Tier(), "reason", sess.Qualification.Reason)
	}
	return sess, err
}

// RecordConsent stores the caller's answer to the CRM consent question. The
// first answer is final.
func (s *Service) RecordConsent(ctx context.Context, id string, granted bool) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if !sess.State.AtLeast(domain.StateClassified) {
			return outOfOrder(sess, "consent is asked after classification", uttOutOfOrder)
		}
		if sess.CRMConsent != nil {
			return nil
		}
		if sess.State.AtLeast(domain.StateContactAcquisition) {
			return outOfOrder(sess, "consent must be recorded before contact resolution", uttOutOfOrder)
		}

		sess.CRMConsent = &granted
		if granted {
			s.record(sess, domain.ActionCRMConsent, domain.StatusDone, "granted")
		} else {
			s.record(sess, domain.ActionCRMConsent, domain.StatusSkipped, "declined")
		}
		return s.advance(sess, domain.StateConsentCheck)
	})
}

// ResolveContact finds or creates the caller's CRM record. It runs at most
// once successfully; a failed attempt can be repeated until dispatch.
func (s *Service) ResolveContact(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if !sess.State.AtLeast(domain.StateClassified) {
			return outOfOrder(sess, "classify the call before resolving the contact", uttOutOfOrder)
		}
		if sess.Contact.Record != nil {
			return nil
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			return outOfOrder(sess, "contact resolution happens before dispatch", uttOutOfOrder)
		}
		if s.cfg.RequireCRMConsent && sess.CRMConsent == nil {
			return fail(sess, apperr.Conflict("CRM consent has not been asked"), uttConsentNeeded)
		}

		if !sess.CRMWritesAllowed(s.cfg.RequireCRMConsent) {
			if !sess.Outcome.Attempted(domain.ActionResolveContact) {
				s.record(sess, domain.ActionResolveContact, domain.StatusSkipped, "no CRM consent")
			}
			return s.advance(sess, domain.StateContactAcquisition)
		}

		if err := s.advance(sess, domain.StateContactAcquisition); err != nil {
			return err
		}
		return s.resolve(ctx, sess)
	})
}

func (s *Service) resolve(ctx context.Context, sess *domain.Session) error {
	email := ""
	if sess.HasEmail() {
		email = sess.Email
	}
	record, err := s.resolver.Resolve(ctx, &sess.Contact, sess.Phone, email)
	if err != nil {
		s.record(sess, domain.ActionResolveContact, domain.StatusFailed, err.Error())
		s.logFor(ctx, sess).Warn("contact resolution failed", "error", err)
		return fail(sess, err, uttCRMUnavailable)
	}

	detail := string(record.Kind) + " " + record.ID
	if record.Created {
		detail += " created"
	}
	s.record(sess, domain.ActionResolveContact, domain.StatusDone, detail)
	return nil
}

// SlotRequest is a meeting window as the caller stated it.
type SlotRequest struct {
	Start    string
	End      string
	TimeZone string
}

// ProposeSlot checks a window against the organizer's calendar. A busy
// window is reported back and the caller is asked for another time.
func (s *Service) ProposeSlot(ctx context.Context, id string, in SlotRequest) (*domain.Session, error) {
	return s.mutate(ctx, id, func(sess *domain.Session) error {
		if err := requireOpen(sess); err != nil {
			return err
		}
		if sess.Tier() != qualification.TierQualified {
			return fail(sess, apperr.Conflict("meetings are only booked for qualified callers"), uttSlotNotQualified)
		}
		if sess.State.AtLeast(domain.StateBranchAction) {
			if sess.Slot != nil && sess.Slot.Confirmed() {
				return fail(sess, apperr.Conflict("meeting already booked"), uttSlotAlreadyBooked)
			}
			return outOfOrder(sess, "slots are proposed before dispatch", uttOutOfOrder)
		}

		start, err := s.negotiator.ParseLocal(in.Start, in.TimeZone)
		if err != nil {
			return fail(sess, err, uttSlotInvalid)
		}
		end, err := s.negotiator.ParseLocal(in.End, in.TimeZone)
		if err != nil {
			return fail(sess, err, uttSlotInvalid)
		}

		slot, err := s.negotiator.FindSlot(ctx, start, end)
		var conflict *availability.ConflictError
		switch {
		case errors.As(err, &conflict):
			return &apperr.Error{
				Kind:    apperr.KindConflict,
				Message: "requested time is busy",
				Err:     err,
				Details: StepDetails{SessionID: sess.ID, State: sess.State, Utterance: uttSlotBusy, Busy: conflict.Busy},
			}
		case apperr.Is(err, apperr.KindValidation):
			return fail(sess, err, uttSlotInvalid)
		case err != nil:
			sess.FollowUpByEmail = true
			s.record(sess, domain.ActionProposeSlot, domain.StatusFailed, err.Error())
			s.logFor(ctx, sess).Warn("slot check failed, falling back to email follow-up", "error", err)
			return fail(sess, err, uttCalendarDown)
		}

		sess.Slot = &slot
		meeting := slot
		sess.Outcome.Meeting = &meeting
		sess.FollowUpByEmail = false
		s.record(sess, domain.ActionProposeSlot, domain.StatusDone, formatSlot(slot))
		return nil
	})
}
