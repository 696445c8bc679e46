package transport

import (
	"time"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/pricing"
)

// StartCallRequest opens a session for an inbound caller.
type StartCallRequest struct {
	Phone string `json:"phone" validate:"required,min=3,max=32"`
}

// UpdateFactsRequest carries facts learned so far. Omitted fields are kept.
type UpdateFactsRequest struct {
	UseCase *string          `json:"useCase,omitempty" validate:"omitempty,max=64"`
	Volumes map[string]int64 `json:"volumes,omitempty" validate:"omitempty,dive,keys,min=2,max=32,endkeys,gte=0,lte=1000000000000"`
	Numbers map[string]int64 `json:"numbers,omitempty" validate:"omitempty,dive,keys,min=1,max=32,endkeys,gte=0,lte=1000000000000"`
	Email   *string          `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

// ConsentRequest records the caller's CRM consent answer.
type ConsentRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

// ProposeSlotRequest is a meeting window. Times are RFC 3339, or wall-clock
// times read in TimeZone (the organizer zone when empty).
type ProposeSlotRequest struct {
	Start    string `json:"start" validate:"required,max=40"`
	End      string `json:"end" validate:"required,max=40"`
	TimeZone string `json:"timeZone,omitempty" validate:"omitempty,iana_tz"`
}

// RequestEmailRequest starts email acquisition.
type RequestEmailRequest struct {
	Consent *bool `json:"consent,omitempty"`
	ViaSMS  bool  `json:"viaSms"`
}

// ProvideEmailRequest carries an address spoken by the caller.
type ProvideEmailRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// ActionResponse is one action log entry.
type ActionResponse struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// SpendLineResponse is one line of the spend breakdown.
type SpendLineResponse struct {
	Kind     string         `json:"kind"`
	Key      string         `json:"key"`
	Quantity int64          `json:"quantity"`
	Unit     pricing.Micros `json:"unit"`
	Amount   pricing.Micros `json:"amount"`
}

// QualificationResponse is the tier and the spend that produced it.
type QualificationResponse struct {
	Tier       string              `json:"tier"`
	Reason     string              `json:"reason"`
	SpendTotal *pricing.Micros     `json:"spendTotal,omitempty"`
	SpendLines []SpendLineResponse `json:"spendLines,omitempty"`
}

// SlotResponse is a proposed or confirmed meeting.
type SlotResponse struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	TimeZone string    `json:"timeZone"`
	Status   string    `json:"status"`
	EventID  string    `json:"eventId,omitempty"`
}

// ContactResponse is the caller's CRM record.
type ContactResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	FirstName string `json:"firstName,omitempty"`
	Created   bool   `json:"created"`
}

// SessionResponse is the public view of a call session.
type SessionResponse struct {
	ID              string                 `json:"id"`
	Phone           string                 `json:"phone"`
	State           string                 `json:"state"`
	UseCase         string                 `json:"useCase,omitempty"`
	Volumes         map[string]int64       `json:"volumes,omitempty"`
	Numbers         map[string]int64       `json:"numbers,omitempty"`
	Qualification   *QualificationResponse `json:"qualification,omitempty"`
	CRMConsent      *bool                  `json:"crmConsent,omitempty"`
	Email           string                 `json:"email,omitempty"`
	EmailStatus     string                 `json:"emailStatus,omitempty"`
	Contact         *ContactResponse       `json:"contact,omitempty"`
	Slot            *SlotResponse          `json:"slot,omitempty"`
	FollowUpByEmail bool                   `json:"followUpByEmail"`
	Actions         []ActionResponse       `json:"actions"`
	FailedEffects   []string               `json:"failedEffects,omitempty"`
	TaskID          string                 `json:"taskId,omitempty"`
	TaskLogDeferred bool                   `json:"taskLogDeferred"`
	HungUp          bool                   `json:"hungUp"`
	StartedAt       time.Time              `json:"startedAt"`
	EndedAt         *time.Time             `json:"endedAt,omitempty"`
}

// NewSessionResponse maps a session to its API view.
func NewSessionResponse(s *domain.Session) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID,
		Phone:           s.Phone,
		State:           string(s.State),
		UseCase:         string(s.Facts.UseCase),
		Volumes:         s.Facts.Volumes,
		Numbers:         s.Facts.Numbers,
		CRMConsent:      s.CRMConsent,
		Email:           s.Email,
		EmailStatus:     string(s.EmailStatus),
		FollowUpByEmail: s.FollowUpByEmail,
		Actions:         make([]ActionResponse, 0, len(s.Outcome.Actions)),
		TaskID:          s.Outcome.TaskID,
		TaskLogDeferred: s.Outcome.LogDeferred,
		HungUp:          s.Outcome.HungUp,
		StartedAt:       s.Outcome.StartedAt,
		EndedAt:         s.Outcome.EndedAt,
	}

	if q := s.Qualification; q != nil {
		qr := &QualificationResponse{Tier: string(q.Tier), Reason: q.Reason}
		if q.Spend != nil {
			total := q.Spend.Total
			qr.SpendTotal = &total
			for _, l := range q.Spend.Lines {
				qr.SpendLines = append(qr.SpendLines, SpendLineResponse{
					Kind: string(l.Kind), Key: l.Key, Quantity: l.Quantity, Unit: l.Unit, Amount: l.Amount,
				})
			}
		}
		resp.Qualification = qr
	}
	if r := s.Contact.Record; r != nil {
		resp.Contact = &ContactResponse{ID: r.ID, Kind: string(r.Kind), FirstName: r.FirstName, Created: r.Created}
	}
	if sl := s.Slot; sl != nil {
		resp.Slot = &SlotResponse{Start: sl.Start, End: sl.End, TimeZone: sl.TimeZone, Status: string(sl.Status), EventID: sl.EventID}
	}
	for _, a := range s.Outcome.Actions {
		resp.Actions = append(resp.Actions, ActionResponse{Name: string(a.Name), Status: string(a.Status), Detail: a.Detail, At: a.At})
	}
	for _, f := range s.Outcome.FailedEffects {
		resp.FailedEffects = append(resp.FailedEffects, string(f))
	}
	return resp
}
