package domain

import (
	"time"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/qualification"
)

// Action is a named side effect or milestone in the action log.
type Action string

const (
	ActionClassify             Action = "classify"
	ActionCRMConsent           Action = "crm_consent"
	ActionResolveContact       Action = "resolve_contact"
	ActionProposeSlot          Action = "propose_slot"
	ActionRequestEmail         Action = "request_email"
	ActionCaptureEmail         Action = "capture_email"
	ActionCreateCalendarInvite Action = "create_calendar_invite"
	ActionSendOnboardingEmail  Action = "send_onboarding_email"
	ActionSendAUPEmail         Action = "send_aup_email"
	ActionSendFollowUpEmail    Action = "send_follow_up_email"
	ActionLogCRMTask           Action = "log_crm_task"
	ActionSendClosingSMS       Action = "send_closing_sms"
)

// ActionStatus is the result of one log entry.
type ActionStatus string

const (
	StatusDone    ActionStatus = "done"
	StatusSkipped ActionStatus = "skipped"
	StatusFailed  ActionStatus = "failed"
)

// ActionEntry is one line of the ordered action log.
type ActionEntry struct {
	Name   Action       `json:"name"`
	Status ActionStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
	At     time.Time    `json:"at"`
}

// CallOutcome is what the call produced. It becomes the CRM task body.
type CallOutcome struct {
	Tier          qualification.Tier        `json:"tier,omitempty"`
	Meeting       *availability.MeetingSlot `json:"meeting,omitempty"`
	Actions       []ActionEntry             `json:"actions"`
	StartedAt     time.Time                 `json:"started_at"`
	EndedAt       *time.Time                `json:"ended_at,omitempty"`
	FailedEffects []Action                  `json:"failed_effects,omitempty"`
	LogAttempted  bool                      `json:"log_attempted"`
	LogDeferred   bool                      `json:"log_deferred"`
	TaskID        string                    `json:"task_id,omitempty"`
	HungUp        bool                      `json:"hung_up"`
}

// Record appends an entry and flags failures.
func (o *CallOutcome) Record(name Action, status ActionStatus, detail string, at time.Time) {
	o.Actions = append(o.Actions, ActionEntry{Name: name, Status: status, Detail: detail, At: at})
	if status == StatusFailed {
		o.FailedEffects = append(o.FailedEffects, name)
	}
}

// Last returns the latest entry for name.
func (o *CallOutcome) Last(name Action) (ActionEntry, bool) {
	for i := len(o.Actions) - 1; i >= 0; i-- {
		if o.Actions[i].Name == name {
			return o.Actions[i], true
		}
	}
	return ActionEntry{}, false
}

// Attempted reports whether name has any entry.
func (o *CallOutcome) Attempted(name Action) bool {
	_, ok := o.Last(name)
	return ok
}

// Succeeded reports whether the latest entry for name is done.
func (o *CallOutcome) Succeeded(name Action) bool {
	e, ok := o.Last(name)
	return ok && e.Status == StatusDone
}

// Count returns how many entries name has.
func (o *CallOutcome) Count(name Action) int {
	n := 0
	for _, e := range o.Actions {
		if e.Name == name {
			n++
		}
	}
	return n
}
