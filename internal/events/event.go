// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"sales_agent_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Call Session Events
// =============================================================================

// CallQualified is published once a session has a tier.
type CallQualified struct {
	BaseEvent
	SessionID string `json:"sessionId"`
	Phone     string `json:"phone"`
	Tier      string `json:"tier"`
	SpendUSD  string `json:"spendUsd,omitempty"`
}

func (e CallQualified) EventName() string { return "calls.qualified" }

// CallTaskLogDeferred is published when the in-call CRM task write failed
// transiently and must be retried out of band.
type CallTaskLogDeferred struct {
	BaseEvent
	SessionID       string    `json:"sessionId"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	WhoID           string    `json:"whoId,omitempty"`
	CreateAttempted bool      `json:"createAttempted"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	ActivityDate    time.Time `json:"activityDate"`
	Reason          string    `json:"reason"`
}

func (e CallTaskLogDeferred) EventName() string { return "calls.task_log.deferred" }

// CallClosed is published when a session reaches its terminal state.
type CallClosed struct {
	BaseEvent
	SessionID     string   `json:"sessionId"`
	Phone         string   `json:"phone"`
	Tier          string   `json:"tier,omitempty"`
	HungUp        bool     `json:"hungUp"`
	TaskID        string   `json:"taskId,omitempty"`
	FailedEffects []string `json:"failedEffects,omitempty"`
}

func (e CallClosed) EventName() string { return "calls.closed" }
