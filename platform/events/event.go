// Package events is the in-process publish/subscribe layer that carries call
// milestones (qualified, closed, task log deferred) to background consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on a Bus.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by concrete events. ID lets consumers correlate log
// lines for one publication across handlers.
type BaseEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// EventID returns the publication ID.
func (e BaseEvent) EventID() string { return e.ID }

// NewBaseEvent stamps a fresh ID and the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.NewString(), Timestamp: time.Now()}
}

// Handler consumes one event. Returned errors are logged by the bus, never
// sent back to the publisher of an async event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to handlers subscribed under Event.EventName().
type Bus interface {
	// Publish hands the event to subscribers without waiting for them.
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

func eventID(event Event) string {
	if e, ok := event.(interface{ EventID() string }); ok {
		return e.EventID()
	}
	return ""
}
