package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for everything the core emits: timeline entries,
// evidence decisions, vote tallies and reward deltas.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Subject is the complaint the event belongs to, when there is one.
	Subject string `json:"subject,omitempty"`
	// Version is the complaint version after the change that produced the event.
	Version uint64 `json:"version,omitempty"`

	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"` // system, citizen, officer, worker

	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID, role string) Event {
	e.ActorID = actorID
	e.ActorRole = role
	return e
}

// WithSubject ties the event to a complaint and its version.
func (e Event) WithSubject(complaintID string, version uint64) Event {
	e.Subject = complaintID
	e.Version = version
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// At overrides the event timestamp.
func (e Event) At(ts time.Time) Event {
	e.Timestamp = ts.UTC()
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// DecodeData copies the payload into v. Locally delivered events carry the
// original value, events read back from the store carry decoded JSON.
func (e Event) DecodeData(v any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
