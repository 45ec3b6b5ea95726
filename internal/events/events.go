package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	// ErrMissingType is returned when an event is built without a task type.
	ErrMissingType = errors.New("event type is required")

	// ErrNoSubscribers is returned when nothing is subscribed to an event's type.
	ErrNoSubscribers = errors.New("no subscribers for event type")
)

// TaskRequestEvent asks a subscriber to create a background task of Type.
// Payload is the task's JSON-encoded input.
type TaskRequestEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventOption customizes a new event.
type EventOption func(*TaskRequestEvent)

// WithEventID fixes the event ID. Subscribers key the task they create by it,
// so a caller that picks the ID can track the resulting task.
func WithEventID(id uuid.UUID) EventOption {
	return func(e *TaskRequestEvent) {
		e.ID = id
	}
}

// WithCreatedAt overrides the creation timestamp.
func WithCreatedAt(at time.Time) EventOption {
	return func(e *TaskRequestEvent) {
		e.CreatedAt = at
	}
}

// NewTaskRequestEvent encodes payload into an event of the given task type.
func NewTaskRequestEvent(taskType string, payload any, opts ...EventOption) (*TaskRequestEvent, error) {
	if taskType == "" {
		return nil, ErrMissingType
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", taskType, err)
	}

	e := &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// UnmarshalPayload decodes the payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has an empty payload", e.ID)
	}
	return json.Unmarshal(e.Payload, v)
}

// EventHandler consumes events for the types it subscribed to.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *TaskRequestEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter publishes events. The HTTP layer depends on this rather than
// on the task package.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
