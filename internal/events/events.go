package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkRequestEvent represents a request to submit a unit of work.
// It carries everything the runner needs without depending on the task
// package.
type WorkRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// WorkID is the id the unit will be registered under. It is assigned
	// when the event is created so the producer can report it immediately.
	WorkID uuid.UUID `json:"work_id"`

	// Verb is "queue" or "execute"
	Verb string `json:"verb"`

	// TaskType names the registered task type to run
	TaskType string `json:"task_type"`

	// GroupID tags the unit for bulk cancellation; 0 means ungrouped
	GroupID int64 `json:"group_id"`

	// Args contains the unit's arguments serialized as a JSON object
	Args json.RawMessage `json:"args"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalArgs decodes the event arguments into the provided structure.
// An event without arguments leaves v untouched.
func (e *WorkRequestEvent) UnmarshalArgs(v any) error {
	if len(e.Args) == 0 {
		return nil
	}
	return json.Unmarshal(e.Args, v)
}

// NewWorkRequestEvent creates a new WorkRequestEvent with a fresh event id
// and work id.
func NewWorkRequestEvent(verb, taskType string, groupID int64, args any) (*WorkRequestEvent, error) {
	var raw json.RawMessage
	if args != nil {
		argBytes, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = argBytes
	}

	return &WorkRequestEvent{
		ID:        uuid.New(),
		WorkID:    uuid.New(),
		Verb:      verb,
		TaskType:  taskType,
		GroupID:   groupID,
		Args:      raw,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *WorkRequestEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *WorkRequestEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *WorkRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows producers to publish requests without knowing the runner.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *WorkRequestEvent) error
}
