package task

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/callback"
)

// Protocol errors. These signal misuse by the caller and are returned
// immediately from the offending operation.
var (
	ErrInvalidWorkID    = errors.New("work id must not be empty")
	ErrInvalidGroupID   = errors.New("group id must be positive")
	ErrInvalidReason    = errors.New("cancel reason must not be the not-quitting sentinel")
	ErrDuplicateWorkID  = errors.New("work id already registered")
	ErrUnknownTaskType  = errors.New("unknown task type")
	ErrNilResult        = errors.New("task returned no result")
	ErrInvalidResult    = errors.New("task returned a non-terminal result")
	ErrRedeliveryCancel = errors.New("targeted cancellation is disabled while redelivery is enabled")
	ErrRunnerStarted    = errors.New("task runner already started")
	ErrRunnerStopped    = errors.New("task runner is stopped")
)

// Task is the executable logic of one task type. Execute runs off the
// submitting goroutine and must return a terminal Result. Long-running tasks
// should poll w.IsQuitting at safe points and return Cancelled once it
// reports true.
type Task interface {
	Execute(ctx context.Context, w *Work) *Result
}

// TaskFunc adapts a function to the Task interface. A non-nil error becomes
// a Failure carrying the error message; otherwise the payload is returned as
// a Success, or as Cancelled if the unit was asked to quit.
type TaskFunc func(ctx context.Context, w *Work) (callback.Payload, error)

// Execute implements Task.
func (f TaskFunc) Execute(ctx context.Context, w *Work) *Result {
	payload, err := f(ctx, w)
	if err != nil {
		return Failed(err)
	}
	if w.IsQuitting() {
		return Cancelled(w.QuittingReason(), payload)
	}
	return Succeeded(payload)
}

// Result is the terminal outcome of one unit of work.
type Result struct {
	Kind    callback.Kind
	Payload callback.Payload
}

// Succeeded returns a Success result.
func Succeeded(payload callback.Payload) *Result {
	return &Result{Kind: callback.Success, Payload: payload.Clone()}
}

// Failed returns a Failure result carrying err's message.
func Failed(err error) *Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Result{
		Kind:    callback.Failure,
		Payload: callback.Payload{callback.KeyCrashMessage: msg},
	}
}

// Cancelled returns a Cancelled result carrying the cancel reason.
func Cancelled(reason CancelReason, payload callback.Payload) *Result {
	p := payload.Clone()
	p[callback.KeyCancelReason] = int(reason)
	return &Result{Kind: callback.Cancelled, Payload: p}
}

// CancelReason is the code stored when a unit is asked to quit.
type CancelReason int32

// Cancel reasons
const (
	// NotQuitting is the sentinel read while no cancellation was requested.
	// It is never a valid reason to cancel with.
	NotQuitting CancelReason = 0

	// ReasonRequested is the default reason for caller-initiated cancels.
	ReasonRequested CancelReason = 1

	// ReasonShutdown is used when the process is going away.
	ReasonShutdown CancelReason = 2
)

func (r CancelReason) validate() error {
	if r == NotQuitting {
		return ErrInvalidReason
	}
	return nil
}

// Args is the immutable argument map handed to a unit before it starts.
type Args map[string]any

// Clone returns a shallow copy. A nil Args clones to an empty map.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	maps.Copy(out, a)
	return out
}

// Get returns the raw value for key.
func (a Args) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// String returns the string value for key, or def.
func (a Args) String(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// Int returns an integral value for key, or def. JSON numbers decode as
// float64 and are accepted when they hold a whole number.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}
	return def
}

// Descriptor identifies one unit of work.
type Descriptor struct {
	WorkID      uuid.UUID
	TaskType    string
	GroupID     int64
	Args        Args
	Redelivered bool
}

// Validate checks the identity fields of the descriptor.
func (d Descriptor) Validate() error {
	if d.WorkID == uuid.Nil {
		return ErrInvalidWorkID
	}
	if d.GroupID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGroupID, d.GroupID)
	}
	if d.TaskType == "" {
		return fmt.Errorf("%w: empty task type", ErrUnknownTaskType)
	}
	return nil
}
