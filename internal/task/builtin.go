package task

import (
	"context"
	"time"

	"github.com/phrazzld/taskrelay/internal/callback"
)

// Builtin task types
const (
	SleepTaskType = "sleep"
	EchoTaskType  = "echo"
)

// RegisterBuiltins registers the sleep and echo task types.
func RegisterBuiltins(types *TypeRegistry) error {
	if err := types.Register(TypeInfo{
		Name: SleepTaskType,
		New:  func() Task { return SleepTask{} },
	}); err != nil {
		return err
	}
	return types.Register(TypeInfo{
		Name: EchoTaskType,
		New:  func() Task { return EchoTask{} },
	})
}

// SleepTask waits for duration_ms milliseconds split into steps, emitting a
// progress event after each step. It checks for cancellation between steps.
type SleepTask struct{}

// Execute implements Task.
func (SleepTask) Execute(ctx context.Context, w *Work) *Result {
	total := time.Duration(w.Args().Int("duration_ms", 100)) * time.Millisecond
	steps := w.Args().Int("steps", 10)
	if steps <= 0 {
		steps = 1
	}
	step := total / time.Duration(steps)

	timer := time.NewTimer(step)
	defer timer.Stop()

	for i := 1; i <= steps; i++ {
		if w.IsQuitting() {
			return Cancelled(w.QuittingReason(), callback.Payload{"steps_done": i - 1})
		}
		select {
		case <-ctx.Done():
			return Cancelled(ReasonShutdown, callback.Payload{"steps_done": i - 1})
		case <-timer.C:
		}
		w.Progress(i*100/steps, nil)
		timer.Reset(step)
	}

	if w.IsQuitting() {
		return Cancelled(w.QuittingReason(), callback.Payload{"steps_done": steps})
	}
	return Succeeded(callback.Payload{"steps_done": steps})
}

// EchoTask returns its arguments as the success payload after emitting them
// as the named callback "echo".
type EchoTask struct{}

// Execute implements Task.
func (EchoTask) Execute(_ context.Context, w *Work) *Result {
	payload := callback.Payload(w.Args().Clone())
	w.Callback(EchoTaskType, payload)
	return Succeeded(payload)
}
