package task

import (
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/callback"
)

// Work is the handle a running task uses to read its arguments, observe
// cancellation and emit intermediate events.
type Work struct {
	desc     Descriptor
	quit     atomic.Int32
	receiver *callback.Receiver
	logger   *slog.Logger
}

func newWork(desc Descriptor, receiver *callback.Receiver, logger *slog.Logger) *Work {
	return &Work{
		desc:     desc,
		receiver: receiver,
		logger:   logger,
	}
}

// ID returns the work id.
func (w *Work) ID() uuid.UUID { return w.desc.WorkID }

// TaskType returns the task type being executed.
func (w *Work) TaskType() string { return w.desc.TaskType }

// GroupID returns the group id, 0 when ungrouped.
func (w *Work) GroupID() int64 { return w.desc.GroupID }

// Args returns the unit's arguments.
func (w *Work) Args() Args { return w.desc.Args }

// Redelivered reports whether the unit is being re-run after a restart.
func (w *Work) Redelivered() bool { return w.desc.Redelivered }

// Logger returns a logger scoped to this unit.
func (w *Work) Logger() *slog.Logger { return w.logger }

// IsQuitting reports whether a cancel was requested.
func (w *Work) IsQuitting() bool {
	return CancelReason(w.quit.Load()) != NotQuitting
}

// QuittingReason returns the stored cancel reason, or NotQuitting.
func (w *Work) QuittingReason() CancelReason {
	return CancelReason(w.quit.Load())
}

// requestQuit stores reason once. Later requests keep the first reason.
func (w *Work) requestQuit(reason CancelReason) {
	w.quit.CompareAndSwap(int32(NotQuitting), int32(reason))
}

// Progress emits a progress event with the given percentage.
func (w *Work) Progress(percent int, extra callback.Payload) {
	p := extra.Clone()
	p[callback.KeyProgress] = percent
	p[callback.KeyWorkID] = w.desc.WorkID.String()
	w.receiver.Send(callback.Progress, p)
}

// Callback emits a named callback event.
func (w *Work) Callback(name string, payload callback.Payload) {
	p := payload.Clone()
	p[callback.KeyCallbackName] = name
	p[callback.KeyWorkID] = w.desc.WorkID.String()
	w.receiver.Send(callback.Named, p)
}
