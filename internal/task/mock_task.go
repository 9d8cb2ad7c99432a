package task

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskrelay/internal/callback"
)

// MockTask is a configurable implementation of the Task interface for testing
type MockTask struct {
	ExecuteFn func(ctx context.Context, w *Work) *Result
	calls     atomic.Int32
}

// NewMockTask creates a MockTask that succeeds with an empty payload
func NewMockTask() *MockTask {
	return &MockTask{
		ExecuteFn: func(context.Context, *Work) *Result { return Succeeded(nil) },
	}
}

// Execute runs ExecuteFn
func (t *MockTask) Execute(ctx context.Context, w *Work) *Result {
	t.calls.Add(1)
	return t.ExecuteFn(ctx, w)
}

// Calls returns how many times Execute ran
func (t *MockTask) Calls() int {
	return int(t.calls.Load())
}

// MockTypeInfo registers t under name. Every unit of the type shares t.
func MockTypeInfo(name string, t *MockTask) TypeInfo {
	return TypeInfo{Name: name, New: func() Task { return t }}
}

// BlockingTask returns a MockTask whose units signal started and then wait
// for release or for a cancel request. It returns Cancelled when asked to
// quit and Success with the given payload otherwise.
func BlockingTask(started chan<- string, release <-chan struct{}, payload callback.Payload) *MockTask {
	return &MockTask{
		ExecuteFn: func(ctx context.Context, w *Work) *Result {
			if started != nil {
				started <- w.Args().String("name", w.ID().String())
			}
			for {
				if w.IsQuitting() {
					return Cancelled(w.QuittingReason(), nil)
				}
				select {
				case <-release:
					return Succeeded(payload)
				case <-ctx.Done():
					return Cancelled(ReasonShutdown, nil)
				case <-time.After(time.Millisecond):
				}
			}
		},
	}
}
