package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/taskrelay/internal/callback"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type recorded struct {
	kind    callback.Kind
	payload callback.Payload
}

// recorder is a callback.Listener that keeps every event it sees.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func newRecorder() *recorder {
	return &recorder{}
}

func (r *recorder) OnCallback(kind callback.Kind, payload callback.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{kind: kind, payload: payload})
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind.String())
	}
	return out
}

func (r *recorder) last() callback.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1].payload
}

func (r *recorder) payloads(kind callback.Kind) []callback.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []callback.Payload
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

// newTestRunner creates a runner with the builtin task types registered.
// It is stopped when the test ends.
func newTestRunner(t *testing.T, config TaskRunnerConfig, opts ...Option) *TaskRunner {
	t.Helper()

	types := NewTypeRegistry()
	require.NoError(t, RegisterBuiltins(types))

	runner := NewTaskRunner(types, config, testLogger(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Stop(ctx)
	})
	return runner
}

func waitIdle(t *testing.T, runner *TaskRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Wait(ctx), "runner did not become idle")
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}
