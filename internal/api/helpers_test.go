package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/task"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// apiFixture wires a real runner behind the router the way serve does.
type apiFixture struct {
	runner   *task.TaskRunner
	eventLog *EventLog
	router   http.Handler
	started  chan string
}

type fixtureSettings struct {
	runner task.TaskRunnerConfig
	router RouterConfig

	// ahead run before the runner's request handler.
	ahead []events.EventHandler
}

type fixtureOption func(*fixtureSettings)

func withRedelivery() fixtureOption {
	return func(s *fixtureSettings) { s.runner.Redeliver = true }
}

func withRouter(fn func(*RouterConfig)) fixtureOption {
	return func(s *fixtureSettings) { fn(&s.router) }
}

func withHandlerAhead(h events.EventHandler) fixtureOption {
	return func(s *fixtureSettings) { s.ahead = append(s.ahead, h) }
}

// newAPIFixture builds a fixture whose runner is not started, so queued work
// stays queued until the test calls start.
func newAPIFixture(t *testing.T, opts ...fixtureOption) *apiFixture {
	t.Helper()
	log := testLogger()

	types := task.NewTypeRegistry()
	require.NoError(t, task.RegisterBuiltins(types))
	started := make(chan string, 8)
	types.MustRegister(task.MockTypeInfo("block", task.BlockingTask(started, make(chan struct{}), nil)))

	settings := fixtureSettings{runner: task.DefaultTaskRunnerConfig()}
	for _, opt := range opts {
		opt(&settings)
	}

	runner := task.NewTaskRunner(types, settings.runner, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Stop(ctx)
	})

	eventLog := NewEventLog(0)
	emitter := events.NewInMemoryEventEmitter(log)
	for _, h := range settings.ahead {
		emitter.RegisterHandler(h)
	}
	emitter.RegisterHandler(task.NewRequestEventHandler(runner, eventLog.Handlers, log))

	rc := settings.router
	rc.Logger = log
	rc.Work = NewWorkHandler(emitter, runner, eventLog, log)

	return &apiFixture{
		runner:   runner,
		eventLog: eventLog,
		router:   NewRouter(rc),
		started:  started,
	}
}

func (f *apiFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.runner.Start(context.Background()))
}

func (f *apiFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Wait(ctx))
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(method, path, reader)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

// submit posts a unit and returns its id.
func (f *apiFixture) submit(t *testing.T, verb, taskType string, groupID int64) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/work", SubmitWorkRequest{Verb: verb, TaskType: taskType, GroupID: groupID}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp SubmitWorkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.WorkID.String()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func kinds(history WorkEvents) []string {
	out := make([]string, 0, len(history.Events))
	for _, e := range history.Events {
		out = append(out, e.Kind)
	}
	return out
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for unit to start")
		return ""
	}
}
