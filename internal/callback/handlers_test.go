package callback

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testHierarchy is a map-backed Hierarchy. A type traverses if it or any
// ancestor is marked.
type testHierarchy struct {
	parents  map[string]string
	traverse map[string]bool
}

func (h testHierarchy) Assignable(taskType, target string) bool {
	for t := taskType; t != ""; t = h.parents[t] {
		if t == target {
			return true
		}
	}
	return false
}

func (h testHierarchy) Traverse(taskType string) bool {
	for t := taskType; t != ""; t = h.parents[t] {
		if h.traverse[t] {
			return true
		}
	}
	return false
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type downloadHandler struct {
	_ On `kind:"start" tasks:"download" call:"Started"`
	_ On `kind:"success" tasks:"download" call:"Done(path, bytes)"`
	_ On `kind:"failure" tasks:"download" call:"Failed(crash_message)"`
	_ On `kind:"progress" tasks:"download" call:"Progressed(progress)"`
	_ On `kind:"named" tasks:"download" name:"kick" call:"Kick(power)"`
	_ On `kind:"named" tasks:"download" name:"punch" call:"Punch(power)"`
	recorder
}

func (h *downloadHandler) Started()                      { h.record("started") }
func (h *downloadHandler) Done(path string, bytes int64) { h.record("done %s %d", path, bytes) }
func (h *downloadHandler) Failed(msg string)             { h.record("failed %s", msg) }
func (h *downloadHandler) Progressed(pct int)            { h.record("progress %d", pct) }
func (h *downloadHandler) Kick(power int)                { h.record("kick %d", power) }
func (h *downloadHandler) Punch(power int)               { h.record("punch %d", power) }

type zeroHandler struct {
	_   On `kind:"success" tasks:"zero" call:"Values(i, l, f, d, b, o, s, p)"`
	got []any
}

func (h *zeroHandler) Values(i int, l int64, f float32, d float64, b bool, o any, s string, p *int) {
	h.got = []any{i, l, f, d, b, o, s, p}
}

type widenHandler struct {
	_ On `kind:"success" tasks:"widen" call:"Long(v)"`
	_ On `kind:"success" tasks:"widen" call:"Double(v)"`
	_ On `kind:"failure" tasks:"widen" call:"Int(v)"`

	longs   []int64
	doubles []float64
	ints    []int
}

func (h *widenHandler) Long(v int64)     { h.longs = append(h.longs, v) }
func (h *widenHandler) Double(v float64) { h.doubles = append(h.doubles, v) }
func (h *widenHandler) Int(v int)        { h.ints = append(h.ints, v) }

type panicHandler struct {
	_     On `kind:"success" tasks:"panic" call:"Explode"`
	_     On `kind:"success" tasks:"panic" call:"After"`
	after bool
}

func (h *panicHandler) Explode() { panic("boom") }
func (h *panicHandler) After()   { h.after = true }

type baseHandler struct {
	_ On `kind:"success" tasks:"parent" call:"BaseDone(value)"`
	recorder
}

func (b *baseHandler) BaseDone(v string) { b.record("base %s", v) }

type childHandler struct {
	_ On `kind:"success" tasks:"child" call:"ChildDone(value)"`
	baseHandler
}

func (c *childHandler) ChildDone(v string) { c.record("child %s", v) }

type generatedHandler struct {
	_            On `kind:"success" tasks:"gen" call:"Done(value)"`
	viaGenerated bool
	values       []string
}

func (h *generatedHandler) Done(v string) { h.values = append(h.values, v) }

type unexportedHandler struct {
	_ On `kind:"success" tasks:"t" call:"done"`
}

func (h *unexportedHandler) done() {}

type missingMethodHandler struct {
	_ On `kind:"success" tasks:"t" call:"Nope"`
}

type returningHandler struct {
	_ On `kind:"success" tasks:"t" call:"Done"`
}

func (h *returningHandler) Done() error { return nil }

type unkeyedHandler struct {
	_ On `kind:"success" tasks:"t" call:"Done(a)"`
}

func (h *unkeyedHandler) Done(a, b int) {}

type unnamedNamedHandler struct {
	_ On `kind:"named" tasks:"t" call:"Done"`
}

func (h *unnamedNamedHandler) Done() {}

type namedSuccessHandler struct {
	_ On `kind:"success" tasks:"t" name:"x" call:"Done"`
}

func (h *namedSuccessHandler) Done() {}

type badKindHandler struct {
	_ On `kind:"finished" tasks:"t" call:"Done"`
}

func (h *badKindHandler) Done() {}

type tasklessHandler struct {
	_ On `kind:"success" call:"Done"`
}

func (h *tasklessHandler) Done() {}

// otherTaskHandler declares an invalid method for a task type it is never
// resolved against.
type otherTaskHandler struct {
	_ On `kind:"success" tasks:"other" call:"Missing"`
	_ On `kind:"success" tasks:"t" call:"Done"`
	recorder
}

func (h *otherTaskHandler) Done() { h.record("done") }

type eventLog struct {
	mu     sync.Mutex
	events []Kind
}

func (l *eventLog) OnCallback(kind Kind, _ Payload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, kind)
}

func (l *eventLog) Events() []Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Kind, len(l.events))
	copy(out, l.events)
	return out
}

type mapHandler map[string]int
