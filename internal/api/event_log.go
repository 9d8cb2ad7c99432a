package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/callback"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/redact"
)

// DefaultEventLogCapacity bounds how many units an EventLog remembers.
const DefaultEventLogCapacity = 1000

// RecordedEvent is one callback event as exposed over the API. Payload
// strings are redacted.
type RecordedEvent struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// WorkEvents is the event history of one unit.
type WorkEvents struct {
	WorkID   uuid.UUID       `json:"work_id"`
	TaskType string          `json:"task_type"`
	Finished bool            `json:"finished"`
	Events   []RecordedEvent `json:"events"`
}

// EventLog keeps the callback history of recent units for the API. Once it
// holds more than its capacity, the oldest finished units are forgotten.
type EventLog struct {
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	records map[uuid.UUID]*WorkEvents
	order   []uuid.UUID
}

// NewEventLog creates an EventLog remembering about capacity units. A
// non-positive capacity uses DefaultEventLogCapacity.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{
		capacity: capacity,
		now:      time.Now,
		records:  make(map[uuid.UUID]*WorkEvents),
	}
}

// Handlers returns the callback handlers for a requested unit. It is meant
// as the handler factory of a task.RequestEventHandler.
func (l *EventLog) Handlers(event *events.WorkRequestEvent) []any {
	return []any{l.Listener(event.WorkID, event.TaskType)}
}

// Reserve claims workID for a new unit. It reports false when the id is
// already remembered, in which case the existing history is left alone.
func (l *EventLog) Reserve(workID uuid.UUID, taskType string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[workID]; ok {
		return false
	}
	l.insertLocked(workID, taskType)
	return true
}

// Listener returns a callback.Listener recording events for workID,
// creating the history if Reserve was not called first.
func (l *EventLog) Listener(workID uuid.UUID, taskType string) callback.Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[workID]; !ok {
		l.insertLocked(workID, taskType)
	}
	return &workListener{log: l, workID: workID}
}

func (l *EventLog) insertLocked(workID uuid.UUID, taskType string) {
	l.records[workID] = &WorkEvents{WorkID: workID, TaskType: taskType}
	l.order = append(l.order, workID)
	l.evictLocked()
}

type workListener struct {
	log    *EventLog
	workID uuid.UUID
}

func (w *workListener) OnCallback(kind callback.Kind, payload callback.Payload) {
	w.log.record(w.workID, kind, payload)
}

func (l *EventLog) record(workID uuid.UUID, kind callback.Kind, payload callback.Payload) {
	ev := RecordedEvent{
		Kind:    kind.String(),
		Payload: redact.Payload(payload),
		At:      l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[workID]
	if !ok {
		return
	}
	rec.Events = append(rec.Events, ev)
	if kind.Terminal() {
		rec.Finished = true
	}
}

// evictLocked drops the oldest finished units while over capacity. Units
// still running are never dropped.
func (l *EventLog) evictLocked() {
	if len(l.order) <= l.capacity {
		return
	}
	kept := l.order[:0]
	excess := len(l.order) - l.capacity
	for _, id := range l.order {
		if excess > 0 && l.records[id].Finished {
			delete(l.records, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
}

// Discard forgets workID. Only the caller that reserved workID may discard
// it, once its submission has failed.
func (l *EventLog) Discard(workID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[workID]; !ok {
		return
	}
	delete(l.records, workID)
	for i, id := range l.order {
		if id == workID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the history of workID.
func (l *EventLog) Get(workID uuid.UUID) (WorkEvents, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[workID]
	if !ok {
		return WorkEvents{}, false
	}
	out := *rec
	out.Events = append([]RecordedEvent(nil), rec.Events...)
	if out.Events == nil {
		out.Events = []RecordedEvent{}
	}
	return out, true
}

// Len returns the number of remembered units.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
