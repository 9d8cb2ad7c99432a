package task

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/callback"
)

// CancelResult is the outcome of cancelling a single unit.
type CancelResult int

// Cancel results
const (
	// CouldNotCancel means no unit with the id is registered.
	CouldNotCancel CancelResult = iota
	// Interrupted means the unit was running and has been asked to quit.
	Interrupted
	// NotExecuted means the unit was still queued and has been dropped.
	NotExecuted
)

// String returns the snake_case name of the result.
func (c CancelResult) String() string {
	switch c {
	case Interrupted:
		return "interrupted"
	case NotExecuted:
		return "not_executed"
	default:
		return "could_not_cancel"
	}
}

// GroupCancelResult lists the units affected by a bulk cancel. The two sets
// are disjoint and ordered by submission.
type GroupCancelResult struct {
	Interrupted []uuid.UUID `json:"interrupted"`
	NotExecuted []uuid.UUID `json:"not_executed"`
}

// EntryInfo is a read-only view of a registry entry.
type EntryInfo struct {
	WorkID         uuid.UUID    `json:"work_id"`
	TaskType       string       `json:"task_type"`
	GroupID        int64        `json:"group_id"`
	Running        bool         `json:"running"`
	StartSeq       uint64       `json:"start_seq,omitempty"`
	Redelivered    bool         `json:"redelivered"`
	QuittingReason CancelReason `json:"quitting_reason,omitempty"`
}

// Handle refers to a running unit that callbacks were attached to.
type Handle struct {
	WorkID   uuid.UUID
	TaskType string
	GroupID  int64

	router   *callback.Router
	handlers []any
}

// Detach removes the attached handlers again.
func (h Handle) Detach() {
	h.router.Remove(h.handlers...)
}

type entry struct {
	desc     Descriptor
	work     *Work
	order    uint64
	startSeq uint64
	receiver *callback.Receiver

	// journaled is set while the unit is held in the redelivery journal.
	journaled bool
}

func (e *entry) info() EntryInfo {
	info := EntryInfo{
		WorkID:      e.desc.WorkID,
		TaskType:    e.desc.TaskType,
		GroupID:     e.desc.GroupID,
		Running:     e.work != nil,
		StartSeq:    e.startSeq,
		Redelivered: e.desc.Redelivered,
	}
	if e.work != nil {
		info.QuittingReason = e.work.QuittingReason()
	}
	return info
}

// Registry is the table of live units. An entry exists from enqueue until
// the unit terminates or is dropped while queued; it is removed exactly once.
type Registry struct {
	logger *slog.Logger
	purged func(desc Descriptor)

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	order   uint64
	starts  uint64
	idle    chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	idle := make(chan struct{})
	close(idle)
	return &Registry{
		logger:  logger.With("component", "work_registry"),
		entries: make(map[uuid.UUID]*entry),
		idle:    idle,
	}
}

// onPurge registers a hook called for every queued unit dropped by a cancel.
func (r *Registry) onPurge(fn func(desc Descriptor)) {
	r.purged = fn
}

func (r *Registry) insert(desc Descriptor, receiver *callback.Receiver) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.WorkID]; exists {
		return ErrDuplicateWorkID
	}
	if len(r.entries) == 0 {
		r.idle = make(chan struct{})
	}
	r.order++
	r.entries[desc.WorkID] = &entry{desc: desc, order: r.order, receiver: receiver}
	return nil
}

// start marks a queued entry as running. It reports false if the entry was
// dropped while queued.
func (r *Registry) start(id uuid.UUID, w *Work) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	r.starts++
	e.work = w
	e.startSeq = r.starts
	return e, true
}

// markJournaled records that id is backed by a journal entry.
func (r *Registry) markJournaled(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.journaled = true
	}
}

// drop removes id if it is still queued and tells its handlers it was not
// executed. It reports whether the entry was removed.
func (r *Registry) drop(id uuid.UUID, reason CancelReason) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.work != nil {
		r.mu.Unlock()
		return false
	}
	r.deleteLocked(id)
	r.mu.Unlock()

	r.sendNotExecuted(e, reason, false)
	return true
}

// finish removes the entry of a terminated unit.
func (r *Registry) finish(id uuid.UUID) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	r.deleteLocked(id)
	return e, true
}

func (r *Registry) deleteLocked(id uuid.UUID) {
	delete(r.entries, id)
	if len(r.entries) == 0 {
		close(r.idle)
	}
}

// CancelByID cancels one unit. A running unit keeps its entry until it
// returns; a queued unit is dropped and its handlers receive a Cancelled
// event marked not executed.
func (r *Registry) CancelByID(id uuid.UUID, reason CancelReason) (CancelResult, error) {
	if id == uuid.Nil {
		return CouldNotCancel, ErrInvalidWorkID
	}
	if err := reason.validate(); err != nil {
		return CouldNotCancel, err
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return CouldNotCancel, nil
	}
	if e.work != nil {
		e.work.requestQuit(reason)
		r.mu.Unlock()
		r.logger.Debug("interrupting running work", "work_id", id, "reason", reason)
		return Interrupted, nil
	}
	r.deleteLocked(id)
	r.mu.Unlock()

	r.release([]*entry{e}, reason)
	return NotExecuted, nil
}

// CancelByGroup drops the queued units of a group and asks its running units
// to quit. Group 0 means ungrouped and is rejected.
func (r *Registry) CancelByGroup(groupID int64, reason CancelReason) (GroupCancelResult, error) {
	if groupID <= 0 {
		return GroupCancelResult{}, ErrInvalidGroupID
	}
	if err := reason.validate(); err != nil {
		return GroupCancelResult{}, err
	}
	return r.cancelMatching(reason, func(e *entry) bool { return e.desc.GroupID == groupID }), nil
}

// CancelAll drops every queued unit and asks every running unit to quit.
func (r *Registry) CancelAll(reason CancelReason) (GroupCancelResult, error) {
	if err := reason.validate(); err != nil {
		return GroupCancelResult{}, err
	}
	return r.cancelMatching(reason, func(*entry) bool { return true }), nil
}

func (r *Registry) cancelMatching(reason CancelReason, match func(*entry) bool) GroupCancelResult {
	r.mu.Lock()
	var interrupted, dropped []*entry
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		if e.work != nil {
			e.work.requestQuit(reason)
			interrupted = append(interrupted, e)
			continue
		}
		dropped = append(dropped, e)
	}
	for _, e := range dropped {
		r.deleteLocked(e.desc.WorkID)
	}
	r.mu.Unlock()

	sortByOrder(interrupted)
	sortByOrder(dropped)
	r.release(dropped, reason)

	result := GroupCancelResult{
		Interrupted: make([]uuid.UUID, 0, len(interrupted)),
		NotExecuted: make([]uuid.UUID, 0, len(dropped)),
	}
	for _, e := range interrupted {
		result.Interrupted = append(result.Interrupted, e.desc.WorkID)
	}
	for _, e := range dropped {
		result.NotExecuted = append(result.NotExecuted, e.desc.WorkID)
	}
	return result
}

// dropQueued removes every queued entry without asking running units to
// quit. It is used when the runner stops. Journalled units keep their
// journal entry, and their Cancelled event carries redeliverable=true.
func (r *Registry) dropQueued(reason CancelReason) []uuid.UUID {
	r.mu.Lock()
	var dropped []*entry
	for _, e := range r.entries {
		if e.work == nil {
			dropped = append(dropped, e)
		}
	}
	for _, e := range dropped {
		r.deleteLocked(e.desc.WorkID)
	}
	r.mu.Unlock()

	sortByOrder(dropped)
	ids := make([]uuid.UUID, 0, len(dropped))
	for _, e := range dropped {
		ids = append(ids, e.desc.WorkID)
		r.sendNotExecuted(e, reason, e.journaled)
	}
	return ids
}

// release notifies the handlers of dropped units and runs the purge hook.
func (r *Registry) release(dropped []*entry, reason CancelReason) {
	for _, e := range dropped {
		r.logger.Debug("dropped queued work", "work_id", e.desc.WorkID, "reason", reason)
		r.sendNotExecuted(e, reason, false)
		if r.purged != nil {
			r.purged(e.desc)
		}
	}
}

func (r *Registry) sendNotExecuted(e *entry, reason CancelReason, redeliverable bool) {
	if e.receiver == nil {
		return
	}
	payload := callback.Payload{
		callback.KeyWorkID:       e.desc.WorkID.String(),
		callback.KeyGroupID:      e.desc.GroupID,
		callback.KeyCancelReason: int(reason),
		callback.KeyNotExecuted:  true,
	}
	if redeliverable {
		payload[callback.KeyRedeliverable] = true
	}
	e.receiver.Send(callback.Cancelled, payload)
}

// AttachCallbacks appends handlers to every running unit of taskType and
// returns a handle per unit. An empty result means nothing of that type is
// running and the caller should submit fresh work instead.
func (r *Registry) AttachCallbacks(taskType string, handlers ...any) ([]Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*entry
	for _, e := range r.entries {
		if e.work != nil && e.desc.TaskType == taskType {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].startSeq < matched[j].startSeq })

	handles := make([]Handle, 0, len(matched))
	for _, e := range matched {
		router := e.receiver.Router()
		if err := router.Append(handlers...); err != nil {
			return nil, err
		}
		handles = append(handles, Handle{
			WorkID:   e.desc.WorkID,
			TaskType: e.desc.TaskType,
			GroupID:  e.desc.GroupID,
			router:   router,
			handlers: handlers,
		})
	}
	return handles, nil
}

// Get returns the entry for id.
func (r *Registry) Get(id uuid.UUID) (EntryInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// Snapshot returns every entry in submission order.
func (r *Registry) Snapshot() []EntryInfo {
	r.mu.Lock()
	all := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, e)
	}
	infos := make([]EntryInfo, 0, len(all))
	sortByOrder(all)
	for _, e := range all {
		infos = append(infos, e.info())
	}
	r.mu.Unlock()
	return infos
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Idle returns a channel that is closed while the registry is empty.
func (r *Registry) Idle() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idle
}

// Reset drops every entry without notifying handlers. It exists for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) > 0 {
		close(r.idle)
	}
	r.entries = make(map[uuid.UUID]*entry)
}

func sortByOrder(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
}
