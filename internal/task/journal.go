package task

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Journal persists queued units so they can be redelivered after the
// process is torn down before running them.
type Journal interface {
	// Save records a queued unit.
	Save(ctx context.Context, desc Descriptor) error

	// Remove forgets a unit once it terminated or was dropped.
	Remove(ctx context.Context, workID uuid.UUID) error

	// Pending returns every recorded unit in submission order.
	Pending(ctx context.Context) ([]Descriptor, error)
}

// MemoryJournal is an in-process Journal. It survives runner restarts within
// the same process, which is enough for tests and single-binary setups.
type MemoryJournal struct {
	mutex   sync.RWMutex
	entries map[uuid.UUID]journalEntry
	seq     uint64

	// SaveFn and RemoveFn override the default behaviour when set.
	SaveFn   func(ctx context.Context, desc Descriptor) error
	RemoveFn func(ctx context.Context, workID uuid.UUID) error
}

type journalEntry struct {
	desc Descriptor
	seq  uint64
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[uuid.UUID]journalEntry)}
}

// Save records desc.
func (j *MemoryJournal) Save(ctx context.Context, desc Descriptor) error {
	if j.SaveFn != nil {
		return j.SaveFn(ctx, desc)
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.seq++
	desc.Args = desc.Args.Clone()
	j.entries[desc.WorkID] = journalEntry{desc: desc, seq: j.seq}
	return nil
}

// Remove forgets workID. Unknown ids are a no-op.
func (j *MemoryJournal) Remove(ctx context.Context, workID uuid.UUID) error {
	if j.RemoveFn != nil {
		return j.RemoveFn(ctx, workID)
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()
	delete(j.entries, workID)
	return nil
}

// Pending returns the recorded units oldest first.
func (j *MemoryJournal) Pending(ctx context.Context) ([]Descriptor, error) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	entries := make([]journalEntry, 0, len(j.entries))
	for _, e := range j.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].seq < entries[b].seq })

	descs := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		descs = append(descs, e.desc)
	}
	return descs, nil
}

// Len returns the number of recorded units.
func (j *MemoryJournal) Len() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return len(j.entries)
}
