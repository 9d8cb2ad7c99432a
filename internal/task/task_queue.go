package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is a bounded FIFO of descriptors drained by a single worker.
type TaskQueue struct {
	items  chan Descriptor
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		items:  make(chan Descriptor, size),
		logger: logger,
	}
}

// Enqueue adds a descriptor without blocking.
// Returns an error if the queue is full or closed
func (q *TaskQueue) Enqueue(desc Descriptor) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- desc:
		q.logger.Debug("work enqueued",
			"work_id", desc.WorkID,
			"task_type", desc.TaskType,
			"group_id", desc.GroupID,
			"queue_len", len(q.items),
			"queue_cap", cap(q.items))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.items))
	}
}

// Close closes the task queue, preventing further submission. Items already
// queued can still be received.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.items)
		q.logger.Debug("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming descriptors
func (q *TaskQueue) GetChannel() <-chan Descriptor {
	return q.items
}

// Len returns the number of queued descriptors.
func (q *TaskQueue) Len() int {
	return len(q.items)
}
