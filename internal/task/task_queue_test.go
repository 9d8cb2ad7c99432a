package task

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDescriptor(taskType string, groupID int64) Descriptor {
	return Descriptor{WorkID: uuid.New(), TaskType: taskType, GroupID: groupID}
}

func TestTaskQueue_Enqueue(t *testing.T) {
	logger := testLogger()

	t.Run("successful enqueue", func(t *testing.T) {
		queue := NewTaskQueue(10, logger)
		desc := newDescriptor("echo", 0)

		require.NoError(t, queue.Enqueue(desc))
		assert.Equal(t, 1, queue.Len())

		got := <-queue.GetChannel()
		assert.Equal(t, desc.WorkID, got.WorkID)
	})

	t.Run("queue full", func(t *testing.T) {
		queue := NewTaskQueue(1, logger)

		require.NoError(t, queue.Enqueue(newDescriptor("echo", 0)))
		err := queue.Enqueue(newDescriptor("echo", 0))
		assert.ErrorIs(t, err, ErrQueueFull)
		assert.Contains(t, err.Error(), "capacity 1")
	})

	t.Run("closed queue", func(t *testing.T) {
		queue := NewTaskQueue(5, logger)
		queue.Close()

		err := queue.Enqueue(newDescriptor("echo", 0))
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("non-positive size is clamped", func(t *testing.T) {
		queue := NewTaskQueue(0, logger)
		require.NoError(t, queue.Enqueue(newDescriptor("echo", 0)))
		assert.ErrorIs(t, queue.Enqueue(newDescriptor("echo", 0)), ErrQueueFull)
	})
}

func TestTaskQueue_FIFO(t *testing.T) {
	queue := NewTaskQueue(10, testLogger())

	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		desc := newDescriptor("echo", 1)
		want = append(want, desc.WorkID)
		require.NoError(t, queue.Enqueue(desc))
	}
	queue.Close()

	var got []uuid.UUID
	for desc := range queue.GetChannel() {
		got = append(got, desc.WorkID)
	}
	assert.Equal(t, want, got)
}

func TestTaskQueue_Close(t *testing.T) {
	queue := NewTaskQueue(5, testLogger())
	require.NoError(t, queue.Enqueue(newDescriptor("echo", 0)))

	queue.Close()
	// Closing twice is safe.
	queue.Close()

	_, ok := <-queue.GetChannel()
	assert.True(t, ok, "queued items remain receivable after close")
	_, ok = <-queue.GetChannel()
	assert.False(t, ok)
}

func TestTaskQueue_ConcurrentEnqueueAndClose(t *testing.T) {
	queue := NewTaskQueue(1000, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := queue.Enqueue(newDescriptor("echo", 0))
				if err != nil {
					assert.ErrorIs(t, err, ErrQueueClosed)
				}
			}
		}()
	}
	queue.Close()
	wg.Wait()
}
