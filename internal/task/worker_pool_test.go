package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processed struct {
	mu     sync.Mutex
	descs  []Descriptor
	worker map[int64]int
}

func newProcessed() *processed {
	return &processed{worker: make(map[int64]int)}
}

func (p *processed) process(desc Descriptor, workerID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.descs = append(p.descs, desc)
	p.worker[desc.GroupID] = workerID
}

func (p *processed) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.descs)
}

func TestNewWorkerPool(t *testing.T) {
	logger := testLogger()
	noop := func(Descriptor, int) {}

	pool := NewWorkerPool(WorkerPoolConfig{Shards: 4, QueueSize: 10}, noop, logger)
	assert.Len(t, pool.queues, 4)
	assert.NotNil(t, pool.ctx)
	assert.NotNil(t, pool.cancel)

	// Invalid shard counts default to 1
	pool = NewWorkerPool(WorkerPoolConfig{Shards: 0, QueueSize: 10}, noop, logger)
	assert.Len(t, pool.queues, 1)

	pool = NewWorkerPool(WorkerPoolConfig{Shards: -5, QueueSize: 10}, noop, logger)
	assert.Len(t, pool.queues, 1)

	pool = NewWorkerPool(DefaultWorkerPoolConfig(), noop, logger)
	assert.Len(t, pool.queues, 1)
}

func TestWorkerPool_ShardFor(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{Shards: 8, QueueSize: 1}, func(Descriptor, int) {}, testLogger())

	for group := int64(0); group < 100; group++ {
		shard := pool.ShardFor(group)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 8)
		assert.Equal(t, shard, pool.ShardFor(group), "shard must be stable for group %d", group)
	}

	single := NewWorkerPool(DefaultWorkerPoolConfig(), func(Descriptor, int) {}, testLogger())
	assert.Equal(t, 0, single.ShardFor(12345))
}

func TestWorkerPool_ProcessesSubmissions(t *testing.T) {
	got := newProcessed()
	pool := NewWorkerPool(WorkerPoolConfig{Shards: 3, QueueSize: 50}, got.process, testLogger())

	for i := 0; i < 30; i++ {
		require.NoError(t, pool.Submit(newDescriptor("echo", int64(i%5))))
	}
	assert.Equal(t, 30, pool.Pending())

	pool.Start()
	require.Eventually(t, func() bool { return got.count() == 30 }, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, pool.Pending())

	got.mu.Lock()
	for group, worker := range got.worker {
		assert.Equal(t, pool.ShardFor(group), worker, "group %d ran on the wrong worker", group)
	}
	got.mu.Unlock()

	require.NoError(t, pool.Stop(context.Background()))
}

func TestWorkerPool_Stop(t *testing.T) {
	t.Run("waits for the running unit", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var finished bool
		pool := NewWorkerPool(DefaultWorkerPoolConfig(), func(Descriptor, int) {
			close(started)
			<-release
			finished = true
		}, testLogger())
		pool.Start()
		require.NoError(t, pool.Submit(newDescriptor("echo", 0)))
		<-started

		go func() {
			time.Sleep(20 * time.Millisecond)
			close(release)
		}()
		require.NoError(t, pool.Stop(context.Background()))
		assert.True(t, finished)
	})

	t.Run("times out", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		defer close(release)
		pool := NewWorkerPool(DefaultWorkerPoolConfig(), func(Descriptor, int) {
			close(started)
			<-release
		}, testLogger())
		pool.Start()
		require.NoError(t, pool.Submit(newDescriptor("echo", 0)))
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
	})

	t.Run("leaves queued descriptors unprocessed", func(t *testing.T) {
		got := newProcessed()
		pool := NewWorkerPool(DefaultWorkerPoolConfig(), got.process, testLogger())
		require.NoError(t, pool.Submit(newDescriptor("echo", 0)))

		require.NoError(t, pool.Stop(context.Background()))
		pool.Start()
		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, got.count())
		assert.ErrorIs(t, pool.Submit(newDescriptor("echo", 0)), ErrQueueClosed)
	})
}
