package task

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"
)

// WorkerPool runs one worker goroutine per queue shard. Each shard is a
// strict FIFO, and a group always maps to the same shard, so units of one
// group execute in submission order.
type WorkerPool struct {
	// queues holds one FIFO per worker
	queues []*TaskQueue

	// process executes one descriptor on the calling worker
	process func(desc Descriptor, workerID int)

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// Shards determines how many ordered queues and workers to start.
	// If zero or negative, defaults to 1
	Shards int

	// QueueSize is the buffer size of each shard
	QueueSize int
}

// DefaultWorkerPoolConfig returns a single ordered worker.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Shards:    1,
		QueueSize: 100,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	config WorkerPoolConfig,
	process func(desc Descriptor, workerID int),
	logger *slog.Logger,
) *WorkerPool {
	shards := config.Shards
	if shards <= 0 {
		shards = 1
		logger.Warn("invalid shard count specified, using default",
			"specified_count", config.Shards,
			"default_count", 1)
	}

	queues := make([]*TaskQueue, shards)
	for i := range queues {
		queues[i] = NewTaskQueue(config.QueueSize, logger.With("shard", i))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queues:  queues,
		process: process,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// ShardFor returns the shard index serving groupID.
func (p *WorkerPool) ShardFor(groupID int64) int {
	if len(p.queues) == 1 {
		return 0
	}
	return int(xxh3.HashString(strconv.FormatInt(groupID, 10)) % uint64(len(p.queues)))
}

// Submit enqueues desc on its group's shard without blocking.
func (p *WorkerPool) Submit(desc Descriptor) error {
	return p.queues[p.ShardFor(desc.GroupID)].Enqueue(desc)
}

// Pending returns the number of descriptors waiting across all shards.
func (p *WorkerPool) Pending() int {
	n := 0
	for _, q := range p.queues {
		n += q.Len()
	}
	return n
}

// Start launches one worker per shard.
func (p *WorkerPool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.worker(i, q)
	}
	p.logger.Info("worker pool started", "workers", len(p.queues))
}

// Stop closes the shards, stops the workers and waits for the unit each
// worker is executing to return, or for ctx to end.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.cancel()
	for _, q := range p.queues {
		q.Close()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int, q *TaskQueue) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case desc, ok := <-q.GetChannel():
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			if p.ctx.Err() != nil {
				// Stopping: leave the descriptor to the shutdown path.
				return
			}
			p.process(desc, id)
		}
	}
}
