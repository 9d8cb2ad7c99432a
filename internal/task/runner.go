package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/callback"
	"github.com/phrazzld/taskrelay/internal/redact"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Verb selects how a request is scheduled.
type Verb string

// Submission verbs
const (
	// VerbQueue runs the unit on the ordered workers, FIFO per group.
	VerbQueue Verb = "queue"
	// VerbExecute runs the unit on its own goroutine.
	VerbExecute Verb = "execute"
)

// ParseVerb validates a verb received over the wire.
func ParseVerb(s string) (Verb, error) {
	switch Verb(s) {
	case VerbQueue, VerbExecute:
		return Verb(s), nil
	}
	return "", fmt.Errorf("unknown verb %q", s)
}

// Request describes a unit of work to submit.
type Request struct {
	// WorkID identifies the unit. A zero id is replaced with a fresh one.
	WorkID   uuid.UUID
	TaskType string
	// GroupID tags the unit for bulk cancellation; 0 means ungrouped.
	GroupID int64
	Args    Args
	// Handlers receive the unit's callbacks.
	Handlers []any
	// Looper delivers the callbacks. Nil uses the runner's delivery looper.
	Looper *callback.Looper
}

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// QueueShards is the number of ordered queue workers. Units of one group
	// always share a shard. Defaults to 1, a single FIFO.
	QueueShards int

	// QueueSize is the buffer size of each ordered queue
	QueueSize int

	// MaxParallel caps concurrently executing units submitted with the
	// execute verb. Zero means unlimited.
	MaxParallel int

	// Redeliver journals queued units and replays them on Start. Targeted
	// cancellation is refused in this mode.
	Redeliver bool
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		QueueShards: 1,
		QueueSize:   100,
	}
}

// Option customises a TaskRunner.
type Option func(*TaskRunner)

// WithJournal sets the journal used in redeliver mode.
func WithJournal(j Journal) Option {
	return func(r *TaskRunner) { r.journal = j }
}

// WithObserver sets the instrumentation sink.
func WithObserver(o Observer) Option {
	return func(r *TaskRunner) { r.observer = o }
}

// WithResolver shares a callback resolver between runners.
func WithResolver(res *callback.Resolver) Option {
	return func(r *TaskRunner) { r.resolver = res }
}

// WithProtocolErrorHandler replaces the default handler, which panics, for
// protocol violations detected on worker goroutines.
func WithProtocolErrorHandler(fn func(error)) Option {
	return func(r *TaskRunner) { r.protocolErr = fn }
}

// TaskRunner schedules units of work, tracks them in a Registry and routes
// their callbacks.
type TaskRunner struct {
	types       *TypeRegistry
	registry    *Registry
	resolver    *callback.Resolver
	journal     Journal
	observer    Observer
	delivery    *callback.Looper
	pool        *WorkerPool
	async       errgroup.Group
	slots       *semaphore.Weighted
	live        *tracker
	ctx         context.Context
	cancelFunc  context.CancelFunc
	config      TaskRunnerConfig
	logger      *slog.Logger
	protocolErr func(error)
	started     atomic.Bool
	stopped     atomic.Bool
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(types *TypeRegistry, config TaskRunnerConfig, logger *slog.Logger, opts ...Option) *TaskRunner {
	ctx, cancel := context.WithCancel(context.Background())

	r := &TaskRunner{
		types:      types,
		registry:   NewRegistry(logger),
		observer:   nopObserver{},
		live:       newTracker(),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "task_runner"),
		protocolErr: func(err error) {
			// ALLOW-PANIC: a task violating the result protocol is a programming error
			panic(err)
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.resolver == nil {
		r.resolver = callback.NewResolver(types, logger)
	}
	if config.Redeliver && r.journal == nil {
		r.journal = NewMemoryJournal()
	}
	if config.MaxParallel > 0 {
		r.slots = semaphore.NewWeighted(int64(config.MaxParallel))
	}

	r.delivery = callback.NewLooper(logger).Start()
	r.pool = NewWorkerPool(WorkerPoolConfig{
		Shards:    config.QueueShards,
		QueueSize: config.QueueSize,
	}, r.run, logger)
	r.registry.onPurge(r.purged)

	return r
}

// Types returns the task type registry.
func (r *TaskRunner) Types() *TypeRegistry { return r.types }

// Registry returns the live work registry.
func (r *TaskRunner) Registry() *Registry { return r.registry }

// Resolver returns the callback resolver.
func (r *TaskRunner) Resolver() *callback.Resolver { return r.resolver }

// Queue submits a unit to the ordered workers. It never blocks on execution.
func (r *TaskRunner) Queue(ctx context.Context, req Request) (uuid.UUID, error) {
	return r.Submit(ctx, VerbQueue, req)
}

// Execute submits a unit that runs on its own goroutine. It never blocks on
// execution.
func (r *TaskRunner) Execute(ctx context.Context, req Request) (uuid.UUID, error) {
	return r.Submit(ctx, VerbExecute, req)
}

// Submit registers a unit and schedules it according to verb.
func (r *TaskRunner) Submit(ctx context.Context, verb Verb, req Request) (uuid.UUID, error) {
	if r.stopped.Load() {
		return uuid.Nil, ErrRunnerStopped
	}
	if _, err := ParseVerb(string(verb)); err != nil {
		return uuid.Nil, err
	}
	if _, err := r.types.Runnable(req.TaskType); err != nil {
		return uuid.Nil, err
	}

	desc := Descriptor{
		WorkID:   req.WorkID,
		TaskType: req.TaskType,
		GroupID:  req.GroupID,
		Args:     req.Args.Clone(),
	}
	if desc.WorkID == uuid.Nil {
		desc.WorkID = uuid.New()
	}
	if err := desc.Validate(); err != nil {
		return uuid.Nil, err
	}

	receiver, err := r.newReceiver(desc.TaskType, req.Looper, req.Handlers)
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.registry.insert(desc, receiver); err != nil {
		return uuid.Nil, err
	}
	r.live.add()

	switch verb {
	case VerbQueue:
		if r.config.Redeliver {
			if err := r.journal.Save(ctx, desc); err != nil {
				r.abandon(desc, false)
				return uuid.Nil, fmt.Errorf("failed to journal work: %w", err)
			}
			r.registry.markJournaled(desc.WorkID)
		}
		if err := r.pool.Submit(desc); err != nil {
			r.abandon(desc, r.config.Redeliver)
			return uuid.Nil, fmt.Errorf("failed to enqueue work: %w", err)
		}
	case VerbExecute:
		r.async.Go(func() error {
			r.runAsync(desc)
			return nil
		})
	}

	r.observer.WorkSubmitted(string(verb), desc.TaskType)
	r.observer.RegistrySize(r.registry.Len())
	r.logger.Debug("work submitted",
		"work_id", desc.WorkID,
		"task_type", desc.TaskType,
		"group_id", desc.GroupID,
		"verb", verb)
	return desc.WorkID, nil
}

func (r *TaskRunner) newReceiver(taskType string, looper *callback.Looper, handlers []any) (*callback.Receiver, error) {
	router := callback.NewRouter(taskType, r.resolver, r.logger,
		callback.WithErrorHook(func(kind callback.Kind, _ error) {
			r.observer.CallbackFailed(kind.String())
		}))
	if err := router.Append(handlers...); err != nil {
		return nil, err
	}
	if looper == nil {
		looper = r.delivery
	}
	return callback.NewReceiver(looper, router), nil
}

// abandon undoes a submission that could not be scheduled.
func (r *TaskRunner) abandon(desc Descriptor, journaled bool) {
	if _, ok := r.registry.finish(desc.WorkID); !ok {
		return
	}
	if journaled {
		r.forget(desc.WorkID)
	}
	r.live.done()
}

// purged runs for every queued unit dropped by a cancel operation.
func (r *TaskRunner) purged(desc Descriptor) {
	if r.config.Redeliver {
		r.forget(desc.WorkID)
	}
	r.live.done()
}

func (r *TaskRunner) forget(id uuid.UUID) {
	if err := r.journal.Remove(context.Background(), id); err != nil {
		r.logger.Error("failed to remove work from journal", "work_id", id, "error", err)
	}
}

func (r *TaskRunner) runAsync(desc Descriptor) {
	if r.slots != nil {
		if err := r.slots.Acquire(r.ctx, 1); err != nil {
			r.skip(desc)
			return
		}
		defer r.slots.Release(1)
	}
	if r.ctx.Err() != nil {
		r.skip(desc)
		return
	}
	r.run(desc, -1)
}

// skip drops an execute-verb unit that never got to run because the runner
// is stopping. Stop may already have dropped it.
func (r *TaskRunner) skip(desc Descriptor) {
	if r.registry.drop(desc.WorkID, ReasonShutdown) {
		r.live.done()
	}
}

// run executes one unit: start it in the registry, signal Start, execute,
// remove the entry and deliver the terminal result.
func (r *TaskRunner) run(desc Descriptor, workerID int) {
	logger := r.logger.With(
		"work_id", desc.WorkID,
		"task_type", desc.TaskType,
		"group_id", desc.GroupID,
		"worker_id", workerID,
	)

	work := newWork(desc, nil, logger)
	e, ok := r.registry.start(desc.WorkID, work)
	if !ok {
		logger.Debug("skipping work cancelled before start")
		return
	}
	work.receiver = e.receiver

	info, err := r.types.Runnable(desc.TaskType)
	if err != nil {
		logger.Error("cannot run work", "error", err)
		r.complete(e, Failed(err))
		return
	}

	r.observer.WorkStarted(desc.TaskType)
	logger.Info("processing work", "redelivered", desc.Redelivered)
	e.receiver.Send(callback.Start, callback.Payload{
		callback.KeyWorkID:  desc.WorkID.String(),
		callback.KeyGroupID: desc.GroupID,
	})

	started := time.Now()
	result := r.execute(info.New(), work)

	if err := checkResult(result); err != nil {
		if _, ok := r.registry.finish(desc.WorkID); ok {
			if r.config.Redeliver {
				r.forget(desc.WorkID)
			}
			e.receiver.Release()
			r.live.done()
		}
		r.protocolErr(fmt.Errorf("task %q, work %s: %w", desc.TaskType, desc.WorkID, err))
		return
	}

	if result.Kind == callback.Cancelled {
		if _, ok := result.Payload[callback.KeyCancelReason]; !ok {
			result.Payload[callback.KeyCancelReason] = int(work.QuittingReason())
		}
	}
	if result.Kind == callback.Failure {
		msg, _ := result.Payload[callback.KeyCrashMessage].(string)
		logger.Error("work failed", "error", redact.String(msg))
	} else {
		logger.Info("work finished", "kind", result.Kind.String())
	}

	r.complete(e, result)
	r.observer.WorkFinished(desc.TaskType, result.Kind.String(), time.Since(started))
}

// complete removes the entry and routes the terminal result.
func (r *TaskRunner) complete(e *entry, result *Result) {
	desc := e.desc
	if _, ok := r.registry.finish(desc.WorkID); !ok {
		return
	}
	if r.config.Redeliver {
		r.forget(desc.WorkID)
	}

	payload := result.Payload.Clone()
	payload[callback.KeyWorkID] = desc.WorkID.String()
	payload[callback.KeyGroupID] = desc.GroupID
	e.receiver.Send(result.Kind, payload)
	r.live.done()

	n := r.registry.Len()
	r.observer.RegistrySize(n)
	if n == 0 {
		r.logger.Debug("no live work, dispatcher idle")
	}
}

// execute runs the task, converting a panic into a Failure.
func (r *TaskRunner) execute(t Task, w *Work) (result *Result) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("task panicked",
				"panic", redact.String(fmt.Sprint(p)),
				"stack", redact.String(string(debug.Stack())))
			result = &Result{
				Kind:    callback.Failure,
				Payload: callback.Payload{callback.KeyCrashMessage: fmt.Sprint(p)},
			}
		}
	}()
	return t.Execute(r.ctx, w)
}

func checkResult(result *Result) error {
	if result == nil {
		return ErrNilResult
	}
	if !result.Kind.Terminal() {
		return fmt.Errorf("%w: %s", ErrInvalidResult, result.Kind)
	}
	if result.Payload == nil {
		result.Payload = callback.Payload{}
	}
	return nil
}

// Start replays journalled work in redeliver mode and starts the ordered
// workers.
func (r *TaskRunner) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerStarted
	}
	if r.config.Redeliver {
		if err := r.Recover(ctx); err != nil {
			return fmt.Errorf("failed to recover work: %w", err)
		}
	}
	r.pool.Start()
	return nil
}

// Recover re-enqueues journalled units, marking them redelivered. Units
// whose type is no longer registered are dropped from the journal.
func (r *TaskRunner) Recover(ctx context.Context) error {
	pending, err := r.journal.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending work: %w", err)
	}

	r.logger.Info("recovering unfinished work", "pending_count", len(pending))

	for _, desc := range pending {
		desc.Redelivered = true
		logger := r.logger.With("work_id", desc.WorkID, "task_type", desc.TaskType)

		if _, err := r.types.Runnable(desc.TaskType); err != nil {
			logger.Error("dropping unrecoverable work", "error", err)
			r.forget(desc.WorkID)
			continue
		}

		receiver, err := r.newReceiver(desc.TaskType, nil, nil)
		if err != nil {
			return err
		}
		if err := r.registry.insert(desc, receiver); err != nil {
			if errors.Is(err, ErrDuplicateWorkID) {
				continue
			}
			logger.Error("dropping invalid journal entry", "error", err)
			r.forget(desc.WorkID)
			continue
		}
		r.live.add()
		r.registry.markJournaled(desc.WorkID)

		if err := r.pool.Submit(desc); err != nil {
			// Keep the journal entry so the next start retries it.
			logger.Error("failed to requeue work", "error", err)
			r.abandon(desc, false)
			continue
		}
		r.observer.WorkSubmitted("redeliver", desc.TaskType)
	}
	return nil
}

// CancelByID cancels one unit. It is refused in redeliver mode.
func (r *TaskRunner) CancelByID(id uuid.UUID, reason CancelReason) (CancelResult, error) {
	if r.config.Redeliver {
		return CouldNotCancel, ErrRedeliveryCancel
	}
	result, err := r.registry.CancelByID(id, reason)
	if err != nil {
		return result, err
	}
	r.observer.WorkCancelled("id", result, 1)
	return result, nil
}

// CancelByGroup cancels every unit of a group. It is refused in redeliver
// mode.
func (r *TaskRunner) CancelByGroup(groupID int64, reason CancelReason) (GroupCancelResult, error) {
	if r.config.Redeliver {
		return GroupCancelResult{}, ErrRedeliveryCancel
	}
	result, err := r.registry.CancelByGroup(groupID, reason)
	if err != nil {
		return result, err
	}
	r.observeBulk("group", result)
	return result, nil
}

// CancelAll asks every running unit to quit and drops every queued one,
// including journalled entries.
func (r *TaskRunner) CancelAll(reason CancelReason) (GroupCancelResult, error) {
	result, err := r.registry.CancelAll(reason)
	if err != nil {
		return result, err
	}
	r.observeBulk("all", result)
	return result, nil
}

func (r *TaskRunner) observeBulk(op string, result GroupCancelResult) {
	r.observer.WorkCancelled(op, Interrupted, len(result.Interrupted))
	r.observer.WorkCancelled(op, NotExecuted, len(result.NotExecuted))
	r.observer.RegistrySize(r.registry.Len())
}

// AttachCallbacks appends handlers to the running units of taskType.
func (r *TaskRunner) AttachCallbacks(taskType string, handlers ...any) ([]Handle, error) {
	return r.registry.AttachCallbacks(taskType, handlers...)
}

// Wait blocks until no unit is live and every terminal event posted to the
// runner's delivery looper has been delivered, or ctx ends.
func (r *TaskRunner) Wait(ctx context.Context) error {
	select {
	case <-r.live.wait():
	case <-ctx.Done():
		return ctx.Err()
	}

	synced := make(chan struct{})
	go func() {
		r.delivery.Sync()
		close(synced)
	}()
	select {
	case <-synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully shuts down the task runner. Running units see their
// context cancelled and are waited for; queued units are dropped and their
// handlers receive a Cancelled event with not_executed=true. Journalled
// units are kept for redelivery, and their event also carries
// redeliverable=true. Stop returns once the delivery looper has drained.
func (r *TaskRunner) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	r.cancelFunc()

	var errs []error
	if err := r.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop workers: %w", err))
	}

	asyncDone := make(chan struct{})
	go func() {
		_ = r.async.Wait()
		close(asyncDone)
	}()
	select {
	case <-asyncDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("failed to wait for async work: %w", ctx.Err()))
	}

	dropped := r.registry.dropQueued(ReasonShutdown)
	for range dropped {
		r.live.done()
	}
	if len(dropped) > 0 {
		r.logger.Info("dropped queued work on shutdown", "count", len(dropped))
	}

	r.delivery.Close()
	select {
	case <-r.delivery.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("failed to drain callbacks: %w", ctx.Err()))
	}
	r.logger.Info("task runner stopped")
	return errors.Join(errs...)
}

// tracker counts live units from submission until their last event was
// handed to a looper.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newTracker() *tracker {
	idle := make(chan struct{})
	close(idle)
	return &tracker{idle: idle}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		return
	}
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *tracker) wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}
