package callback

import (
	"context"
	"log/slog"
	"sync"
)

// Looper is a message loop owned by a single goroutine. Posted functions run
// one at a time on that goroutine in the order they were posted. Posting
// never blocks.
type Looper struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewLooper creates a looper. Nothing runs until Run or Start is called.
func NewLooper(logger *slog.Logger) *Looper {
	return &Looper{
		logger: logger.With("component", "looper"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine and returns the looper.
func (l *Looper) Start() *Looper {
	go l.Run(context.Background())
	return l
}

// Run drives the loop on the calling goroutine until the looper is closed
// and drained, or ctx is done.
func (l *Looper) Run(ctx context.Context) {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, fn := range batch {
			l.invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			l.once.Do(func() { close(l.done) })
			return
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Looper) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("looper message panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It returns false if the looper is closed.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync blocks until every function posted before it has run. It must not be
// called from the loop goroutine, and it blocks forever if nothing runs the loop.
func (l *Looper) Sync() {
	ch := make(chan struct{})
	if !l.Post(func() { close(ch) }) {
		<-l.done
		return
	}
	<-ch
}

// Close stops accepting posts. The loop exits once the queue is drained.
func (l *Looper) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has drained after Close.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Receiver hands events for one unit of work to its router on a looper, so
// delivery happens on the looper's goroutine in emission order.
type Receiver struct {
	looper *Looper
	router *Router
}

// NewReceiver binds a router to a looper.
func NewReceiver(looper *Looper, router *Router) *Receiver {
	return &Receiver{looper: looper, router: router}
}

// Router returns the router the receiver delivers to.
func (r *Receiver) Router() *Router {
	return r.router
}

// Send posts the event for delivery. If the looper is closed the event is
// routed on the calling goroutine so terminal events still release handlers.
func (r *Receiver) Send(kind Kind, payload Payload) {
	if r.looper.Post(func() { _ = r.router.Route(kind, payload) }) {
		return
	}
	_ = r.router.Route(kind, payload)
}

// Release clears the router once every event sent before it has been
// delivered. It drops the handlers without a terminal event.
func (r *Receiver) Release() {
	if r.looper.Post(r.router.Clear) {
		return
	}
	r.router.Clear()
}
