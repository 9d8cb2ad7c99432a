package callback

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Listener receives every event routed to it, bypassing dispatch tables.
type Listener interface {
	OnCallback(kind Kind, payload Payload)
}

// ErrorHook observes per-handler delivery failures.
type ErrorHook func(kind Kind, err error)

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithErrorHook registers a hook called for every failed handler delivery.
func WithErrorHook(hook ErrorHook) RouterOption {
	return func(r *Router) {
		r.onError = hook
	}
}

// Router owns the callback handlers of one unit of work. Routing a terminal
// kind delivers it and then releases every handler; later routes are no-ops.
type Router struct {
	taskType string
	resolver *Resolver
	logger   *slog.Logger
	onError  ErrorHook

	mu       sync.Mutex
	handlers []any
	done     bool
}

// NewRouter creates a router for a unit of the given task type.
func NewRouter(taskType string, resolver *Resolver, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		taskType: taskType,
		resolver: resolver,
		logger:   logger.With("component", "callback_router", "task_type", taskType),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append adds handlers. Each handler's table is resolved immediately so
// declaration mistakes surface here rather than at delivery time. Handlers
// are identity-unique; appending a present handler again is a no-op.
func (r *Router) Append(handlers ...any) error {
	for _, h := range handlers {
		if err := r.check(h); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrRouterDone
	}
	for _, h := range handlers {
		if !r.holds(h) {
			r.handlers = append(r.handlers, h)
		}
	}
	return nil
}

func (r *Router) check(h any) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidHandler)
	}
	t := reflect.TypeOf(h)
	if !t.Comparable() {
		return &ResolutionError{HandlerType: t, Reason: "handlers must be comparable"}
	}
	if _, ok := h.(Listener); ok {
		return nil
	}
	_, err := r.resolver.Resolve(t, r.taskType)
	return err
}

func (r *Router) holds(h any) bool {
	for _, existing := range r.handlers {
		if existing == h {
			return true
		}
	}
	return false
}

// Remove drops the given handlers if present.
func (r *Router) Remove(handlers ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.handlers[:0]
	for _, existing := range r.handlers {
		drop := false
		for _, h := range handlers {
			if existing == h {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, existing)
		}
	}
	clear(r.handlers[len(kept):])
	r.handlers = kept
}

// Clear drops every handler. The router still accepts new handlers until a
// terminal event is routed.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}

// Len returns the number of held handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Done reports whether a terminal event has been routed.
func (r *Router) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Route delivers an event to every held handler. A failure in one handler is
// logged and does not stop delivery to the others; all failures are joined
// into the returned error. Routing a terminal kind releases the handlers.
func (r *Router) Route(kind Kind, payload Payload) error {
	if payload == nil {
		payload = Payload{}
	}

	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		r.logger.Debug("ignoring event after terminal delivery", "kind", kind.String())
		return nil
	}
	handlers := make([]any, len(r.handlers))
	copy(handlers, r.handlers)
	if kind.Terminal() {
		r.handlers = nil
		r.done = true
	}
	r.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := r.deliver(h, kind, payload); err != nil {
			r.logger.Error("callback delivery failed",
				"kind", kind.String(),
				"handler_type", fmt.Sprintf("%T", h),
				"error", err)
			if r.onError != nil {
				r.onError(kind, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) deliver(h any, kind Kind, payload Payload) (err error) {
	if l, ok := h.(Listener); ok {
		defer func() {
			if rec := recover(); rec != nil {
				err = &InvocationError{Method: fmt.Sprintf("%T.OnCallback", h), Value: rec}
			}
		}()
		l.OnCallback(kind, payload)
		return nil
	}

	table, err := r.resolver.Resolve(reflect.TypeOf(h), r.taskType)
	if err != nil {
		return err
	}
	return table.Apply(h, kind, payload)
}
