package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNilEvent is returned when EmitEvent is called without an event.
var ErrNilEvent = errors.New("event is nil")

// InMemoryEventEmitter dispatches events synchronously, in registration
// order, to handlers living in the same process.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter without handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler appends handler to the dispatch list.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()

	e.logger.Debug("registered event handler", "handler_count", n)
}

// HandlerCount returns the number of registered handlers.
func (e *InMemoryEventEmitter) HandlerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

// EmitEvent hands event to every registered handler. A failing handler does
// not stop the others; their errors are joined. An event nobody handles is
// logged and dropped.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *WorkRequestEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("event %s not emitted: %w", event.ID, err)
	}

	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	log := e.logger.With(
		"event_id", event.ID,
		"work_id", event.WorkID,
		"task_type", event.TaskType)

	if len(handlers) == 0 {
		log.Warn("no handlers registered for event")
		return nil
	}
	log.Debug("emitting event", "verb", event.Verb, "handler_count", len(handlers))

	var errs []error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			log.Error("handler failed to process event", "error", err, "handler_index", i)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
