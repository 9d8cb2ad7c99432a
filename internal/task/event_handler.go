package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/events"
)

// Submitter accepts units of work. *TaskRunner implements it.
type Submitter interface {
	Submit(ctx context.Context, verb Verb, req Request) (uuid.UUID, error)
}

// HandlerFactory supplies the callback handlers for a requested unit.
type HandlerFactory func(event *events.WorkRequestEvent) []any

// RequestEventHandler implements the events.EventHandler interface by
// turning work request events into submissions.
type RequestEventHandler struct {
	runner   Submitter
	handlers HandlerFactory
	logger   *slog.Logger
}

// NewRequestEventHandler creates a new event handler submitting to runner.
// handlers may be nil, in which case units start without handlers.
func NewRequestEventHandler(runner Submitter, handlers HandlerFactory, logger *slog.Logger) *RequestEventHandler {
	return &RequestEventHandler{
		runner:   runner,
		handlers: handlers,
		logger:   logger.With("component", "request_event_handler"),
	}
}

// HandleEvent decodes the event and submits the unit it describes.
func (h *RequestEventHandler) HandleEvent(ctx context.Context, event *events.WorkRequestEvent) error {
	logger := h.logger.With(
		"event_id", event.ID,
		"work_id", event.WorkID,
		"task_type", event.TaskType,
	)

	verb, err := ParseVerb(event.Verb)
	if err != nil {
		logger.Error("invalid verb", "error", err)
		return err
	}

	var args Args
	if err := event.UnmarshalArgs(&args); err != nil {
		logger.Error("failed to unmarshal args", "error", err)
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}

	req := Request{
		WorkID:   event.WorkID,
		TaskType: event.TaskType,
		GroupID:  event.GroupID,
		Args:     args,
	}
	if h.handlers != nil {
		req.Handlers = h.handlers(event)
	}

	logger.Debug("submitting work to runner", "verb", verb)
	id, err := h.runner.Submit(ctx, verb, req)
	if err != nil {
		logger.Error("failed to submit work", "error", err)
		return fmt.Errorf("failed to submit work: %w", err)
	}

	logger.Info("work submitted successfully", "work_id", id, "verb", verb)
	return nil
}

// Ensure RequestEventHandler implements events.EventHandler
var _ events.EventHandler = (*RequestEventHandler)(nil)
