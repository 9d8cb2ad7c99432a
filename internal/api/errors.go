package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/taskrelay/internal/task"
)

// MapErrorToStatusCode maps dispatcher errors to HTTP status codes without
// leaking their text.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrUnknownTaskType),
		errors.Is(err, task.ErrInvalidGroupID),
		errors.Is(err, task.ErrInvalidWorkID),
		errors.Is(err, task.ErrInvalidReason):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrDuplicateWorkID),
		errors.Is(err, task.ErrRedeliveryCancel):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed),
		errors.Is(err, task.ErrRunnerStopped):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrUnknownTaskType):
		return "Unknown task type"
	case errors.Is(err, task.ErrInvalidGroupID):
		return "Invalid group id"
	case errors.Is(err, task.ErrInvalidWorkID):
		return "Invalid work id"
	case errors.Is(err, task.ErrInvalidReason):
		return "Invalid cancel reason"
	case errors.Is(err, task.ErrDuplicateWorkID):
		return "Work id already registered"
	case errors.Is(err, task.ErrRedeliveryCancel):
		return "Targeted cancellation is disabled while redelivery is enabled"
	case errors.Is(err, task.ErrQueueFull):
		return "Work queue is full"
	case errors.Is(err, task.ErrQueueClosed), errors.Is(err, task.ErrRunnerStopped):
		return "Dispatcher is shutting down"
	default:
		return "An unexpected error occurred"
	}
}
