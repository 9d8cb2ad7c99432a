package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/task"
)

// getPathUUID parses a UUID path parameter.
func getPathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s has invalid format: %w", name, err)
	}
	return id, nil
}

// getPathInt64 parses an integer path parameter.
func getPathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid format: %w", name, err)
	}
	return n, nil
}

// getCancelReason reads the optional reason query parameter. It defaults to
// task.ReasonRequested.
func getCancelReason(r *http.Request) (task.CancelReason, error) {
	raw := r.URL.Query().Get("reason")
	if raw == "" {
		return task.ReasonRequested, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("reason has invalid format: %w", err)
	}
	return task.CancelReason(n), nil
}
