package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/task"
)

// Dispatcher is the part of the task runner the API drives. *task.TaskRunner
// implements it.
type Dispatcher interface {
	CancelByID(id uuid.UUID, reason task.CancelReason) (task.CancelResult, error)
	CancelByGroup(groupID int64, reason task.CancelReason) (task.GroupCancelResult, error)
	CancelAll(reason task.CancelReason) (task.GroupCancelResult, error)
	Registry() *task.Registry
}

// SubmitWorkRequest is the body of POST /api/work.
type SubmitWorkRequest struct {
	// WorkID is optional; the server assigns one when it is absent.
	WorkID   *uuid.UUID     `json:"work_id,omitempty"`
	Verb     string         `json:"verb" validate:"required,oneof=queue execute"`
	TaskType string         `json:"task_type" validate:"required"`
	GroupID  int64          `json:"group_id" validate:"gte=0"`
	Args     map[string]any `json:"args"`
}

// SubmitWorkResponse acknowledges an accepted unit.
type SubmitWorkResponse struct {
	WorkID   uuid.UUID `json:"work_id"`
	Verb     string    `json:"verb"`
	TaskType string    `json:"task_type"`
	GroupID  int64     `json:"group_id"`
}

// WorkListResponse is the registry snapshot.
type WorkListResponse struct {
	Count int              `json:"count"`
	Work  []task.EntryInfo `json:"work"`
}

// CancelResponse reports a single-unit cancel.
type CancelResponse struct {
	WorkID uuid.UUID `json:"work_id"`
	Result string    `json:"result"`
}

// BulkCancelResponse reports a group or cancel-all request.
type BulkCancelResponse struct {
	GroupID *int64 `json:"group_id,omitempty"`
	task.GroupCancelResult
}

// WorkHandler serves the work endpoints.
type WorkHandler struct {
	emitter    events.EventEmitter
	dispatcher Dispatcher
	eventLog   *EventLog
	logger     *slog.Logger
}

// NewWorkHandler creates a WorkHandler. Submissions go through emitter;
// cancels and reads go to dispatcher.
func NewWorkHandler(emitter events.EventEmitter, dispatcher Dispatcher, eventLog *EventLog, log *slog.Logger) *WorkHandler {
	return &WorkHandler{
		emitter:    emitter,
		dispatcher: dispatcher,
		eventLog:   eventLog,
		logger:     log.With("component", "work_handler"),
	}
}

// SubmitWork handles POST /api/work.
func (h *WorkHandler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	var req SubmitWorkRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	event, err := events.NewWorkRequestEvent(req.Verb, req.TaskType, req.GroupID, req.Args)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid args", err)
		return
	}
	if req.WorkID != nil {
		if *req.WorkID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid work id")
			return
		}
		event.WorkID = *req.WorkID
	}
	// Ids stay reserved while their history is remembered.
	if !h.eventLog.Reserve(event.WorkID, event.TaskType) {
		shared.RespondWithError(w, r, http.StatusConflict, "Work id already registered")
		return
	}

	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		h.eventLog.Discard(event.WorkID)
		status := MapErrorToStatusCode(err)
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
		return
	}

	logger.FromContextOrDefault(r.Context()).Info("work accepted",
		"work_id", event.WorkID,
		"verb", req.Verb,
		"task_type", req.TaskType,
		"group_id", req.GroupID)

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitWorkResponse{
		WorkID:   event.WorkID,
		Verb:     req.Verb,
		TaskType: req.TaskType,
		GroupID:  req.GroupID,
	})
}

// ListWork handles GET /api/work.
func (h *WorkHandler) ListWork(w http.ResponseWriter, r *http.Request) {
	snapshot := h.dispatcher.Registry().Snapshot()
	if snapshot == nil {
		snapshot = []task.EntryInfo{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, WorkListResponse{Count: len(snapshot), Work: snapshot})
}

// GetWork handles GET /api/work/{id}.
func (h *WorkHandler) GetWork(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid work id", err)
		return
	}

	info, ok := h.dispatcher.Registry().Get(id)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Work not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, info)
}

// GetWorkEvents handles GET /api/work/{id}/events. The history outlives the
// registry entry, so finished units can still be inspected.
func (h *WorkHandler) GetWorkEvents(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid work id", err)
		return
	}

	history, ok := h.eventLog.Get(id)
	if !ok {
		shared.RespondWithError(w, r, http.StatusNotFound, "Work not found")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, history)
}

// CancelWork handles DELETE /api/work/{id}.
func (h *WorkHandler) CancelWork(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid work id", err)
		return
	}
	reason, err := getCancelReason(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid cancel reason", err)
		return
	}

	result, err := h.dispatcher.CancelByID(id, reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusOK
	if result == task.CouldNotCancel {
		status = http.StatusNotFound
	}
	shared.RespondWithJSON(w, r, status, CancelResponse{WorkID: id, Result: result.String()})
}

// CancelGroup handles DELETE /api/groups/{group}.
func (h *WorkHandler) CancelGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := getPathInt64(r, "group")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid group id", err)
		return
	}
	reason, err := getCancelReason(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid cancel reason", err)
		return
	}

	result, err := h.dispatcher.CancelByGroup(groupID, reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BulkCancelResponse{GroupID: &groupID, GroupCancelResult: normalize(result)})
}

// CancelAll handles POST /api/cancel-all.
func (h *WorkHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	reason, err := getCancelReason(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid cancel reason", err)
		return
	}

	result, err := h.dispatcher.CancelAll(reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	logger.FromContextOrDefault(r.Context()).Info("cancelled all work",
		"interrupted", len(result.Interrupted),
		"not_executed", len(result.NotExecuted))
	shared.RespondWithJSON(w, r, http.StatusOK, BulkCancelResponse{GroupCancelResult: normalize(result)})
}

// normalize renders empty sets as [] rather than null.
func normalize(res task.GroupCancelResult) task.GroupCancelResult {
	if res.Interrupted == nil {
		res.Interrupted = []uuid.UUID{}
	}
	if res.NotExecuted == nil {
		res.NotExecuted = []uuid.UUID{}
	}
	return res
}
