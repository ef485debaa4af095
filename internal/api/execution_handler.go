package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// ListExecutions возвращает активные executions этого orchestrator'а.
// GET /api/v1/executions?state=...
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	state := domain.ExecutionState(r.URL.Query().Get("state"))

	snapshots := h.orch.Snapshots()
	result := make([]ExecutionSummary, 0, len(snapshots))
	for _, s := range snapshots {
		if state != "" && s.Execution.State != state {
			continue
		}
		result = append(result, SummaryFromSnapshot(s))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	List(w, result, len(result))
}

// StartExecution запускает execution для задачи.
// POST /api/v1/executions
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	var req StartExecutionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Task.Title) == "" {
		BadRequest(w, "task.title is required")
		return
	}

	id, err := h.orch.StartExecution(r.Context(), req.Task, req.TeamID)
	if id == uuid.Nil {
		HandleError(w, h.logger, err)
		return
	}

	resp := StartExecutionResponse{ExecutionID: id}
	if err != nil {
		// Execution создан, но остановлен хуком в blocked
		resp.Warning = err.Error()
	}
	if exec, getErr := h.orch.GetExecution(r.Context(), id); getErr == nil {
		resp.State = exec.State
	}

	Created(w, resp)
}

// GetExecution возвращает execution с журналом.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	exec, err := h.orch.GetExecution(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, exec)
}

// GetProgress возвращает прогресс execution.
// GET /api/v1/executions/{id}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	progress, err := h.orch.MonitorProgress(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, progress)
}

// ListDelegations возвращает подзадачи execution.
// GET /api/v1/executions/{id}/delegations
func (h *Handler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	delegations, err := h.orch.ListDelegations(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, delegations, len(delegations))
}

// CompleteExecution завершает execution успешно.
// POST /api/v1/executions/{id}/complete
func (h *Handler) CompleteExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	var req CompleteRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	state, err := h.orch.CompleteExecution(r.Context(), id, req.Result)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, StateResponse{State: state})
}

// FailExecution завершает execution с ошибкой.
// POST /api/v1/executions/{id}/fail
func (h *Handler) FailExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	var req FailRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	state, err := h.orch.FailExecution(r.Context(), id, req.Error)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, StateResponse{State: state})
}

// CancelExecution отменяет execution.
// POST /api/v1/executions/{id}/cancel
func (h *Handler) CancelExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	var req CancelRequest
	if err := decodeJSON(r, &req, true); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	state, err := h.orch.CancelExecution(r.Context(), id, req.Detail)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, StateResponse{State: state})
}
