package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ListBlockers возвращает блокеры execution в порядке создания.
// GET /api/v1/executions/{id}/blockers
func (h *Handler) ListBlockers(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	blockers, err := h.orch.ListBlockers(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	List(w, blockers, len(blockers))
}

// CreateBlocker регистрирует блокер и переводит execution в blocked.
// POST /api/v1/executions/{id}/blockers
func (h *Handler) CreateBlocker(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	var req CreateBlockerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		BadRequest(w, "description is required")
		return
	}

	metadata := req.Metadata
	if req.Severity != "" {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["severity"] = req.Severity
	}

	blockerID, err := h.orch.HandleBlocker(r.Context(), id, req.Description, metadata)
	if blockerID == uuid.Nil {
		HandleError(w, h.logger, err)
		return
	}
	if err != nil {
		h.logger.Warn("blocker recorded with error", "execution_id", id, "blocker_id", blockerID, "error", err)
	}
	Created(w, IDResponse{ID: blockerID})
}

// ResolveBlocker снимает блокер и переводит execution в next_state.
// POST /api/v1/executions/{id}/blockers/{blocker_id}/resolve
func (h *Handler) ResolveBlocker(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}
	blockerID, err := uuid.Parse(r.PathValue("blocker_id"))
	if err != nil {
		BadRequest(w, "invalid blocker id")
		return
	}

	var req ResolveBlockerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if !req.NextState.IsValid() {
		BadRequest(w, "invalid next_state")
		return
	}

	err = h.orch.ResolveBlocker(r.Context(), id, blockerID, req.Resolution, req.NextState)
	if HandleError(w, h.logger, err) {
		return
	}

	exec, err := h.orch.GetExecution(r.Context(), id)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, StateResponse{State: exec.State})
}

// Escalate поднимает уровень эскалации и уведомляет человека.
// POST /api/v1/executions/{id}/escalations
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExecutionID(r)
	if !ok {
		BadRequest(w, "invalid execution id")
		return
	}

	var req EscalationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		BadRequest(w, "reason is required")
		return
	}

	escalationID, err := h.orch.EscalateToHuman(r.Context(), id, req.Reason, req.Details, req.AttemptedSolutions)
	if HandleError(w, h.logger, err) {
		return
	}
	Created(w, IDResponse{ID: escalationID})
}
