package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		LimitBody(maxBodyBytes),
	)

	// Executions
	mux.Handle("GET /api/v1/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("POST /api/v1/executions", chain(http.HandlerFunc(h.StartExecution)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
	mux.Handle("GET /api/v1/executions/{id}/progress", chain(http.HandlerFunc(h.GetProgress)))
	mux.Handle("GET /api/v1/executions/{id}/delegations", chain(http.HandlerFunc(h.ListDelegations)))
	mux.Handle("POST /api/v1/executions/{id}/complete", chain(http.HandlerFunc(h.CompleteExecution)))
	mux.Handle("POST /api/v1/executions/{id}/fail", chain(http.HandlerFunc(h.FailExecution)))
	mux.Handle("POST /api/v1/executions/{id}/cancel", chain(http.HandlerFunc(h.CancelExecution)))

	// Blockers and escalations
	mux.Handle("GET /api/v1/executions/{id}/blockers", chain(http.HandlerFunc(h.ListBlockers)))
	mux.Handle("POST /api/v1/executions/{id}/blockers", chain(http.HandlerFunc(h.CreateBlocker)))
	mux.Handle("POST /api/v1/executions/{id}/blockers/{blocker_id}/resolve", chain(http.HandlerFunc(h.ResolveBlocker)))
	mux.Handle("POST /api/v1/executions/{id}/escalations", chain(http.HandlerFunc(h.Escalate)))

	// Messages
	mux.Handle("POST /api/v1/messages", chain(http.HandlerFunc(h.SendMessage)))
	mux.Handle("GET /api/v1/messages/{recipient}", chain(http.HandlerFunc(h.GetMessages)))
	mux.Handle("GET /api/v1/conversations", chain(http.HandlerFunc(h.GetConversation)))
}
