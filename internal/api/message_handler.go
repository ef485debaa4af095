package api

import (
	"net/http"
	"time"
)

// SendMessage отправляет сообщение через шину.
// POST /api/v1/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.SenderID == "" {
		BadRequest(w, "sender_id is required")
		return
	}

	if req.RecipientID == "" {
		msg, n, err := h.bus.Broadcast(req.SenderID, req.Body, req.Kind, req.CorrelationID)
		if HandleError(w, h.logger, err) {
			return
		}
		Created(w, SendMessageResponse{Message: msg, Recipients: n})
		return
	}

	msg, err := h.bus.Send(req.SenderID, req.RecipientID, req.Body, req.Kind, req.CorrelationID)
	if HandleError(w, h.logger, err) {
		return
	}
	Created(w, SendMessageResponse{Message: msg, Recipients: 1})
}

// GetMessages возвращает inbox получателя.
// GET /api/v1/messages/{recipient}?since=RFC3339&limit=...
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	recipient := r.PathValue("recipient")

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			BadRequest(w, "invalid since: expected RFC3339")
			return
		}
		since = t
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		BadRequest(w, "invalid limit")
		return
	}

	msgs := h.bus.GetMessages(recipient, since, limit)
	List(w, msgs, len(msgs))
}

// GetConversation возвращает переписку двух участников.
// GET /api/v1/conversations?a=...&b=...
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")
	if a == "" || b == "" {
		BadRequest(w, "query parameters a and b are required")
		return
	}

	msgs := h.bus.GetConversation(a, b)
	List(w, msgs, len(msgs))
}
