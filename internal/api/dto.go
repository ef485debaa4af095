package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/orchestrator"
)

// Execution DTOs

// StartExecutionRequest — запрос на запуск execution.
type StartExecutionRequest struct {
	Task   domain.Task `json:"task"`
	TeamID uuid.UUID   `json:"team_id"`
}

// StartExecutionResponse — ответ на запуск. Warning заполнен, если
// execution создан, но хук остановил его в blocked.
type StartExecutionResponse struct {
	ExecutionID uuid.UUID             `json:"execution_id"`
	State       domain.ExecutionState `json:"state"`
	Warning     string                `json:"warning,omitempty"`
}

// ExecutionSummary — элемент списка активных executions.
type ExecutionSummary struct {
	ID              uuid.UUID             `json:"id"`
	TaskID          uuid.UUID             `json:"task_id"`
	TeamID          uuid.UUID             `json:"team_id"`
	State           domain.ExecutionState `json:"state"`
	LastActive      domain.ExecutionState `json:"last_active"`
	OpenBlockers    int                   `json:"open_blockers"`
	EscalationLevel int                   `json:"escalation_level"`
	CreatedAt       time.Time             `json:"created_at"`
	LastEventAt     time.Time             `json:"last_event_at"`
}

// SummaryFromSnapshot конвертирует снимок orchestrator'а в ExecutionSummary.
func SummaryFromSnapshot(s orchestrator.Snapshot) ExecutionSummary {
	return ExecutionSummary{
		ID:              s.Execution.ID,
		TaskID:          s.Execution.TaskID,
		TeamID:          s.Execution.TeamID,
		State:           s.Execution.State,
		LastActive:      s.LastActive,
		OpenBlockers:    s.OpenBlockers,
		EscalationLevel: s.Execution.EscalationLevel,
		CreatedAt:       s.Execution.CreatedAt,
		LastEventAt:     s.Execution.LastEventAt(),
	}
}

// CompleteRequest — запрос на успешное завершение.
type CompleteRequest struct {
	Result map[string]any `json:"result,omitempty"`
}

// FailRequest — запрос на завершение с ошибкой.
type FailRequest struct {
	Error map[string]any `json:"error,omitempty"`
}

// CancelRequest — запрос на отмену.
type CancelRequest struct {
	Detail string `json:"detail,omitempty"`
}

// StateResponse — состояние после терминальной операции.
type StateResponse struct {
	State domain.ExecutionState `json:"state"`
}

// Blocker DTOs

// CreateBlockerRequest — запрос на регистрацию блокера.
type CreateBlockerRequest struct {
	Description string         `json:"description"`
	Severity    string         `json:"severity,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ResolveBlockerRequest — запрос на снятие блокера.
type ResolveBlockerRequest struct {
	Resolution string                `json:"resolution"`
	NextState  domain.ExecutionState `json:"next_state"`
}

// EscalationRequest — запрос на эскалацию человеку.
type EscalationRequest struct {
	Reason             string   `json:"reason"`
	Details            string   `json:"details,omitempty"`
	AttemptedSolutions []string `json:"attempted_solutions,omitempty"`
}

// IDResponse — ответ с идентификатором созданной сущности.
type IDResponse struct {
	ID uuid.UUID `json:"id"`
}

// Message DTOs

// SendMessageRequest — запрос на отправку сообщения. Пустой RecipientID
// означает broadcast.
type SendMessageRequest struct {
	SenderID      string             `json:"sender_id"`
	RecipientID   string             `json:"recipient_id,omitempty"`
	Body          string             `json:"body"`
	Kind          domain.MessageKind `json:"kind"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// SendMessageResponse — отправленное сообщение.
type SendMessageResponse struct {
	Message    domain.Message `json:"message"`
	Recipients int            `json:"recipients"`
}

// decodeJSON разбирает тело запроса. Пустое тело допустимо, если allowEmpty.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// parseExecutionID читает {id} из пути.
func parseExecutionID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// queryInt читает целый query-параметр с default значением.
func queryInt(r *http.Request, key string, defaultVal int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}
