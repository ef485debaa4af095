package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind — тип координационного сообщения.
type MessageKind string

const (
	MessageAssignment   MessageKind = "assignment"
	MessageStatusUpdate MessageKind = "status_update"
	MessageQuestion     MessageKind = "question"
	MessageAnswer       MessageKind = "answer"
	MessageSystem       MessageKind = "system"
)

// IsValid проверяет, что тип входит в перечисление.
func (k MessageKind) IsValid() bool {
	switch k {
	case MessageAssignment, MessageStatusUpdate, MessageQuestion, MessageAnswer, MessageSystem:
		return true
	default:
		return false
	}
}

// Message — неизменяемая единица трафика между исполнителями и orchestrator'ом.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id,omitempty"` // пусто для broadcast
	Body        string      `json:"body"`
	Kind        MessageKind `json:"kind"`

	// CorrelationID связывает сообщение с execution или delegation.
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// IsBroadcast возвращает true для широковещательных сообщений.
func (m Message) IsBroadcast() bool {
	return m.RecipientID == ""
}

// Assignment — тело сообщения assignment.
type Assignment struct {
	ExecutionID  uuid.UUID      `json:"execution_id"`
	DelegationID uuid.UUID      `json:"delegation_id"`
	Kind         DelegationKind `json:"kind"`
	Type         TaskType       `json:"type"`
	Description  string         `json:"description"`
	Dependencies []uuid.UUID    `json:"dependencies,omitempty"`
}

// StatusUpdate — тело сообщения status_update. CorrelationID сообщения
// содержит ID делегирования.
type StatusUpdate struct {
	Status DelegationStatus `json:"status"`
	Detail string           `json:"detail,omitempty"`
	Result map[string]any   `json:"result,omitempty"`
}

// HumanIntervention — тело system-сообщения об эскалации.
type HumanIntervention struct {
	Type               string    `json:"type"`
	EscalationID       uuid.UUID `json:"escalation_id"`
	ExecutionID        uuid.UUID `json:"execution_id"`
	Level              int       `json:"level"`
	Reason             string    `json:"reason"`
	Details            string    `json:"details,omitempty"`
	AttemptedSolutions []string  `json:"attempted_solutions,omitempty"`
}

// HumanInterventionRequired — значение HumanIntervention.Type.
const HumanInterventionRequired = "human_intervention_required"

// EncodeBody сериализует тело сообщения в JSON.
func EncodeBody(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeBody разбирает JSON-тело сообщения.
func DecodeBody[T any](body string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(body), &v)
	return v, err
}
