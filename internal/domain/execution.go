package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogKind — тип записи в журнале выполнения.
type LogKind string

const (
	LogCreated    LogKind = "created"
	LogTransition LogKind = "transition"
	LogBlocker    LogKind = "blocker"
	LogEscalation LogKind = "escalation"
	LogDelegation LogKind = "delegation"
)

// LogEntry — запись в append-only журнале выполнения.
type LogEntry struct {
	// At — время события.
	At time.Time `json:"at"`

	// Kind — тип события.
	Kind LogKind `json:"kind"`

	// From/To — состояния для переходов. Для остальных событий To
	// содержит текущее состояние.
	From ExecutionState `json:"from,omitempty"`
	To   ExecutionState `json:"to"`

	// Reason — причина перехода или описание события.
	Reason string `json:"reason,omitempty"`

	// Metadata — произвольные данные события.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Execution — один прогон задачи командой исполнителей.
//
// Execution создаётся Orchestrator'ом в состоянии pending и изменяется
// только через валидные переходы. После терминального состояния
// execution больше не меняется.
type Execution struct {
	// ID — уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// TaskID — выполняемая задача.
	TaskID uuid.UUID `json:"task_id"`

	// TeamID — команда исполнителей.
	TeamID uuid.UUID `json:"team_id"`

	// State — текущее состояние.
	State ExecutionState `json:"state"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время выхода из pending.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в терминальное состояние.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Log — упорядоченный журнал событий.
	Log []LogEntry `json:"log"`

	// Result — результат при успешном завершении.
	Result map[string]any `json:"result,omitempty"`

	// Error — описание ошибки при неудаче.
	Error map[string]any `json:"error,omitempty"`

	// EscalationLevel — сколько раз выполнение эскалировалось человеку.
	EscalationLevel int `json:"escalation_level"`

	// Metadata — данные, накопленные хуками (требования, план).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewExecution создаёт execution в состоянии pending с записью о создании.
func NewExecution(taskID, teamID uuid.UUID) *Execution {
	now := time.Now()
	return &Execution{
		ID:        uuid.New(),
		TaskID:    taskID,
		TeamID:    teamID,
		State:     StatePending,
		CreatedAt: now,
		Log: []LogEntry{{
			At:   now,
			Kind: LogCreated,
			To:   StatePending,
		}},
		Metadata: make(map[string]any),
	}
}

// IsFinished возвращает true, если execution в терминальном состоянии.
func (e *Execution) IsFinished() bool {
	return e.State.IsTerminal()
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если execution не стартовал или ещё не завершён.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// LastEventAt возвращает время последней записи журнала.
func (e *Execution) LastEventAt() time.Time {
	if len(e.Log) == 0 {
		return e.CreatedAt
	}
	return e.Log[len(e.Log)-1].At
}

// Transitions возвращает только записи о переходах и создании.
func (e *Execution) Transitions() []LogEntry {
	out := make([]LogEntry, 0, len(e.Log))
	for _, entry := range e.Log {
		if entry.Kind == LogCreated || entry.Kind == LogTransition {
			out = append(out, entry)
		}
	}
	return out
}

// Clone возвращает копию, безопасную для чтения вне блокировки.
// Журнал и карты копируются поверхностно.
func (e *Execution) Clone() *Execution {
	c := *e
	c.Log = append([]LogEntry(nil), e.Log...)
	c.Result = cloneMap(e.Result)
	c.Error = cloneMap(e.Error)
	c.Metadata = cloneMap(e.Metadata)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
