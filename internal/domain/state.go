package domain

// ExecutionState — состояние выполнения задачи командой.
//
// Жизненный цикл (happy path):
//
//	pending → analyzing → planning → delegated → in_progress → reviewing → completed
//	                                                         ↘ testing   ↗
//
// Любое нетерминальное состояние может перейти в blocked или failed.
// Из blocked можно вернуться в любое рабочее состояние или перейти в failed.
type ExecutionState string

const (
	// StatePending — выполнение создано, но ещё не анализировалось.
	StatePending ExecutionState = "pending"

	// StateAnalyzing — определение типа задачи и требований.
	StateAnalyzing ExecutionState = "analyzing"

	// StatePlanning — разбиение задачи на делегирования.
	StatePlanning ExecutionState = "planning"

	// StateDelegated — подзадачи назначаются исполнителям.
	StateDelegated ExecutionState = "delegated"

	// StateInProgress — исполнители работают над подзадачами.
	StateInProgress ExecutionState = "in_progress"

	// StateReviewing — ревью результата.
	StateReviewing ExecutionState = "reviewing"

	// StateTesting — проверка результата.
	StateTesting ExecutionState = "testing"

	// StateBlocked — выполнение остановлено блокером.
	StateBlocked ExecutionState = "blocked"

	// StateCompleted — выполнение успешно завершено.
	StateCompleted ExecutionState = "completed"

	// StateFailed — выполнение завершилось ошибкой или отменено.
	StateFailed ExecutionState = "failed"
)

// AllStates — все состояния в порядке объявления.
var AllStates = []ExecutionState{
	StatePending,
	StateAnalyzing,
	StatePlanning,
	StateDelegated,
	StateInProgress,
	StateReviewing,
	StateTesting,
	StateBlocked,
	StateCompleted,
	StateFailed,
}

// IsTerminal возвращает true для completed и failed.
func (s ExecutionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что значение входит в перечисление.
func (s ExecutionState) IsValid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// IsVerification возвращает true для состояний проверки результата.
func (s ExecutionState) IsVerification() bool {
	return s == StateReviewing || s == StateTesting
}
