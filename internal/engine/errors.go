package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/AgentSquad/internal/domain"
)

var (
	// ErrInvalidTransition — переход отсутствует в таблице.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrHookFailure — хук состояния вернул ошибку после коммита перехода.
	ErrHookFailure = errors.New("state hook failed")

	// ErrHookPanic — хук состояния запаниковал.
	ErrHookPanic = errors.New("state hook panicked")

	// ErrNilExecution — передан nil вместо execution.
	ErrNilExecution = errors.New("execution is nil")
)

// HookError — ошибка хука состояния.
//
// Переход к моменту ошибки уже зафиксирован: State совпадает
// с текущим состоянием execution.
type HookError struct {
	State domain.ExecutionState // состояние, хук которого упал
	Err   error                 // исходная ошибка
}

// Error реализует интерфейс error.
func (e *HookError) Error() string {
	return fmt.Sprintf("hook for state %s: %v", e.State, e.Err)
}

// Unwrap позволяет errors.Is находить и ErrHookFailure, и исходную ошибку.
func (e *HookError) Unwrap() []error {
	return []error{ErrHookFailure, e.Err}
}

func invalidTransition(from, to domain.ExecutionState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
