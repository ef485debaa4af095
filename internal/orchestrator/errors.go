package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrDuplicateExecution — у задачи уже есть нетерминальный execution.
	ErrDuplicateExecution = errors.New("task already has a live execution")

	// ErrExecutionNotFound — execution не найден.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionTerminal — execution уже завершён.
	ErrExecutionTerminal = errors.New("execution is terminal")

	// ErrUnknownBlocker — блокер не принадлежит execution или уже снят.
	ErrUnknownBlocker = errors.New("unknown blocker")

	// ErrUnknownDelegation — status_update для неизвестного делегирования.
	ErrUnknownDelegation = errors.New("unknown delegation")

	// ErrInvalidStatusUpdate — тело status_update не разобрано.
	ErrInvalidStatusUpdate = errors.New("invalid status update")
)
