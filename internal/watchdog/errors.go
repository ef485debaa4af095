package watchdog

import "errors"

var (
	// ErrInvalidSchedule — расписание не разбирается.
	ErrInvalidSchedule = errors.New("invalid watchdog schedule")

	// ErrNoOrchestrator — watchdog создан без orchestrator'а.
	ErrNoOrchestrator = errors.New("orchestrator is required")
)
