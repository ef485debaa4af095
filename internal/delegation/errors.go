package delegation

import "errors"

var (
	// ErrNoEligibleWorker — среди доступных исполнителей нет подходящего.
	ErrNoEligibleWorker = errors.New("no eligible worker")

	// ErrDuplicateDelegation — два делегирования с одинаковым ID.
	ErrDuplicateDelegation = errors.New("duplicate delegation ID")

	// ErrMissingDependency — делегирование зависит от отсутствующего.
	ErrMissingDependency = errors.New("delegation depends on unknown delegation")

	// ErrSelfDependency — делегирование зависит от самого себя.
	ErrSelfDependency = errors.New("delegation depends on itself")

	// ErrCyclicDependency — цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)
