package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// Store — хранилище, в которое Orchestrator пишет в точках изменения.
//
// Orchestrator считает запись надёжной и не ведёт собственный журнал.
type Store interface {
	SaveExecution(ctx context.Context, exec *domain.Execution) error
	LoadExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	AppendLog(ctx context.Context, executionID uuid.UUID, entry domain.LogEntry) error
	SaveDelegation(ctx context.Context, d *domain.Delegation) error
	SaveBlocker(ctx context.Context, b *domain.Blocker) error
}

// StoreReader — необязательное расширение Store для чтения
// делегирований и блокеров завершённых executions.
type StoreReader interface {
	ListDelegations(ctx context.Context, executionID uuid.UUID) ([]domain.Delegation, error)
	ListBlockers(ctx context.Context, executionID uuid.UUID) ([]domain.Blocker, error)
}

// Roster — внешний реестр исполнителей.
type Roster interface {
	// ListAvailableWorkers возвращает исполнителей команды.
	ListAvailableWorkers(ctx context.Context, teamID uuid.UUID) ([]domain.Worker, error)

	// AdjustLoad изменяет текущую нагрузку исполнителя на delta.
	AdjustLoad(ctx context.Context, workerID string, delta int) error
}
