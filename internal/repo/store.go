package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/orchestrator"
)

// Store объединяет репозитории в хранилище и реестр исполнителей
// для Orchestrator.
type Store struct {
	Executions  *ExecutionRepo
	Delegations *DelegationRepo
	Blockers    *BlockerRepo
	Workers     *WorkerRepo
}

var (
	_ orchestrator.Store       = (*Store)(nil)
	_ orchestrator.StoreReader = (*Store)(nil)
	_ orchestrator.Roster      = (*Store)(nil)
)

// NewStore создаёт Store поверх пула соединений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Executions:  NewExecutionRepo(pool),
		Delegations: NewDelegationRepo(pool),
		Blockers:    NewBlockerRepo(pool),
		Workers:     NewWorkerRepo(pool),
	}
}

func (s *Store) SaveExecution(ctx context.Context, exec *domain.Execution) error {
	return s.Executions.Save(ctx, exec)
}

func (s *Store) LoadExecution(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	return s.Executions.GetByID(ctx, id)
}

func (s *Store) AppendLog(ctx context.Context, executionID uuid.UUID, entry domain.LogEntry) error {
	return s.Executions.AppendLog(ctx, executionID, entry)
}

func (s *Store) SaveDelegation(ctx context.Context, d *domain.Delegation) error {
	return s.Delegations.Save(ctx, d)
}

func (s *Store) SaveBlocker(ctx context.Context, b *domain.Blocker) error {
	return s.Blockers.Save(ctx, b)
}

func (s *Store) ListDelegations(ctx context.Context, executionID uuid.UUID) ([]domain.Delegation, error) {
	return s.Delegations.ListByExecution(ctx, executionID)
}

func (s *Store) ListBlockers(ctx context.Context, executionID uuid.UUID) ([]domain.Blocker, error) {
	return s.Blockers.ListByExecution(ctx, executionID)
}

func (s *Store) ListAvailableWorkers(ctx context.Context, teamID uuid.UUID) ([]domain.Worker, error) {
	return s.Workers.ListAvailable(ctx, teamID)
}

func (s *Store) AdjustLoad(ctx context.Context, workerID string, delta int) error {
	return s.Workers.AdjustLoad(ctx, workerID, delta)
}
