package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// MemoryStore — Store в памяти процесса. Используется по умолчанию
// и в тестах.
type MemoryStore struct {
	executions  map[uuid.UUID]*domain.Execution
	logs        map[uuid.UUID][]domain.LogEntry
	delegations map[uuid.UUID][]domain.Delegation
	blockers    map[uuid.UUID][]domain.Blocker
	mu          sync.RWMutex
}

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions:  make(map[uuid.UUID]*domain.Execution),
		logs:        make(map[uuid.UUID][]domain.LogEntry),
		delegations: make(map[uuid.UUID][]domain.Delegation),
		blockers:    make(map[uuid.UUID][]domain.Blocker),
	}
}

// SaveExecution сохраняет копию execution без журнала.
func (s *MemoryStore) SaveExecution(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := exec.Clone()
	c.Log = nil
	s.executions[exec.ID] = c
	return nil
}

// LoadExecution собирает execution из снимка и журнала.
func (s *MemoryStore) LoadExecution(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
	}
	c := exec.Clone()
	c.Log = append([]domain.LogEntry(nil), s.logs[id]...)
	return c, nil
}

// AppendLog добавляет запись в журнал.
func (s *MemoryStore) AppendLog(_ context.Context, executionID uuid.UUID, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[executionID] = append(s.logs[executionID], entry)
	return nil
}

// SaveDelegation вставляет или обновляет делегирование.
func (s *MemoryStore) SaveDelegation(_ context.Context, d *domain.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.delegations[d.ExecutionID]
	for i := range list {
		if list[i].ID == d.ID {
			list[i] = *d
			return nil
		}
	}
	s.delegations[d.ExecutionID] = append(list, *d)
	return nil
}

// SaveBlocker вставляет или обновляет блокер.
func (s *MemoryStore) SaveBlocker(_ context.Context, b *domain.Blocker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.blockers[b.ExecutionID]
	for i := range list {
		if list[i].ID == b.ID {
			list[i] = *b
			return nil
		}
	}
	s.blockers[b.ExecutionID] = append(list, *b)
	return nil
}

// ListDelegations возвращает делегирования в порядке создания.
func (s *MemoryStore) ListDelegations(_ context.Context, executionID uuid.UUID) ([]domain.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Delegation(nil), s.delegations[executionID]...), nil
}

// ListBlockers возвращает блокеры в порядке создания.
func (s *MemoryStore) ListBlockers(_ context.Context, executionID uuid.UUID) ([]domain.Blocker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Blocker(nil), s.blockers[executionID]...), nil
}
