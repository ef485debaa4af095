package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// ErrEmptyWorkerID — исполнитель без ID.
var ErrEmptyWorkerID = errors.New("worker id is required")

type member struct {
	worker domain.Worker
	teamID uuid.UUID
}

// Registry — реестр исполнителей.
type Registry struct {
	members map[string]*member
	mu      sync.RWMutex
	logger  *slog.Logger
}

// New создаёт пустой реестр.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		members: make(map[string]*member),
		logger:  logger,
	}
}

// Register добавляет или заменяет исполнителя. teamID == uuid.Nil
// делает исполнителя общим для всех команд.
func (r *Registry) Register(teamID uuid.UUID, w domain.Worker) error {
	if w.ID == "" {
		return ErrEmptyWorkerID
	}

	r.mu.Lock()
	r.members[w.ID] = &member{worker: w, teamID: teamID}
	r.mu.Unlock()

	r.logger.Debug("worker registered",
		"worker_id", w.ID,
		"role", w.Role,
		"team_id", teamID,
	)
	return nil
}

// Deregister удаляет исполнителя.
func (r *Registry) Deregister(workerID string) {
	r.mu.Lock()
	delete(r.members, workerID)
	r.mu.Unlock()
}

// SetAvailable включает или выключает исполнителя для новых назначений.
func (r *Registry) SetAvailable(workerID string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[workerID]
	if !ok {
		return fmt.Errorf("%w: worker %s", domain.ErrNotFound, workerID)
	}
	m.worker.Available = available
	return nil
}

// Get возвращает копию исполнителя.
func (r *Registry) Get(workerID string) (domain.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[workerID]
	if !ok {
		return domain.Worker{}, false
	}
	return m.worker, true
}

// List возвращает всех исполнителей, отсортированных по ID.
func (r *Registry) List() []domain.Worker {
	r.mu.RLock()
	out := make([]domain.Worker, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.worker)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAvailableWorkers возвращает доступных исполнителей команды
// и общих исполнителей, отсортированных по ID.
func (r *Registry) ListAvailableWorkers(_ context.Context, teamID uuid.UUID) ([]domain.Worker, error) {
	r.mu.RLock()
	out := make([]domain.Worker, 0, len(r.members))
	for _, m := range r.members {
		if !m.worker.Available {
			continue
		}
		if m.teamID != uuid.Nil && m.teamID != teamID {
			continue
		}
		out = append(out, m.worker)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdjustLoad изменяет нагрузку исполнителя. Нагрузка не опускается ниже нуля.
func (r *Registry) AdjustLoad(_ context.Context, workerID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[workerID]
	if !ok {
		return fmt.Errorf("%w: worker %s", domain.ErrNotFound, workerID)
	}
	m.worker.CurrentLoad += delta
	if m.worker.CurrentLoad < 0 {
		m.worker.CurrentLoad = 0
	}
	return nil
}
