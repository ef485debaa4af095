package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// Invoker — способ вызвать исполнителя для одного назначения.
//
// Реализации: HTTPInvoker, SimulatedInvoker.
type Invoker interface {
	Process(ctx context.Context, w domain.Worker, a domain.Assignment) (*Result, error)
}

// Result — результат вызова исполнителя.
type Result struct {
	// Output — данные, которые уходят в status_update.result.
	Output map[string]any

	// Error — логическая ошибка (исполнитель ответил, но работу не сделал).
	// Инфраструктурные ошибки возвращаются через error в Process().
	Error string
}

// Registry — invoker'ы по роли исполнителя с общим fallback.
type Registry struct {
	invokers map[domain.Role]Invoker
	fallback Invoker
	mu       sync.RWMutex
}

// NewRegistry создаёт реестр. fallback используется для ролей без
// собственного invoker'а и может быть nil.
func NewRegistry(fallback Invoker) *Registry {
	return &Registry{
		invokers: make(map[domain.Role]Invoker),
		fallback: fallback,
	}
}

// Register задаёт invoker для роли.
func (r *Registry) Register(role domain.Role, inv Invoker) {
	r.mu.Lock()
	r.invokers[role] = inv
	r.mu.Unlock()
}

// Get возвращает invoker для роли.
func (r *Registry) Get(role domain.Role) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if inv, ok := r.invokers[role]; ok {
		return inv, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoInvoker, role)
}
