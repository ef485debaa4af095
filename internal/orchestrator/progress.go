package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/engine"
)

// Progress — снимок прогресса execution.
type Progress struct {
	ExecutionID     uuid.UUID             `json:"execution_id"`
	State           domain.ExecutionState `json:"state"`
	Percentage      int                   `json:"percentage"`
	IsTerminal      bool                  `json:"is_terminal"`
	IsBlocked       bool                  `json:"is_blocked"`
	EscalationLevel int                   `json:"escalation_level"`
	Delegations     DelegationStats       `json:"delegations"`
	OpenBlockers    int                   `json:"open_blockers"`
	Metrics         engine.Metrics        `json:"metrics"`
}

// MonitorProgress возвращает прогресс execution. Только чтение.
//
// Для blocked процент берётся из последнего рабочего состояния.
func (o *Orchestrator) MonitorProgress(ctx context.Context, executionID uuid.UUID) (Progress, error) {
	if st, ok := o.lookup(executionID); ok {
		st.mu.Lock()
		defer st.mu.Unlock()

		return Progress{
			ExecutionID:     executionID,
			State:           st.exec.State,
			Percentage:      engine.ProgressWithFallback(st.exec.State, st.lastActive),
			IsTerminal:      st.exec.State.IsTerminal(),
			IsBlocked:       st.exec.State == domain.StateBlocked,
			EscalationLevel: st.exec.EscalationLevel,
			Delegations:     st.Stats(),
			OpenBlockers:    len(st.openBlockers()),
			Metrics:         o.engine.Metrics(st.exec),
		}, nil
	}

	exec, err := o.loadExecution(ctx, executionID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		ExecutionID:     executionID,
		State:           exec.State,
		Percentage:      engine.ComputeProgress(exec.State),
		IsTerminal:      exec.State.IsTerminal(),
		IsBlocked:       exec.State == domain.StateBlocked,
		EscalationLevel: exec.EscalationLevel,
		Metrics:         o.engine.Metrics(exec),
	}, nil
}

// GetExecution возвращает копию execution.
func (o *Orchestrator) GetExecution(ctx context.Context, executionID uuid.UUID) (*domain.Execution, error) {
	if st, ok := o.lookup(executionID); ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.exec.Clone(), nil
	}
	return o.loadExecution(ctx, executionID)
}

// ListDelegations возвращает делегирования execution в порядке плана.
func (o *Orchestrator) ListDelegations(ctx context.Context, executionID uuid.UUID) ([]domain.Delegation, error) {
	if st, ok := o.lookup(executionID); ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		return append([]domain.Delegation(nil), st.delegations...), nil
	}

	reader, ok := o.store.(StoreReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return reader.ListDelegations(ctx, executionID)
}

// ListBlockers возвращает блокеры execution в порядке создания.
func (o *Orchestrator) ListBlockers(ctx context.Context, executionID uuid.UUID) ([]domain.Blocker, error) {
	if st, ok := o.lookup(executionID); ok {
		st.mu.Lock()
		defer st.mu.Unlock()
		out := make([]domain.Blocker, 0, len(st.blockerOrder))
		for _, id := range st.blockerOrder {
			out = append(out, *st.blockers[id])
		}
		return out, nil
	}

	reader, ok := o.store.(StoreReader)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return reader.ListBlockers(ctx, executionID)
}

// Snapshot — копия нетерминального execution для фоновых проверок.
type Snapshot struct {
	Execution    *domain.Execution
	LastActive   domain.ExecutionState
	OpenBlockers int
}

// Snapshots возвращает снимки всех нетерминальных executions.
func (o *Orchestrator) Snapshots() []Snapshot {
	o.mu.RLock()
	states := make([]*ExecState, 0, len(o.executions))
	for _, st := range o.executions {
		states = append(states, st)
	}
	o.mu.RUnlock()

	out := make([]Snapshot, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		if !st.exec.State.IsTerminal() {
			out = append(out, Snapshot{
				Execution:    st.exec.Clone(),
				LastActive:   st.lastActive,
				OpenBlockers: len(st.openBlockers()),
			})
		}
		st.mu.Unlock()
	}
	return out
}

func (o *Orchestrator) loadExecution(ctx context.Context, executionID uuid.UUID) (*domain.Execution, error) {
	exec, err := o.store.LoadExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return nil, err
	}
	return exec, nil
}
