package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/engine"
)

// ReasonCancelled — причина перехода в failed при отмене.
const ReasonCancelled = "cancelled"

// StartExecution создаёт execution для задачи и запускает автомат.
//
// Execution сначала сохраняется в pending, затем переводится в analyzing;
// хуки analyzing → planning → delegated → in_progress выполняются цепочкой.
// Если хук упал, execution уже существует и переведён в blocked:
// возвращаются и его ID, и ошибка хука.
func (o *Orchestrator) StartExecution(ctx context.Context, task domain.Task, teamID uuid.UUID) (uuid.UUID, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	exec := domain.NewExecution(task.ID, teamID)
	st := newExecState(exec, task)

	if err := o.register(st); err != nil {
		return uuid.Nil, err
	}

	st.mu.Lock()
	if err := o.store.SaveExecution(ctx, exec); err != nil {
		st.mu.Unlock()
		o.forget(st, nil)
		return uuid.Nil, fmt.Errorf("save execution: %w", err)
	}
	o.persist(ctx, st)
	st.mu.Unlock()

	o.logger.Info("execution created",
		"execution_id", exec.ID,
		"task_id", task.ID,
		"team_id", teamID,
	)

	err := o.drive(ctx, st, &step{
		from:   domain.StatePending,
		to:     domain.StateAnalyzing,
		reason: "execution started",
	})
	return exec.ID, err
}

// CompleteExecution переводит execution в completed.
//
// Для уже завершённого execution ничего не делает и возвращает его
// текущее состояние.
func (o *Orchestrator) CompleteExecution(ctx context.Context, executionID uuid.UUID, result map[string]any) (domain.ExecutionState, error) {
	st, ok := o.lookup(executionID)
	if !ok {
		return o.finishedState(ctx, executionID)
	}

	st.mu.Lock()
	if st.exec.State.IsTerminal() {
		state := st.exec.State
		st.mu.Unlock()
		return state, nil
	}

	prev := st.exec.Result
	st.exec.Result = result
	next, err := o.apply(ctx, st, domain.StateCompleted, "completed", nil)
	if errors.Is(err, engine.ErrInvalidTransition) {
		st.exec.Result = prev
	}
	state := st.exec.State
	o.release(st)

	if err != nil {
		return state, o.settle(ctx, st, next, err)
	}

	o.logger.Info("execution completed", "execution_id", executionID)
	return state, nil
}

// FailExecution переводит execution в failed. Активные делегирования
// помечаются failed, нагрузка исполнителей снимается.
//
// Для уже завершённого execution ничего не делает.
func (o *Orchestrator) FailExecution(ctx context.Context, executionID uuid.UUID, errPayload map[string]any) (domain.ExecutionState, error) {
	return o.fail(ctx, executionID, "failed", errPayload)
}

// CancelExecution отменяет execution: переход в failed с причиной cancelled.
// Сообщения с correlation ID execution и его делегирований больше
// не принимаются шиной.
func (o *Orchestrator) CancelExecution(ctx context.Context, executionID uuid.UUID, detail string) (domain.ExecutionState, error) {
	payload := map[string]any{"reason": ReasonCancelled}
	if detail != "" {
		payload["detail"] = detail
	}
	return o.fail(ctx, executionID, ReasonCancelled, payload)
}

func (o *Orchestrator) fail(ctx context.Context, executionID uuid.UUID, reason string, errPayload map[string]any) (domain.ExecutionState, error) {
	st, ok := o.lookup(executionID)
	if !ok {
		return o.finishedState(ctx, executionID)
	}

	st.mu.Lock()
	if st.exec.State.IsTerminal() {
		state := st.exec.State
		st.mu.Unlock()
		return state, nil
	}

	st.exec.Error = errPayload
	_, err := o.apply(ctx, st, domain.StateFailed, reason, errPayload)
	state := st.exec.State
	o.release(st)

	if err != nil {
		return state, err
	}

	o.logger.Info("execution failed",
		"execution_id", executionID,
		"reason", reason,
	)
	return state, nil
}

// finishedState возвращает состояние execution, которого нет в памяти.
// Повторный сигнал завершения для терминального execution не ошибка.
func (o *Orchestrator) finishedState(ctx context.Context, executionID uuid.UUID) (domain.ExecutionState, error) {
	exec, err := o.store.LoadExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}
		return "", err
	}
	if !exec.State.IsTerminal() {
		return exec.State, fmt.Errorf("%w: %s is not owned by this orchestrator", ErrExecutionNotFound, executionID)
	}
	return exec.State, nil
}

// abortDelegations помечает активные и ожидающие делегирования failed
// и снимает нагрузку. Вызывается под st.mu при переходе в failed.
func (o *Orchestrator) abortDelegations(ctx context.Context, st *ExecState) {
	now := time.Now()
	for i := range st.delegations {
		d := &st.delegations[i]
		switch {
		case d.Status.IsActive():
			o.adjustLoad(ctx, d.WorkerID, -1)
		case d.Status == domain.DelegationPending:
		default:
			continue
		}
		d.Status = domain.DelegationFailed
		d.UpdatedAt = now
		o.saveDelegation(ctx, d)
	}
}

// adjustLoad изменяет нагрузку исполнителя, ошибки только логируются.
func (o *Orchestrator) adjustLoad(ctx context.Context, workerID string, delta int) {
	if workerID == "" {
		return
	}
	if err := o.roster.AdjustLoad(ctx, workerID, delta); err != nil {
		o.logger.Warn("failed to adjust worker load",
			"worker_id", workerID,
			"delta", delta,
			"error", err,
		)
	}
}
