package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/AgentSquad/internal/delegation"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/telemetry"
)

var (
	// errNoState — хук вызван без ExecState в контексте.
	errNoState = errors.New("execution state missing from hook context")

	// errNothingDispatched — в delegated нет ни назначенной, ни готовой работы.
	errNothingDispatched = errors.New("no delegation could be dispatched")
)

// registerHooks связывает хуки с состояниями. Вызывается один раз в New.
func (o *Orchestrator) registerHooks() {
	o.engine.RegisterStateAction(domain.StateAnalyzing, o.withExecState(o.onAnalyzing))
	o.engine.RegisterStateAction(domain.StatePlanning, o.withExecState(o.onPlanning))
	o.engine.RegisterStateAction(domain.StateDelegated, o.withExecState(o.onDelegated))
	o.engine.RegisterStateAction(domain.StateInProgress, o.withExecState(o.onInProgress))
	o.engine.RegisterStateAction(domain.StateReviewing, o.withExecState(o.onVerification))
	o.engine.RegisterStateAction(domain.StateTesting, o.withExecState(o.onVerification))
}

type stateHook func(ctx context.Context, st *ExecState) error

// withExecState достаёт ExecState из контекста. st.mu уже захвачен
// вызывающим apply.
func (o *Orchestrator) withExecState(hook stateHook) func(context.Context, *domain.Execution) error {
	return func(ctx context.Context, exec *domain.Execution) error {
		st, ok := stateFrom(ctx)
		if !ok || st.exec != exec {
			return errNoState
		}
		return hook(ctx, st)
	}
}

// onAnalyzing определяет тип задачи и требования.
func (o *Orchestrator) onAnalyzing(_ context.Context, st *ExecState) error {
	req := delegation.Analyze(st.task)
	st.requirements = req
	st.exec.Metadata["requirements"] = req

	o.logger.Debug("task analyzed",
		"execution_id", st.ID(),
		"task_type", req.TaskType,
		"role", req.Role,
		"complexity", req.Complexity,
		"skills", req.Skills,
	)

	st.next = &step{from: domain.StateAnalyzing, to: domain.StatePlanning, reason: "requirements detected"}
	return nil
}

// onPlanning разбивает задачу на делегирования. Существующий план
// при повторном входе из blocked сохраняется.
func (o *Orchestrator) onPlanning(ctx context.Context, st *ExecState) error {
	if len(st.delegations) == 0 {
		ds := delegation.BreakDown(st.task)
		for i := range ds {
			ds[i].ExecutionID = st.ID()
		}

		graph, err := delegation.BuildGraph(ds)
		if err != nil {
			return fmt.Errorf("build delegation graph: %w", err)
		}

		st.delegations = ds
		st.graph = graph
		for i := range st.delegations {
			o.saveDelegation(ctx, &st.delegations[i])
		}
		o.indexDelegations(st.ID(), st.delegations)
	}

	kinds := make([]string, len(st.delegations))
	for i := range st.delegations {
		kinds[i] = string(st.delegations[i].Kind)
	}
	st.exec.Metadata["plan"] = kinds

	o.logger.Info("execution planned",
		"execution_id", st.ID(),
		"delegations", len(st.delegations),
	)

	st.next = &step{from: domain.StatePlanning, to: domain.StateDelegated, reason: "plan ready"}
	return nil
}

// onDelegated назначает готовые рабочие делегирования.
func (o *Orchestrator) onDelegated(ctx context.Context, st *ExecState) error {
	o.resetFailed(ctx, st, false)

	assigned, err := o.dispatch(ctx, st, false)
	if err != nil {
		return err
	}

	active := st.Stats().Active
	switch {
	case assigned > 0:
		st.next = &step{
			from:   domain.StateDelegated,
			to:     domain.StateInProgress,
			reason: "work assigned",
			meta:   map[string]any{"assigned": assigned},
		}
	case active > 0:
		// Повторный вход из blocked: работа уже у исполнителей.
		st.next = &step{
			from:   domain.StateDelegated,
			to:     domain.StateInProgress,
			reason: "work in flight",
			meta:   map[string]any{"active": active},
		}
	case st.workDone():
		st.next = &step{from: domain.StateDelegated, to: domain.StateInProgress, reason: "work already done"}
	default:
		return errNothingDispatched
	}
	return nil
}

// onInProgress назначает рабочие делегирования, ставшие готовыми,
// и переходит к проверке, когда вся работа завершена.
func (o *Orchestrator) onInProgress(ctx context.Context, st *ExecState) error {
	o.resetFailed(ctx, st, false)

	if _, err := o.dispatch(ctx, st, false); err != nil {
		return err
	}

	if st.workDone() {
		st.next = o.verificationStep(st)
	}
	return nil
}

// onVerification назначает делегирования testing/review и завершает
// execution, когда они выполнены. При входе из blocked сначала
// доназначается незавершённая рабочая часть, от которой зависит проверка.
func (o *Orchestrator) onVerification(ctx context.Context, st *ExecState) error {
	o.resetFailed(ctx, st, false)
	o.resetFailed(ctx, st, true)

	if err := o.dispatchStages(ctx, st); err != nil {
		return err
	}

	if st.allDone() {
		st.next = &step{from: st.exec.State, to: domain.StateCompleted, reason: "all delegations done"}
	}
	return nil
}

// verificationStep выбирает reviewing, если в плане есть review, иначе testing.
func (o *Orchestrator) verificationStep(st *ExecState) *step {
	to := domain.StateTesting
	if st.hasReview() {
		to = domain.StateReviewing
	}
	return &step{from: domain.StateInProgress, to: to, reason: "work done"}
}

// resetFailed возвращает упавшие делегирования в pending для повторного назначения.
func (o *Orchestrator) resetFailed(ctx context.Context, st *ExecState, verification bool) {
	now := time.Now()
	for i := range st.delegations {
		d := &st.delegations[i]
		if d.Status != domain.DelegationFailed || d.Kind.IsVerification() != verification {
			continue
		}
		d.Status = domain.DelegationPending
		d.WorkerID = ""
		d.UpdatedAt = now
		o.saveDelegation(ctx, d)
	}
}

// dispatch назначает готовые делегирования исполнителям. verification
// выбирает этапы testing/review или все остальные. Вызывается под st.mu.
//
// На первой неудаче возвращает ошибку с ErrNoEligibleWorker; уже
// сделанные назначения сохраняются.
func (o *Orchestrator) dispatch(ctx context.Context, st *ExecState, verification bool) (int, error) {
	if st.graph == nil {
		return 0, nil
	}

	ready := make([]*domain.Delegation, 0)
	for _, node := range st.graph.Ready() {
		if node.Delegation.Kind.IsVerification() == verification {
			ready = append(ready, node.Delegation)
		}
	}
	if len(ready) == 0 {
		return 0, nil
	}

	roster, err := o.roster.ListAvailableWorkers(ctx, st.exec.TeamID)
	if err != nil {
		return 0, fmt.Errorf("list workers: %w", err)
	}

	assigned := 0
	for _, d := range ready {
		req := st.requirements.ForKind(d.Kind)
		best, err := delegation.FindBestWorker(req, roster)
		if err != nil {
			return assigned, fmt.Errorf("delegation %s (%s, role %s): %w", d.ID, d.Kind, req.Role, err)
		}

		if err := o.assign(ctx, st, d, best.Worker); err != nil {
			return assigned, err
		}

		// Следующие назначения учитывают нагрузку от этого.
		for i := range roster {
			if roster[i].ID == best.Worker.ID {
				roster[i].CurrentLoad++
			}
		}
		assigned++

		o.logger.Info("delegation assigned",
			"execution_id", st.ID(),
			"delegation_id", d.ID,
			"kind", d.Kind,
			"worker_id", best.Worker.ID,
			"score", best.Score,
		)
		telemetry.DelegationsAssignedTotal.WithLabelValues(string(req.Role)).Inc()
	}

	return assigned, nil
}

// dispatchStages назначает готовые рабочие делегирования, затем
// готовые делегирования проверки. Вызывается под st.mu.
func (o *Orchestrator) dispatchStages(ctx context.Context, st *ExecState) error {
	if _, err := o.dispatch(ctx, st, false); err != nil {
		return err
	}
	_, err := o.dispatch(ctx, st, true)
	return err
}

// assign помечает делегирование assigned и ставит в outbox сообщение assignment.
func (o *Orchestrator) assign(ctx context.Context, st *ExecState, d *domain.Delegation, w domain.Worker) error {
	body, err := domain.EncodeBody(domain.Assignment{
		ExecutionID:  st.ID(),
		DelegationID: d.ID,
		Kind:         d.Kind,
		Type:         d.Type,
		Description:  d.Description,
		Dependencies: d.DependsOn,
	})
	if err != nil {
		return fmt.Errorf("encode assignment: %w", err)
	}

	d.WorkerID = w.ID
	d.Status = domain.DelegationAssigned
	d.UpdatedAt = time.Now()
	o.saveDelegation(ctx, d)
	o.adjustLoad(ctx, w.ID, 1)

	st.queue(outgoing{
		recipient:   w.ID,
		body:        body,
		kind:        domain.MessageAssignment,
		correlation: d.ID.String(),
	})
	return nil
}

// advance пересчитывает execution после изменения делегирований:
// назначает ставшие готовыми и переходит дальше, если этап завершён.
func (o *Orchestrator) advance(ctx context.Context, st *ExecState) error {
	st.mu.Lock()

	var (
		next *step
		err  error
	)
	switch state := st.exec.State; {
	case state == domain.StateInProgress:
		_, err = o.dispatch(ctx, st, false)
		if err == nil && st.workDone() {
			next = o.verificationStep(st)
		}
	case state.IsVerification():
		err = o.dispatchStages(ctx, st)
		if err == nil && st.allDone() {
			next = &step{from: state, to: domain.StateCompleted, reason: "all delegations done"}
		}
	}
	o.release(st)

	if err != nil {
		_, blockErr := o.HandleBlocker(ctx, st.ID(), err.Error(), map[string]any{
			"severity": string(domain.SeverityHigh),
		})
		if blockErr != nil {
			return blockErr
		}
		return err
	}
	return o.drive(ctx, st, next)
}
