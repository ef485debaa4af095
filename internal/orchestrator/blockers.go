package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/engine"
	"github.com/shaiso/AgentSquad/internal/telemetry"
)

// BlockerReasonPrefix — префикс причины перехода в blocked.
const BlockerReasonPrefix = "blocker:"

// HandleBlocker создаёт блокер и переводит execution в blocked.
//
// Серьёзность берётся из metadata["severity"] (default: medium).
// Если execution уже в blocked, блокер записывается без перехода.
func (o *Orchestrator) HandleBlocker(ctx context.Context, executionID uuid.UUID, description string, metadata map[string]any) (uuid.UUID, error) {
	st, ok := o.lookup(executionID)
	if !ok {
		return uuid.Nil, o.notActive(ctx, executionID)
	}

	st.mu.Lock()
	if st.exec.State.IsTerminal() {
		st.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s", ErrExecutionTerminal, executionID)
	}

	severity, _ := metadata["severity"].(string)
	b := &domain.Blocker{
		ID:          uuid.New(),
		ExecutionID: executionID,
		Description: description,
		Severity:    domain.ParseSeverity(severity),
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	st.blockers[b.ID] = b
	st.blockerOrder = append(st.blockerOrder, b.ID)

	if err := o.store.SaveBlocker(ctx, b); err != nil {
		o.logger.Error("failed to save blocker", "execution_id", executionID, "blocker_id", b.ID, "error", err)
	}
	telemetry.BlockersTotal.WithLabelValues(string(b.Severity)).Inc()

	o.logger.Warn("execution blocked",
		"execution_id", executionID,
		"blocker_id", b.ID,
		"severity", b.Severity,
		"state", st.exec.State,
		"description", description,
	)

	if st.exec.State == domain.StateBlocked {
		st.exec.Log = append(st.exec.Log, domain.LogEntry{
			At:       b.CreatedAt,
			Kind:     domain.LogBlocker,
			To:       domain.StateBlocked,
			Reason:   BlockerReasonPrefix + b.ID.String(),
			Metadata: map[string]any{"description": description},
		})
		o.persist(ctx, st)
		o.release(st)
		return b.ID, nil
	}

	meta := map[string]any{"blocker_id": b.ID.String(), "description": description}
	next, err := o.apply(ctx, st, domain.StateBlocked, BlockerReasonPrefix+b.ID.String(), meta)
	o.release(st)

	return b.ID, o.settle(ctx, st, next, err)
}

// ResolveBlocker снимает блокер и переводит execution в nextState.
//
// Переход проверяется до снятия блокера: при ErrInvalidTransition
// блокер остаётся открытым. Если execution уже находится в nextState
// (блокер записан, пока execution был в blocked, и execution уже
// вернулся к работе), блокер снимается без перехода.
func (o *Orchestrator) ResolveBlocker(ctx context.Context, executionID, blockerID uuid.UUID, resolution string, nextState domain.ExecutionState) error {
	st, ok := o.lookup(executionID)
	if !ok {
		return o.notActive(ctx, executionID)
	}

	st.mu.Lock()
	b, ok := st.blockers[blockerID]
	if !ok || b.IsResolved() {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBlocker, blockerID)
	}

	current := st.exec.State
	sameState := current == nextState && current != domain.StateBlocked
	if !sameState && !engine.IsValidTransition(current, nextState) {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", engine.ErrInvalidTransition, current, nextState)
	}

	b.Resolve(resolution)
	if err := o.store.SaveBlocker(ctx, b); err != nil {
		o.logger.Error("failed to save blocker", "execution_id", executionID, "blocker_id", b.ID, "error", err)
	}

	o.logger.Info("blocker resolved",
		"execution_id", executionID,
		"blocker_id", blockerID,
		"next_state", nextState,
	)

	if sameState {
		o.release(st)
		return nil
	}

	meta := map[string]any{"blocker_id": blockerID.String(), "resolution": resolution}
	next, err := o.apply(ctx, st, nextState, "resolved:"+blockerID.String(), meta)
	o.release(st)

	return o.settle(ctx, st, next, err)
}

// EscalateToHuman повышает уровень эскалации и отправляет human-получателю
// system-сообщение human_intervention_required. Состояние execution
// не меняется.
func (o *Orchestrator) EscalateToHuman(ctx context.Context, executionID uuid.UUID, reason, details string, attemptedSolutions []string) (uuid.UUID, error) {
	st, ok := o.lookup(executionID)
	if !ok {
		return uuid.Nil, o.notActive(ctx, executionID)
	}

	st.mu.Lock()
	if st.exec.State.IsTerminal() {
		st.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s", ErrExecutionTerminal, executionID)
	}

	st.exec.EscalationLevel++
	esc := domain.Escalation{
		ID:                 uuid.New(),
		ExecutionID:        executionID,
		Level:              st.exec.EscalationLevel,
		Reason:             reason,
		Details:            details,
		AttemptedSolutions: attemptedSolutions,
		CreatedAt:          time.Now(),
	}

	st.exec.Log = append(st.exec.Log, domain.LogEntry{
		At:     esc.CreatedAt,
		Kind:   domain.LogEscalation,
		To:     st.exec.State,
		Reason: reason,
		Metadata: map[string]any{
			"escalation_id": esc.ID.String(),
			"level":         esc.Level,
		},
	})
	o.persist(ctx, st)

	body, err := domain.EncodeBody(domain.HumanIntervention{
		Type:               domain.HumanInterventionRequired,
		EscalationID:       esc.ID,
		ExecutionID:        executionID,
		Level:              esc.Level,
		Reason:             reason,
		Details:            details,
		AttemptedSolutions: attemptedSolutions,
	})
	if err != nil {
		o.release(st)
		return esc.ID, fmt.Errorf("encode escalation: %w", err)
	}
	st.queue(outgoing{
		recipient:   o.humanID,
		body:        body,
		kind:        domain.MessageSystem,
		correlation: executionID.String(),
	})
	o.release(st)

	telemetry.EscalationsTotal.Inc()
	o.logger.Warn("execution escalated to human",
		"execution_id", executionID,
		"escalation_id", esc.ID,
		"level", esc.Level,
		"reason", reason,
	)
	return esc.ID, nil
}

// notActive различает неизвестный и уже завершённый execution.
func (o *Orchestrator) notActive(ctx context.Context, executionID uuid.UUID) error {
	state, err := o.finishedState(ctx, executionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrExecutionTerminal, executionID, state)
}
