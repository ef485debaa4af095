package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// HandleMessage обрабатывает входящее сообщение orchestrator'у.
//
// Обрабатываются только status_update; CorrelationID — ID делегирования.
// Сообщения для завершённых executions и повторные обновления
// игнорируются без ошибки.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg domain.Message) error {
	if msg.Kind != domain.MessageStatusUpdate {
		o.logger.Debug("ignoring message",
			"message_id", msg.ID,
			"kind", msg.Kind,
			"sender_id", msg.SenderID,
		)
		return nil
	}

	delegationID, err := uuid.Parse(msg.CorrelationID)
	if err != nil {
		return fmt.Errorf("%w: correlation %q is not a delegation id", ErrInvalidStatusUpdate, msg.CorrelationID)
	}

	update, err := domain.DecodeBody[domain.StatusUpdate](msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatusUpdate, err)
	}

	st, ok := o.lookupDelegation(delegationID)
	if !ok {
		o.logger.Debug("status update for inactive delegation",
			"delegation_id", delegationID,
			"sender_id", msg.SenderID,
		)
		return nil
	}

	return o.processStatusUpdate(ctx, st, delegationID, msg.SenderID, update)
}

// processStatusUpdate применяет статус делегирования.
func (o *Orchestrator) processStatusUpdate(ctx context.Context, st *ExecState, delegationID uuid.UUID, senderID string, update domain.StatusUpdate) error {
	st.mu.Lock()

	if st.exec.State.IsTerminal() {
		st.mu.Unlock()
		return nil
	}

	d := st.delegationByID(delegationID)
	if d == nil {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDelegation, delegationID)
	}

	logger := o.logger.With(
		"execution_id", st.ID(),
		"delegation_id", delegationID,
		"worker_id", senderID,
	)

	if !d.Status.IsActive() {
		st.mu.Unlock()
		logger.Debug("ignoring update for inactive delegation", "status", d.Status, "update", update.Status)
		return nil
	}
	if d.WorkerID != senderID {
		st.mu.Unlock()
		logger.Warn("status update from unassigned worker", "assigned_worker", d.WorkerID)
		return nil
	}

	switch update.Status {
	case domain.DelegationInProgress:
		d.Status = domain.DelegationInProgress
		d.UpdatedAt = time.Now()
		o.saveDelegation(ctx, d)
		o.recordDelegation(ctx, st, d, update.Detail)
		st.mu.Unlock()
		logger.Debug("delegation in progress")
		return nil

	case domain.DelegationDone:
		d.Status = domain.DelegationDone
		d.Output = update.Result
		d.UpdatedAt = time.Now()
		o.saveDelegation(ctx, d)
		o.adjustLoad(ctx, d.WorkerID, -1)
		o.recordDelegation(ctx, st, d, update.Detail)
		st.mu.Unlock()

		logger.Info("delegation done", "kind", d.Kind)
		return o.advance(ctx, st)

	case domain.DelegationFailed:
		d.Status = domain.DelegationFailed
		d.Output = update.Result
		d.UpdatedAt = time.Now()
		o.saveDelegation(ctx, d)
		o.adjustLoad(ctx, d.WorkerID, -1)
		o.recordDelegation(ctx, st, d, update.Detail)
		kind := d.Kind
		st.mu.Unlock()

		logger.Warn("delegation failed", "kind", kind, "detail", update.Detail)
		return o.onDelegationFailed(ctx, st, delegationID, kind, update.Detail)

	default:
		st.mu.Unlock()
		return fmt.Errorf("%w: status %q", ErrInvalidStatusUpdate, update.Status)
	}
}

// recordDelegation добавляет в журнал запись о смене статуса
// делегирования. Вызывается под st.mu.
func (o *Orchestrator) recordDelegation(ctx context.Context, st *ExecState, d *domain.Delegation, detail string) {
	st.exec.Log = append(st.exec.Log, domain.LogEntry{
		At:     d.UpdatedAt,
		Kind:   domain.LogDelegation,
		To:     st.exec.State,
		Reason: fmt.Sprintf("%s %s", d.Kind, d.Status),
		Metadata: map[string]any{
			"delegation_id": d.ID.String(),
			"worker_id":     d.WorkerID,
			"detail":        detail,
		},
	})
	o.persist(ctx, st)
}

// onDelegationFailed: отказ делегирования проверки завершает execution
// с ошибкой, отказ рабочего делегирования превращается в блокер.
func (o *Orchestrator) onDelegationFailed(ctx context.Context, st *ExecState, delegationID uuid.UUID, kind domain.DelegationKind, detail string) error {
	if kind.IsVerification() {
		_, err := o.FailExecution(ctx, st.ID(), map[string]any{
			"reason":        "verification failed",
			"delegation_id": delegationID.String(),
			"kind":          string(kind),
			"detail":        detail,
		})
		return err
	}

	_, err := o.HandleBlocker(ctx, st.ID(), fmt.Sprintf("%s delegation failed: %s", kind, detail), map[string]any{
		"severity":      string(domain.SeverityHigh),
		"delegation_id": delegationID.String(),
		"kind":          string(kind),
	})
	return err
}
