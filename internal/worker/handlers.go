package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/telemetry"
)

// Исходы вызова для метрики worker_invocations_total.
const (
	outcomeDone     = "done"
	outcomeFailed   = "failed"
	outcomeRetried  = "retried"
	outcomeRejected = "rejected"
)

// process выполняет одно назначение и сообщает результат.
func (r *Runner) process(ctx context.Context, j job) {
	a, err := domain.DecodeBody[domain.Assignment](j.msg.Body)
	if err != nil {
		r.reject(j, fmt.Errorf("%w: %v", ErrInvalidAssignment, err))
		return
	}

	logger := r.logger.With(
		"worker_id", j.worker.ID,
		"execution_id", a.ExecutionID,
		"delegation_id", a.DelegationID,
	)
	logger.Info("assignment received", "kind", a.Kind, "type", a.Type)

	r.report(j, domain.StatusUpdate{Status: domain.DelegationInProgress})

	inv, err := r.registry.Get(j.worker.Role)
	if err != nil {
		r.reject(j, err)
		return
	}

	result, execErr := r.executeWithRetry(ctx, inv, j.worker, a)

	// Runner останавливается: orchestrator увидит зависание через watchdog
	if ctx.Err() != nil {
		logger.Warn("assignment abandoned on shutdown")
		return
	}

	if execErr == nil && (result == nil || result.Error == "") {
		var output map[string]any
		if result != nil {
			output = result.Output
		}
		telemetry.WorkerInvocationsTotal.WithLabelValues(outcomeDone).Inc()
		logger.Info("assignment done")
		r.report(j, domain.StatusUpdate{Status: domain.DelegationDone, Result: output})
		return
	}

	update := domain.StatusUpdate{Status: domain.DelegationFailed}
	if execErr != nil {
		update.Detail = execErr.Error()
	} else {
		update.Detail = result.Error
		update.Result = result.Output
	}

	telemetry.WorkerInvocationsTotal.WithLabelValues(outcomeFailed).Inc()
	logger.Warn("assignment failed", "error", update.Detail)
	r.report(j, update)
}

// reject сообщает failed без вызова исполнителя.
func (r *Runner) reject(j job, reason error) {
	telemetry.WorkerInvocationsTotal.WithLabelValues(outcomeRejected).Inc()
	r.logger.Warn("assignment rejected",
		"worker_id", j.worker.ID,
		"correlation_id", j.msg.CorrelationID,
		"error", reason,
	)
	r.report(j, domain.StatusUpdate{Status: domain.DelegationFailed, Detail: reason.Error()})
}

// report отправляет status_update отправителю назначения.
func (r *Runner) report(j job, update domain.StatusUpdate) {
	body, err := domain.EncodeBody(update)
	if err != nil {
		r.logger.Error("failed to encode status update", "error", err)
		return
	}

	_, err = r.bus.Send(j.worker.ID, j.msg.SenderID, body, domain.MessageStatusUpdate, j.msg.CorrelationID)
	switch {
	case err == nil:
	case errors.Is(err, bus.ErrCorrelationClosed):
		r.logger.Debug("execution finished, status update dropped",
			"worker_id", j.worker.ID,
			"correlation_id", j.msg.CorrelationID,
			"status", update.Status,
		)
	default:
		r.logger.Warn("failed to send status update",
			"worker_id", j.worker.ID,
			"correlation_id", j.msg.CorrelationID,
			"error", err,
		)
	}
}

// executeWithRetry вызывает исполнителя с retry согласно RetryPolicy.
func (r *Runner) executeWithRetry(ctx context.Context, inv Invoker, w domain.Worker, a domain.Assignment) (*Result, error) {
	maxAttempts := r.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		result, err := inv.Process(ctx, w, a)

		// Успех — инфраструктурной ошибки нет и логической ошибки нет
		if err == nil && (result == nil || result.Error == "") {
			return result, nil
		}

		if attempt >= maxAttempts || !shouldRetry(result, err, r.retry) {
			return result, err
		}

		delay := calculateBackoff(attempt, r.retry)
		telemetry.WorkerInvocationsTotal.WithLabelValues(outcomeRetried).Inc()
		r.logger.Debug("retrying invocation",
			"worker_id", w.ID,
			"delegation_id", a.DelegationID,
			"attempt", attempt,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
