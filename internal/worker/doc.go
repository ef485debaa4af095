// Package worker вызывает исполнителей по назначениям orchestrator'а.
//
// # Обзор
//
// Runner работает от имени набора исполнителей (domain.Worker). Для каждого
// он подписывается на шину сообщений и обрабатывает сообщения assignment:
//
//  1. Назначение попадает в очередь ограниченного пула goroutine'ов
//  2. Orchestrator'у уходит status_update "in_progress"
//  3. Invoker вызывает исполнителя (с retry)
//  4. Успех → status_update "done" с result, ошибка → "failed" с detail
//
// Ответ адресуется отправителю назначения с тем же correlation ID
// (ID делегирования). Если execution уже завершён, шина отклоняет ответ
// с bus.ErrCorrelationClosed, и runner его молча отбрасывает.
//
//	r := worker.New(worker.Config{
//	    Bus:     b,
//	    Workers: workers,
//	    Retry:   worker.RetryPolicy{MaxAttempts: 3, Backoff: worker.BackoffExponential},
//	    Logger:  logger,
//	})
//
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Stop()
//
// # Invoker
//
//	type Invoker interface {
//	    Process(ctx context.Context, w domain.Worker, a domain.Assignment) (*Result, error)
//	}
//
// Реализации:
//   - HTTPInvoker — POST назначения на Worker.Endpoint
//   - SimulatedInvoker — задержка и успех, для локального запуска
//
// Registry выбирает invoker по роли исполнителя, с общим fallback.
//
// # Retry
//
// Retry выполняется в процессе. Стратегии backoff:
//   - "exponential": delay = initialDelay * 2^(attempt-1), capped at maxDelay
//   - "fixed": delay = initialDelay
//
// Ошибки двух уровней:
//   - Инфраструктурные (error от Process) — повторяются, кроме ErrNoEndpoint и отмены
//   - Логические (Result.Error) — повторяются; при заданном OnStatus только для этих HTTP-кодов
package worker
