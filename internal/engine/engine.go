package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// StateAction — побочный эффект входа в состояние.
//
// Вызывается синхронно внутри Transition после фиксации нового
// состояния. Долгую работу хук должен отдавать наружу.
type StateAction func(ctx context.Context, exec *domain.Execution) error

// TransitionObserver получает уведомление о каждом зафиксированном переходе.
type TransitionObserver func(exec *domain.Execution, from, to domain.ExecutionState)

// Engine — конечный автомат над Execution.State.
//
// Engine не синхронизирует доступ к execution: вызывающий
// (Orchestrator) сериализует переходы одного execution сам.
type Engine struct {
	actions  map[domain.ExecutionState]StateAction
	mu       sync.RWMutex
	observer TransitionObserver
	clock    func() time.Time
	logger   *slog.Logger
}

// Config — конфигурация Engine.
type Config struct {
	// Observer вызывается после каждого перехода (метрики, аудит).
	Observer TransitionObserver

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт Engine без хуков.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		actions:  make(map[domain.ExecutionState]StateAction),
		observer: cfg.Observer,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// RegisterStateAction связывает хук с состоянием. Повторная регистрация
// заменяет предыдущий хук, nil снимает его.
func (e *Engine) RegisterStateAction(state domain.ExecutionState, action StateAction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if action == nil {
		delete(e.actions, state)
		return
	}
	e.actions[state] = action
}

// Transition переводит execution в состояние to.
//
// Недопустимый переход возвращает ErrInvalidTransition и ничего не меняет.
// Иначе в журнал добавляется запись, состояние обновляется и вызывается
// хук нового состояния. Ошибка или паника хука возвращается как *HookError,
// но переход остаётся зафиксированным.
func (e *Engine) Transition(ctx context.Context, exec *domain.Execution, to domain.ExecutionState, reason string, metadata map[string]any) error {
	if exec == nil {
		return ErrNilExecution
	}

	from := exec.State
	if !IsValidTransition(from, to) {
		return invalidTransition(from, to)
	}

	now := e.clock()
	exec.Log = append(exec.Log, domain.LogEntry{
		At:       now,
		Kind:     domain.LogTransition,
		From:     from,
		To:       to,
		Reason:   reason,
		Metadata: metadata,
	})
	exec.State = to

	if from == domain.StatePending && exec.StartedAt == nil {
		exec.StartedAt = &now
	}
	if to.IsTerminal() {
		exec.CompletedAt = &now
	}

	e.logger.Debug("execution transitioned",
		"execution_id", exec.ID,
		"from", from,
		"to", to,
		"reason", reason,
	)

	if e.observer != nil {
		e.observer(exec, from, to)
	}

	e.mu.RLock()
	action := e.actions[to]
	e.mu.RUnlock()

	if action == nil {
		return nil
	}

	if err := runAction(ctx, action, exec); err != nil {
		return &HookError{State: to, Err: err}
	}
	return nil
}

// runAction вызывает хук, превращая панику в ErrHookPanic.
func runAction(ctx context.Context, action StateAction, exec *domain.Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHookPanic, r)
		}
	}()
	return action(ctx, exec)
}

// Metrics возвращает метрики execution на текущий момент.
func (e *Engine) Metrics(exec *domain.Execution) Metrics {
	return ComputeMetrics(exec.Transitions(), e.clock())
}
