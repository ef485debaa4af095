package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/engine"
	"github.com/shaiso/AgentSquad/internal/telemetry"
)

// Default configuration values.
const (
	defaultID           = "orchestrator"
	defaultHumanID      = "human"
	defaultEventWorkers = 4
	defaultEventBuffer  = 1024
	defaultStoreTimeout = 5 * time.Second
)

// Orchestrator управляет executions.
//
// Orchestrator — центральный компонент, который:
//   - Создаёт executions и ведёт их по конечному автомату
//   - Через хуки состояний анализирует задачу, строит план и назначает исполнителей
//   - Получает status_update от исполнителей через шину (event-driven)
//   - Создаёт блокеры, эскалирует человеку, завершает и отменяет executions
type Orchestrator struct {
	engine *engine.Engine
	bus    *bus.Bus
	store  Store
	roster Roster

	// executions — нетерминальные executions (executionID → state)
	executions map[uuid.UUID]*ExecState
	// byTask — живой execution задачи (taskID → executionID)
	byTask map[uuid.UUID]uuid.UUID
	// byDelegation — execution делегирования (delegationID → executionID)
	byDelegation map[uuid.UUID]uuid.UUID
	mu           sync.RWMutex

	id      string
	humanID string

	// Events
	events       chan domain.Message
	eventWorkers int
	unsubscribe  func()

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Bus — шина сообщений (обязательна).
	Bus *bus.Bus

	// Store — хранилище (default: MemoryStore).
	Store Store

	// Roster — реестр исполнителей (обязателен).
	Roster Roster

	// ID — адрес orchestrator'а на шине (default: "orchestrator").
	ID string

	// HumanID — получатель эскалаций (default: "human").
	HumanID string

	// EventWorkers — горутины обработки status_update (default: 4).
	EventWorkers int

	// EventBuffer — размер очереди событий (default: 1024).
	EventBuffer int

	// Clock — источник времени для Engine (default: time.Now).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт Orchestrator и регистрирует хуки состояний.
func New(cfg Config) *Orchestrator {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.ID == "" {
		cfg.ID = defaultID
	}
	if cfg.HumanID == "" {
		cfg.HumanID = defaultHumanID
	}
	if cfg.EventWorkers <= 0 {
		cfg.EventWorkers = defaultEventWorkers
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		bus:          cfg.Bus,
		store:        cfg.Store,
		roster:       cfg.Roster,
		executions:   make(map[uuid.UUID]*ExecState),
		byTask:       make(map[uuid.UUID]uuid.UUID),
		byDelegation: make(map[uuid.UUID]uuid.UUID),
		id:           cfg.ID,
		humanID:      cfg.HumanID,
		events:       make(chan domain.Message, cfg.EventBuffer),
		eventWorkers: cfg.EventWorkers,
		logger:       cfg.Logger,
	}

	o.engine = engine.New(engine.Config{
		Observer: func(_ *domain.Execution, from, to domain.ExecutionState) {
			telemetry.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
		},
		Clock:  cfg.Clock,
		Logger: cfg.Logger,
	})
	o.registerHooks()

	o.bus.Register(o.id)
	o.bus.Register(o.humanID)

	return o
}

// ID возвращает адрес orchestrator'а на шине.
func (o *Orchestrator) ID() string {
	return o.id
}

// Engine возвращает конечный автомат.
func (o *Orchestrator) Engine() *engine.Engine {
	return o.engine
}

// Start подписывает orchestrator на шину и запускает обработчики событий.
//
// Колбэк подписки только кладёт сообщение в очередь: обработка
// status_update может вызвать переходы и не должна задерживать отправителя.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"id", o.id,
		"event_workers", o.eventWorkers,
	)

	o.unsubscribe = o.bus.Subscribe(o.id, func(msg domain.Message) {
		o.enqueue(ctx, msg)
	})

	for i := 0; i < o.eventWorkers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.eventLoop(ctx)
		}()
	}

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает обработку событий и ждёт завершения горутин.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_executions", o.ActiveCount(),
	)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// enqueue передаёт сообщение обработчикам, не блокируя шину.
func (o *Orchestrator) enqueue(ctx context.Context, msg domain.Message) {
	select {
	case o.events <- msg:
		return
	default:
	}

	// Очередь переполнена: досылаем из отдельной горутины.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case o.events <- msg:
		case <-ctx.Done():
		}
	}()
}

// eventLoop обрабатывает сообщения из очереди до отмены ctx.
func (o *Orchestrator) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.events:
			if err := o.HandleMessage(ctx, msg); err != nil {
				o.logger.Warn("failed to handle message",
					"message_id", msg.ID,
					"kind", msg.Kind,
					"sender_id", msg.SenderID,
					"error", err,
				)
			}
		}
	}
}

// --- Registry ---

// lookup возвращает ExecState нетерминального execution.
func (o *Orchestrator) lookup(executionID uuid.UUID) (*ExecState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.executions[executionID]
	return st, ok
}

// lookupDelegation возвращает ExecState по ID делегирования.
func (o *Orchestrator) lookupDelegation(delegationID uuid.UUID) (*ExecState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	execID, ok := o.byDelegation[delegationID]
	if !ok {
		return nil, false
	}
	st, ok := o.executions[execID]
	return st, ok
}

// register резервирует задачу за новым execution.
func (o *Orchestrator) register(st *ExecState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.byTask[st.task.ID]; ok {
		return fmt.Errorf("%w: task %s (execution %s)", ErrDuplicateExecution, st.task.ID, existing)
	}

	o.executions[st.ID()] = st
	o.byTask[st.task.ID] = st.ID()
	telemetry.ExecutionsActive.Set(float64(len(o.executions)))
	return nil
}

// indexDelegations связывает делегирования с execution.
func (o *Orchestrator) indexDelegations(executionID uuid.UUID, ds []domain.Delegation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range ds {
		o.byDelegation[ds[i].ID] = executionID
	}
}

// forget удаляет терминальный execution из памяти и закрывает его
// correlation ID на шине.
func (o *Orchestrator) forget(st *ExecState, delegationIDs []uuid.UUID) {
	o.mu.Lock()
	delete(o.executions, st.ID())
	if o.byTask[st.task.ID] == st.ID() {
		delete(o.byTask, st.task.ID)
	}
	for _, id := range delegationIDs {
		delete(o.byDelegation, id)
	}
	telemetry.ExecutionsActive.Set(float64(len(o.executions)))
	o.mu.Unlock()

	o.bus.CloseCorrelation(st.ID().String())
	for _, id := range delegationIDs {
		o.bus.CloseCorrelation(id.String())
	}
}

// ActiveCount возвращает количество нетерминальных executions.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.executions)
}

// --- Transitions ---

// apply выполняет переход под захваченным st.mu и сохраняет результат.
// Возвращает шаг, запрошенный хуком нового состояния.
func (o *Orchestrator) apply(ctx context.Context, st *ExecState, to domain.ExecutionState, reason string, meta map[string]any) (*step, error) {
	from := st.exec.State
	st.next = nil

	err := o.engine.Transition(withState(ctx, st), st.exec, to, reason, meta)
	if errors.Is(err, engine.ErrInvalidTransition) {
		return nil, err
	}

	if to == domain.StateBlocked {
		st.lastActive = from
	} else if !to.IsTerminal() {
		st.lastActive = to
	}

	if to == domain.StateFailed {
		o.abortDelegations(ctx, st)
	}

	o.persist(ctx, st)

	next := st.next
	st.next = nil
	return next, err
}

// release снимает st.mu, отправляет outbox и убирает терминальный
// execution из памяти.
func (o *Orchestrator) release(st *ExecState) {
	outbox := st.takeOutbox()
	terminal := st.exec.State.IsTerminal()
	var delegationIDs []uuid.UUID
	if terminal {
		delegationIDs = make([]uuid.UUID, len(st.delegations))
		for i := range st.delegations {
			delegationIDs[i] = st.delegations[i].ID
		}
	}
	st.mu.Unlock()

	o.flush(outbox)

	if terminal {
		o.forget(st, delegationIDs)
	}
}

// drive выполняет цепочку переходов, пока хуки запрашивают следующий шаг.
func (o *Orchestrator) drive(ctx context.Context, st *ExecState, s *step) error {
	for s != nil {
		st.mu.Lock()
		if st.exec.State.IsTerminal() || (s.from != "" && st.exec.State != s.from) {
			o.release(st)
			return nil
		}
		next, err := o.apply(ctx, st, s.to, s.reason, s.meta)
		o.release(st)

		if err != nil {
			return o.afterError(ctx, st, err)
		}
		s = next
	}
	return nil
}

// settle продолжает цепочку после перехода, выполненного под чужой блокировкой.
func (o *Orchestrator) settle(ctx context.Context, st *ExecState, next *step, err error) error {
	if err != nil {
		return o.afterError(ctx, st, err)
	}
	return o.drive(ctx, st, next)
}

// afterError превращает ошибку хука в блокер.
func (o *Orchestrator) afterError(ctx context.Context, st *ExecState, err error) error {
	var hookErr *engine.HookError
	if !errors.As(err, &hookErr) {
		return err
	}

	telemetry.HookFailuresTotal.WithLabelValues(string(hookErr.State)).Inc()

	severity := domain.SeverityHigh
	if errors.Is(err, engine.ErrHookPanic) {
		severity = domain.SeverityCritical
	}

	o.logger.Warn("state hook failed, blocking execution",
		"execution_id", st.ID(),
		"state", hookErr.State,
		"error", hookErr.Err,
	)

	_, blockErr := o.HandleBlocker(ctx, st.ID(), fmt.Sprintf("%s hook failed: %v", hookErr.State, hookErr.Err), map[string]any{
		"severity": string(severity),
		"state":    string(hookErr.State),
		"error":    hookErr.Err.Error(),
	})
	if blockErr != nil && !errors.Is(blockErr, ErrExecutionTerminal) {
		o.logger.Error("failed to record hook blocker",
			"execution_id", st.ID(),
			"error", blockErr,
		)
	}
	return err
}

// persist сохраняет execution и новые записи журнала. Вызывается под st.mu.
func (o *Orchestrator) persist(ctx context.Context, st *ExecState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStoreTimeout)
	defer cancel()

	if err := o.store.SaveExecution(ctx, st.exec); err != nil {
		o.logger.Error("failed to save execution", "execution_id", st.ID(), "error", err)
	}
	for st.persisted < len(st.exec.Log) {
		if err := o.store.AppendLog(ctx, st.ID(), st.exec.Log[st.persisted]); err != nil {
			o.logger.Error("failed to append log", "execution_id", st.ID(), "error", err)
			return
		}
		st.persisted++
	}
}

// saveDelegation сохраняет делегирование. Вызывается под st.mu.
func (o *Orchestrator) saveDelegation(ctx context.Context, d *domain.Delegation) {
	if err := o.store.SaveDelegation(ctx, d); err != nil {
		o.logger.Error("failed to save delegation",
			"execution_id", d.ExecutionID,
			"delegation_id", d.ID,
			"error", err,
		)
	}
}

// flush отправляет накопленные сообщения.
func (o *Orchestrator) flush(outbox []outgoing) {
	for _, m := range outbox {
		if _, err := o.bus.Send(o.id, m.recipient, m.body, m.kind, m.correlation); err != nil {
			o.logger.Warn("failed to send message",
				"recipient", m.recipient,
				"kind", m.kind,
				"correlation_id", m.correlation,
				"error", err,
			)
		}
	}
}
