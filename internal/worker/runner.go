package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// Default configuration values.
const (
	defaultConcurrency = 4
	defaultQueueSize   = 64
)

// Runner обслуживает назначения для набора исполнителей.
//
// Runner подписывается на шину от имени каждого исполнителя, передаёт
// назначения ограниченному пулу goroutine'ов и отвечает orchestrator'у
// status_update сообщениями: in_progress, затем done или failed.
type Runner struct {
	bus      *bus.Bus
	registry *Registry
	workers  []domain.Worker
	retry    RetryPolicy

	concurrency int
	jobs        chan job
	unsubscribe []func()

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// job — одно назначение в очереди пула.
type job struct {
	worker domain.Worker
	msg    domain.Message
}

// Config — конфигурация Runner.
type Config struct {
	// Bus — шина, через которую приходят назначения.
	Bus *bus.Bus

	// Workers — исполнители, от имени которых работает runner.
	Workers []domain.Worker

	// Registry — invoker'ы по ролям (если nil — HTTPInvoker для всех ролей).
	Registry *Registry

	// Retry — политика повторов вызова.
	Retry RetryPolicy

	// Concurrency — размер пула (default: 4).
	Concurrency int

	// QueueSize — ёмкость очереди назначений (default: 64).
	QueueSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(&HTTPInvoker{})
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		bus:         cfg.Bus,
		registry:    cfg.Registry,
		workers:     cfg.Workers,
		retry:       cfg.Retry,
		concurrency: cfg.Concurrency,
		jobs:        make(chan job, cfg.QueueSize),
		logger:      cfg.Logger,
	}
}

// Start подписывает исполнителей на шину и запускает пул.
func (r *Runner) Start(ctx context.Context) error {
	if r.bus == nil {
		return ErrNoBus
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	for i := 0; i < r.concurrency; i++ {
		r.wg.Add(1)
		go r.loop(ctx)
	}

	for _, w := range r.workers {
		unsub := r.bus.Subscribe(w.ID, func(msg domain.Message) {
			r.enqueue(w, msg)
		})
		r.unsubscribe = append(r.unsubscribe, unsub)
	}

	r.logger.Info("worker runner started",
		"workers", len(r.workers),
		"concurrency", r.concurrency,
	)

	return nil
}

// Stop отписывается от шины и дожидается завершения пула.
// Незавершённые вызовы отменяются без ответа.
func (r *Runner) Stop() {
	r.stoppedMu.Lock()
	if r.stopped {
		r.stoppedMu.Unlock()
		return
	}
	r.stopped = true
	r.stoppedMu.Unlock()

	r.logger.Info("stopping worker runner")

	for _, unsub := range r.unsubscribe {
		unsub()
	}
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()

	r.logger.Info("worker runner stopped")
}

// IsStopped возвращает true, если runner остановлен.
func (r *Runner) IsStopped() bool {
	r.stoppedMu.RLock()
	defer r.stoppedMu.RUnlock()
	return r.stopped
}

// loop — одна goroutine пула.
func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.jobs:
			r.process(ctx, j)
		}
	}
}

// enqueue вызывается из колбэка шины и не блокируется.
func (r *Runner) enqueue(w domain.Worker, msg domain.Message) {
	if msg.Kind != domain.MessageAssignment {
		r.logger.Debug("ignoring message", "worker_id", w.ID, "kind", msg.Kind)
		return
	}
	if r.IsStopped() {
		return
	}

	select {
	case r.jobs <- job{worker: w, msg: msg}:
	default:
		// Ответ уходит из отдельной goroutine: колбэк вызван внутри Send отправителя
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.reject(job{worker: w, msg: msg}, ErrQueueFull)
		}()
	}
}
