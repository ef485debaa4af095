package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/orchestrator"
)

// DefaultSchedule — расписание проверок по умолчанию.
const DefaultSchedule = "@every 1m"

// Orchestrator — операции orchestrator'а, нужные watchdog'у.
type Orchestrator interface {
	Snapshots() []orchestrator.Snapshot
	ListBlockers(ctx context.Context, executionID uuid.UUID) ([]domain.Blocker, error)
	HandleBlocker(ctx context.Context, executionID uuid.UUID, description string, metadata map[string]any) (uuid.UUID, error)
	EscalateToHuman(ctx context.Context, executionID uuid.UUID, reason, details string, attemptedSolutions []string) (uuid.UUID, error)
}

// CorrelationPruner чистит закрытые correlation ID шины.
type CorrelationPruner interface {
	PruneClosed() int
}

// Watchdog — периодическая проверка зависших и заблокированных executions.
type Watchdog struct {
	orch     Orchestrator
	pruner   CorrelationPruner
	schedule cron.Schedule
	policy   Policy
	clock    func() time.Time
	logger   *slog.Logger

	cron      *cron.Cron
	stopped   bool
	stoppedMu sync.Mutex
}

// Config — конфигурация Watchdog.
type Config struct {
	Orchestrator Orchestrator

	// Correlations — если задан, каждый тик чистит устаревшие
	// закрытые correlation ID.
	Correlations CorrelationPruner

	// Schedule — cron-выражение или дескриптор (default: "@every 1m").
	Schedule string

	// Policy — пороги (нулевые поля заменяются значениями DefaultPolicy).
	Policy Policy

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// Report — итог одного тика.
type Report struct {
	Checked   int
	Stalled   int
	Escalated int
	Pruned    int
}

// New создаёт Watchdog.
func New(cfg Config) (*Watchdog, error) {
	if cfg.Orchestrator == nil {
		return nil, ErrNoOrchestrator
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	def := DefaultPolicy()
	if cfg.Policy.StallTimeout <= 0 {
		cfg.Policy.StallTimeout = def.StallTimeout
	}
	if cfg.Policy.BlockedAfter <= 0 {
		cfg.Policy.BlockedAfter = def.BlockedAfter
	}
	if cfg.Policy.Cooldown <= 0 {
		cfg.Policy.Cooldown = def.Cooldown
	}
	if cfg.Policy.MaxLevel <= 0 {
		cfg.Policy.MaxLevel = def.MaxLevel
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Watchdog{
		orch:     cfg.Orchestrator,
		pruner:   cfg.Correlations,
		schedule: sched,
		policy:   cfg.Policy,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Start запускает проверки по расписанию. Пересекающиеся тики пропускаются.
func (w *Watchdog) Start(ctx context.Context) {
	adapter := cronLogger{logger: w.logger}
	w.cron = cron.New(cron.WithLogger(adapter))

	job := cron.NewChain(cron.SkipIfStillRunning(adapter)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error("watchdog tick failed", "error", err)
		}
	}))
	w.cron.Schedule(w.schedule, job)
	w.cron.Start()

	w.logger.Info("watchdog started",
		"stall_timeout", w.policy.StallTimeout,
		"blocked_after", w.policy.BlockedAfter,
		"cooldown", w.policy.Cooldown,
		"max_level", w.policy.MaxLevel,
	)
}

// Stop останавливает расписание и дожидается текущего тика.
func (w *Watchdog) Stop() {
	w.stoppedMu.Lock()
	if w.stopped || w.cron == nil {
		w.stoppedMu.Unlock()
		return
	}
	w.stopped = true
	w.stoppedMu.Unlock()

	<-w.cron.Stop().Done()
	w.logger.Info("watchdog stopped")
}

// Tick выполняет одну проверку всех активных executions.
//
// Ошибки одного execution не блокируют обработку остальных.
func (w *Watchdog) Tick(ctx context.Context) (Report, error) {
	now := w.clock()
	snapshots := w.orch.Snapshots()

	var report Report
	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		d := Decide(snap.Execution, now, w.policy)
		switch d.Action {
		case ActionStall:
			if w.stall(ctx, snap, d) {
				report.Stalled++
			}
		case ActionEscalate:
			if w.escalate(ctx, snap, d) {
				report.Escalated++
			}
		}
	}

	if w.pruner != nil {
		report.Pruned = w.pruner.PruneClosed()
	}

	if report.Stalled > 0 || report.Escalated > 0 {
		w.logger.Info("watchdog tick completed",
			"checked", report.Checked,
			"stalled", report.Stalled,
			"escalated", report.Escalated,
		)
	}
	if report.Pruned > 0 {
		w.logger.Debug("closed correlations pruned", "count", report.Pruned)
	}
	return report, nil
}

func (w *Watchdog) stall(ctx context.Context, snap orchestrator.Snapshot, d Decision) bool {
	exec := snap.Execution
	_, err := w.orch.HandleBlocker(ctx, exec.ID, d.Reason, map[string]any{
		"severity": string(domain.SeverityMedium),
		"source":   "watchdog",
		"state":    string(exec.State),
	})
	if err != nil {
		w.logFailure("stall", exec.ID, err)
		return false
	}
	return true
}

func (w *Watchdog) escalate(ctx context.Context, snap orchestrator.Snapshot, d Decision) bool {
	exec := snap.Execution

	var open, attempted []string
	blockers, err := w.orch.ListBlockers(ctx, exec.ID)
	if err != nil {
		w.logger.Debug("failed to list blockers", "execution_id", exec.ID, "error", err)
	}
	for _, b := range blockers {
		if b.IsResolved() {
			attempted = append(attempted, *b.Resolution)
			continue
		}
		open = append(open, b.Description)
	}

	_, err = w.orch.EscalateToHuman(ctx, exec.ID, d.Reason, strings.Join(open, "; "), attempted)
	if err != nil {
		w.logFailure("escalate", exec.ID, err)
		return false
	}
	return true
}

// logFailure — execution мог завершиться между снимком и действием.
func (w *Watchdog) logFailure(action string, executionID uuid.UUID, err error) {
	if errors.Is(err, orchestrator.ErrExecutionTerminal) || errors.Is(err, orchestrator.ErrExecutionNotFound) {
		w.logger.Debug("execution finished before watchdog action",
			"execution_id", executionID,
			"action", action,
		)
		return
	}
	w.logger.Error("watchdog action failed",
		"execution_id", executionID,
		"action", action,
		"error", err,
	)
}

// cronLogger передаёт логи robfig/cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
