// AgentSquad Orchestrator — координирует выполнение задач командой исполнителей.
//
// Orchestrator:
//   - Принимает задачи через REST API и ведёт их по машине состояний
//   - Разбивает задачи на делегирования и назначает исполнителей
//   - Обрабатывает status_update, блокеры и эскалации
//   - Периодически проверяет зависшие executions (watchdog)
//
// Без DB_URL состояние хранится в памяти. Без RABBITMQ_URL исполнители
// из roster обслуживаются в этом же процессе.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/AgentSquad/internal/api"
	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/config"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/mq"
	"github.com/shaiso/AgentSquad/internal/orchestrator"
	"github.com/shaiso/AgentSquad/internal/repo"
	"github.com/shaiso/AgentSquad/internal/roster"
	"github.com/shaiso/AgentSquad/internal/telemetry"
	"github.com/shaiso/AgentSquad/internal/watchdog"
	"github.com/shaiso/AgentSquad/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting squad-orchestrator")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилище и реестр исполнителей
	var (
		store orchestrator.Store
		team  orchestrator.Roster
	)
	if cfg.Database.URL != "" {
		pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")

		pgStore := repo.NewStore(pool)
		for _, w := range cfg.Workers() {
			if err := pgStore.Workers.Upsert(ctx, cfg.TeamID(), w); err != nil {
				logger.Error("failed to register worker", "worker_id", w.ID, "error", err)
				os.Exit(1)
			}
		}
		store, team = pgStore, pgStore
	} else {
		logger.Warn("DB_URL is not set, keeping state in memory")

		reg := roster.New(logger)
		for _, w := range cfg.Workers() {
			if err := reg.Register(cfg.TeamID(), w); err != nil {
				logger.Error("failed to register worker", "worker_id", w.ID, "error", err)
				os.Exit(1)
			}
		}
		store, team = orchestrator.NewMemoryStore(), reg
	}

	// Шина сообщений
	b := bus.New(bus.Config{Logger: logger})
	untap := b.Tap(func(msg domain.Message) {
		telemetry.BusMessagesTotal.WithLabelValues(string(msg.Kind)).Inc()
	})
	defer untap()

	orch := orchestrator.New(orchestrator.Config{
		Bus:     b,
		Store:   store,
		Roster:  team,
		ID:      cfg.Orchestrator.ID,
		HumanID: cfg.Orchestrator.HumanID,
		Logger:  logger,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	defer orch.Stop()

	// Исполнители: через RabbitMQ или в этом же процессе
	if cfg.RabbitMQ.URL != "" {
		stopBridge, err := startBridge(ctx, cfg, b, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, assignments stay in the local bus", "error", err)
		} else {
			defer stopBridge()
		}
	} else {
		runner := worker.New(worker.Config{
			Bus:         b,
			Workers:     cfg.Workers(),
			Registry:    newRegistry(cfg),
			Retry:       cfg.RetryPolicy(),
			Concurrency: cfg.Worker.Concurrency,
			QueueSize:   cfg.Worker.QueueSize,
			Logger:      logger,
		})
		if err := runner.Start(ctx); err != nil {
			logger.Error("failed to start worker runner", "error", err)
			os.Exit(1)
		}
		defer runner.Stop()
	}

	// Watchdog
	if cfg.Watchdog.Enabled {
		wd, err := watchdog.New(watchdog.Config{
			Orchestrator: orch,
			Correlations: b,
			Schedule:     cfg.Watchdog.Schedule,
			Policy:       cfg.WatchdogPolicy(),
			Logger:       logger,
		})
		if err != nil {
			logger.Error("failed to create watchdog", "error", err)
			os.Exit(1)
		}
		wd.Start(ctx)
		defer wd.Stop()
	}

	// HTTP mux: REST API + /healthz + /metrics
	mux := http.NewServeMux()
	api.NewHandler(api.Config{Orchestrator: orch, Bus: b, Logger: logger}).RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.OrchestratorPort)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	server.Shutdown(context.Background())
	logger.Info("squad-orchestrator stopping")
}

// startBridge подключает шину к RabbitMQ со стороны orchestrator'а.
func startBridge(ctx context.Context, cfg *config.Config, b *bus.Bus, logger *slog.Logger) (func(), error) {
	conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	bridge := mq.NewBridge(mq.BridgeConfig{
		Bus:        b,
		Conn:       conn,
		Side:       mq.OrchestratorSide(),
		OutboxSize: cfg.RabbitMQ.OutboxSize,
		Prefetch:   cfg.RabbitMQ.Prefetch,
		Logger:     logger,
	})
	if err := bridge.Start(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return func() {
		bridge.Stop()
		conn.Close()
	}, nil
}

// newRegistry выбирает invoker исполнителей по конфигурации.
func newRegistry(cfg *config.Config) *worker.Registry {
	if cfg.Worker.Simulate {
		return worker.NewRegistry(&worker.SimulatedInvoker{Delay: cfg.Worker.SimulatedDelay})
	}
	return worker.NewRegistry(&worker.HTTPInvoker{Timeout: cfg.Worker.RequestTimeout})
}
