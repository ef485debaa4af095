// AgentSquad Worker — обслуживает назначения исполнителей из roster.
//
// Worker:
//   - Получает assignment-сообщения из RabbitMQ
//   - Вызывает исполнителя по HTTP (или симулирует вызов)
//   - Повторяет вызов по политике retry
//   - Отправляет status_update обратно orchestrator'у
//
// Процессы worker масштабируются горизонтально.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/config"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/mq"
	"github.com/shaiso/AgentSquad/internal/telemetry"
	"github.com/shaiso/AgentSquad/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting squad-worker")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Roster.Workers) == 0 {
		logger.Error("roster.workers is empty, nothing to serve")
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Локальная шина процесса
	b := bus.New(bus.Config{Logger: logger})
	untap := b.Tap(func(msg domain.Message) {
		telemetry.BusMessagesTotal.WithLabelValues(string(msg.Kind)).Inc()
	})
	defer untap()

	// RabbitMQ
	conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}

	bridge := mq.NewBridge(mq.BridgeConfig{
		Bus:        b,
		Conn:       conn,
		Side:       mq.WorkerSide(),
		OutboxSize: cfg.RabbitMQ.OutboxSize,
		Prefetch:   cfg.RabbitMQ.Prefetch,
		Logger:     logger,
	})

	// Invoker'ы
	var fallback worker.Invoker = &worker.HTTPInvoker{Timeout: cfg.Worker.RequestTimeout}
	if cfg.Worker.Simulate {
		fallback = &worker.SimulatedInvoker{Delay: cfg.Worker.SimulatedDelay}
	}

	runner := worker.New(worker.Config{
		Bus:         b,
		Workers:     cfg.Workers(),
		Registry:    worker.NewRegistry(fallback),
		Retry:       cfg.RetryPolicy(),
		Concurrency: cfg.Worker.Concurrency,
		QueueSize:   cfg.Worker.QueueSize,
		Logger:      logger,
	})

	// Runner подписывается раньше моста, чтобы не терять назначения
	if err := runner.Start(ctx); err != nil {
		logger.Error("failed to start worker runner", "error", err)
		os.Exit(1)
	}
	if err := bridge.Start(ctx); err != nil {
		logger.Error("failed to start bridge", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			http.Error(w, "amqp disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.WorkerPort)
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
	bridge.Stop()
	runner.Stop()
	logger.Info("squad-worker stopped")
}
