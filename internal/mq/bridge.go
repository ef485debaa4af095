package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// defaultOutboxSize — буфер исходящих сообщений моста.
const defaultOutboxSize = 1024

// MessagePublisher публикует сообщения шины. Реализуется Publisher.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, m domain.Message) error
}

// Side — сторона процесса: какую очередь он читает и какие типы отправляет.
type Side struct {
	// Inbound — очередь, сообщения которой попадают в локальную шину.
	Inbound Queue

	// Outbound — типы сообщений, публикуемые в RabbitMQ.
	Outbound []domain.MessageKind
}

// OrchestratorSide — orchestrator читает status_update/question
// и отправляет остальное исполнителям.
func OrchestratorSide() Side {
	return Side{Inbound: QueueOrchestrator, Outbound: KindsFor(QueueWorkers)}
}

// WorkerSide — процесс исполнителей: обратное направление.
func WorkerSide() Side {
	return Side{Inbound: QueueWorkers, Outbound: KindsFor(QueueOrchestrator)}
}

// Bridge зеркалирует трафик локальной шины через RabbitMQ.
//
// Исходящие сообщения снимаются через bus.Tap и публикуются из отдельной
// горутины, чтобы колбэки шины не ждали сети. Входящие сообщения
// доставляются в шину через Relay с сохранением ID.
type Bridge struct {
	bus       *bus.Bus
	publisher MessagePublisher
	conn      *Connection
	side      Side
	outbound  map[domain.MessageKind]bool

	outbox chan domain.Message
	untap  func()

	consumer *Consumer
	logger   *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// BridgeConfig — конфигурация Bridge.
type BridgeConfig struct {
	// Bus — локальная шина (обязательна).
	Bus *bus.Bus

	// Conn — соединение для потребления входящей очереди.
	// Nil — мост только публикует.
	Conn *Connection

	// Publisher — публикация исходящих (default: NewPublisher(Conn)).
	Publisher MessagePublisher

	// Side — направление моста.
	Side Side

	// OutboxSize — буфер исходящих (default: 1024).
	OutboxSize int

	// Prefetch — prefetch consumer'а (default: 1).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// NewBridge создаёт мост.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	if cfg.Publisher == nil && cfg.Conn != nil {
		cfg.Publisher = NewPublisher(cfg.Conn, cfg.Logger)
	}

	outbound := make(map[domain.MessageKind]bool, len(cfg.Side.Outbound))
	for _, k := range cfg.Side.Outbound {
		outbound[k] = true
	}

	b := &Bridge{
		bus:       cfg.Bus,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		side:      cfg.Side,
		outbound:  outbound,
		outbox:    make(chan domain.Message, cfg.OutboxSize),
		logger:    cfg.Logger.With("component", "mq_bridge", "inbound", cfg.Side.Inbound),
	}

	if cfg.Conn != nil && cfg.Side.Inbound != "" {
		b.consumer = NewConsumer(cfg.Conn, b.logger, ConsumerConfig{
			Queue:    cfg.Side.Inbound,
			Handler:  b.handle,
			Prefetch: cfg.Prefetch,
		})
	}
	return b
}

// Start подключает мост к шине и запускает публикацию и потребление.
func (b *Bridge) Start(ctx context.Context) error {
	if b.publisher == nil {
		return fmt.Errorf("bridge has no publisher")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	b.untap = b.bus.Tap(b.capture)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publishLoop(ctx)
	}()

	if b.consumer != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	b.logger.Info("bridge started", "outbound", b.side.Outbound)
	return nil
}

// Stop отключает мост от шины и ждёт завершения горутин.
// Неотправленные сообщения из буфера теряются.
func (b *Bridge) Stop() {
	if b.untap != nil {
		b.untap()
	}
	if b.consumer != nil {
		b.consumer.Stop()
	}
	if b.cancelFunc != nil {
		b.cancelFunc()
	}
	b.wg.Wait()

	b.logger.Info("bridge stopped", "dropped", len(b.outbox))
}

// capture — колбэк Tap: берёт только исходящие типы и не блокирует шину.
func (b *Bridge) capture(msg domain.Message) {
	if !b.outbound[msg.Kind] {
		return
	}

	select {
	case b.outbox <- msg:
	default:
		b.logger.Warn("bridge outbox full, dropping message",
			"message_id", msg.ID,
			"kind", msg.Kind,
			"recipient_id", msg.RecipientID,
		)
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.publisher.PublishMessage(ctx, msg); err != nil {
				b.logger.Error("failed to publish message",
					"message_id", msg.ID,
					"kind", msg.Kind,
					"error", err,
				)
			}
		}
	}
}

// handle доставляет входящее сообщение в локальную шину.
func (b *Bridge) handle(_ context.Context, d *Delivery) error {
	if d.Message.Type != MessageTypeBus {
		return Permanent(fmt.Errorf("unexpected envelope type %q", d.Message.Type))
	}

	msg, err := ParsePayload[domain.Message](&d.Message)
	if err != nil {
		return Permanent(err)
	}

	err = b.bus.Relay(msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bus.ErrCorrelationClosed):
		// Execution уже завершён: сообщение устарело.
		b.logger.Debug("dropping message for closed correlation",
			"message_id", msg.ID,
			"correlation_id", msg.CorrelationID,
		)
		return nil
	case errors.Is(err, bus.ErrInvalidKind), errors.Is(err, bus.ErrUnknownRecipient):
		return Permanent(err)
	default:
		return err
	}
}
