package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// MessageType — тип конверта в очереди.
type MessageType string

// MessageTypeBus — конверт с сообщением шины.
const MessageTypeBus MessageType = "bus.message"

// Message — конверт, публикуемый в RabbitMQ.
type Message struct {
	// ID — уникальный идентификатор (совпадает с ID сообщения шины).
	ID string `json:"id"`

	// Type — тип конверта.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует конверт в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishMessage публикует сообщение шины с ключом message.<kind>.
func (p *Publisher) PublishMessage(ctx context.Context, m domain.Message) error {
	return p.Publish(ctx, ExchangeMessages, RoutingKeyFor(m.Kind), Envelope(m))
}

// Envelope упаковывает сообщение шины в конверт.
func Envelope(m domain.Message) *Message {
	return &Message{
		ID:        m.ID.String(),
		Type:      MessageTypeBus,
		Payload:   m,
		Timestamp: m.Timestamp,
	}
}
