package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeMessages Exchange = "squad.messages"
	ExchangeDLQ      Exchange = "squad.dlq"
)

// Queues.
const (
	QueueOrchestrator Queue = "messages.orchestrator"
	QueueWorkers      Queue = "messages.workers"
	QueueDLQMessages  Queue = "dlq.messages"
)

// RoutingKeyDLQ — ключ сообщений, отправленных в DLQ.
const RoutingKeyDLQ RoutingKey = "messages"

// routingPrefix — префикс ключей маршрутизации сообщений шины.
const routingPrefix = "message."

// queueKinds — какие типы сообщений получает каждая очередь.
var queueKinds = map[Queue][]domain.MessageKind{
	QueueOrchestrator: {domain.MessageStatusUpdate, domain.MessageQuestion},
	QueueWorkers:      {domain.MessageAssignment, domain.MessageSystem, domain.MessageAnswer},
}

// RoutingKeyFor возвращает ключ маршрутизации для типа сообщения.
func RoutingKeyFor(kind domain.MessageKind) RoutingKey {
	return RoutingKey(routingPrefix + string(kind))
}

// KindFromRoutingKey — обратное преобразование RoutingKeyFor.
func KindFromRoutingKey(key RoutingKey) (domain.MessageKind, bool) {
	s, ok := strings.CutPrefix(string(key), routingPrefix)
	if !ok {
		return "", false
	}
	kind := domain.MessageKind(s)
	return kind, kind.IsValid()
}

// QueueFor возвращает очередь, в которую попадает сообщение данного типа.
func QueueFor(kind domain.MessageKind) (Queue, bool) {
	for q, kinds := range queueKinds {
		for _, k := range kinds {
			if k == kind {
				return q, true
			}
		}
	}
	return "", false
}

// KindsFor возвращает типы сообщений очереди.
func KindsFor(q Queue) []domain.MessageKind {
	return append([]domain.MessageKind(nil), queueKinds[q]...)
}

// SetupTopology объявляет exchanges, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeMessages, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди. Рабочие очереди отправляют отклонённые
// сообщения в DLQ.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueOrchestrator, dlqArgs},
		{QueueWorkers, dlqArgs},
		{QueueDLQMessages, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// binding — привязка очереди к обменнику.
type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// bindings строит привязки из queueKinds.
func bindings() []binding {
	out := []binding{{QueueDLQMessages, RoutingKeyDLQ, ExchangeDLQ}}
	for _, q := range []Queue{QueueOrchestrator, QueueWorkers} {
		for _, kind := range queueKinds[q] {
			out = append(out, binding{q, RoutingKeyFor(kind), ExchangeMessages})
		}
	}
	return out
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	for _, b := range bindings() {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  AgentSquad RabbitMQ Topology:

    squad.messages (topic)
    ├── messages.orchestrator [message.status_update, message.question]
    │       Consumer: Orchestrator
    │       DLQ: dlq.messages
    └── messages.workers [message.assignment, message.system, message.answer]
            Consumer: Worker runner
            DLQ: dlq.messages

    squad.dlq (direct)
    └── dlq.messages [routing: messages]
            Manual processing
  `
}
