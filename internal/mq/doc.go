// Package mq связывает шины сообщений нескольких процессов через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений шины
//   - consumer.go   — потребление очереди с ack/nack и DLQ
//   - bridge.go     — мост: исходящие сообщения шины в RabbitMQ, входящие в шину
//
// Маршрутизация:
//   - squad.messages (topic), routing key message.<kind>
//   - messages.orchestrator — status_update, question
//   - messages.workers      — assignment, system, answer
//   - squad.dlq / dlq.messages — сообщения, которые не удалось обработать
package mq
