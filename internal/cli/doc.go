// Package cli реализует инструмент командной строки AgentSquad.
//
// # Обзор
//
// CLI — клиентская утилита для оператора команды исполнителей.
// Работает через HTTP API orchestrator'а, не импортирует внутренние
// пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для AgentSquad API. Инкапсулирует запросы, разбор ответов
// (data, list, error) и превращает ответы 4xx/5xx в *APIError.
//
//	client := cli.NewClient("http://localhost:8081")
//	list, err := client.ListExecutions("blocked")
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
//
//	squad execution list --json | jq .
//
// ## Commands
//
//   - execution: list, start, show, progress, delegations, blockers,
//     block, resolve, escalate, complete, fail, cancel
//   - message: send, inbox, conversation
//
// Каждая группа создаётся фабрикой (NewExecutionCmd, NewMessageCmd),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после разбора PersistentFlags.
package cli
