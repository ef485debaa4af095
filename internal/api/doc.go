// Package api содержит HTTP API сервер orchestrator'а.
//
// Структура:
//   - handler.go           — Handler с DI (orchestrator, шина, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и отображение ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - execution_handler.go — обработчики для /executions
//   - message_handler.go   — обработчики для /messages и /conversations
//
// API — тонкая обёртка: вся логика в orchestrator и bus.
package api
