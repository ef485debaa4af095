// Package telemetry — логирование и метрики процессов AgentSquad.
//
// logging.go настраивает slog по LOG_LEVEL и LOG_FORMAT (json или text)
// и добавляет к логгеру execution_id, delegation_id и worker_id.
//
// metrics.go регистрирует счётчики Prometheus: переходы состояний,
// назначения по ролям, блокеры, эскалации, трафик шины и вызовы
// исполнителей. Процессы отдают их на /metrics.
package telemetry
