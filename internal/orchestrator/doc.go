// Package orchestrator управляет жизненным циклом executions.
//
// Orchestrator отвечает за:
//   - Создание execution и запуск конечного автомата
//   - Хуки состояний: анализ, планирование, назначение подзадач
//   - Обработку status_update сообщений от исполнителей
//   - Блокеры, эскалацию человеку, отмену
//   - Завершение execution (completed/failed)
//
// Orchestrator — единственный компонент, который изменяет Execution.
// Переходы одного execution сериализуются его собственным мьютексом,
// разные executions выполняются параллельно.
package orchestrator
