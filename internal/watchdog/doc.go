// Package watchdog периодически проверяет активные executions.
//
// Watchdog реализует пороговую политику, которую orchestrator оставляет
// вызывающему слою:
//
//   - Execution не в blocked без событий в журнале дольше StallTimeout
//     получает блокер "stalled" (HandleBlocker)
//   - Execution в blocked дольше BlockedAfter эскалируется человеку
//     (EscalateToHuman), пока уровень меньше MaxLevel и с прошлой
//     эскалации прошло не меньше Cooldown
//
// Структура:
//   - schedule.go — разбор расписания robfig/cron (стандартный формат и @every)
//   - policy.go   — чистое решение по одному снимку (Decide)
//   - watchdog.go — Watchdog: cron-запуск и Tick
//
// Использование:
//
//	wd, err := watchdog.New(watchdog.Config{
//	    Orchestrator: orch,
//	    Schedule:     "@every 1m",
//	    Policy:       watchdog.DefaultPolicy(),
//	    Logger:       logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	wd.Start(ctx)
//	defer wd.Stop()
package watchdog
