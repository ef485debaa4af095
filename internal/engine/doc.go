// Package engine содержит конечный автомат выполнения задачи.
//
// Включает:
//   - transitions.go — таблица допустимых переходов
//   - engine.go      — Transition и хуки состояний
//   - progress.go    — процент готовности и метрики по журналу
//
// Engine ничего не знает о делегированиях и исполнителях: побочные
// эффекты состояний подключаются снаружи через RegisterStateAction.
package engine
