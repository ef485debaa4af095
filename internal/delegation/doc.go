// Package delegation сопоставляет задачи с исполнителями.
//
// Включает:
//   - keywords.go  — поиск ключевых слов в тексте задачи
//   - detect.go    — тип задачи, рабочие области, навыки, сложность
//   - score.go     — оценка и ранжирование исполнителей
//   - breakdown.go — разбиение задачи на конвейер делегирований
//   - graph.go     — граф зависимостей делегирований
//
// Все функции пакета чистые: они не хранят состояние и не изменяют
// переданные исполнителей или делегирования.
package delegation
