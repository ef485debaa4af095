package engine

import (
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// progress — позиция состояния на happy path в процентах.
var progress = map[domain.ExecutionState]int{
	domain.StatePending:    0,
	domain.StateAnalyzing:  15,
	domain.StatePlanning:   30,
	domain.StateDelegated:  45,
	domain.StateInProgress: 60,
	domain.StateReviewing:  85,
	domain.StateTesting:    85,
	domain.StateCompleted:  100,
	domain.StateBlocked:    0,
	domain.StateFailed:     0,
}

// ComputeProgress возвращает процент готовности для состояния.
// Для blocked и failed возвращает 0.
func ComputeProgress(state domain.ExecutionState) int {
	return progress[state]
}

// ProgressWithFallback для blocked возвращает прогресс последнего
// рабочего состояния. Engine его не хранит, его передаёт вызывающий.
func ProgressWithFallback(state, lastActive domain.ExecutionState) int {
	if state == domain.StateBlocked {
		return ComputeProgress(lastActive)
	}
	return ComputeProgress(state)
}

// Metrics — производные метрики по журналу переходов.
type Metrics struct {
	TransitionCount int                                     `json:"transition_count"`
	TimePerState    map[domain.ExecutionState]time.Duration `json:"time_per_state"`
	TotalDuration   time.Duration                           `json:"total_duration"`
}

// ComputeMetrics считает метрики по упорядоченному журналу.
//
// Время в состоянии — разница между соседними записями. Последняя
// запись для нетерминального состояния меряется до now.
func ComputeMetrics(history []domain.LogEntry, now time.Time) Metrics {
	m := Metrics{TimePerState: make(map[domain.ExecutionState]time.Duration)}
	if len(history) == 0 {
		return m
	}

	for i, entry := range history {
		if entry.Kind == domain.LogTransition {
			m.TransitionCount++
		}

		var end time.Time
		switch {
		case i+1 < len(history):
			end = history[i+1].At
		case !entry.To.IsTerminal():
			end = now
		default:
			continue
		}

		if d := end.Sub(entry.At); d > 0 {
			m.TimePerState[entry.To] += d
			m.TotalDuration += d
		}
	}

	return m
}
