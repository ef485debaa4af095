package engine

import "github.com/shaiso/AgentSquad/internal/domain"

// transitions — допустимые переходы (from → set of to).
//
// Переходы в blocked и failed добавляются для всех нетерминальных
// состояний в init, кроме blocked → blocked.
var transitions = map[domain.ExecutionState]map[domain.ExecutionState]bool{
	domain.StatePending:    {domain.StateAnalyzing: true},
	domain.StateAnalyzing:  {domain.StatePlanning: true},
	domain.StatePlanning:   {domain.StateDelegated: true},
	domain.StateDelegated:  {domain.StateInProgress: true},
	domain.StateInProgress: {domain.StateReviewing: true, domain.StateTesting: true},
	domain.StateReviewing:  {domain.StateCompleted: true},
	domain.StateTesting:    {domain.StateCompleted: true},
	domain.StateBlocked: {
		domain.StateAnalyzing:  true,
		domain.StatePlanning:   true,
		domain.StateDelegated:  true,
		domain.StateInProgress: true,
		domain.StateReviewing:  true,
		domain.StateTesting:    true,
	},
	domain.StateCompleted: {},
	domain.StateFailed:    {},
}

func init() {
	for from, targets := range transitions {
		if from.IsTerminal() {
			continue
		}
		if from != domain.StateBlocked {
			targets[domain.StateBlocked] = true
		}
		targets[domain.StateFailed] = true
	}
}

// IsValidTransition проверяет переход по таблице. Самопереходы запрещены.
func IsValidTransition(from, to domain.ExecutionState) bool {
	return transitions[from][to]
}

// AllowedTransitions возвращает допустимые целевые состояния в порядке объявления.
func AllowedTransitions(from domain.ExecutionState) []domain.ExecutionState {
	out := make([]domain.ExecutionState, 0, len(transitions[from]))
	for _, to := range domain.AllStates {
		if transitions[from][to] {
			out = append(out, to)
		}
	}
	return out
}
