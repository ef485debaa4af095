package watchdog

import (
	"fmt"
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// Policy — пороги watchdog'а.
type Policy struct {
	// StallTimeout — сколько execution может жить без событий до блокера.
	StallTimeout time.Duration

	// BlockedAfter — сколько execution может быть в blocked до эскалации.
	BlockedAfter time.Duration

	// Cooldown — минимальный интервал между эскалациями одного execution.
	Cooldown time.Duration

	// MaxLevel — после этого уровня эскалаций больше нет.
	MaxLevel int
}

// DefaultPolicy возвращает пороги по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		StallTimeout: 30 * time.Minute,
		BlockedAfter: 30 * time.Minute,
		Cooldown:     15 * time.Minute,
		MaxLevel:     3,
	}
}

// Action — что watchdog делает с execution.
type Action int

const (
	ActionNone Action = iota
	ActionStall
	ActionEscalate
)

func (a Action) String() string {
	switch a {
	case ActionStall:
		return "stall"
	case ActionEscalate:
		return "escalate"
	default:
		return "none"
	}
}

// Decision — решение по одному execution.
type Decision struct {
	Action Action
	Reason string
}

// Decide решает, что делать с execution в момент now.
func Decide(exec *domain.Execution, now time.Time, p Policy) Decision {
	if exec == nil || exec.IsFinished() {
		return Decision{}
	}

	if exec.State != domain.StateBlocked {
		idle := now.Sub(exec.LastEventAt())
		if idle < p.StallTimeout {
			return Decision{}
		}
		return Decision{
			Action: ActionStall,
			Reason: fmt.Sprintf("stalled in %s for %s", exec.State, idle.Truncate(time.Second)),
		}
	}

	blocked := now.Sub(blockedSince(exec))
	if blocked < p.BlockedAfter || exec.EscalationLevel >= p.MaxLevel {
		return Decision{}
	}
	if last, ok := lastEscalation(exec); ok && now.Sub(last) < p.Cooldown {
		return Decision{}
	}

	return Decision{
		Action: ActionEscalate,
		Reason: fmt.Sprintf("blocked for %s", blocked.Truncate(time.Second)),
	}
}

// blockedSince — время последнего перехода в blocked.
func blockedSince(exec *domain.Execution) time.Time {
	for i := len(exec.Log) - 1; i >= 0; i-- {
		entry := exec.Log[i]
		if entry.Kind == domain.LogTransition && entry.To == domain.StateBlocked {
			return entry.At
		}
	}
	return exec.LastEventAt()
}

// lastEscalation — время последней эскалации.
func lastEscalation(exec *domain.Execution) (time.Time, bool) {
	for i := len(exec.Log) - 1; i >= 0; i-- {
		if exec.Log[i].Kind == domain.LogEscalation {
			return exec.Log[i].At, true
		}
	}
	return time.Time{}, false
}
