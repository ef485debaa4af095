package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/delegation"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// step — переход, запрошенный хуком или обработчиком.
type step struct {
	// from — ожидаемое текущее состояние. Если к моменту выполнения
	// состояние другое, шаг устарел и отбрасывается. Пусто — без проверки.
	from   domain.ExecutionState
	to     domain.ExecutionState
	reason string
	meta   map[string]any
}

// outgoing — сообщение, отправляемое после снятия блокировки.
type outgoing struct {
	recipient   string
	body        string
	kind        domain.MessageKind
	correlation string
}

// ExecState — состояние одного execution в памяти.
//
// ExecState создаётся в StartExecution и удаляется, когда execution
// становится терминальным. Все поля защищены mu; хуки состояний
// вызываются, когда mu уже захвачен.
type ExecState struct {
	exec *domain.Execution
	task domain.Task

	// requirements — результат анализа (заполняется в analyzing).
	requirements delegation.Requirements

	// delegations и graph — план (заполняется в planning).
	// Узлы graph указывают на элементы delegations.
	delegations []domain.Delegation
	graph       *delegation.Graph

	blockers     map[uuid.UUID]*domain.Blocker
	blockerOrder []uuid.UUID

	// lastActive — последнее рабочее состояние до blocked.
	lastActive domain.ExecutionState

	// persisted — сколько записей журнала уже записано в Store.
	persisted int

	next   *step
	outbox []outgoing

	mu sync.Mutex
}

func newExecState(exec *domain.Execution, task domain.Task) *ExecState {
	return &ExecState{
		exec:       exec,
		task:       task,
		blockers:   make(map[uuid.UUID]*domain.Blocker),
		lastActive: exec.State,
	}
}

// ID возвращает ID execution.
func (s *ExecState) ID() uuid.UUID {
	return s.exec.ID
}

// delegationByID ищет делегирование по ID.
func (s *ExecState) delegationByID(id uuid.UUID) *domain.Delegation {
	for i := range s.delegations {
		if s.delegations[i].ID == id {
			return &s.delegations[i]
		}
	}
	return nil
}

// hasReview — есть ли в плане делегирование review.
func (s *ExecState) hasReview() bool {
	for i := range s.delegations {
		if s.delegations[i].Kind == domain.KindReview {
			return true
		}
	}
	return false
}

// workDone — все делегирования, кроме проверки, завершены.
func (s *ExecState) workDone() bool {
	if s.graph == nil {
		return false
	}
	return s.graph.AllDone(func(d *domain.Delegation) bool { return !d.Kind.IsVerification() })
}

// allDone — завершены все делегирования.
func (s *ExecState) allDone() bool {
	if s.graph == nil {
		return false
	}
	return s.graph.AllDone(nil)
}

// openBlockers возвращает неснятые блокеры в порядке создания.
func (s *ExecState) openBlockers() []*domain.Blocker {
	out := make([]*domain.Blocker, 0)
	for _, id := range s.blockerOrder {
		if b := s.blockers[id]; !b.IsResolved() {
			out = append(out, b)
		}
	}
	return out
}

// queue добавляет сообщение в outbox.
func (s *ExecState) queue(msg outgoing) {
	s.outbox = append(s.outbox, msg)
}

// takeOutbox забирает накопленные сообщения.
func (s *ExecState) takeOutbox() []outgoing {
	out := s.outbox
	s.outbox = nil
	return out
}

// Stats возвращает счётчики делегирований по статусам.
func (s *ExecState) Stats() DelegationStats {
	stats := DelegationStats{Total: len(s.delegations)}
	for i := range s.delegations {
		switch s.delegations[i].Status {
		case domain.DelegationPending:
			stats.Pending++
		case domain.DelegationAssigned, domain.DelegationInProgress:
			stats.Active++
		case domain.DelegationDone:
			stats.Done++
		case domain.DelegationFailed:
			stats.Failed++
		}
	}
	return stats
}

// DelegationStats — статистика делегирований execution.
type DelegationStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Active  int `json:"active"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// Контекстный ключ для передачи ExecState в хуки.
type stateKey struct{}

func withState(ctx context.Context, s *ExecState) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

func stateFrom(ctx context.Context) (*ExecState, bool) {
	s, ok := ctx.Value(stateKey{}).(*ExecState)
	return s, ok
}
