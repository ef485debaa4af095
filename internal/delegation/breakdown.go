package delegation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// BreakDown разбивает задачу на конвейер делегирований.
//
// Если задача затрагивает хотя бы одну рабочую область, строится
// конвейер:
//
//	planning → backend  ↘
//	         → frontend → testing → review
//
// backend и frontend зависят только от planning и идут параллельно.
// Работа только с базой данных считается backend-работой.
// Иначе возвращается одно делегирование kind=whole без зависимостей.
//
// ExecutionID у результата не заполнен, его проставляет Orchestrator.
func BreakDown(task domain.Task) []domain.Delegation {
	return breakDown(task, Analyze(task))
}

func breakDown(task domain.Task, req Requirements) []domain.Delegation {
	now := time.Now()
	newDelegation := func(kind domain.DelegationKind, description string, deps ...uuid.UUID) domain.Delegation {
		return domain.Delegation{
			ID:          uuid.New(),
			Description: description,
			Type:        req.TaskType,
			Kind:        kind,
			DependsOn:   deps,
			Status:      domain.DelegationPending,
			UpdatedAt:   now,
		}
	}

	backend := req.HasBackend || req.RequiresDatabase
	if !backend && !req.HasFrontend {
		return []domain.Delegation{newDelegation(domain.KindWhole, task.Text())}
	}

	planning := newDelegation(domain.KindPlanning, "Plan implementation: "+task.Title)
	out := []domain.Delegation{planning}
	implemented := []uuid.UUID{planning.ID}

	if backend {
		d := newDelegation(domain.KindBackend, "Implement backend: "+task.Title, planning.ID)
		out = append(out, d)
		implemented = append(implemented, d.ID)
	}
	if req.HasFrontend {
		d := newDelegation(domain.KindFrontend, "Implement frontend: "+task.Title, planning.ID)
		out = append(out, d)
		implemented = append(implemented, d.ID)
	}

	verify := newDelegation(domain.KindTesting, "Test: "+task.Title, implemented...)
	review := newDelegation(domain.KindReview, "Review: "+task.Title, verify.ID)

	return append(out, verify, review)
}
