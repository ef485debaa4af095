package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType — тип задачи, определённый по ключевым словам.
type TaskType string

// Порядок объявления важен: при совпадении нескольких типов побеждает первый.
const (
	TaskTypeAPIEndpoint    TaskType = "api_endpoint"
	TaskTypeUIComponent    TaskType = "ui_component"
	TaskTypeDatabaseSchema TaskType = "database_schema"
	TaskTypeBugFix         TaskType = "bug_fix"
	TaskTypeRefactoring    TaskType = "refactoring"
	TaskTypeTesting        TaskType = "testing"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypeDeployment     TaskType = "deployment"
	TaskTypeAIFeature      TaskType = "ai_feature"
	TaskTypeDesign         TaskType = "design"
	TaskTypeGeneral        TaskType = "general"
)

// DelegationKind — этап конвейера, к которому относится делегирование.
type DelegationKind string

const (
	KindPlanning DelegationKind = "planning"
	KindBackend  DelegationKind = "backend"
	KindFrontend DelegationKind = "frontend"
	KindTesting  DelegationKind = "testing"
	KindReview   DelegationKind = "review"
	KindWhole    DelegationKind = "whole"
)

// IsVerification возвращает true для этапов, которые выполняются
// в состояниях reviewing/testing.
func (k DelegationKind) IsVerification() bool {
	return k == KindTesting || k == KindReview
}

// DelegationStatus — статус подзадачи.
//
// Жизненный цикл:
//
//	pending → assigned → in_progress → done
//	                                 ↘ failed
type DelegationStatus string

const (
	DelegationPending    DelegationStatus = "pending"
	DelegationAssigned   DelegationStatus = "assigned"
	DelegationInProgress DelegationStatus = "in_progress"
	DelegationDone       DelegationStatus = "done"
	DelegationFailed     DelegationStatus = "failed"
)

// IsActive возвращает true, если подзадача назначена и держит нагрузку исполнителя.
func (s DelegationStatus) IsActive() bool {
	return s == DelegationAssigned || s == DelegationInProgress
}

// Delegation — единица подработы, полученная при разбиении задачи.
//
// Создаётся Delegation Engine, дальше изменяется только Orchestrator'ом.
type Delegation struct {
	// ID — уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// ExecutionID — родительское выполнение.
	ExecutionID uuid.UUID `json:"execution_id"`

	// Description — что нужно сделать.
	Description string `json:"description"`

	// Type — тип исходной задачи.
	Type TaskType `json:"type"`

	// Kind — этап конвейера.
	Kind DelegationKind `json:"kind"`

	// DependsOn — делегирования, которые должны завершиться раньше.
	DependsOn []uuid.UUID `json:"depends_on,omitempty"`

	// WorkerID — назначенный исполнитель. Пустой до назначения.
	WorkerID string `json:"worker_id,omitempty"`

	// Status — текущий статус.
	Status DelegationStatus `json:"status"`

	// Output — данные, переданные исполнителем при завершении.
	Output map[string]any `json:"output,omitempty"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}
