package delegation

import "github.com/shaiso/AgentSquad/internal/domain"

// typeRoles — роль, которую подразумевает тип задачи.
var typeRoles = map[domain.TaskType]domain.Role{
	domain.TaskTypeAPIEndpoint:    domain.RoleImplementerBackend,
	domain.TaskTypeUIComponent:    domain.RoleImplementerFrontend,
	domain.TaskTypeDatabaseSchema: domain.RoleImplementerBackend,
	domain.TaskTypeBugFix:         domain.RoleImplementerBackend,
	domain.TaskTypeRefactoring:    domain.RoleImplementerBackend,
	domain.TaskTypeTesting:        domain.RoleVerifier,
	domain.TaskTypeDocumentation:  domain.RoleWriter,
	domain.TaskTypeDeployment:     domain.RoleDevOps,
	domain.TaskTypeAIFeature:      domain.RoleAIEngineer,
	domain.TaskTypeDesign:         domain.RoleArchitect,
	domain.TaskTypeGeneral:        domain.RoleCoordinator,
}

// kindRoles — роль для этапа конвейера. KindWhole берёт роль из типа задачи.
var kindRoles = map[domain.DelegationKind]domain.Role{
	domain.KindPlanning: domain.RoleArchitect,
	domain.KindBackend:  domain.RoleImplementerBackend,
	domain.KindFrontend: domain.RoleImplementerFrontend,
	domain.KindTesting:  domain.RoleVerifier,
	domain.KindReview:   domain.RoleReviewer,
}

// compatibleRoles — вторичная таблица: какие роли могут взять работу
// требуемой роли без точного совпадения.
var compatibleRoles = map[domain.Role][]domain.Role{
	domain.RoleImplementerBackend:  {domain.RoleArchitect, domain.RoleDevOps, domain.RoleAIEngineer},
	domain.RoleImplementerFrontend: {domain.RoleDesigner},
	domain.RoleArchitect:           {domain.RoleCoordinator, domain.RoleReviewer, domain.RoleImplementerBackend},
	domain.RoleVerifier:            {domain.RoleReviewer, domain.RoleImplementerBackend, domain.RoleImplementerFrontend},
	domain.RoleReviewer:            {domain.RoleArchitect, domain.RoleVerifier},
	domain.RoleWriter:              {domain.RoleCoordinator, domain.RoleReviewer},
	domain.RoleDevOps:              {domain.RoleImplementerBackend, domain.RoleArchitect},
	domain.RoleAIEngineer:          {domain.RoleImplementerBackend},
	domain.RoleDesigner:            {domain.RoleImplementerFrontend},
	domain.RoleCoordinator:         {domain.RoleArchitect, domain.RoleReviewer},
}

// RoleForType возвращает роль, которую подразумевает тип задачи.
func RoleForType(t domain.TaskType) domain.Role {
	if role, ok := typeRoles[t]; ok {
		return role
	}
	return domain.RoleCoordinator
}

// RoleForKind возвращает роль для этапа конвейера.
func RoleForKind(kind domain.DelegationKind, t domain.TaskType) domain.Role {
	if role, ok := kindRoles[kind]; ok {
		return role
	}
	return RoleForType(t)
}

// IsCompatible проверяет вторичную совместимость ролей.
func IsCompatible(required, actual domain.Role) bool {
	for _, r := range compatibleRoles[required] {
		if r == actual {
			return true
		}
	}
	return false
}
