package domain

// Role — роль исполнителя в команде.
type Role string

const (
	RoleCoordinator         Role = "coordinator"
	RoleArchitect           Role = "architect"
	RoleReviewer            Role = "reviewer"
	RoleImplementerBackend  Role = "implementer-backend"
	RoleImplementerFrontend Role = "implementer-frontend"
	RoleVerifier            Role = "verifier"
	RoleDevOps              Role = "devops"
	RoleAIEngineer          Role = "ai-engineer"
	RoleDesigner            Role = "designer"
	RoleWriter              Role = "writer"
)

// IsValid проверяет, что роль входит в перечисление.
func (r Role) IsValid() bool {
	switch r {
	case RoleCoordinator, RoleArchitect, RoleReviewer, RoleImplementerBackend, RoleImplementerFrontend,
		RoleVerifier, RoleDevOps, RoleAIEngineer, RoleDesigner, RoleWriter:
		return true
	default:
		return false
	}
}

// Worker — исполнитель, способный выполнять назначенную работу.
//
// Регистрируется внешним roster-сервисом. Core изменяет только CurrentLoad.
type Worker struct {
	// ID — адрес исполнителя на шине сообщений.
	ID string `json:"id"`

	// Name — отображаемое имя.
	Name string `json:"name,omitempty"`

	// Role — основная роль.
	Role Role `json:"role"`

	// Specializations — свободные теги ("auth", "postgres", "react").
	Specializations []string `json:"specializations,omitempty"`

	// Capabilities — роли, с которыми исполнитель совместим помимо своей.
	Capabilities []Role `json:"capabilities,omitempty"`

	// CurrentLoad — число активных назначений.
	CurrentLoad int `json:"current_load"`

	// Available — доступен ли исполнитель для новых назначений.
	Available bool `json:"available"`

	// Endpoint — URL для вызова исполнителя (используется HTTP invoker'ом).
	Endpoint string `json:"endpoint,omitempty"`
}

// HasCapability проверяет, объявил ли исполнитель совместимость с ролью.
func (w Worker) HasCapability(role Role) bool {
	for _, c := range w.Capabilities {
		if c == role {
			return true
		}
	}
	return false
}
