package delegation

import (
	"sort"
	"strings"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// typeRule — ключевые слова одного типа задачи.
type typeRule struct {
	Type     domain.TaskType
	Keywords keywords
}

// typeRules проверяются по порядку, первый совпавший тип побеждает.
var typeRules = []typeRule{
	{domain.TaskTypeAPIEndpoint, keywords{"api", "apis", "endpoint*", "rest", "graphql", "grpc", "webhook*", "route handler"}},
	{domain.TaskTypeUIComponent, keywords{"ui", "component*", "frontend", "page", "screen*", "button*", "form", "forms", "modal*", "widget*", "react", "vue", "css"}},
	{domain.TaskTypeDatabaseSchema, keywords{"database*", "schema*", "migration*", "table", "tables", "sql", "postgres*", "index", "indexes"}},
	{domain.TaskTypeBugFix, keywords{"bug*", "fix", "fixes", "crash*", "broken", "regression*", "defect*"}},
	{domain.TaskTypeRefactoring, keywords{"refactor*", "cleanup", "clean up", "restructur*", "simplif*", "tech debt"}},
	{domain.TaskTypeTesting, keywords{"test", "tests", "testing", "e2e", "coverage", "qa"}},
	{domain.TaskTypeDocumentation, keywords{"doc", "docs", "document*", "readme*", "guide*", "tutorial*", "changelog"}},
	{domain.TaskTypeDeployment, keywords{"deploy*", "release*", "docker*", "kubernetes", "k8s", "ci", "pipeline*", "helm", "rollout*"}},
	{domain.TaskTypeAIFeature, keywords{"ai", "llm*", "machine learning", "ml", "embedding*", "chatbot*", "prompt*", "rag"}},
	{domain.TaskTypeDesign, keywords{"design*", "architect*", "wireframe*", "mockup*", "diagram*", "ux"}},
}

// Рабочие области.
var (
	frontendKeywords = keywords{"ui", "frontend", "react", "vue", "component*", "page", "pages", "css", "form", "forms", "screen*", "button*", "layout*", "modal*", "dashboard*"}
	backendKeywords  = keywords{"api", "apis", "endpoint*", "backend", "server*", "service*", "rest", "graphql", "grpc", "webhook*", "auth*", "login"}
	databaseKeywords = keywords{"database*", "db", "schema*", "migration*", "sql", "postgres*", "query", "queries", "table", "tables"}
)

// Модификаторы сложности.
var (
	multiSystemKeywords = keywords{"integration*", "integrate*", "microservice*", "cross service", "third party", "multiple services", "distributed"}
	securityKeywords    = keywords{"security", "secure", "auth*", "login", "password*", "encrypt*", "permission*", "token*", "vulnerab*", "oauth", "jwt"}
	performanceKeywords = keywords{"performance", "latency", "optimi*", "cache*", "caching", "throughput", "scal*", "fast*"}
)

// skillRules — теги навыков, сопоставляемые со специализациями исполнителей.
var skillRules = []struct {
	Tag      string
	Keywords keywords
}{
	{"auth", keywords{"login", "logout", "auth*", "password*", "oauth", "jwt", "sso", "sign in", "sign up", "signup", "signin"}},
	{"api", keywords{"api", "apis", "endpoint*", "rest", "graphql", "grpc", "webhook*"}},
	{"database", keywords{"database*", "db", "sql", "postgres*", "mysql", "schema*", "migration*", "query", "queries"}},
	{"frontend", keywords{"ui", "frontend", "react", "vue", "component*", "css", "layout*"}},
	{"testing", keywords{"test", "tests", "testing", "qa", "e2e", "coverage"}},
	{"devops", keywords{"deploy*", "docker*", "kubernetes", "k8s", "ci", "pipeline*", "helm", "terraform"}},
	{"ai", keywords{"ai", "llm*", "ml", "embedding*", "prompt*", "rag"}},
	{"security", keywords{"security", "encrypt*", "vulnerab*", "permission*", "xss", "csrf"}},
	{"performance", keywords{"performance", "latency", "optimi*", "cache*", "caching", "throughput"}},
	{"docs", keywords{"doc", "docs", "document*", "readme*"}},
}

const (
	maxCriteriaContribution = 7
	minComplexity           = 1
	maxComplexity           = 10
)

// Requirements — результат анализа задачи.
type Requirements struct {
	TaskType         domain.TaskType `json:"task_type"`
	Role             domain.Role     `json:"role"`
	Skills           []string        `json:"skills"`
	Complexity       int             `json:"complexity"`
	HasFrontend      bool            `json:"has_frontend"`
	HasBackend       bool            `json:"has_backend"`
	RequiresDatabase bool            `json:"requires_database"`
}

// HasSkill проверяет навык без учёта регистра.
func (r Requirements) HasSkill(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, s := range r.Skills {
		if s == tag {
			return true
		}
	}
	return false
}

// ForKind возвращает требования для этапа конвейера: роль берётся
// из этапа, а не из типа задачи.
func (r Requirements) ForKind(kind domain.DelegationKind) Requirements {
	out := r
	out.Role = RoleForKind(kind, r.TaskType)
	return out
}

// Analyze выполняет полный анализ задачи.
func Analyze(task domain.Task) Requirements {
	t := newText(task.Text())
	taskType := detectType(t)

	return Requirements{
		TaskType:         taskType,
		Role:             RoleForType(taskType),
		Skills:           detectSkills(t),
		Complexity:       estimateComplexity(task, t),
		HasFrontend:      frontendKeywords.matches(t),
		HasBackend:       backendKeywords.matches(t),
		RequiresDatabase: databaseKeywords.matches(t),
	}
}

// DetectTaskType определяет тип задачи по title и description.
func DetectTaskType(task domain.Task) domain.TaskType {
	return detectType(newText(task.Text()))
}

func detectType(t text) domain.TaskType {
	for _, rule := range typeRules {
		if rule.Keywords.matches(t) {
			return rule.Type
		}
	}
	return domain.TaskTypeGeneral
}

// HasFrontendWork — задача затрагивает UI.
func HasFrontendWork(task domain.Task) bool {
	return frontendKeywords.matches(newText(task.Text()))
}

// HasBackendWork — задача затрагивает API или сервисы.
func HasBackendWork(task domain.Task) bool {
	return backendKeywords.matches(newText(task.Text()))
}

// RequiresDatabase — задача затрагивает схему или запросы.
func RequiresDatabase(task domain.Task) bool {
	return databaseKeywords.matches(newText(task.Text()))
}

// DetectSkills возвращает отсортированные теги навыков.
func DetectSkills(task domain.Task) []string {
	return detectSkills(newText(task.Text()))
}

func detectSkills(t text) []string {
	skills := make([]string, 0)
	for _, rule := range skillRules {
		if rule.Keywords.matches(t) {
			skills = append(skills, rule.Tag)
		}
	}
	sort.Strings(skills)
	return skills
}

// EstimateComplexity оценивает сложность задачи от 1 до 10.
func EstimateComplexity(task domain.Task) int {
	return estimateComplexity(task, newText(task.Text()))
}

func estimateComplexity(task domain.Task, t text) int {
	distinct := make(map[string]bool)
	for _, item := range append(append([]string(nil), task.AcceptanceCriteria...), task.ChecklistItems()...) {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			distinct[item] = true
		}
	}

	score := min(len(distinct), maxCriteriaContribution)

	multiSystem := multiSystemKeywords.matches(t) ||
		(frontendKeywords.matches(t) && backendKeywords.matches(t))
	if multiSystem {
		score++
	}
	if securityKeywords.matches(t) {
		score++
	}
	if performanceKeywords.matches(t) {
		score++
	}

	return max(minComplexity, min(score, maxComplexity))
}
