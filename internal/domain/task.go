package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Task — единица работы, которую выполняет команда.
type Task struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Title — короткое название.
	Title string `json:"title"`

	// Description — подробное описание. Строки вида "- [ ] ..." считаются
	// пунктами чек-листа.
	Description string `json:"description,omitempty"`

	// AcceptanceCriteria — критерии приёмки.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

// Text возвращает title и description одной строкой для поиска ключевых слов.
func (t Task) Text() string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + "\n" + t.Description
}

// ChecklistItems возвращает пункты чек-листа из описания.
func (t Task) ChecklistItems() []string {
	var items []string
	for _, line := range strings.Split(t.Description, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"- [ ]", "- [x]", "* [ ]", "* [x]"} {
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				item := strings.TrimSpace(line[len(prefix):])
				if item != "" {
					items = append(items, item)
				}
				break
			}
		}
	}
	return items
}
