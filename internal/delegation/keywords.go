package delegation

import (
	"strings"
	"unicode"
)

// keywords — набор ключевых слов.
//
// Формы записи:
//   - "api"      — точное совпадение слова
//   - "deploy*"  — слово с таким префиксом
//   - "sign in"  — фраза (через пробел)
type keywords []string

// text — нормализованный текст задачи.
type text struct {
	normalized string // " word word word "
	words      []string
	set        map[string]bool
}

func newText(s string) text {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}

	return text{
		normalized: " " + strings.Join(words, " ") + " ",
		words:      words,
		set:        set,
	}
}

// has проверяет одно ключевое слово.
func (t text) has(kw string) bool {
	switch {
	case strings.Contains(kw, " "):
		return strings.Contains(t.normalized, " "+kw+" ")
	case strings.HasSuffix(kw, "*"):
		prefix := strings.TrimSuffix(kw, "*")
		for _, w := range t.words {
			if strings.HasPrefix(w, prefix) {
				return true
			}
		}
		return false
	default:
		return t.set[kw]
	}
}

// matches возвращает true, если найдено хотя бы одно слово набора.
func (k keywords) matches(t text) bool {
	for _, kw := range k {
		if t.has(kw) {
			return true
		}
	}
	return false
}
