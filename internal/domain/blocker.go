package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity — серьёзность блокера.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity возвращает серьёзность из строки, medium по умолчанию.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	default:
		return SeverityMedium
	}
}

// Blocker — зафиксированное препятствие, останавливающее выполнение.
type Blocker struct {
	ID          uuid.UUID      `json:"id"`
	ExecutionID uuid.UUID      `json:"execution_id"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// Resolution — текст решения. Nil, пока блокер открыт.
	Resolution *string `json:"resolution,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved возвращает true, если блокер уже снят.
func (b *Blocker) IsResolved() bool {
	return b.ResolvedAt != nil
}

// Resolve снимает блокер.
func (b *Blocker) Resolve(resolution string) {
	now := time.Now()
	b.Resolution = &resolution
	b.ResolvedAt = &now
}

// Escalation — обращение к человеку по нерешённой проблеме.
type Escalation struct {
	ID                 uuid.UUID `json:"id"`
	ExecutionID        uuid.UUID `json:"execution_id"`
	Level              int       `json:"level"`
	Reason             string    `json:"reason"`
	Details            string    `json:"details,omitempty"`
	AttemptedSolutions []string  `json:"attempted_solutions,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
