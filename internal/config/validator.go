package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/watchdog"
	"github.com/shaiso/AgentSquad/internal/worker"
)

// ValidationError — одна ошибка проверки.
type ValidationError struct {
	Field   string // путь ключа, например "escalation.cooldown"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors — все ошибки проверки.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate проверяет конфигурацию и возвращает все найденные ошибки.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateHTTP()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateEscalation()...)
	errs = append(errs, c.validateWatchdog()...)
	errs = append(errs, c.validateWorker()...)
	errs = append(errs, c.validateRoster()...)

	return errs
}

func (c *Config) validateHTTP() []ValidationError {
	var errs []ValidationError

	ports := []struct {
		field string
		port  int
	}{
		{"http.orch_port", c.HTTP.OrchestratorPort},
		{"http.worker_port", c.HTTP.WorkerPort},
	}
	for _, p := range ports {
		if p.port <= 0 || p.port > 65535 {
			errs = append(errs, ValidationError{Field: p.field, Value: p.port, Message: "must be a port between 1 and 65535"})
		}
	}
	return errs
}

func (c *Config) validateOrchestrator() []ValidationError {
	var errs []ValidationError

	if c.Orchestrator.ID == "" {
		errs = append(errs, ValidationError{Field: "orchestrator.id", Value: c.Orchestrator.ID, Message: "must not be empty"})
	}
	if c.Orchestrator.HumanID == "" {
		errs = append(errs, ValidationError{Field: "orchestrator.human_id", Value: c.Orchestrator.HumanID, Message: "must not be empty"})
	}
	if c.Orchestrator.ID != "" && c.Orchestrator.ID == c.Orchestrator.HumanID {
		errs = append(errs, ValidationError{Field: "orchestrator.human_id", Value: c.Orchestrator.HumanID, Message: "must differ from orchestrator.id"})
	}
	return errs
}

func (c *Config) validateEscalation() []ValidationError {
	var errs []ValidationError

	if c.Escalation.MaxLevel <= 0 {
		errs = append(errs, ValidationError{Field: "escalation.max_level", Value: c.Escalation.MaxLevel, Message: "must be positive"})
	}
	errs = appendPositive(errs, "escalation.cooldown", c.Escalation.Cooldown)
	errs = appendPositive(errs, "escalation.blocked_after", c.Escalation.BlockedAfter)
	return errs
}

func (c *Config) validateWatchdog() []ValidationError {
	var errs []ValidationError

	if err := watchdog.ValidateSchedule(c.Watchdog.Schedule); err != nil {
		errs = append(errs, ValidationError{Field: "watchdog.schedule", Value: c.Watchdog.Schedule, Message: "must be a cron expression or descriptor"})
	}
	errs = appendPositive(errs, "watchdog.stall_timeout", c.Watchdog.StallTimeout)
	return errs
}

func (c *Config) validateWorker() []ValidationError {
	var errs []ValidationError

	if c.Worker.Concurrency <= 0 {
		errs = append(errs, ValidationError{Field: "worker.concurrency", Value: c.Worker.Concurrency, Message: "must be positive"})
	}
	if c.Worker.QueueSize <= 0 {
		errs = append(errs, ValidationError{Field: "worker.queue_size", Value: c.Worker.QueueSize, Message: "must be positive"})
	}
	errs = appendPositive(errs, "worker.request_timeout", c.Worker.RequestTimeout)
	if c.Worker.SimulatedDelay < 0 {
		errs = append(errs, ValidationError{Field: "worker.simulated_delay", Value: c.Worker.SimulatedDelay, Message: "must be non-negative"})
	}

	r := c.Worker.Retry
	if r.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "worker.retry.max_attempts", Value: r.MaxAttempts, Message: "must be at least 1"})
	}
	if r.Backoff != worker.BackoffFixed && r.Backoff != worker.BackoffExponential {
		errs = append(errs, ValidationError{
			Field:   "worker.retry.backoff",
			Value:   r.Backoff,
			Message: fmt.Sprintf("must be one of: %s, %s", worker.BackoffFixed, worker.BackoffExponential),
		})
	}
	errs = appendPositive(errs, "worker.retry.initial_delay", r.InitialDelay)
	errs = appendPositive(errs, "worker.retry.max_delay", r.MaxDelay)
	if r.InitialDelay > 0 && r.MaxDelay > 0 && r.MaxDelay < r.InitialDelay {
		errs = append(errs, ValidationError{Field: "worker.retry.max_delay", Value: r.MaxDelay, Message: "must not be less than initial_delay"})
	}
	return errs
}

func (c *Config) validateRoster() []ValidationError {
	var errs []ValidationError

	if c.Roster.TeamID != "" {
		if _, err := uuid.Parse(c.Roster.TeamID); err != nil {
			errs = append(errs, ValidationError{Field: "roster.team_id", Value: c.Roster.TeamID, Message: "must be a UUID"})
		}
	}

	seen := make(map[string]bool, len(c.Roster.Workers))
	for i, spec := range c.Roster.Workers {
		prefix := fmt.Sprintf("roster.workers[%d]", i)
		switch {
		case spec.ID == "":
			errs = append(errs, ValidationError{Field: prefix + ".id", Value: spec.ID, Message: "must not be empty"})
		case seen[spec.ID]:
			errs = append(errs, ValidationError{Field: prefix + ".id", Value: spec.ID, Message: "must be unique"})
		case spec.ID == c.Orchestrator.ID || spec.ID == c.Orchestrator.HumanID:
			errs = append(errs, ValidationError{Field: prefix + ".id", Value: spec.ID, Message: "must differ from orchestrator and human ids"})
		}
		seen[spec.ID] = true

		if !domain.Role(spec.Role).IsValid() {
			errs = append(errs, ValidationError{Field: prefix + ".role", Value: spec.Role, Message: "must be a known role"})
		}
		for _, capability := range spec.Capabilities {
			if !domain.Role(capability).IsValid() {
				errs = append(errs, ValidationError{Field: prefix + ".capabilities", Value: capability, Message: "must be a known role"})
			}
		}
	}
	return errs
}

func appendPositive(errs []ValidationError, field string, d time.Duration) []ValidationError {
	if d <= 0 {
		errs = append(errs, ValidationError{Field: field, Value: d, Message: "must be positive"})
	}
	return errs
}
