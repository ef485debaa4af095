package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// ExecutionRepo — репозиторий для executions и их журнала.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// Save вставляет или обновляет снимок execution. Журнал не пишется,
// для него есть AppendLog.
func (r *ExecutionRepo) Save(ctx context.Context, exec *domain.Execution) error {
	resultJSON, err := marshalJSON(exec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	errorJSON, err := marshalJSON(exec.Error)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	metadataJSON, err := marshalJSON(exec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO executions (id, task_id, team_id, state, result, error, metadata,
		                        escalation_level, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    result = EXCLUDED.result,
		    error = EXCLUDED.error,
		    metadata = EXCLUDED.metadata,
		    escalation_level = EXCLUDED.escalation_level,
		    started_at = EXCLUDED.started_at,
		    completed_at = EXCLUDED.completed_at
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.TaskID,
		exec.TeamID,
		exec.State,
		resultJSON,
		errorJSON,
		metadataJSON,
		exec.EscalationLevel,
		exec.CreatedAt,
		exec.StartedAt,
		exec.CompletedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: live execution for task %s", ErrAlreadyExists, exec.TaskID)
	}
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution вместе с журналом.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT id, task_id, team_id, state, result, error, metadata,
		       escalation_level, created_at, started_at, completed_at
		FROM executions
		WHERE id = $1
	`
	exec, err := r.scanExecution(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	log, err := r.ListLog(ctx, id)
	if err != nil {
		return nil, err
	}
	exec.Log = log
	return exec, nil
}

// List возвращает executions без журнала, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT id, task_id, team_id, state, result, error, metadata,
		       escalation_level, created_at, started_at, completed_at
		FROM executions
		WHERE ($1::uuid IS NULL OR team_id = $1)
		  AND ($2::text IS NULL OR state = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.TeamID),
		nullString(string(filter.State)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		exec, err := r.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// AppendLog добавляет запись в журнал execution.
func (r *ExecutionRepo) AppendLog(ctx context.Context, executionID uuid.UUID, entry domain.LogEntry) error {
	metadataJSON, err := marshalJSON(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal log metadata: %w", err)
	}

	query := `
		INSERT INTO execution_logs (execution_id, at, kind, from_state, to_state, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		executionID,
		entry.At,
		entry.Kind,
		nullString(string(entry.From)),
		entry.To,
		entry.Reason,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListLog возвращает журнал execution в порядке записи.
func (r *ExecutionRepo) ListLog(ctx context.Context, executionID uuid.UUID) ([]domain.LogEntry, error) {
	query := `
		SELECT at, kind, from_state, to_state, reason, metadata
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	defer rows.Close()

	var log []domain.LogEntry
	for rows.Next() {
		var (
			entry        domain.LogEntry
			from         *string
			metadataJSON []byte
		)
		if err := rows.Scan(&entry.At, &entry.Kind, &from, &entry.To, &entry.Reason, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if from != nil {
			entry.From = domain.ExecutionState(*from)
		}
		if entry.Metadata, err = unmarshalJSON(metadataJSON, "log metadata"); err != nil {
			return nil, err
		}
		log = append(log, entry)
	}
	return log, rows.Err()
}

// --- Helpers ---

// ExecutionFilter — параметры фильтрации executions.
type ExecutionFilter struct {
	TeamID uuid.UUID
	State  domain.ExecutionState
	Limit  int
	Offset int
}

// scanExecution сканирует одну строку в Execution. pgx.Rows тоже
// удовлетворяет pgx.Row.
func (r *ExecutionRepo) scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var resultJSON, errorJSON, metaJSON []byte

	err := row.Scan(
		&exec.ID,
		&exec.TaskID,
		&exec.TeamID,
		&exec.State,
		&resultJSON,
		&errorJSON,
		&metaJSON,
		&exec.EscalationLevel,
		&exec.CreatedAt,
		&exec.StartedAt,
		&exec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if exec.Result, err = unmarshalJSON(resultJSON, "result"); err != nil {
		return nil, err
	}
	if exec.Error, err = unmarshalJSON(errorJSON, "error"); err != nil {
		return nil, err
	}
	if exec.Metadata, err = unmarshalJSON(metaJSON, "metadata"); err != nil {
		return nil, err
	}
	if exec.Metadata == nil {
		exec.Metadata = make(map[string]any)
	}

	return &exec, nil
}
