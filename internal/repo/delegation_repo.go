package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// DelegationRepo — репозиторий для делегирований.
type DelegationRepo struct {
	pool *pgxpool.Pool
}

// NewDelegationRepo создаёт новый DelegationRepo.
func NewDelegationRepo(pool *pgxpool.Pool) *DelegationRepo {
	return &DelegationRepo{pool: pool}
}

// Save вставляет или обновляет делегирование. Порядок плана
// сохраняется по первой вставке.
func (r *DelegationRepo) Save(ctx context.Context, d *domain.Delegation) error {
	dependsJSON, err := json.Marshal(d.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	outputJSON, err := marshalJSON(d.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	query := `
		INSERT INTO delegations (id, execution_id, description, type, kind, depends_on,
		                         worker_id, status, output, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET worker_id = EXCLUDED.worker_id,
		    status = EXCLUDED.status,
		    output = EXCLUDED.output,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.ExecutionID,
		d.Description,
		d.Type,
		d.Kind,
		dependsJSON,
		nullString(d.WorkerID),
		d.Status,
		outputJSON,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert delegation: %w", err)
	}
	return nil
}

// ListByExecution возвращает делегирования execution в порядке плана.
func (r *DelegationRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.Delegation, error) {
	query := `
		SELECT id, execution_id, description, type, kind, depends_on,
		       worker_id, status, output, updated_at
		FROM delegations
		WHERE execution_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list delegations: %w", err)
	}
	defer rows.Close()

	var out []domain.Delegation
	for rows.Next() {
		d, err := r.scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// scanDelegation сканирует строку в Delegation.
func (r *DelegationRepo) scanDelegation(row pgx.Row) (*domain.Delegation, error) {
	var d domain.Delegation
	var dependsJSON, outputJSON []byte
	var workerID *string

	err := row.Scan(
		&d.ID,
		&d.ExecutionID,
		&d.Description,
		&d.Type,
		&d.Kind,
		&dependsJSON,
		&workerID,
		&d.Status,
		&outputJSON,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan delegation: %w", err)
	}

	if dependsJSON != nil {
		if err := json.Unmarshal(dependsJSON, &d.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if workerID != nil {
		d.WorkerID = *workerID
	}
	if d.Output, err = unmarshalJSON(outputJSON, "output"); err != nil {
		return nil, err
	}

	return &d, nil
}
