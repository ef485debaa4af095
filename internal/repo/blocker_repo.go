package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// BlockerRepo — репозиторий для блокеров.
type BlockerRepo struct {
	pool *pgxpool.Pool
}

// NewBlockerRepo создаёт новый BlockerRepo.
func NewBlockerRepo(pool *pgxpool.Pool) *BlockerRepo {
	return &BlockerRepo{pool: pool}
}

// Save вставляет блокер или записывает его решение.
func (r *BlockerRepo) Save(ctx context.Context, b *domain.Blocker) error {
	metadataJSON, err := marshalJSON(b.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO blockers (id, execution_id, description, severity, metadata,
		                      resolution, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET resolution = EXCLUDED.resolution,
		    resolved_at = EXCLUDED.resolved_at
	`
	_, err = r.pool.Exec(ctx, query,
		b.ID,
		b.ExecutionID,
		b.Description,
		b.Severity,
		metadataJSON,
		b.Resolution,
		b.CreatedAt,
		b.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert blocker: %w", err)
	}
	return nil
}

// ListByExecution возвращает блокеры execution в порядке создания.
func (r *BlockerRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.Blocker, error) {
	query := `
		SELECT id, execution_id, description, severity, metadata,
		       resolution, created_at, resolved_at
		FROM blockers
		WHERE execution_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	defer rows.Close()

	var out []domain.Blocker
	for rows.Next() {
		var b domain.Blocker
		var metadataJSON []byte

		err := rows.Scan(
			&b.ID,
			&b.ExecutionID,
			&b.Description,
			&b.Severity,
			&metadataJSON,
			&b.Resolution,
			&b.CreatedAt,
			&b.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan blocker: %w", err)
		}
		if b.Metadata, err = unmarshalJSON(metadataJSON, "metadata"); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
