package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// WorkerRepo — реестр исполнителей в БД.
type WorkerRepo struct {
	pool *pgxpool.Pool
}

// NewWorkerRepo создаёт новый WorkerRepo.
func NewWorkerRepo(pool *pgxpool.Pool) *WorkerRepo {
	return &WorkerRepo{pool: pool}
}

// Upsert регистрирует исполнителя. teamID == uuid.Nil — общий исполнитель.
// Текущая нагрузка при повторной регистрации не сбрасывается.
func (r *WorkerRepo) Upsert(ctx context.Context, teamID uuid.UUID, w domain.Worker) error {
	query := `
		INSERT INTO workers (id, team_id, name, role, specializations, capabilities,
		                     current_load, available, endpoint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET team_id = EXCLUDED.team_id,
		    name = EXCLUDED.name,
		    role = EXCLUDED.role,
		    specializations = EXCLUDED.specializations,
		    capabilities = EXCLUDED.capabilities,
		    available = EXCLUDED.available,
		    endpoint = EXCLUDED.endpoint
	`
	_, err := r.pool.Exec(ctx, query,
		w.ID,
		nullUUID(teamID),
		w.Name,
		string(w.Role),
		nonNil(w.Specializations),
		rolesToStrings(w.Capabilities),
		w.CurrentLoad,
		w.Available,
		w.Endpoint,
	)
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

// ListAvailable возвращает доступных исполнителей команды и общих исполнителей.
func (r *WorkerRepo) ListAvailable(ctx context.Context, teamID uuid.UUID) ([]domain.Worker, error) {
	query := `
		SELECT id, name, role, specializations, capabilities, current_load, available, endpoint
		FROM workers
		WHERE available AND (team_id IS NULL OR team_id = $1)
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var role string
		var capabilities []string

		err := rows.Scan(
			&w.ID,
			&w.Name,
			&role,
			&w.Specializations,
			&capabilities,
			&w.CurrentLoad,
			&w.Available,
			&w.Endpoint,
		)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Role = domain.Role(role)
		for _, c := range capabilities {
			w.Capabilities = append(w.Capabilities, domain.Role(c))
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AdjustLoad атомарно изменяет нагрузку исполнителя, не опуская её ниже нуля.
func (r *WorkerRepo) AdjustLoad(ctx context.Context, workerID string, delta int) error {
	query := `
		UPDATE workers
		SET current_load = GREATEST(current_load + $2, 0)
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, workerID, delta)
	if err != nil {
		return fmt.Errorf("adjust worker load: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	return nil
}

// SetAvailable включает или выключает исполнителя.
func (r *WorkerRepo) SetAvailable(ctx context.Context, workerID string, available bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE workers SET available = $2 WHERE id = $1`, workerID, available)
	if err != nil {
		return fmt.Errorf("set worker availability: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	return nil
}

func rolesToStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// nonNil заменяет nil на пустой срез: колонка массива NOT NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
