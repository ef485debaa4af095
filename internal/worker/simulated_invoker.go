package worker

import (
	"context"
	"time"

	"github.com/shaiso/AgentSquad/internal/domain"
)

// SimulatedInvoker — invoker для локального запуска без реальных исполнителей.
//
// Ждёт Delay и сообщает об успехе. Поддерживает отмену через context.
type SimulatedInvoker struct {
	Delay time.Duration
}

// Process имитирует выполнение назначения.
func (s *SimulatedInvoker) Process(ctx context.Context, w domain.Worker, a domain.Assignment) (*Result, error) {
	select {
	case <-time.After(s.Delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Result{
		Output: map[string]any{
			"simulated": true,
			"worker_id": w.ID,
			"kind":      string(a.Kind),
			"delay_ms":  s.Delay.Milliseconds(),
		},
	}, nil
}
