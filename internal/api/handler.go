package api

import (
	"log/slog"

	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/orchestrator"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orch   *orchestrator.Orchestrator
	bus    *bus.Bus
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *bus.Bus
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		orch:   cfg.Orchestrator,
		bus:    cfg.Bus,
		logger: cfg.Logger,
	}
}
