package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal — зафиксированные переходы состояний.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_transitions_total",
		Help: "Committed execution state transitions",
	}, []string{"from", "to"})

	// HookFailuresTotal — ошибки и паники хуков состояний.
	HookFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_hook_failures_total",
		Help: "State hook failures converted to blockers",
	}, []string{"state"})

	// ExecutionsActive — нетерминальные executions в памяти процесса.
	ExecutionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squad_executions_active",
		Help: "Non-terminal executions owned by this orchestrator",
	})

	// DelegationsAssignedTotal — назначения подзадач по ролям.
	DelegationsAssignedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_delegations_assigned_total",
		Help: "Delegations assigned to workers",
	}, []string{"role"})

	// BlockersTotal — созданные блокеры.
	BlockersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_blockers_total",
		Help: "Blockers recorded",
	}, []string{"severity"})

	// EscalationsTotal — эскалации человеку.
	EscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squad_escalations_total",
		Help: "Escalations to a human operator",
	})

	// BusMessagesTotal — сообщения, прошедшие через шину.
	BusMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_bus_messages_total",
		Help: "Messages delivered through the message bus",
	}, []string{"kind"})

	// WorkerInvocationsTotal — вызовы исполнителей по результату.
	WorkerInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squad_worker_invocations_total",
		Help: "Worker invocations by outcome",
	}, []string{"outcome"})
)
