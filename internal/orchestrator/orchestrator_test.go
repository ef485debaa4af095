package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/bus"
	"github.com/shaiso/AgentSquad/internal/delegation"
	"github.com/shaiso/AgentSquad/internal/domain"
	"github.com/shaiso/AgentSquad/internal/engine"
	"github.com/shaiso/AgentSquad/internal/roster"
)

type fixture struct {
	o      *Orchestrator
	bus    *bus.Bus
	roster *roster.Registry
	store  *MemoryStore
}

func newFixture(t *testing.T, workers ...domain.Worker) *fixture {
	t.Helper()

	b := bus.New(bus.Config{})
	reg := roster.New(nil)
	for _, w := range workers {
		if err := reg.Register(uuid.Nil, w); err != nil {
			t.Fatalf("register worker: %v", err)
		}
	}
	store := NewMemoryStore()

	return &fixture{
		o:      New(Config{Bus: b, Store: store, Roster: reg}),
		bus:    b,
		roster: reg,
		store:  store,
	}
}

func fullTeam() []domain.Worker {
	return []domain.Worker{
		{ID: "architect-1", Role: domain.RoleArchitect, Available: true},
		{ID: "backend-1", Role: domain.RoleImplementerBackend, Available: true},
		{ID: "coordinator-1", Role: domain.RoleCoordinator, Available: true},
		{ID: "frontend-1", Role: domain.RoleImplementerFrontend, Available: true},
		{ID: "reviewer-1", Role: domain.RoleReviewer, Available: true},
		{ID: "verifier-1", Role: domain.RoleVerifier, Available: true},
	}
}

// loginTask затрагивает backend и frontend: план из пяти делегирований.
func loginTask() domain.Task {
	return domain.Task{
		ID:          uuid.New(),
		Title:       "Add login API endpoint",
		Description: "Build the React login form and the REST endpoint.",
	}
}

// summaryTask не затрагивает рабочих областей: одно делегирование whole.
func summaryTask() domain.Task {
	return domain.Task{
		ID:          uuid.New(),
		Title:       "Prepare quarterly summary",
		Description: "Collect numbers from the finance team.",
	}
}

func (f *fixture) assignments(t *testing.T, workerID string) []domain.Assignment {
	t.Helper()

	var out []domain.Assignment
	for _, msg := range f.bus.GetMessages(workerID, time.Time{}, 0) {
		if msg.Kind != domain.MessageAssignment {
			continue
		}
		a, err := domain.DecodeBody[domain.Assignment](msg.Body)
		if err != nil {
			t.Fatalf("decode assignment: %v", err)
		}
		out = append(out, a)
	}
	return out
}

func (f *fixture) lastAssignment(t *testing.T, workerID string) domain.Assignment {
	t.Helper()

	all := f.assignments(t, workerID)
	if len(all) == 0 {
		t.Fatalf("worker %s has no assignments", workerID)
	}
	return all[len(all)-1]
}

func statusMessage(t *testing.T, workerID, recipient string, a domain.Assignment, status domain.DelegationStatus) domain.Message {
	t.Helper()

	body, err := domain.EncodeBody(domain.StatusUpdate{
		Status: status,
		Detail: string(status) + " by " + workerID,
		Result: map[string]any{"worker": workerID},
	})
	if err != nil {
		t.Fatalf("encode status: %v", err)
	}
	return domain.Message{
		ID:            uuid.New(),
		SenderID:      workerID,
		RecipientID:   recipient,
		Body:          body,
		Kind:          domain.MessageStatusUpdate,
		CorrelationID: a.DelegationID.String(),
		Timestamp:     time.Now(),
	}
}

// report отправляет status_update напрямую в HandleMessage.
func (f *fixture) report(t *testing.T, workerID string, status domain.DelegationStatus) {
	t.Helper()

	msg := statusMessage(t, workerID, f.o.ID(), f.lastAssignment(t, workerID), status)
	if err := f.o.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage(%s, %s): %v", workerID, status, err)
	}
}

func (f *fixture) progress(t *testing.T, id uuid.UUID) Progress {
	t.Helper()

	p, err := f.o.MonitorProgress(context.Background(), id)
	if err != nil {
		t.Fatalf("MonitorProgress: %v", err)
	}
	return p
}

func (f *fixture) load(t *testing.T, workerID string) int {
	t.Helper()

	w, ok := f.roster.Get(workerID)
	if !ok {
		t.Fatalf("unknown worker %s", workerID)
	}
	return w.CurrentLoad
}

func (f *fixture) onlyBlocker(t *testing.T, id uuid.UUID) domain.Blocker {
	t.Helper()

	blockers, err := f.o.ListBlockers(context.Background(), id)
	if err != nil {
		t.Fatalf("ListBlockers: %v", err)
	}
	if len(blockers) != 1 {
		t.Fatalf("expected 1 blocker, got %d", len(blockers))
	}
	return blockers[0]
}

// --- StartExecution Tests ---

func TestStartExecution_ChainsToInProgress(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	p := f.progress(t, id)
	if p.State != domain.StateInProgress {
		t.Fatalf("expected in_progress, got %s", p.State)
	}
	if p.Percentage != 60 {
		t.Errorf("expected 60%%, got %d", p.Percentage)
	}
	if p.Delegations.Total != 5 || p.Delegations.Active != 1 || p.Delegations.Pending != 4 {
		t.Errorf("unexpected delegation stats: %+v", p.Delegations)
	}

	a := f.lastAssignment(t, "architect-1")
	if a.Kind != domain.KindPlanning || a.ExecutionID != id {
		t.Errorf("unexpected assignment: %+v", a)
	}
	if got := f.load(t, "architect-1"); got != 1 {
		t.Errorf("expected architect load 1, got %d", got)
	}

	exec, err := f.o.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	want := []domain.ExecutionState{
		domain.StatePending,
		domain.StateAnalyzing,
		domain.StatePlanning,
		domain.StateDelegated,
		domain.StateInProgress,
	}
	history := exec.Transitions()
	if len(history) != len(want) {
		t.Fatalf("expected %d history entries, got %d", len(want), len(history))
	}
	for i, entry := range history {
		if entry.To != want[i] {
			t.Errorf("history[%d].To = %s, want %s", i, entry.To, want[i])
		}
	}
	if exec.StartedAt == nil {
		t.Error("StartedAt should be set")
	}
	if _, ok := exec.Metadata["requirements"]; !ok {
		t.Error("requirements should be recorded in metadata")
	}
}

func TestStartExecution_DuplicateTask(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()
	task := loginTask()

	first, err := f.o.StartExecution(ctx, task, uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	_, err = f.o.StartExecution(ctx, task, uuid.New())
	if !errors.Is(err, ErrDuplicateExecution) {
		t.Fatalf("expected ErrDuplicateExecution, got %v", err)
	}
	if f.o.ActiveCount() != 1 {
		t.Errorf("expected 1 active execution, got %d", f.o.ActiveCount())
	}

	// После завершения задача снова доступна.
	if _, err := f.o.CancelExecution(ctx, first, ""); err != nil {
		t.Fatalf("CancelExecution: %v", err)
	}
	if _, err := f.o.StartExecution(ctx, task, uuid.New()); err != nil {
		t.Errorf("restart after cancel: %v", err)
	}
}

func TestStartExecution_NoEligibleWorkerBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if !errors.Is(err, delegation.ErrNoEligibleWorker) {
		t.Fatalf("expected ErrNoEligibleWorker, got %v", err)
	}
	if !errors.Is(err, engine.ErrHookFailure) {
		t.Errorf("expected hook failure, got %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("execution id should be returned")
	}

	p := f.progress(t, id)
	if !p.IsBlocked {
		t.Fatalf("expected blocked, got %s", p.State)
	}
	if p.Percentage != 45 {
		t.Errorf("blocked progress should fall back to delegated (45), got %d", p.Percentage)
	}

	b := f.onlyBlocker(t, id)
	if b.Severity != domain.SeverityHigh {
		t.Errorf("expected high severity, got %s", b.Severity)
	}

	// Появились исполнители: блокер снимается, работа назначается.
	for _, w := range fullTeam() {
		_ = f.roster.Register(uuid.Nil, w)
	}
	if err := f.o.ResolveBlocker(ctx, id, b.ID, "workers added", domain.StateDelegated); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}

	if got := f.progress(t, id).State; got != domain.StateInProgress {
		t.Errorf("expected in_progress, got %s", got)
	}
	if len(f.assignments(t, "architect-1")) != 1 {
		t.Error("planning should be assigned after resolution")
	}
}

func TestStartExecution_HookPanicBecomesCriticalBlocker(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	f.o.Engine().RegisterStateAction(domain.StateAnalyzing, func(context.Context, *domain.Execution) error {
		panic("analyzer crashed")
	})

	id, err := f.o.StartExecution(context.Background(), loginTask(), uuid.New())
	if !errors.Is(err, engine.ErrHookPanic) {
		t.Fatalf("expected ErrHookPanic, got %v", err)
	}

	p := f.progress(t, id)
	if p.State != domain.StateBlocked {
		t.Fatalf("expected blocked, got %s", p.State)
	}
	if p.Percentage != 15 {
		t.Errorf("expected fallback to analyzing (15), got %d", p.Percentage)
	}
	if b := f.onlyBlocker(t, id); b.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", b.Severity)
	}
}

// --- Full Flow Tests ---

func TestFlow_FullPipeline(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	f.report(t, "architect-1", domain.DelegationInProgress)
	f.report(t, "architect-1", domain.DelegationDone)

	if a := f.lastAssignment(t, "backend-1"); a.Kind != domain.KindBackend {
		t.Errorf("backend-1 got %s", a.Kind)
	}
	if a := f.lastAssignment(t, "frontend-1"); a.Kind != domain.KindFrontend {
		t.Errorf("frontend-1 got %s", a.Kind)
	}
	if got := f.load(t, "architect-1"); got != 0 {
		t.Errorf("architect load should be released, got %d", got)
	}

	f.report(t, "backend-1", domain.DelegationDone)
	if got := f.progress(t, id).State; got != domain.StateInProgress {
		t.Fatalf("expected in_progress while frontend runs, got %s", got)
	}

	f.report(t, "frontend-1", domain.DelegationDone)
	if got := f.progress(t, id).State; got != domain.StateReviewing {
		t.Fatalf("expected reviewing, got %s", got)
	}
	if a := f.lastAssignment(t, "verifier-1"); a.Kind != domain.KindTesting {
		t.Errorf("verifier-1 got %s", a.Kind)
	}
	if len(f.assignments(t, "reviewer-1")) != 0 {
		t.Error("review must wait for testing")
	}

	f.report(t, "verifier-1", domain.DelegationDone)
	if a := f.lastAssignment(t, "reviewer-1"); a.Kind != domain.KindReview {
		t.Errorf("reviewer-1 got %s", a.Kind)
	}

	f.report(t, "reviewer-1", domain.DelegationDone)

	p := f.progress(t, id)
	if p.State != domain.StateCompleted || p.Percentage != 100 || !p.IsTerminal {
		t.Fatalf("expected completed at 100%%, got %s at %d", p.State, p.Percentage)
	}
	if f.o.ActiveCount() != 0 {
		t.Errorf("terminal execution should leave memory, active=%d", f.o.ActiveCount())
	}
	for _, w := range fullTeam() {
		if got := f.load(t, w.ID); got != 0 {
			t.Errorf("worker %s load = %d, want 0", w.ID, got)
		}
	}

	delegations, err := f.o.ListDelegations(ctx, id)
	if err != nil {
		t.Fatalf("ListDelegations: %v", err)
	}
	for _, d := range delegations {
		if d.Status != domain.DelegationDone {
			t.Errorf("delegation %s is %s", d.Kind, d.Status)
		}
		if d.Output["worker"] != d.WorkerID {
			t.Errorf("delegation %s output not recorded: %v", d.Kind, d.Output)
		}
	}

	exec, err := f.o.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if last := exec.Transitions()[len(exec.Transitions())-1]; last.From != domain.StateReviewing {
		t.Errorf("expected completion from reviewing, got %s", last.From)
	}
}

func TestFlow_SingleDelegationGoesThroughTesting(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	a := f.lastAssignment(t, "coordinator-1")
	if a.Kind != domain.KindWhole {
		t.Fatalf("expected whole delegation, got %s", a.Kind)
	}

	f.report(t, "coordinator-1", domain.DelegationDone)

	exec, err := f.o.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec.State != domain.StateCompleted {
		t.Fatalf("expected completed, got %s", exec.State)
	}

	var sawTesting bool
	for _, entry := range exec.Transitions() {
		if entry.To == domain.StateTesting {
			sawTesting = true
		}
		if entry.To == domain.StateReviewing {
			t.Error("plan without review should not enter reviewing")
		}
	}
	if !sawTesting {
		t.Error("expected a testing transition")
	}
}

func TestFlow_BusDriven(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.o.Stop()

	// Исполнители сразу отвечают done на каждое назначение.
	for _, w := range fullTeam() {
		workerID := w.ID
		f.bus.Subscribe(workerID, func(msg domain.Message) {
			if msg.Kind != domain.MessageAssignment {
				return
			}
			a, err := domain.DecodeBody[domain.Assignment](msg.Body)
			if err != nil {
				return
			}
			reply := statusMessage(t, workerID, msg.SenderID, a, domain.DelegationDone)
			_, _ = f.bus.Send(workerID, msg.SenderID, reply.Body, reply.Kind, reply.CorrelationID)
		})
	}

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := f.o.MonitorProgress(ctx, id)
		if err != nil {
			t.Fatalf("MonitorProgress: %v", err)
		}
		if p.IsTerminal {
			if p.State != domain.StateCompleted {
				t.Fatalf("expected completed, got %s", p.State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution stuck in %s", p.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- Status Update Tests ---

func TestHandleMessage_IgnoresOtherKinds(t *testing.T) {
	f := newFixture(t, fullTeam()...)

	err := f.o.HandleMessage(context.Background(), domain.Message{
		ID:   uuid.New(),
		Kind: domain.MessageQuestion,
		Body: "what is the deadline?",
	})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestHandleMessage_InvalidStatusUpdate(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	err := f.o.HandleMessage(ctx, domain.Message{Kind: domain.MessageStatusUpdate, CorrelationID: "not-a-uuid"})
	if !errors.Is(err, ErrInvalidStatusUpdate) {
		t.Errorf("expected ErrInvalidStatusUpdate for bad correlation, got %v", err)
	}

	err = f.o.HandleMessage(ctx, domain.Message{
		Kind:          domain.MessageStatusUpdate,
		CorrelationID: uuid.New().String(),
		Body:          "{broken",
	})
	if !errors.Is(err, ErrInvalidStatusUpdate) {
		t.Errorf("expected ErrInvalidStatusUpdate for bad body, got %v", err)
	}
}

func TestHandleMessage_IgnoresUnassignedSender(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	a := f.lastAssignment(t, "architect-1")
	msg := statusMessage(t, "backend-1", f.o.ID(), a, domain.DelegationDone)
	if err := f.o.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if p := f.progress(t, id); p.Delegations.Done != 0 {
		t.Errorf("update from unassigned worker must be ignored, stats=%+v", p.Delegations)
	}
}

func TestHandleMessage_DuplicateDoneIsIgnored(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	if _, err := f.o.StartExecution(ctx, loginTask(), uuid.New()); err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	f.report(t, "architect-1", domain.DelegationDone)
	f.report(t, "architect-1", domain.DelegationDone)

	if got := f.load(t, "architect-1"); got != 0 {
		t.Errorf("duplicate done must not release load twice, got %d", got)
	}
	if len(f.assignments(t, "backend-1")) != 1 {
		t.Error("backend should be assigned exactly once")
	}
}

func TestHandleMessage_WorkFailureBlocksAndRetries(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	f.report(t, "coordinator-1", domain.DelegationFailed)

	if got := f.progress(t, id).State; got != domain.StateBlocked {
		t.Fatalf("expected blocked, got %s", got)
	}
	b := f.onlyBlocker(t, id)
	if b.Metadata["delegation_id"] == nil {
		t.Error("blocker should reference the failed delegation")
	}

	if err := f.o.ResolveBlocker(ctx, id, b.ID, "retry", domain.StateInProgress); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}
	if n := len(f.assignments(t, "coordinator-1")); n != 2 {
		t.Errorf("failed delegation should be reassigned, got %d assignments", n)
	}

	f.report(t, "coordinator-1", domain.DelegationDone)
	if got := f.progress(t, id).State; got != domain.StateCompleted {
		t.Errorf("expected completed after retry, got %s", got)
	}
}

func TestHandleMessage_VerificationFailureFailsExecution(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	f.report(t, "architect-1", domain.DelegationDone)
	f.report(t, "backend-1", domain.DelegationDone)
	f.report(t, "frontend-1", domain.DelegationDone)
	f.report(t, "verifier-1", domain.DelegationFailed)

	exec, err := f.o.GetExecution(ctx, id)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", exec.State)
	}
	if exec.Error["reason"] != "verification failed" {
		t.Errorf("unexpected error payload: %v", exec.Error)
	}
	if len(f.assignments(t, "reviewer-1")) != 0 {
		t.Error("review must not be assigned after failed testing")
	}
}

func TestHandleMessage_RecordsDelegationProgress(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	exec, _ := f.o.GetExecution(ctx, id)
	transitions := len(exec.Transitions())

	a := f.lastAssignment(t, "architect-1")
	f.report(t, "architect-1", domain.DelegationInProgress)

	exec, _ = f.o.GetExecution(ctx, id)
	last := exec.Log[len(exec.Log)-1]
	if last.Kind != domain.LogDelegation || last.To != domain.StateInProgress {
		t.Fatalf("expected delegation log entry, got %+v", last)
	}
	if last.Metadata["delegation_id"] != a.DelegationID.String() {
		t.Errorf("log entry should reference delegation %s, got %v", a.DelegationID, last.Metadata["delegation_id"])
	}
	if len(exec.Transitions()) != transitions {
		t.Error("delegation progress must not add a transition")
	}
	if !exec.LastEventAt().Equal(last.At) {
		t.Error("delegation progress should move the last event time")
	}
}

func TestHandleMessage_WorkFailureDuringVerificationBlocks(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	f.report(t, "architect-1", domain.DelegationDone)
	f.report(t, "backend-1", domain.DelegationDone)
	f.report(t, "frontend-1", domain.DelegationFailed)

	b := f.onlyBlocker(t, id)
	if err := f.o.ResolveBlocker(ctx, id, b.ID, "retry in testing", domain.StateTesting); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}

	f.report(t, "frontend-1", domain.DelegationFailed)

	if got := f.progress(t, id).State; got != domain.StateBlocked {
		t.Errorf("work failure during verification should block, got %s", got)
	}
}

// --- Blocker Tests ---

func TestBlocker_HandleAndResolve(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}

	blockerID, err := f.o.HandleBlocker(ctx, id, "API key missing", map[string]any{"severity": "high"})
	if err != nil {
		t.Fatalf("HandleBlocker: %v", err)
	}

	p := f.progress(t, id)
	if !p.IsBlocked || p.Percentage != 60 || p.OpenBlockers != 1 {
		t.Fatalf("unexpected progress while blocked: %+v", p)
	}

	exec, _ := f.o.GetExecution(ctx, id)
	last := exec.Log[len(exec.Log)-1]
	if last.Reason != BlockerReasonPrefix+blockerID.String() {
		t.Errorf("unexpected blocked reason %q", last.Reason)
	}

	if err := f.o.ResolveBlocker(ctx, id, blockerID, "key provided", domain.StateInProgress); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}

	p = f.progress(t, id)
	if p.State != domain.StateInProgress || p.OpenBlockers != 0 {
		t.Errorf("expected in_progress without blockers, got %+v", p)
	}
	b := f.onlyBlocker(t, id)
	if !b.IsResolved() || *b.Resolution != "key provided" {
		t.Errorf("blocker not resolved: %+v", b)
	}
	if b.Severity != domain.SeverityHigh {
		t.Errorf("expected high severity, got %s", b.Severity)
	}
}

func TestBlocker_ResolveIntoTestingRedispatchesWork(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, loginTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	f.report(t, "architect-1", domain.DelegationDone)
	f.report(t, "backend-1", domain.DelegationDone)
	f.report(t, "frontend-1", domain.DelegationFailed)

	b := f.onlyBlocker(t, id)
	if err := f.o.ResolveBlocker(ctx, id, b.ID, "frontend fixed", domain.StateTesting); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}

	if got := f.progress(t, id).State; got != domain.StateTesting {
		t.Fatalf("expected testing, got %s", got)
	}
	if n := len(f.assignments(t, "frontend-1")); n != 2 {
		t.Fatalf("failed frontend work should be reassigned, got %d assignments", n)
	}
	if n := len(f.assignments(t, "verifier-1")); n != 0 {
		t.Fatalf("testing must wait for frontend, got %d assignments", n)
	}

	f.report(t, "frontend-1", domain.DelegationDone)
	if n := len(f.assignments(t, "verifier-1")); n != 1 {
		t.Fatalf("testing should be assigned once work is done, got %d", n)
	}

	f.report(t, "verifier-1", domain.DelegationDone)
	f.report(t, "reviewer-1", domain.DelegationDone)

	if got := f.progress(t, id).State; got != domain.StateCompleted {
		t.Errorf("expected completed, got %s", got)
	}
}

func TestBlocker_ResolveIntoDelegatedWithWorkInFlight(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, err := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	if err != nil {
		t.Fatalf("StartExecution: %v", err)
	}
	blockerID, err := f.o.HandleBlocker(ctx, id, "waiting for credentials", nil)
	if err != nil {
		t.Fatalf("HandleBlocker: %v", err)
	}

	if err := f.o.ResolveBlocker(ctx, id, blockerID, "credentials provided", domain.StateDelegated); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}

	exec, _ := f.o.GetExecution(ctx, id)
	if exec.State != domain.StateInProgress {
		t.Fatalf("expected in_progress, got %s", exec.State)
	}
	history := exec.Transitions()
	if last := history[len(history)-1]; last.Reason != "work in flight" {
		t.Errorf("unexpected reason %q", last.Reason)
	}
	if n := len(f.assignments(t, "coordinator-1")); n != 1 {
		t.Errorf("active delegation must not be reassigned, got %d assignments", n)
	}
}

func TestBlocker_ResolveIntoDelegatedWithoutPlanBlocksAgain(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	f.o.Engine().RegisterStateAction(domain.StateAnalyzing, func(context.Context, *domain.Execution) error {
		return errors.New("analyzer unavailable")
	})
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	b := f.onlyBlocker(t, id)

	err := f.o.ResolveBlocker(ctx, id, b.ID, "skip analysis", domain.StateDelegated)
	if !errors.Is(err, errNothingDispatched) {
		t.Fatalf("expected errNothingDispatched, got %v", err)
	}

	if got := f.progress(t, id).State; got != domain.StateBlocked {
		t.Errorf("expected blocked, got %s", got)
	}
	blockers, _ := f.o.ListBlockers(ctx, id)
	if len(blockers) != 2 || blockers[1].IsResolved() {
		t.Errorf("expected a new open blocker, got %+v", blockers)
	}
}

func TestBlocker_SecondBlockerWhileBlocked(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	first, _ := f.o.HandleBlocker(ctx, id, "first", nil)

	exec, _ := f.o.GetExecution(ctx, id)
	transitions := len(exec.Transitions())

	second, err := f.o.HandleBlocker(ctx, id, "second", nil)
	if err != nil {
		t.Fatalf("HandleBlocker: %v", err)
	}

	exec, _ = f.o.GetExecution(ctx, id)
	if len(exec.Transitions()) != transitions {
		t.Error("second blocker must not add a transition")
	}
	if last := exec.Log[len(exec.Log)-1]; last.Kind != domain.LogBlocker {
		t.Errorf("expected blocker log entry, got %s", last.Kind)
	}

	blockers, _ := f.o.ListBlockers(ctx, id)
	if len(blockers) != 2 || blockers[0].ID != first || blockers[1].ID != second {
		t.Fatalf("unexpected blockers: %+v", blockers)
	}
	if blockers[1].Severity != domain.SeverityMedium {
		t.Errorf("default severity should be medium, got %s", blockers[1].Severity)
	}
}

func TestBlocker_ResolveErrors(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	blockerID, _ := f.o.HandleBlocker(ctx, id, "stuck", nil)

	err := f.o.ResolveBlocker(ctx, id, uuid.New(), "x", domain.StateInProgress)
	if !errors.Is(err, ErrUnknownBlocker) {
		t.Errorf("expected ErrUnknownBlocker, got %v", err)
	}

	err = f.o.ResolveBlocker(ctx, id, blockerID, "x", domain.StateCompleted)
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if f.progress(t, id).OpenBlockers != 1 {
		t.Error("blocker must stay open after invalid transition")
	}

	if err := f.o.ResolveBlocker(ctx, id, blockerID, "fixed", domain.StateInProgress); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}
	err = f.o.ResolveBlocker(ctx, id, blockerID, "again", domain.StateInProgress)
	if !errors.Is(err, ErrUnknownBlocker) {
		t.Errorf("resolving twice should fail with ErrUnknownBlocker, got %v", err)
	}
}

func TestBlocker_TerminalExecution(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	if _, err := f.o.FailExecution(ctx, id, map[string]any{"reason": "abandoned"}); err != nil {
		t.Fatalf("FailExecution: %v", err)
	}

	_, err := f.o.HandleBlocker(ctx, id, "late", nil)
	if !errors.Is(err, ErrExecutionTerminal) {
		t.Errorf("expected ErrExecutionTerminal, got %v", err)
	}

	_, err = f.o.HandleBlocker(ctx, uuid.New(), "ghost", nil)
	if !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

// --- Escalation Tests ---

func TestEscalateToHuman(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	_, _ = f.o.HandleBlocker(ctx, id, "stuck", nil)

	for level := 1; level <= 2; level++ {
		escID, err := f.o.EscalateToHuman(ctx, id, "blocked too long", "no progress", []string{"retry"})
		if err != nil {
			t.Fatalf("EscalateToHuman: %v", err)
		}

		msgs := f.bus.GetMessages("human", time.Time{}, 0)
		if len(msgs) != level {
			t.Fatalf("expected %d messages to human, got %d", level, len(msgs))
		}
		msg := msgs[level-1]
		if msg.Kind != domain.MessageSystem || msg.SenderID != f.o.ID() {
			t.Errorf("unexpected message: %+v", msg)
		}

		body, err := domain.DecodeBody[domain.HumanIntervention](msg.Body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Type != domain.HumanInterventionRequired || body.Level != level || body.EscalationID != escID {
			t.Errorf("unexpected body: %+v", body)
		}
	}

	p := f.progress(t, id)
	if p.EscalationLevel != 2 || p.State != domain.StateBlocked {
		t.Errorf("escalation must not change state: %+v", p)
	}
}

// --- Completion Tests ---

func TestCompleteExecution_InvalidFromInProgress(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())

	state, err := f.o.CompleteExecution(ctx, id, map[string]any{"ok": true})
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if state != domain.StateInProgress {
		t.Errorf("state must be unchanged, got %s", state)
	}

	exec, _ := f.o.GetExecution(ctx, id)
	if exec.Result != nil {
		t.Errorf("result must not be recorded, got %v", exec.Result)
	}
}

func TestCompleteExecution_Idempotent(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	f.report(t, "coordinator-1", domain.DelegationDone)

	for i := 0; i < 2; i++ {
		state, err := f.o.CompleteExecution(ctx, id, nil)
		if err != nil || state != domain.StateCompleted {
			t.Errorf("CompleteExecution #%d = %s, %v", i, state, err)
		}
	}

	state, err := f.o.FailExecution(ctx, id, map[string]any{"reason": "late"})
	if err != nil || state != domain.StateCompleted {
		t.Errorf("FailExecution on completed = %s, %v", state, err)
	}

	_, err = f.o.CompleteExecution(ctx, uuid.New(), nil)
	if !errors.Is(err, ErrExecutionNotFound) {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestCancelExecution_ReleasesWork(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	id, _ := f.o.StartExecution(ctx, loginTask(), uuid.New())
	a := f.lastAssignment(t, "architect-1")

	state, err := f.o.CancelExecution(ctx, id, "requirements changed")
	if err != nil || state != domain.StateFailed {
		t.Fatalf("CancelExecution = %s, %v", state, err)
	}

	if got := f.load(t, "architect-1"); got != 0 {
		t.Errorf("load should be released, got %d", got)
	}

	delegations, _ := f.o.ListDelegations(ctx, id)
	for _, d := range delegations {
		if d.Status != domain.DelegationFailed {
			t.Errorf("delegation %s should be failed, got %s", d.Kind, d.Status)
		}
	}

	exec, _ := f.o.GetExecution(ctx, id)
	if exec.Error["reason"] != ReasonCancelled {
		t.Errorf("unexpected error payload: %v", exec.Error)
	}

	// Поздний ответ исполнителя отклоняется шиной.
	reply := statusMessage(t, "architect-1", f.o.ID(), a, domain.DelegationDone)
	_, err = f.bus.Send("architect-1", f.o.ID(), reply.Body, reply.Kind, reply.CorrelationID)
	if !errors.Is(err, bus.ErrCorrelationClosed) {
		t.Errorf("expected ErrCorrelationClosed, got %v", err)
	}
	if err := f.o.HandleMessage(ctx, reply); err != nil {
		t.Errorf("late update should be ignored, got %v", err)
	}
}

// --- Concurrency Tests ---

func TestStartExecution_ConcurrentSameTask(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	task := summaryTask()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.o.StartExecution(context.Background(), task, uuid.New())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateExecution):
				dupes++
			}
		}()
	}
	wg.Wait()

	if ok != 1 || dupes != 9 {
		t.Errorf("expected 1 success and 9 duplicates, got %d and %d", ok, dupes)
	}
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t, fullTeam()...)
	ctx := context.Background()

	blocked, _ := f.o.StartExecution(ctx, summaryTask(), uuid.New())
	_, _ = f.o.HandleBlocker(ctx, blocked, "stuck", nil)
	_, _ = f.o.StartExecution(ctx, loginTask(), uuid.New())

	snaps := f.o.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	for _, s := range snaps {
		if s.Execution.ID == blocked {
			if s.OpenBlockers != 1 || s.LastActive != domain.StateInProgress {
				t.Errorf("unexpected blocked snapshot: %+v", s)
			}
		}
	}
}
