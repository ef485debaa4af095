package delegation

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

func pending(deps ...uuid.UUID) domain.Delegation {
	return domain.Delegation{ID: uuid.New(), DependsOn: deps, Status: domain.DelegationPending}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	a := pending()
	b := pending(a.ID)
	c := pending(a.ID)
	d := pending(b.ID, c.ID)
	ds := []domain.Delegation{a, b, c, d}

	g, err := BuildGraph(ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 4 {
		t.Errorf("expected 4 nodes, got %d", g.Size())
	}
	if len(g.Roots) != 1 || g.Roots[0].ID() != a.ID {
		t.Error("A should be the only root")
	}
	if g.Get(d.ID).InDegree != 2 {
		t.Errorf("D should have inDegree 2, got %d", g.Get(d.ID).InDegree)
	}
	if g.Order[0].ID() != a.ID || g.Order[3].ID() != d.ID {
		t.Error("topological order should start with A and end with D")
	}
}

func TestBuildGraph_Errors(t *testing.T) {
	a := pending()
	self := pending()
	self.DependsOn = []uuid.UUID{self.ID}

	x := pending()
	y := pending(x.ID)
	x.DependsOn = []uuid.UUID{y.ID}

	tests := []struct {
		name string
		ds   []domain.Delegation
		want error
	}{
		{"duplicate", []domain.Delegation{a, a}, ErrDuplicateDelegation},
		{"missing", []domain.Delegation{pending(uuid.New())}, ErrMissingDependency},
		{"self", []domain.Delegation{self}, ErrSelfDependency},
		{"cycle", []domain.Delegation{x, y}, ErrCyclicDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(tt.ds)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGraph_Ready(t *testing.T) {
	a := pending()
	b := pending(a.ID)
	c := pending(a.ID)
	d := pending(b.ID, c.ID)
	ds := []domain.Delegation{a, b, c, d}

	g, err := BuildGraph(ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID() != a.ID {
		t.Fatalf("only A should be ready initially")
	}

	// Граф смотрит на элементы исходного среза.
	ds[0].Status = domain.DelegationDone
	ds[1].Status = domain.DelegationInProgress

	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID() != c.ID {
		t.Fatalf("only C should be ready, got %d nodes", len(ready))
	}

	ds[1].Status = domain.DelegationDone
	ds[2].Status = domain.DelegationDone
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID() != d.ID {
		t.Fatalf("D should be ready once B and C are done")
	}

	if g.AllDone(nil) {
		t.Error("graph is not complete while D is pending")
	}
	ds[3].Status = domain.DelegationDone
	if !g.AllDone(nil) {
		t.Error("graph should be complete")
	}
}

func TestGraph_AllDoneFilter(t *testing.T) {
	impl := pending()
	impl.Kind = domain.KindBackend
	impl.Status = domain.DelegationDone
	review := pending(impl.ID)
	review.Kind = domain.KindReview
	ds := []domain.Delegation{impl, review}

	g, err := BuildGraph(ds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	work := func(d *domain.Delegation) bool { return !d.Kind.IsVerification() }
	if !g.AllDone(work) {
		t.Error("implementation work should be complete")
	}
	if g.AllDone(nil) {
		t.Error("review still pending")
	}
}
