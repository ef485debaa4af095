package delegation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

// Node — узел графа делегирований.
type Node struct {
	// Delegation — указатель на элемент исходного среза.
	Delegation *domain.Delegation

	// InDegree — количество зависимостей.
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// ID возвращает ID делегирования.
func (n *Node) ID() uuid.UUID {
	return n.Delegation.ID
}

// Graph — направленный ациклический граф делегирований одного execution.
type Graph struct {
	// Nodes — все узлы (delegationID → Node).
	Nodes map[uuid.UUID]*Node

	// Roots — узлы без зависимостей.
	Roots []*Node

	// Order — топологический порядок. Стабилен относительно
	// порядка входного среза.
	Order []*Node
}

// BuildGraph строит граф и проверяет зависимости.
//
// Узлы ссылаются на элементы delegations, поэтому срез нельзя
// переаллоцировать, пока граф используется.
func BuildGraph(delegations []domain.Delegation) (*Graph, error) {
	g := &Graph{Nodes: make(map[uuid.UUID]*Node, len(delegations))}

	// Первый проход: создаём узлы
	nodes := make([]*Node, 0, len(delegations))
	for i := range delegations {
		d := &delegations[i]
		if _, exists := g.Nodes[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDelegation, d.ID)
		}
		node := &Node{Delegation: d}
		g.Nodes[d.ID] = node
		nodes = append(nodes, node)
	}

	// Второй проход: связываем по зависимостям
	for _, node := range nodes {
		for _, depID := range node.Delegation.DependsOn {
			if depID == node.ID() {
				return nil, fmt.Errorf("%w: %s", ErrSelfDependency, depID)
			}
			dep, exists := g.Nodes[depID]
			if !exists {
				return nil, fmt.Errorf("%w: %s -> %s", ErrMissingDependency, node.ID(), depID)
			}
			g.addEdge(dep, node)
		}
	}

	for _, node := range nodes {
		if node.InDegree == 0 {
			g.Roots = append(g.Roots, node)
		}
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// addEdge добавляет ребро, игнорируя дубликаты.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep == from {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort — алгоритм Кана. Ошибка, если остался цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[uuid.UUID]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := append([]*Node(nil), g.Roots...)
	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID()]--
			if inDegree[dependent.ID()] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Ready возвращает pending-делегирования, все зависимости которых done.
// Порядок топологический.
func (g *Graph) Ready() []*Node {
	ready := make([]*Node, 0)
	for _, node := range g.Order {
		if node.Delegation.Status != domain.DelegationPending {
			continue
		}
		if g.depsDone(node) {
			ready = append(ready, node)
		}
	}
	return ready
}

func (g *Graph) depsDone(node *Node) bool {
	for _, dep := range node.DependsOn {
		if dep.Delegation.Status != domain.DelegationDone {
			return false
		}
	}
	return true
}

// Get возвращает узел по ID.
func (g *Graph) Get(id uuid.UUID) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// AllDone проверяет, что все узлы, удовлетворяющие фильтру, завершены.
// nil-фильтр означает все узлы.
func (g *Graph) AllDone(filter func(*domain.Delegation) bool) bool {
	for _, node := range g.Order {
		if filter != nil && !filter(node.Delegation) {
			continue
		}
		if node.Delegation.Status != domain.DelegationDone {
			return false
		}
	}
	return true
}
