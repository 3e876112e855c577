package core

import "sort"

// ModuleEdge is a labelled edge in the resolved module graph: the
// dependency alias (the name the requirer used) (spec.md 4.1).
type ModuleEdge struct {
	To    ModuleID
	Alias string
}

// ModuleGraph is the resolved DAG of module identities produced by the
// resolver (spec.md 3, "Module identity" / 4.1).
type ModuleGraph struct {
	Root  ModuleID
	edges map[ModuleID][]ModuleEdge
}

// NewModuleGraph constructs an empty graph rooted at root.
func NewModuleGraph(root ModuleID) *ModuleGraph {
	return &ModuleGraph{Root: root, edges: map[ModuleID][]ModuleEdge{}}
}

// AddEdge records that `from` depends on `to`.
func (g *ModuleGraph) AddEdge(from, to ModuleID, alias string) {
	g.edges[from] = append(g.edges[from], ModuleEdge{To: to, Alias: alias})
}

// Deps returns the dependencies of a module id.
func (g *ModuleGraph) Deps(id ModuleID) []ModuleEdge { return g.edges[id] }

// DetectCycle runs three-colour DFS cycle detection over the module graph
// (spec.md 9, "Cyclic graphs"; spec.md 4.1, "Cyclic dependencies").
func (g *ModuleGraph) DetectCycle() []ModuleID {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[ModuleID]int{}
	var stack []ModuleID
	var cycle []ModuleID

	ids := make([]ModuleID, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var visit func(ModuleID) bool
	visit = func(id ModuleID) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, e := range g.edges[id] {
			switch color[e.To] {
			case grey:
				for i, s := range stack {
					if s == e.To {
						cycle = append([]ModuleID(nil), stack[i:]...)
						cycle = append(cycle, e.To)
						return true
					}
				}
			case white:
				if visit(e.To) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
