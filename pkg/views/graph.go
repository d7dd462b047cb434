package views

import (
	"fmt"
	"sort"
)

// Graph is the dependency graph over view names. Edges point from a view to
// the views it depends on; dependencies that are not views (the base table)
// are ignored.
type Graph struct {
	nodes map[string]View
	edges map[string][]string
}

// NewGraph builds the graph for a set of views.
func NewGraph(views []View) *Graph {
	g := &Graph{
		nodes: make(map[string]View, len(views)),
		edges: make(map[string][]string, len(views)),
	}
	for _, v := range views {
		g.nodes[v.Name] = v
		edges := make([]string, 0, len(v.DependsOn))
		for _, dep := range v.DependsOn {
			edges = append(edges, dep)
		}
		g.edges[v.Name] = edges
	}
	return g
}

// Levels groups the views into execution levels: every view's dependencies
// sit at strictly lower levels. Views within one level are mutually
// independent. A cycle fails with an error naming its members.
func (g *Graph) Levels() ([][]View, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	level := make(map[string]int, len(g.nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle involving: %s", joinCycle(g.cycleMembers(name)))
		}
		state[name] = visiting

		max := -1
		for _, dep := range g.edges[name] {
			if _, isView := g.nodes[dep]; !isView {
				continue // base table or external name
			}
			if err := visit(dep); err != nil {
				return err
			}
			if level[dep] > max {
				max = level[dep]
			}
		}

		state[name] = done
		level[name] = max + 1
		return nil
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	depth := 0
	for _, l := range level {
		if l+1 > depth {
			depth = l + 1
		}
	}
	out := make([][]View, depth)
	for _, name := range names {
		l := level[name]
		out[l] = append(out[l], g.nodes[name])
	}
	return out, nil
}

// cycleMembers walks the strongly connected members reachable from start
// that can reach start again.
func (g *Graph) cycleMembers(start string) []string {
	reachable := map[string]bool{}
	var mark func(name string)
	mark = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for _, dep := range g.edges[name] {
			if _, ok := g.nodes[dep]; ok {
				mark(dep)
			}
		}
	}
	mark(start)

	var members []string
	for name := range reachable {
		if g.reaches(name, start) {
			members = append(members, name)
		}
	}
	sort.Strings(members)
	return members
}

func (g *Graph) reaches(from, to string) bool {
	seen := map[string]bool{}
	var walk func(name string) bool
	walk = func(name string) bool {
		if name == to {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		for _, dep := range g.edges[name] {
			if _, ok := g.nodes[dep]; ok && walk(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range g.edges[from] {
		if _, ok := g.nodes[dep]; ok && walk(dep) {
			return true
		}
	}
	return false
}

func joinCycle(members []string) string {
	out := ""
	for i, m := range members {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}
