// Package graph builds the consumer to provider binding graph from reference
// manager snapshots. It is a diagnostics view: nothing here changes bindings.
package graph

import (
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bayleafwalker/bindery-scr/internal/reference"
)

type ReferenceNode struct {
	Consumer    reference.ConfigurationID
	Name        string
	Interface   string
	Cardinality string
	Satisfied   bool
	Candidates  int
	Bound       []reference.ProviderID
}

// Edge is one binding of a consumer's reference to a provider.
type Edge struct {
	Consumer  reference.ConfigurationID
	Reference string
	Provider  reference.ProviderID
	Owner     reference.ConfigurationID
}

type BindingGraph struct {
	References []ReferenceNode
	Edges      []Edge
}

// Build assembles the graph. Nodes are ordered by consumer then reference
// name; edges follow their node and the bound order.
func Build(statuses []reference.Status) BindingGraph {
	sorted := append([]reference.Status{}, statuses...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Consumer != sorted[j].Consumer {
			return sorted[i].Consumer < sorted[j].Consumer
		}
		return sorted[i].Name < sorted[j].Name
	})

	g := BindingGraph{}
	for _, st := range sorted {
		node := ReferenceNode{
			Consumer:    st.Consumer,
			Name:        st.Name,
			Interface:   st.Interface,
			Cardinality: st.Cardinality.String(),
			Satisfied:   st.Satisfied,
			Candidates:  len(st.Candidates),
		}
		for _, c := range st.Bound {
			node.Bound = append(node.Bound, c.ID)
			g.Edges = append(g.Edges, Edge{
				Consumer:  st.Consumer,
				Reference: st.Name,
				Provider:  c.ID,
				Owner:     c.Owner,
			})
		}
		g.References = append(g.References, node)
	}
	return g
}

// Unsatisfied lists the references that are not satisfied.
func (g BindingGraph) Unsatisfied() []ReferenceNode {
	out := make([]ReferenceNode, 0)
	for _, n := range g.References {
		if !n.Satisfied {
			out = append(out, n)
		}
	}
	return out
}

// Consumers lists every configuration with at least one reference, sorted.
func (g BindingGraph) Consumers() []reference.ConfigurationID {
	s := sets.New[reference.ConfigurationID]()
	for _, n := range g.References {
		s.Insert(n.Consumer)
	}
	return sets.List(s)
}

// Ready reports whether every reference of consumer is satisfied. A
// configuration without references is ready.
func (g BindingGraph) Ready(consumer reference.ConfigurationID) bool {
	for _, n := range g.References {
		if n.Consumer == consumer && !n.Satisfied {
			return false
		}
	}
	return true
}

// DependsOn lists the configurations that own providers bound to consumer.
func (g BindingGraph) DependsOn(consumer reference.ConfigurationID) []reference.ConfigurationID {
	s := sets.New[reference.ConfigurationID]()
	for _, e := range g.Edges {
		if e.Consumer == consumer && e.Owner != "" {
			s.Insert(e.Owner)
		}
	}
	return sets.List(s)
}

// Cycles returns every dependency cycle between configurations, each
// starting at its smallest member.
func (g BindingGraph) Cycles() [][]reference.ConfigurationID {
	adj := map[reference.ConfigurationID][]reference.ConfigurationID{}
	nodes := sets.New[reference.ConfigurationID]()
	for _, e := range g.Edges {
		if e.Owner == "" {
			continue
		}
		nodes.Insert(e.Consumer, e.Owner)
	}
	for _, n := range sets.List(nodes) {
		adj[n] = g.DependsOn(n)
	}

	const (
		unvisited = iota
		active
		done
	)
	state := map[reference.ConfigurationID]int{}
	var (
		stack []reference.ConfigurationID
		found [][]reference.ConfigurationID
		seen  = sets.New[string]()
	)

	var visit func(n reference.ConfigurationID)
	visit = func(n reference.ConfigurationID) {
		state[n] = active
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch state[next] {
			case unvisited:
				visit(next)
			case active:
				i := len(stack) - 1
				for stack[i] != next {
					i--
				}
				cycle := rotate(append([]reference.ConfigurationID{}, stack[i:]...))
				if key := cycleKey(cycle); !seen.Has(key) {
					seen.Insert(key)
					found = append(found, cycle)
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = done
	}
	for _, n := range sets.List(nodes) {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return found
}

func rotate(cycle []reference.ConfigurationID) []reference.ConfigurationID {
	lowest := 0
	for i := range cycle {
		if cycle[i] < cycle[lowest] {
			lowest = i
		}
	}
	return append(cycle[lowest:], cycle[:lowest]...)
}

func cycleKey(cycle []reference.ConfigurationID) string {
	key := ""
	for _, n := range cycle {
		key += string(n) + "\x00"
	}
	return key
}
