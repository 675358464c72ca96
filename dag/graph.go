package dag

import (
	"fmt"
	"sort"

	fperrors "github.com/legout/flowerpower-sub010/errors"
	"github.com/legout/flowerpower-sub010/pipeline"
)

// Node is one named computation unit in a composed graph.
type Node struct {
	Name      string
	DependsOn []string
	Fn        pipeline.NodeFunc
	// Module is the name of the module whose definition won composition.
	Module string
}

// Graph is a composed, validated set of nodes.
type Graph struct {
	Nodes map[string]Node
}

// Compose folds the additional modules first and the main module last into
// a single graph. A node name collision is resolved by the later module
// overriding the earlier one. Compose validates that every declared
// dependency resolves to a node in the composed set and that the result is
// acyclic; both are build-time errors.
func Compose(main *pipeline.Module, additional []*pipeline.Module) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]Node)}

	modules := make([]*pipeline.Module, 0, len(additional)+1)
	modules = append(modules, additional...)
	modules = append(modules, main)

	for _, m := range modules {
		if m == nil {
			continue
		}
		for _, spec := range m.Nodes {
			// Last module wins on name collisions.
			g.Nodes[spec.Name] = Node{
				Name:      spec.Name,
				DependsOn: append([]string(nil), spec.DependsOn...),
				Fn:        spec.Fn,
				Module:    m.Name,
			}
		}
	}

	for _, node := range g.Nodes {
		for _, dep := range node.DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				return nil, fperrors.UnresolvedDependency(node.Name, dep)
			}
		}
	}

	if _, err := BuildLevels(g, nil); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildLevels groups nodes by dependency level using Kahn's algorithm.
// Nodes within one level have no edges between them. Levels and the names
// within them are sorted for deterministic walks. A non-nil subset
// restricts the plan to those nodes; dependencies crossing out of the
// subset are ignored by the caller's construction. Returns an error when a
// cycle is detected.
func BuildLevels(g *Graph, subset map[string]bool) ([][]string, error) {
	included := func(name string) bool {
		return subset == nil || subset[name]
	}

	inDegree := make(map[string]int)
	dependents := make(map[string][]string)
	total := 0

	for name, node := range g.Nodes {
		if !included(name) {
			continue
		}
		total++
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range node.DependsOn {
			if !included(dep) {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var levels [][]string
	visited := 0

	for len(queue) > 0 {
		sort.Strings(queue)
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, name := range queue {
			for _, dep := range dependents[name] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != total {
		return nil, fperrors.Cycle(fmt.Sprintf("processed %d of %d nodes", visited, total))
	}
	return levels, nil
}

// Ancestors returns the set of the given nodes plus all their transitive
// dependencies.
func (g *Graph) Ancestors(names []string) map[string]bool {
	required := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if required[name] {
			return
		}
		required[name] = true
		for _, dep := range g.Nodes[name].DependsOn {
			visit(dep)
		}
	}
	for _, name := range names {
		if _, ok := g.Nodes[name]; ok {
			visit(name)
		}
	}
	return required
}

// NodeNames returns all node names, sorted.
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
