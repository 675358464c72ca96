package pipeline

import (
	"context"
	"fmt"
)

// NodeFunc is a user-supplied computation. Inputs are the outputs of the
// node's dependencies keyed by node name, plus any run-level input
// overrides that target this node.
type NodeFunc func(ctx context.Context, inputs map[string]any) (any, error)

// NodeSpec declares one named computation unit and its dependencies.
type NodeSpec struct {
	// Name is the unique node identifier within the composed graph.
	Name string `yaml:"name"`
	// DependsOn lists node names this node depends on.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Component is the registry lookup key for file-defined nodes.
	// Empty for code-defined nodes, which set Fn directly.
	Component string `yaml:"component,omitempty"`
	// Fn is the computation. Populated for code modules at definition time
	// and for file modules during component resolution.
	Fn NodeFunc `yaml:"-"`
}

// Module is a named set of node specs, loadable by the resolver and
// composable into a graph.
type Module struct {
	Name  string     `yaml:"name"`
	Nodes []NodeSpec `yaml:"nodes"`
}

// Validate checks that node names are unique within the module and every
// node carries a computation.
func (m *Module) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("module name is required")
	}
	seen := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.Name == "" {
			return fmt.Errorf("module %q: node name is required", m.Name)
		}
		if seen[n.Name] {
			return fmt.Errorf("module %q: duplicate node %q", m.Name, n.Name)
		}
		seen[n.Name] = true
		if n.Fn == nil {
			return fmt.Errorf("module %q: node %q has no computation", m.Name, n.Name)
		}
	}
	return nil
}

// NodeNames returns the module's node names in declaration order.
func (m *Module) NodeNames() []string {
	names := make([]string, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		names = append(names, n.Name)
	}
	return names
}
