package dag

import (
	"fmt"
	"strings"
)

// ExportDOT renders the composed graph in Graphviz DOT form. The export
// reads the graph only; rendering to an image is a collaborator's job.
func ExportDOT(name string, g *Graph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n")

	for _, nodeName := range g.NodeNames() {
		fmt.Fprintf(&b, "  %q;\n", nodeName)
	}
	for _, nodeName := range g.NodeNames() {
		node := g.Nodes[nodeName]
		for _, dep := range node.DependsOn {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, nodeName)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
