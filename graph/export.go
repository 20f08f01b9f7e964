package graph

import (
	"fmt"
	"strings"

	"github.com/xraph/caseflow/router"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Mermaid renders the graph as a Mermaid flowchart. Groups are drawn as
// subroutine boxes listing their members; routes with more than one
// declared target are drawn as dashed conditional edges.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	fmt.Fprintf(&sb, "    %s((start))\n", startID)
	for _, name := range g.order {
		n := g.nodes[name]
		if n.IsGroup() {
			fmt.Fprintf(&sb, "    %s[[\"%s: %s\"]]\n", name, name, strings.Join(n.Members, ", "))
			continue
		}
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, name)
	}
	fmt.Fprintf(&sb, "    %s((end))\n", endID)

	fmt.Fprintf(&sb, "    %s --> %s\n", startID, g.entry)
	for _, from := range g.order {
		targets := g.targets[from]
		arrow := "-->"
		if len(targets) > 1 {
			arrow = "-.->"
		}
		for _, to := range targets {
			fmt.Fprintf(&sb, "    %s %s %s\n", from, arrow, nodeID(to))
		}
	}
	return sb.String()
}

// DOT renders the graph as a Graphviz digraph.
func (g *Graph) DOT() string {
	var sb strings.Builder
	sb.WriteString("digraph caseflow {\n")
	sb.WriteString("    rankdir=TB;\n")
	fmt.Fprintf(&sb, "    %q [shape=circle, label=\"start\"];\n", startID)
	for _, name := range g.order {
		n := g.nodes[name]
		if n.IsGroup() {
			fmt.Fprintf(&sb, "    %q [shape=box3d, label=%q];\n", name, name+": "+strings.Join(n.Members, ", "))
			continue
		}
		fmt.Fprintf(&sb, "    %q [shape=box];\n", name)
	}
	fmt.Fprintf(&sb, "    %q [shape=doublecircle, label=\"end\"];\n", endID)

	fmt.Fprintf(&sb, "    %q -> %q;\n", startID, g.entry)
	for _, from := range g.order {
		targets := g.targets[from]
		for _, to := range targets {
			if len(targets) > 1 {
				fmt.Fprintf(&sb, "    %q -> %q [style=dashed];\n", from, nodeID(to))
				continue
			}
			fmt.Fprintf(&sb, "    %q -> %q;\n", from, nodeID(to))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func nodeID(name string) string {
	if name == router.Terminal {
		return endID
	}
	return name
}
