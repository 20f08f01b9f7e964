// Package graph holds the static shape of a pipeline: which nodes exist,
// which of them are parallel groups, and how each node picks its
// successor. A Graph is built once at startup and never mutated.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/xraph/caseflow"
	"github.com/xraph/caseflow/router"
	"github.com/xraph/caseflow/stage"
)

// Node is a graph vertex. A node with Members is a parallel group whose
// members run concurrently; otherwise it names a single stage.
type Node struct {
	Name    string
	Members []string
}

// IsGroup reports whether the node is a parallel group.
func (n Node) IsGroup() bool { return len(n.Members) > 0 }

// Graph is an immutable pipeline definition.
type Graph struct {
	entry   string
	order   []string
	nodes   map[string]Node
	routes  map[string]router.Func
	targets map[string][]string
}

// Entry returns the first node of every run.
func (g *Graph) Entry() string { return g.entry }

// Node returns the named node.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return Node{}, false
	}
	n.Members = slices.Clone(n.Members)
	return n, true
}

// Route returns the router attached to name.
func (g *Graph) Route(name string) (router.Func, bool) {
	r, ok := g.routes[name]
	return r, ok
}

// Targets returns the successors declared for name. Routers attached
// without declared targets report none.
func (g *Graph) Targets(name string) []string {
	return slices.Clone(g.targets[name])
}

// Nodes returns every node name, sorted.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder assembles a Graph. Errors are collected and reported by Build.
type Builder struct {
	entry   string
	order   []string
	nodes   map[string]Node
	routes  map[string]router.Func
	targets map[string][]string
	errs    []error
}

// NewBuilder starts a graph whose runs begin at entry.
func NewBuilder(entry string) *Builder {
	return &Builder{
		entry:   entry,
		nodes:   make(map[string]Node),
		routes:  make(map[string]router.Func),
		targets: make(map[string][]string),
	}
}

// Stage adds a single-stage node.
func (b *Builder) Stage(name string) *Builder {
	return b.add(Node{Name: name})
}

// Parallel adds a group node whose members run concurrently. Results are
// merged in the order members are listed here.
func (b *Builder) Parallel(group string, members ...string) *Builder {
	if len(members) == 0 {
		b.errs = append(b.errs, fmt.Errorf("group %q has no members", group))
		return b
	}
	return b.add(Node{Name: group, Members: slices.Clone(members)})
}

// Route attaches a router to from. targets lists the nodes fn may pick;
// they are validated by Build and used by the exporters.
func (b *Builder) Route(from string, fn router.Func, targets ...string) *Builder {
	if _, dup := b.routes[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q routed twice", from))
		return b
	}
	b.routes[from] = fn
	if len(targets) > 0 {
		b.targets[from] = slices.Clone(targets)
	}
	return b
}

// Edge attaches an unconditional route from one node to another. Use
// router.Terminal as to for the last node.
func (b *Builder) Edge(from, to string) *Builder {
	return b.Route(from, router.Always(to), to)
}

func (b *Builder) add(n Node) *Builder {
	if n.Name == "" || n.Name == router.Terminal {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", n.Name))
		return b
	}
	if _, dup := b.nodes[n.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q declared twice", n.Name))
		return b
	}
	b.nodes[n.Name] = n
	b.order = append(b.order, n.Name)
	return b
}

// Build validates the definition against reg and returns the graph. Every
// failure wraps caseflow.ErrInvalidGraph.
func (b *Builder) Build(reg *stage.Registry) (*Graph, error) {
	errs := slices.Clone(b.errs)

	if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry node %q not declared", b.entry))
	}

	memberOf := make(map[string]string)
	for _, name := range b.order {
		n := b.nodes[name]
		if _, ok := b.routes[name]; !ok {
			errs = append(errs, fmt.Errorf("node %q has no route", name))
		}
		if !n.IsGroup() {
			if !reg.Exists(name) {
				errs = append(errs, fmt.Errorf("stage %q is not registered", name))
			}
			continue
		}
		if reg.Exists(name) {
			errs = append(errs, fmt.Errorf("group %q shadows a stage of the same name", name))
		}
		for _, m := range n.Members {
			switch {
			case !reg.Exists(m):
				errs = append(errs, fmt.Errorf("group %q member %q is not registered", name, m))
			case b.nodes[m].IsGroup():
				errs = append(errs, fmt.Errorf("group %q nests group %q", name, m))
			case memberOf[m] != "":
				errs = append(errs, fmt.Errorf("stage %q belongs to groups %q and %q", m, memberOf[m], name))
			default:
				memberOf[m] = name
			}
		}
	}

	for from := range b.routes {
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("route from undeclared node %q", from))
		}
	}
	for from, targets := range b.targets {
		for _, to := range targets {
			if _, ok := b.nodes[to]; !ok && to != router.Terminal {
				errs = append(errs, fmt.Errorf("edge %s -> %s targets an undeclared node", from, to))
			}
		}
	}

	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return nil, fmt.Errorf("%w: %w", caseflow.ErrInvalidGraph, errors.Join(errs...))
	}

	g := &Graph{
		entry:   b.entry,
		order:   slices.Clone(b.order),
		nodes:   make(map[string]Node, len(b.nodes)),
		routes:  make(map[string]router.Func, len(b.routes)),
		targets: make(map[string][]string, len(b.targets)),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.routes {
		g.routes[k] = v
	}
	for k, v := range b.targets {
		g.targets[k] = slices.Clone(v)
	}
	return g, nil
}
