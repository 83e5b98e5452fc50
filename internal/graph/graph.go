package graph

import (
	"context"
	"slices"

	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
)

// Graph is the resolved module closure of one target.
type Graph struct {
	target   *descriptor.Target
	nodes    map[string]*Node
	sorted   []*Node
	postfix  []*Node
	baseline string
}

// Target returns the target the graph was built for.
func (g *Graph) Target() *descriptor.Target { return g.target }

// Node looks up a node by module name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns every node sorted by name.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.sorted) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.sorted) }

// DependencyOrder returns every node with each node after all of its
// dependencies. The order is deterministic for a given store and target.
func (g *Graph) DependencyOrder() []*Node { return slices.Clone(g.postfix) }

// EntryIndex returns the position of name in the target's entry modules, or
// -1 when it is not an entry module.
func (g *Graph) EntryIndex(name string) int {
	return slices.Index(g.target.EntryModules(), name)
}

// Baseline returns the shared precompiled-state reference, or "" when no
// module shares it.
func (g *Graph) Baseline() string { return g.baseline }

// SetBaseline records the shared precompiled-state reference.
func (g *Graph) SetBaseline(ref string) { g.baseline = ref }

// builder holds the traversal state of a single Build call.
type builder struct {
	ctx     context.Context
	store   *descriptor.Store
	nodes   map[string]*Node
	onStack map[string]bool
	stack   []string
	postfix []*Node
}

// Build resolves target's entry modules into a graph.
func Build(ctx context.Context, store *descriptor.Store, target string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx).With("target", target)
	logger.Debug("Build: Starting graph construction.")

	tgt, ok := store.Target(target)
	if !ok {
		return nil, &UnknownTargetError{Name: target}
	}

	b := &builder{
		ctx:     ctx,
		store:   store,
		nodes:   make(map[string]*Node),
		onStack: make(map[string]bool),
	}
	for _, entry := range tgt.EntryModules() {
		if _, err := b.visit(entry, tgt.Name()); err != nil {
			logger.Debug("Build: Graph construction failed.", "error", err)
			return nil, err
		}
	}

	g := &Graph{
		target:  tgt,
		nodes:   b.nodes,
		postfix: b.postfix,
	}
	for _, n := range b.nodes {
		g.sorted = append(g.sorted, n)
		for _, d := range n.deps {
			d.dependents = append(d.dependents, n)
		}
	}
	sortByName(g.sorted)
	for _, n := range g.sorted {
		sortByName(n.dependents)
	}

	logger.Debug("Build: Graph construction complete.", "nodes", len(g.sorted))
	return g, nil
}

// visit resolves name depth-first and returns its finished node.
func (b *builder) visit(name, requiredBy string) (*Node, error) {
	if n, ok := b.nodes[name]; ok {
		return n, nil
	}
	if b.onStack[name] {
		start := slices.Index(b.stack, name)
		return nil, &CyclicDependencyError{Path: canonicalCycle(b.stack[start:])}
	}

	if ext, ok := b.store.External(name); ok {
		n := &Node{name: name, external: ext}
		b.finish(n)
		return n, nil
	}

	mod, ok := b.store.Module(name)
	if !ok {
		return nil, &UnresolvedDependencyError{Module: name, RequiredBy: requiredBy}
	}

	b.onStack[name] = true
	b.stack = append(b.stack, name)

	n := &Node{name: name, module: mod}
	for _, depName := range mod.PublicDependencies() {
		dep, err := b.visit(depName, name)
		if err != nil {
			return nil, err
		}
		n.deps = append(n.deps, dep)
		n.public = append(n.public, dep)
	}
	overlap := mod.Overlap()
	for _, depName := range mod.PrivateDependencies() {
		if slices.Contains(overlap, depName) {
			ctxlog.FromContext(b.ctx).Warn("Dependency declared both public and private, treating it as public.",
				"module", name, "dependency", depName)
			continue
		}
		dep, err := b.visit(depName, name)
		if err != nil {
			return nil, err
		}
		n.deps = append(n.deps, dep)
	}

	b.stack = b.stack[:len(b.stack)-1]
	delete(b.onStack, name)
	b.finish(n)
	return n, nil
}

func (b *builder) finish(n *Node) {
	b.nodes[n.name] = n
	b.postfix = append(b.postfix, n)
}
