package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/modplan/internal/descriptor"
	"github.com/vk/modplan/internal/graph"
)

// BuildPlan is the layered build order of one target.
type BuildPlan struct {
	Target   string
	Kind     descriptor.Kind
	Baseline string
	Layers   [][]*graph.Node
}

// Plan performs a layered topological sort of g. Within a layer, entry
// modules come first in the target's declaration order, then the remaining
// nodes by name.
func Plan(g *graph.Graph) *BuildPlan {
	level := make(map[string]int, g.Len())
	depth := 0
	for _, n := range g.DependencyOrder() {
		l := 0
		for _, d := range n.Deps() {
			if level[d.Name()]+1 > l {
				l = level[d.Name()] + 1
			}
		}
		level[n.Name()] = l
		if l+1 > depth {
			depth = l + 1
		}
	}

	layers := make([][]*graph.Node, depth)
	for _, n := range g.Nodes() {
		l := level[n.Name()]
		layers[l] = append(layers[l], n)
	}
	for _, layer := range layers {
		sort.SliceStable(layer, func(i, j int) bool {
			return lessInLayer(g, layer[i], layer[j])
		})
	}

	return &BuildPlan{
		Target:   g.Target().Name(),
		Kind:     g.Target().Kind(),
		Baseline: g.Baseline(),
		Layers:   layers,
	}
}

func lessInLayer(g *graph.Graph, a, b *graph.Node) bool {
	ai, bi := g.EntryIndex(a.Name()), g.EntryIndex(b.Name())
	switch {
	case ai >= 0 && bi >= 0:
		return ai < bi
	case ai >= 0:
		return true
	case bi >= 0:
		return false
	default:
		return a.Name() < b.Name()
	}
}

// Nodes returns every planned node in plan order.
func (p *BuildPlan) Nodes() []*graph.Node {
	var out []*graph.Node
	for _, layer := range p.Layers {
		out = append(out, layer...)
	}
	return out
}

// Names returns the module names of each layer.
func (p *BuildPlan) Names() [][]string {
	out := make([][]string, len(p.Layers))
	for i, layer := range p.Layers {
		out[i] = make([]string, len(layer))
		for j, n := range layer {
			out[i][j] = n.Name()
		}
	}
	return out
}

// String renders the plan. Identical plans render byte-identically.
func (p *BuildPlan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "target %s (%s)\n", p.Target, p.Kind)
	if p.Baseline != "" {
		fmt.Fprintf(&b, "shared baseline %s\n", p.Baseline)
	}
	for i, layer := range p.Layers {
		fmt.Fprintf(&b, "layer %d:\n", i)
		for _, n := range layer {
			if n.IsExternal() {
				fmt.Fprintf(&b, "  %s (external %s)\n", n.Name(), n.External().ArtifactRef())
				continue
			}
			fmt.Fprintf(&b, "  %s (pch %s)\n", n.Name(), n.PCH())
		}
	}
	return b.String()
}
