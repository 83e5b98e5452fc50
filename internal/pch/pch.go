// Package pch decides, for every module of a graph, whether it compiles
// against the target's shared precompiled baseline, builds its own
// precompiled state, or uses none.
package pch

import (
	"context"
	"fmt"

	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
	"github.com/vk/modplan/internal/graph"
)

// IncompatiblePrecompiledPolicyError reports a ForceShared module with a
// dependency that cannot share the baseline.
type IncompatiblePrecompiledPolicyError struct {
	Module     string
	Dependency string
	// Resolution is what the dependency resolved to.
	Resolution graph.PCHResolution
}

func (e *IncompatiblePrecompiledPolicyError) Error() string {
	return fmt.Sprintf("module %q requires the shared precompiled baseline but dependency %q resolves to %s",
		e.Module, e.Dependency, e.Resolution)
}

// BaselineRef names the shared precompiled baseline of a target.
func BaselineRef(target string) string {
	return "pch/" + target + "/shared"
}

// Annotate resolves every node of g, dependencies first, and records the
// baseline reference when at least one declared module shares it.
func Annotate(ctx context.Context, g *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Annotate: Resolving precompiled state.", "nodes", g.Len())

	sharing := 0
	for _, n := range g.DependencyOrder() {
		r, err := resolve(n)
		if err != nil {
			return err
		}
		n.SetPCH(r)
		if r == graph.Shared && !n.IsExternal() {
			sharing++
		}
		logger.Debug("Resolved precompiled state.", "module", n.Name(), "resolution", r)
	}

	if sharing > 0 {
		g.SetBaseline(BaselineRef(g.Target().Name()))
	}
	logger.Debug("Annotate: Precompiled state resolved.", "shared_modules", sharing, "baseline", g.Baseline())
	return nil
}

func resolve(n *graph.Node) (graph.PCHResolution, error) {
	if n.IsExternal() {
		return graph.Shared, nil
	}

	switch n.Module().PCHPolicy() {
	case descriptor.PCHNone:
		return graph.NoPCH, nil
	case descriptor.PCHForceExplicit:
		return graph.Explicit, nil
	case descriptor.PCHExplicitOrShared:
		if blocker := firstUnshareable(n); blocker != nil {
			return graph.Explicit, nil
		}
		return graph.Shared, nil
	case descriptor.PCHForceShared:
		if blocker := firstUnshareable(n); blocker != nil {
			return graph.Unresolved, &IncompatiblePrecompiledPolicyError{
				Module:     n.Name(),
				Dependency: blocker.Name(),
				Resolution: blocker.PCH(),
			}
		}
		return graph.Shared, nil
	default:
		return graph.Unresolved, fmt.Errorf("module %q has unhandled precompiled header policy %s", n.Name(), n.Module().PCHPolicy())
	}
}

// firstUnshareable returns the first direct dependency that neither shares
// the baseline nor opts out of precompiled state.
func firstUnshareable(n *graph.Node) *graph.Node {
	for _, d := range n.Deps() {
		switch d.PCH() {
		case graph.Shared, graph.NoPCH:
		default:
			return d
		}
	}
	return nil
}
