package graph

import (
	"fmt"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/vk/modplan/internal/descriptor"
)

// State is a node's position in the build lifecycle.
type State int32

const (
	Pending State = iota
	Scheduled
	Building
	Built
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Scheduled:
		return "Scheduled"
	case Building:
		return "Building"
	case Built:
		return "Built"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// PCHResolution is the precompiled-state decision computed for a node.
type PCHResolution int

const (
	// Unresolved means the planner has not visited the node yet.
	Unresolved PCHResolution = iota
	// Shared joins the target-wide shared baseline.
	Shared
	// Explicit builds its own precompiled state.
	Explicit
	// NoPCH uses no precompiled state.
	NoPCH
)

func (r PCHResolution) String() string {
	switch r {
	case Unresolved:
		return "Unresolved"
	case Shared:
		return "Shared"
	case Explicit:
		return "Explicit"
	case NoPCH:
		return "None"
	default:
		return fmt.Sprintf("PCHResolution(%d)", int(r))
	}
}

// Node is one module of the resolved graph.
type Node struct {
	name     string
	module   *descriptor.Module
	external *descriptor.External

	deps       []*Node
	public     []*Node
	dependents []*Node

	pch         PCHResolution
	fingerprint string
	state       atomic.Int32
}

// Name returns the module name.
func (n *Node) Name() string { return n.name }

// IsExternal reports whether the node is a pre-resolved external module.
func (n *Node) IsExternal() bool { return n.external != nil }

// Module returns the module descriptor, or nil for externals.
func (n *Node) Module() *descriptor.Module { return n.module }

// External returns the external record, or nil for declared modules.
func (n *Node) External() *descriptor.External { return n.external }

// Deps returns the direct dependencies, public ones first, in declaration order.
func (n *Node) Deps() []*Node { return slices.Clone(n.deps) }

// PublicDeps returns the direct public dependencies.
func (n *Node) PublicDeps() []*Node { return slices.Clone(n.public) }

// Dependents returns the nodes that depend on n directly, by name.
func (n *Node) Dependents() []*Node { return slices.Clone(n.dependents) }

// Visible returns every module whose interface n compiles against: its own
// direct dependencies plus the public closure of each. Private dependencies of
// a dependency are not included. The result is sorted by name.
func (n *Node) Visible() []*Node {
	seen := make(map[string]*Node)
	var exportPublic func(d *Node)
	exportPublic = func(d *Node) {
		if _, ok := seen[d.name]; ok {
			return
		}
		seen[d.name] = d
		for _, p := range d.public {
			exportPublic(p)
		}
	}
	for _, d := range n.deps {
		exportPublic(d)
	}
	out := make([]*Node, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sortByName(out)
	return out
}

// PCH returns the precompiled-state resolution.
func (n *Node) PCH() PCHResolution { return n.pch }

// SetPCH records the precompiled-state resolution.
func (n *Node) SetPCH(r PCHResolution) { n.pch = r }

// Fingerprint returns the content fingerprint, or "" before fingerprinting.
func (n *Node) Fingerprint() string { return n.fingerprint }

// SetFingerprint records the content fingerprint.
func (n *Node) SetFingerprint(fp string) { n.fingerprint = fp }

// State returns the current lifecycle state.
func (n *Node) State() State { return State(n.state.Load()) }

// SetState stores a new lifecycle state.
func (n *Node) SetState(s State) { n.state.Store(int32(s)) }

// Transition moves the node from one state to another and reports whether
// the node was in the expected state.
func (n *Node) Transition(from, to State) bool {
	return n.state.CompareAndSwap(int32(from), int32(to))
}

func sortByName(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].name < nodes[j].name })
}
