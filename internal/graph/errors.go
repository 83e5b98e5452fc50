package graph

import (
	"fmt"
	"strings"
)

// UnknownTargetError reports a target name absent from the descriptor store.
type UnknownTargetError struct {
	Name string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown target %q", e.Name)
}

// UnresolvedDependencyError reports a dependency name that is neither a
// declared module nor an external.
type UnresolvedDependencyError struct {
	Module     string
	RequiredBy string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("module %q required by %q is not declared", e.Module, e.RequiredBy)
}

// CyclicDependencyError reports a dependency cycle. Path is closed (its first
// and last entries are equal) and starts at the lexically smallest member.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// canonicalCycle closes the open cycle and rotates it to its smallest member.
func canonicalCycle(open []string) []string {
	start := 0
	for i, name := range open {
		if name < open[start] {
			start = i
		}
	}
	path := make([]string, 0, len(open)+1)
	path = append(path, open[start:]...)
	path = append(path, open[:start]...)
	return append(path, path[0])
}
