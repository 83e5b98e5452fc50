// Package toolchain is the boundary between the planner and the external
// compiler and linker.
package toolchain

import (
	"context"
	"fmt"

	"github.com/vk/modplan/internal/descriptor"
)

// CompileRequest describes one module compilation.
type CompileRequest struct {
	Module      string
	SourcesRoot string
	// PCH is the precompiled-state resolution: "Shared", "Explicit" or "None".
	PCH string
	// Baseline is the shared precompiled baseline, set only when PCH is "Shared".
	Baseline string
	// Dependencies are the artifact refs of every module visible to this one.
	Dependencies []string
}

// LinkRequest describes the final link of a target.
type LinkRequest struct {
	Target    string
	Kind      descriptor.Kind
	Artifacts []string
}

// Toolchain compiles modules and links targets. Implementations must be safe
// for concurrent Compile calls.
type Toolchain interface {
	Compile(ctx context.Context, req CompileRequest) (string, error)
	Link(ctx context.Context, req LinkRequest) (string, error)
	// Fingerprint identifies the toolchain and its configuration. Results
	// recorded under another fingerprint are never reused.
	Fingerprint() string
}

// CompileError reports a failed module compilation.
type CompileError struct {
	Module string
	Output string
	Err    error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %q failed: %v", e.Module, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// LinkError reports a failed target link.
type LinkError struct {
	Target string
	Output string
	Err    error
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("link %q failed: %v", e.Target, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *LinkError) Unwrap() error { return e.Err }

// artifactName returns the file name a link of kind produces.
func artifactName(target string, kind descriptor.Kind) string {
	switch kind {
	case descriptor.Executable:
		return target
	case descriptor.SharedLibrary:
		return target + ".so"
	case descriptor.PluginHosted:
		return target + ".plugin"
	default:
		return target + ".out"
	}
}

// objectName returns the file name a module compilation produces.
func objectName(module string) string {
	return module + ".o"
}
