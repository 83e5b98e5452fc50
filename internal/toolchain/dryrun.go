package toolchain

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/vk/modplan/internal/ctxlog"
)

// DryRun synthesizes artifact refs under OutDir without invoking any tool.
// It records the modules it was asked to compile.
type DryRun struct {
	OutDir string

	mu       sync.Mutex
	compiled []string
	linked   []string
}

// NewDryRun creates a dry-run toolchain.
func NewDryRun(outDir string) *DryRun {
	return &DryRun{OutDir: outDir}
}

// DryRunFingerprint identifies results produced without a real toolchain.
const DryRunFingerprint = "dry-run"

// Fingerprint implements Toolchain.
func (d *DryRun) Fingerprint() string { return DryRunFingerprint }

// Compile implements Toolchain.
func (d *DryRun) Compile(ctx context.Context, req CompileRequest) (string, error) {
	out := filepath.Join(d.OutDir, "obj", objectName(req.Module))
	ctxlog.FromContext(ctx).Info("Compile (dry run).", "pch", req.PCH, "deps", len(req.Dependencies))

	d.mu.Lock()
	d.compiled = append(d.compiled, req.Module)
	d.mu.Unlock()
	return out, nil
}

// Link implements Toolchain.
func (d *DryRun) Link(ctx context.Context, req LinkRequest) (string, error) {
	out := filepath.Join(d.OutDir, "bin", artifactName(req.Target, req.Kind))
	ctxlog.FromContext(ctx).Info("Link (dry run).", "target", req.Target, "kind", req.Kind, "artifacts", len(req.Artifacts))

	d.mu.Lock()
	d.linked = append(d.linked, req.Target)
	d.mu.Unlock()
	return out, nil
}

// Compiled returns the modules compiled so far, in call order.
func (d *DryRun) Compiled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.compiled...)
}

// Linked returns the targets linked so far, in call order.
func (d *DryRun) Linked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.linked...)
}
