package toolchain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/modplan/internal/ctxlog"
)

// Command runs shell command templates for each compile and link.
//
// Compile templates may use {module}, {sources}, {out}, {pch}, {baseline} and
// {deps}; link templates may use {target}, {kind}, {out} and {artifacts}.
// Substituted values are shell-quoted.
type Command struct {
	CompileTemplate string
	LinkTemplate    string
	OutDir          string
}

// NewCommand creates a command toolchain writing artifacts under outDir.
func NewCommand(compileTemplate, linkTemplate, outDir string) (*Command, error) {
	if strings.TrimSpace(compileTemplate) == "" {
		return nil, fmt.Errorf("compile command template is empty")
	}
	if strings.TrimSpace(linkTemplate) == "" {
		return nil, fmt.Errorf("link command template is empty")
	}
	if outDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	return &Command{CompileTemplate: compileTemplate, LinkTemplate: linkTemplate, OutDir: outDir}, nil
}

// Fingerprint implements Toolchain. It changes whenever either template or
// the output directory does.
func (c *Command) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{c.CompileTemplate, c.LinkTemplate, c.OutDir} {
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return "command:" + hex.EncodeToString(h.Sum(nil))
}

// Compile implements Toolchain.
func (c *Command) Compile(ctx context.Context, req CompileRequest) (string, error) {
	out := filepath.Join(c.OutDir, "obj", objectName(req.Module))
	script := expand(c.CompileTemplate, map[string]string{
		"module":   shellQuote(req.Module),
		"sources":  shellQuote(req.SourcesRoot),
		"out":      shellQuote(out),
		"pch":      shellQuote(req.PCH),
		"baseline": shellQuote(req.Baseline),
		"deps":     quoteAll(req.Dependencies),
	})
	if output, err := c.run(ctx, filepath.Dir(out), script); err != nil {
		return "", &CompileError{Module: req.Module, Output: output, Err: err}
	}
	return out, nil
}

// Link implements Toolchain.
func (c *Command) Link(ctx context.Context, req LinkRequest) (string, error) {
	out := filepath.Join(c.OutDir, "bin", artifactName(req.Target, req.Kind))
	script := expand(c.LinkTemplate, map[string]string{
		"target":    shellQuote(req.Target),
		"kind":      shellQuote(req.Kind.String()),
		"out":       shellQuote(out),
		"artifacts": quoteAll(req.Artifacts),
	})
	if output, err := c.run(ctx, filepath.Dir(out), script); err != nil {
		return "", &LinkError{Target: req.Target, Output: output, Err: err}
	}
	return out, nil
}

func (c *Command) run(ctx context.Context, dir, script string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Running toolchain command.", "command", script)

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(output.String()), err
	}
	return "", nil
}

func expand(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = shellQuote(v)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
