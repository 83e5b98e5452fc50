package hcl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
)

// Loader is the HCL implementation of config.FileLoader.
type Loader struct{}

// NewLoader creates a new HCL descriptor loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Name implements config.FileLoader.
func (l *Loader) Name() string { return "hcl" }

// Match implements config.FileLoader.
func (l *Loader) Match(path string) bool {
	return filepath.Ext(path) == ".hcl"
}

// LoadFile implements config.FileLoader.
func (l *Loader) LoadFile(ctx context.Context, path string, store *descriptor.Store) error {
	logger := ctxlog.FromContext(ctx).With("file", path)
	logger.Debug("HCL loader started.")

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	for _, block := range root.Externals {
		ext, err := l.translateExternal(ctx, block)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddExternal(ext); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	for _, block := range root.Modules {
		mod, err := l.translateModule(ctx, block)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddModule(mod); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	for _, block := range root.Targets {
		tgt, err := l.translateTarget(ctx, block)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddTarget(tgt); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	logger.Debug("HCL file loaded.", "targets", len(root.Targets), "modules", len(root.Modules), "externals", len(root.Externals))
	return nil
}
