// Package yamldesc reads build descriptors written in YAML. The document
// carries the same records as the HCL format under top-level `targets`,
// `modules` and `externals` mappings keyed by name.
package yamldesc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
	"gopkg.in/yaml.v3"
)

type document struct {
	Targets   map[string]targetDoc   `yaml:"targets"`
	Modules   map[string]moduleDoc   `yaml:"modules"`
	Externals map[string]externalDoc `yaml:"externals"`
}

type targetDoc struct {
	Kind         string   `yaml:"kind"`
	EntryModules []string `yaml:"entry_modules"`
}

type moduleDoc struct {
	PCHUsage            string   `yaml:"pch_usage"`
	PublicDependencies  []string `yaml:"public_dependencies"`
	PrivateDependencies []string `yaml:"private_dependencies"`
	SourcesRoot         string   `yaml:"sources_root"`
}

type externalDoc struct {
	Artifact string `yaml:"artifact"`
}

// Loader is the YAML implementation of config.FileLoader.
type Loader struct{}

// NewLoader creates a new YAML descriptor loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Name implements config.FileLoader.
func (l *Loader) Name() string { return "yaml" }

// Match implements config.FileLoader.
func (l *Loader) Match(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile implements config.FileLoader. Records are added in name order so
// that duplicate reporting does not depend on map iteration.
func (l *Loader) LoadFile(ctx context.Context, path string, store *descriptor.Store) error {
	logger := ctxlog.FromContext(ctx).With("file", path)
	logger.Debug("YAML loader started.")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML file %s: %w", path, err)
	}

	for _, name := range sortedKeys(doc.Externals) {
		ext, err := descriptor.NewExternal(name, doc.Externals[name].Artifact)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddExternal(ext); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	for _, name := range sortedKeys(doc.Modules) {
		mod, err := translateModule(name, doc.Modules[name], filepath.Dir(path))
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddModule(mod); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	for _, name := range sortedKeys(doc.Targets) {
		td := doc.Targets[name]
		if strings.TrimSpace(td.Kind) == "" {
			return descriptor.WithSource(&descriptor.MalformedDescriptorError{Kind: "target", Name: name, Reason: "kind is required"}, path)
		}
		kind, err := descriptor.ParseKind(td.Kind)
		if err != nil {
			return descriptor.WithSource(&descriptor.MalformedDescriptorError{Kind: "target", Name: name, Reason: err.Error()}, path)
		}
		tgt, err := descriptor.NewTarget(name, kind, td.EntryModules)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddTarget(tgt); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	logger.Debug("YAML file loaded.", "targets", len(doc.Targets), "modules", len(doc.Modules), "externals", len(doc.Externals))
	return nil
}

func translateModule(name string, md moduleDoc, baseDir string) (*descriptor.Module, error) {
	if strings.TrimSpace(md.PCHUsage) == "" {
		return nil, &descriptor.MalformedDescriptorError{Kind: "module", Name: name, Reason: "pch_usage is required"}
	}
	policy, err := descriptor.ParsePCHPolicy(md.PCHUsage)
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "module", Name: name, Reason: err.Error()}
	}
	sources := strings.TrimSpace(md.SourcesRoot)
	if sources != "" && !filepath.IsAbs(sources) {
		sources = filepath.Join(baseDir, sources)
	}
	return descriptor.NewModule(descriptor.ModuleSpec{
		Name:                name,
		PCHPolicy:           policy,
		PublicDependencies:  md.PublicDependencies,
		PrivateDependencies: md.PrivateDependencies,
		SourcesRoot:         sources,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
