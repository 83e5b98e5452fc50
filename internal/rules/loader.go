// Package rules reads Unreal-style C# rules files as build descriptors.
//
// Only the declarative statements that describe the build graph are
// recognised: `Type = TargetType.X;` and `ExtraModuleNames` in a
// `<Name>.Target.cs`, and `PCHUsage = PCHUsageMode.Y;` together with the
// public and private dependency lists in a `<Name>.Build.cs`. Everything else
// in the file is ignored. Names come from the file names.
package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/descriptor"
)

const (
	targetSuffix = ".Target.cs"
	buildSuffix  = ".Build.cs"
)

var (
	typePattern    = regexp.MustCompile(`\bType\s*=\s*TargetType\s*\.\s*(\w+)\s*;`)
	pchPattern     = regexp.MustCompile(`\bPCHUsage\s*=\s*PCHUsageMode\s*\.\s*(\w+)\s*;`)
	listPattern    = regexp.MustCompile(`\b(ExtraModuleNames|PublicDependencyModuleNames|PrivateDependencyModuleNames)\s*\.\s*(?:AddRange|Add)\s*\(([^;]*)\)\s*;`)
	literalPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// Loader is the rules-file implementation of config.FileLoader.
type Loader struct{}

// NewLoader creates a new rules-file loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Name implements config.FileLoader.
func (l *Loader) Name() string { return "rules" }

// Match implements config.FileLoader.
func (l *Loader) Match(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, targetSuffix) || strings.HasSuffix(base, buildSuffix)
}

// LoadFile implements config.FileLoader.
func (l *Loader) LoadFile(ctx context.Context, path string, store *descriptor.Store) error {
	logger := ctxlog.FromContext(ctx).With("file", path)
	logger.Debug("Rules loader started.")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	src := stripComments(string(data))
	base := filepath.Base(path)

	switch {
	case strings.HasSuffix(base, targetSuffix):
		tgt, err := parseTarget(strings.TrimSuffix(base, targetSuffix), src)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddTarget(tgt); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("Target rules loaded.", "target", tgt.Name(), "kind", tgt.Kind())
	case strings.HasSuffix(base, buildSuffix):
		mod, err := parseModule(strings.TrimSuffix(base, buildSuffix), filepath.Dir(path), src)
		if err != nil {
			return descriptor.WithSource(err, path)
		}
		if err := store.AddModule(mod); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("Module rules loaded.", "module", mod.Name(), "pch", mod.PCHPolicy())
	default:
		return fmt.Errorf("rules loader cannot read %s", path)
	}
	return nil
}

func parseTarget(name, src string) (*descriptor.Target, error) {
	m := typePattern.FindStringSubmatch(src)
	if m == nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: name, Reason: "kind is required (no Type = TargetType.X statement)"}
	}
	kind, err := kindFromTargetType(m[1])
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: name, Reason: err.Error()}
	}
	lists := collectLists(src)
	return descriptor.NewTarget(name, kind, lists["ExtraModuleNames"])
}

func parseModule(name, dir, src string) (*descriptor.Module, error) {
	policy := descriptor.PCHExplicitOrShared
	if m := pchPattern.FindStringSubmatch(src); m != nil {
		p, err := policyFromPCHUsage(m[1])
		if err != nil {
			return nil, &descriptor.MalformedDescriptorError{Kind: "module", Name: name, Reason: err.Error()}
		}
		policy = p
	}
	lists := collectLists(src)
	return descriptor.NewModule(descriptor.ModuleSpec{
		Name:                name,
		PCHPolicy:           policy,
		PublicDependencies:  lists["PublicDependencyModuleNames"],
		PrivateDependencies: lists["PrivateDependencyModuleNames"],
		SourcesRoot:         dir,
	})
}

// collectLists gathers string literals added to each recognised list, in
// statement order.
func collectLists(src string) map[string][]string {
	out := make(map[string][]string)
	for _, m := range listPattern.FindAllStringSubmatch(src, -1) {
		for _, lit := range literalPattern.FindAllStringSubmatch(m[2], -1) {
			out[m[1]] = append(out[m[1]], strings.ReplaceAll(lit[1], `\"`, `"`))
		}
	}
	return out
}

func kindFromTargetType(v string) (descriptor.Kind, error) {
	switch v {
	case "Game", "Client", "Server", "Program":
		return descriptor.Executable, nil
	case "Editor":
		return descriptor.PluginHosted, nil
	default:
		return 0, fmt.Errorf("unsupported TargetType %q", v)
	}
}

func policyFromPCHUsage(v string) (descriptor.PCHPolicy, error) {
	switch v {
	case "NoPCHs":
		return descriptor.PCHNone, nil
	case "Default", "UseExplicitOrSharedPCHs":
		return descriptor.PCHExplicitOrShared, nil
	case "UseSharedPCHs":
		return descriptor.PCHForceShared, nil
	case "NoSharedPCHs":
		return descriptor.PCHForceExplicit, nil
	default:
		return 0, fmt.Errorf("unsupported PCHUsageMode %q", v)
	}
}

// stripComments removes // and /* */ comments outside string literals.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
