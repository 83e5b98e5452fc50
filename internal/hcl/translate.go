package hcl

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/modplan/internal/descriptor"
)

// translateTarget converts a target block into a descriptor.Target.
func (l *Loader) translateTarget(ctx context.Context, b *targetBlock) (*descriptor.Target, error) {
	kindStr, ok, err := decodeString(ctx, b.Kind, "kind")
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: b.Name, Reason: err.Error()}
	}
	if !ok {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: b.Name, Reason: "kind is required"}
	}
	kind, err := descriptor.ParseKind(kindStr)
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: b.Name, Reason: err.Error()}
	}

	entries, _, err := decodeStringList(ctx, b.EntryModules, "entry_modules")
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "target", Name: b.Name, Reason: err.Error()}
	}
	return descriptor.NewTarget(b.Name, kind, entries)
}

// translateModule converts a module block into a descriptor.Module. A
// relative sources_root is resolved against the declaring file's directory.
func (l *Loader) translateModule(ctx context.Context, b *moduleBlock) (*descriptor.Module, error) {
	fail := func(reason string) error {
		return &descriptor.MalformedDescriptorError{Kind: "module", Name: b.Name, Reason: reason}
	}

	policyStr, ok, err := decodeString(ctx, b.PCHUsage, "pch_usage")
	if err != nil {
		return nil, fail(err.Error())
	}
	if !ok {
		return nil, fail("pch_usage is required")
	}
	policy, err := descriptor.ParsePCHPolicy(policyStr)
	if err != nil {
		return nil, fail(err.Error())
	}

	public, _, err := decodeStringList(ctx, b.PublicDependencies, "public_dependencies")
	if err != nil {
		return nil, fail(err.Error())
	}
	private, _, err := decodeStringList(ctx, b.PrivateDependencies, "private_dependencies")
	if err != nil {
		return nil, fail(err.Error())
	}
	sources, ok, err := decodeString(ctx, b.SourcesRoot, "sources_root")
	if err != nil {
		return nil, fail(err.Error())
	}
	if ok && sources != "" && !filepath.IsAbs(sources) {
		sources = filepath.Join(declaringDir(b.SourcesRoot), sources)
	}

	return descriptor.NewModule(descriptor.ModuleSpec{
		Name:                b.Name,
		PCHPolicy:           policy,
		PublicDependencies:  public,
		PrivateDependencies: private,
		SourcesRoot:         sources,
	})
}

// translateExternal converts an external block into a descriptor.External.
func (l *Loader) translateExternal(ctx context.Context, b *externalBlock) (*descriptor.External, error) {
	artifact, _, err := decodeString(ctx, b.Artifact, "artifact")
	if err != nil {
		return nil, &descriptor.MalformedDescriptorError{Kind: "external", Name: b.Name, Reason: err.Error()}
	}
	return descriptor.NewExternal(b.Name, artifact)
}

func declaringDir(expr hcl.Expression) string {
	return filepath.Dir(expr.Range().Filename)
}
