package descriptor

import (
	"fmt"
	"slices"
	"strings"
)

// Kind is the closed set of artifact kinds a target can produce.
type Kind int

const (
	// Executable is a standalone program (Unreal game, client, server or program targets).
	Executable Kind = iota + 1
	// SharedLibrary is a dynamically loaded library.
	SharedLibrary
	// PluginHosted is loaded by a host process such as an editor.
	PluginHosted
)

// String returns the canonical descriptor spelling of the kind.
func (k Kind) String() string {
	switch k {
	case Executable:
		return "Executable"
	case SharedLibrary:
		return "SharedLibrary"
	case PluginHosted:
		return "PluginHosted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a descriptor value into a Kind. Matching ignores case and
// accepts the hyphenated "plugin-hosted" spelling.
func ParseKind(s string) (Kind, error) {
	switch normalizeEnum(s) {
	case "executable":
		return Executable, nil
	case "sharedlibrary":
		return SharedLibrary, nil
	case "pluginhosted":
		return PluginHosted, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q (want Executable, SharedLibrary or PluginHosted)", s)
	}
}

// PCHPolicy is a module's declared precompiled-header policy.
type PCHPolicy int

const (
	// PCHNone means the module has no precompiled-state requirement.
	PCHNone PCHPolicy = iota + 1
	// PCHExplicitOrShared joins the shared baseline when its dependencies allow it.
	PCHExplicitOrShared
	// PCHForceShared must join the shared baseline.
	PCHForceShared
	// PCHForceExplicit always builds its own precompiled state.
	PCHForceExplicit
)

// String returns the canonical descriptor spelling of the policy.
func (p PCHPolicy) String() string {
	switch p {
	case PCHNone:
		return "None"
	case PCHExplicitOrShared:
		return "ExplicitOrShared"
	case PCHForceShared:
		return "ForceShared"
	case PCHForceExplicit:
		return "ForceExplicit"
	default:
		return fmt.Sprintf("PCHPolicy(%d)", int(p))
	}
}

// ParsePCHPolicy converts a descriptor value into a PCHPolicy. An empty value
// is rejected; loaders decide on defaults before calling it.
func ParsePCHPolicy(s string) (PCHPolicy, error) {
	switch normalizeEnum(s) {
	case "none":
		return PCHNone, nil
	case "explicitorshared":
		return PCHExplicitOrShared, nil
	case "forceshared":
		return PCHForceShared, nil
	case "forceexplicit":
		return PCHForceExplicit, nil
	default:
		return 0, fmt.Errorf("unknown precompiled header policy %q (want None, ExplicitOrShared, ForceShared or ForceExplicit)", s)
	}
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}

// Target describes the top-level artifact and the modules it links.
type Target struct {
	name         string
	kind         Kind
	entryModules []string
}

// NewTarget validates and constructs an immutable target descriptor.
func NewTarget(name string, kind Kind, entryModules []string) (*Target, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, malformed("target", name, "name is required")
	}
	switch kind {
	case Executable, SharedLibrary, PluginHosted:
	default:
		return nil, malformed("target", name, "kind is required")
	}
	if len(entryModules) == 0 {
		return nil, malformed("target", name, "entry_modules must list at least one module")
	}
	entries, err := orderedSet("target", name, "entry_modules", entryModules)
	if err != nil {
		return nil, err
	}
	return &Target{name: name, kind: kind, entryModules: entries}, nil
}

// Name returns the target identity.
func (t *Target) Name() string { return t.name }

// Kind returns the artifact kind fixed at construction.
func (t *Target) Kind() Kind { return t.kind }

// EntryModules returns a copy of the ordered entry module names.
func (t *Target) EntryModules() []string { return slices.Clone(t.entryModules) }

// ModuleSpec is the validated field set a Module is constructed from.
type ModuleSpec struct {
	Name                string
	PCHPolicy           PCHPolicy
	PublicDependencies  []string
	PrivateDependencies []string
	SourcesRoot         string
}

// ReservedNameRune may not appear in module or external names. Cache keys
// that are not module names start with it.
const ReservedNameRune = '@'

// Module describes one compilation unit.
type Module struct {
	name        string
	pchPolicy   PCHPolicy
	public      []string
	private     []string
	sourcesRoot string
}

// NewModule validates spec and constructs an immutable module descriptor.
// Self-references are kept: they are reported as a cycle when the graph is built.
func NewModule(spec ModuleSpec) (*Module, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, malformed("module", name, "name is required")
	}
	if strings.ContainsRune(name, ReservedNameRune) {
		return nil, malformed("module", name, fmt.Sprintf("name must not contain %q", ReservedNameRune))
	}
	switch spec.PCHPolicy {
	case PCHNone, PCHExplicitOrShared, PCHForceShared, PCHForceExplicit:
	default:
		return nil, malformed("module", name, "pch_usage is required")
	}
	public, err := orderedSet("module", name, "public_dependencies", spec.PublicDependencies)
	if err != nil {
		return nil, err
	}
	private, err := orderedSet("module", name, "private_dependencies", spec.PrivateDependencies)
	if err != nil {
		return nil, err
	}
	return &Module{
		name:        name,
		pchPolicy:   spec.PCHPolicy,
		public:      public,
		private:     private,
		sourcesRoot: strings.TrimSpace(spec.SourcesRoot),
	}, nil
}

// Name returns the module identity.
func (m *Module) Name() string { return m.name }

// PCHPolicy returns the declared precompiled-header policy.
func (m *Module) PCHPolicy() PCHPolicy { return m.pchPolicy }

// PublicDependencies returns a copy of the public dependency names.
func (m *Module) PublicDependencies() []string { return slices.Clone(m.public) }

// PrivateDependencies returns a copy of the private dependency names.
func (m *Module) PrivateDependencies() []string { return slices.Clone(m.private) }

// SourcesRoot returns the module's source directory, or "" when undeclared.
func (m *Module) SourcesRoot() string { return m.sourcesRoot }

// Overlap returns the names declared both publicly and privately, in public order.
func (m *Module) Overlap() []string {
	var out []string
	for _, name := range m.public {
		if slices.Contains(m.private, name) {
			out = append(out, name)
		}
	}
	return out
}

// External is a pre-resolved module supplied from outside the build, such as
// an engine runtime module. It is a leaf with a fixed artifact.
type External struct {
	name     string
	artifact string
}

// NewExternal constructs an external module record.
func NewExternal(name, artifact string) (*External, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, malformed("external", name, "name is required")
	}
	if strings.ContainsRune(name, ReservedNameRune) {
		return nil, malformed("external", name, fmt.Sprintf("name must not contain %q", ReservedNameRune))
	}
	artifact = strings.TrimSpace(artifact)
	if artifact == "" {
		return nil, malformed("external", name, "artifact is required")
	}
	return &External{name: name, artifact: artifact}, nil
}

// Name returns the external module identity.
func (e *External) Name() string { return e.name }

// ArtifactRef returns the fixed artifact reference.
func (e *External) ArtifactRef() string { return e.artifact }

// orderedSet trims names and rejects blanks and duplicates.
func orderedSet(kind, owner, field string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, malformed(kind, owner, field+" contains an empty name")
		}
		if _, dup := seen[name]; dup {
			return nil, malformed(kind, owner, fmt.Sprintf("%s lists %q more than once", field, name))
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
