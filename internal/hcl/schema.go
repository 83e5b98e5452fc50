package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a descriptor file may contain.
// Remain swallows blocks and attributes this version does not know about.
type fileRoot struct {
	Targets   []*targetBlock   `hcl:"target,block"`
	Modules   []*moduleBlock   `hcl:"module,block"`
	Externals []*externalBlock `hcl:"external,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

// Attributes are kept as raw expressions so that a missing required value
// surfaces as a MalformedDescriptorError rather than an HCL schema error.
type targetBlock struct {
	Name         string         `hcl:"name,label"`
	Kind         hcl.Expression `hcl:"kind,optional"`
	EntryModules hcl.Expression `hcl:"entry_modules,optional"`
	Remain       hcl.Body       `hcl:",remain"`
}

type moduleBlock struct {
	Name                string         `hcl:"name,label"`
	PCHUsage            hcl.Expression `hcl:"pch_usage,optional"`
	PublicDependencies  hcl.Expression `hcl:"public_dependencies,optional"`
	PrivateDependencies hcl.Expression `hcl:"private_dependencies,optional"`
	SourcesRoot         hcl.Expression `hcl:"sources_root,optional"`
	Remain              hcl.Body       `hcl:",remain"`
}

type externalBlock struct {
	Name     string         `hcl:"name,label"`
	Artifact hcl.Expression `hcl:"artifact,optional"`
	Remain   hcl.Body       `hcl:",remain"`
}
