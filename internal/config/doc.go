// Package config defines the format-agnostic loading contract for build
// descriptors.
//
// Concrete readers (HCL, YAML, Unreal rules files) live in their own packages
// and implement FileLoader. Load discovers descriptor files, hands each one to
// the first loader that accepts it and returns the populated, immutable
// descriptor.Store that the graph builder consumes.
package config
