// Package hcl provides the HCL implementation of config.FileLoader. It parses
// `target`, `module` and `external` blocks, binds attribute values through
// cty, and translates them into descriptor records.
package hcl
