// Package graph resolves a target's entry modules into a frozen dependency
// graph.
//
// Build walks public and private dependencies depth-first from each entry
// module, in declaration order, and fails on the first unknown target,
// unresolved name or cycle. The resulting Graph owns one Node per module in
// the transitive closure, externals included. Its topology cannot change
// after Build returns; later passes only attach annotations (the
// precompiled-state resolution, the fingerprint) and drive the per-node
// execution State.
package graph
