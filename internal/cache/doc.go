// Package cache decides which modules must be rebuilt.
//
// A Fingerprinter derives a content fingerprint for every node of a graph
// from its descriptor, its sources, its precompiled-state resolution and the
// fingerprints of its dependencies, so any change propagates to every
// dependent. A Store persists the fingerprint and artifact of each
// successfully built module between runs.
package cache
