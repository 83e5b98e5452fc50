// Package app contains the core application logic. It wires descriptor
// loading, graph resolution, precompiled-state planning, fingerprinting,
// scheduling and execution together behind a Config, decoupled from any
// specific entrypoint like a CLI.
package app
