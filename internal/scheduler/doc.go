// Package scheduler orders a resolved graph into layers and executes them.
//
// Plan assigns every node to the first layer after all of its dependencies,
// so nodes in one layer never depend on each other. Executor runs layers
// strictly in order with a bounded worker pool inside each layer, consults
// the incremental cache before compiling, and links the target once every
// layer has succeeded.
package scheduler
