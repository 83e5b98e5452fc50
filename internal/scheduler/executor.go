package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/vk/modplan/internal/cache"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/graph"
	"github.com/vk/modplan/internal/toolchain"
)

// Options tunes an Executor.
type Options struct {
	// Jobs bounds concurrent compilations within a layer. Zero means
	// runtime.NumCPU().
	Jobs int
	// ForceRebuild ignores cached records.
	ForceRebuild bool
}

// Executor runs a BuildPlan against a toolchain.
type Executor struct {
	toolchain toolchain.Toolchain
	toolID    string
	cache     *cache.Store
	jobs      int
	force     bool
}

// NewExecutor creates an executor. A nil store disables reuse.
func NewExecutor(tc toolchain.Toolchain, store *cache.Store, opts Options) *Executor {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if store == nil {
		store = cache.NewStore()
	}
	return &Executor{toolchain: tc, toolID: tc.Fingerprint(), cache: store, jobs: jobs, force: opts.ForceRebuild}
}

type outcome int

const (
	outcomeExternal outcome = iota
	outcomeBuilt
	outcomeReused
	outcomeFailed
)

type nodeResult struct {
	outcome  outcome
	artifact string
	err      error
}

// artifactSet maps module names to their artifact refs for one run.
type artifactSet struct {
	mu sync.RWMutex
	m  map[string]string
}

func (a *artifactSet) set(name, ref string) {
	a.mu.Lock()
	a.m[name] = ref
	a.mu.Unlock()
}

func (a *artifactSet) get(name string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.m[name]
}

// Execute runs plan. Cancellation of ctx is honoured before each layer and
// before the link; work already dispatched runs to completion.
func (e *Executor) Execute(ctx context.Context, plan *BuildPlan) *BuildResult {
	logger := ctxlog.FromContext(ctx).With("target", plan.Target)
	logger.Info("Build started.", "layers", len(plan.Layers), "jobs", e.jobs, "force_rebuild", e.force)

	res := &BuildResult{Target: plan.Target, Status: Succeeded}
	artifacts := &artifactSet{m: make(map[string]string)}

	for i, layer := range plan.Layers {
		if err := ctx.Err(); err != nil {
			logger.Warn("Build cancelled before layer.", "layer", i)
			res.Status = Cancelled
			res.CancelErr = err
			res.NotAttempted = namesOf(plan.Layers[i:])
			return res
		}

		logger.Debug("Dispatching layer.", "layer", i, "size", len(layer))
		results := e.runLayer(ctx, plan, layer, artifacts)

		for j, n := range layer {
			r := results[j]
			switch r.outcome {
			case outcomeBuilt:
				res.Built = append(res.Built, n.Name())
			case outcomeReused:
				res.Reused = append(res.Reused, n.Name())
			case outcomeFailed:
				res.Failures = append(res.Failures, Failure{Module: n.Name(), Err: r.err})
			}
		}

		if len(res.Failures) > 0 {
			logger.Error("Layer failed, later layers will not start.", "layer", i, "failed", res.FailedModules())
			res.Status = Failed
			res.NotAttempted = namesOf(plan.Layers[i+1:])
			return res
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Build cancelled before link.")
		res.Status = Cancelled
		res.CancelErr = err
		return res
	}
	e.link(ctx, plan, artifacts, res)

	logger.Info("Build finished.", "status", res.Status, "built", len(res.Built), "reused", len(res.Reused))
	return res
}

// runLayer executes one layer on a bounded pool and waits for every node.
func (e *Executor) runLayer(ctx context.Context, plan *BuildPlan, layer []*graph.Node, artifacts *artifactSet) []nodeResult {
	for _, n := range layer {
		n.SetState(graph.Scheduled)
	}

	results := make([]nodeResult, len(layer))
	sem := make(chan struct{}, e.jobs)
	var wg sync.WaitGroup
	for i, n := range layer {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, n *graph.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.runNode(ctx, plan, n, artifacts)
		}(i, n)
	}
	wg.Wait()
	return results
}

func (e *Executor) runNode(ctx context.Context, plan *BuildPlan, n *graph.Node, artifacts *artifactSet) nodeResult {
	ctx = ctxlog.With(ctx, "module", n.Name())
	logger := ctxlog.FromContext(ctx)

	if n.IsExternal() {
		ref := n.External().ArtifactRef()
		artifacts.set(n.Name(), ref)
		n.SetState(graph.Built)
		logger.Debug("Resolved external module.", "artifact", ref)
		return nodeResult{outcome: outcomeExternal, artifact: ref}
	}

	var fp string
	if n.Fingerprint() != "" {
		fp = cache.ForToolchain(n.Fingerprint(), e.toolID)
	}
	if !e.force && fp != "" && !e.cache.ShouldRebuild(n.Name(), fp) {
		if rec, ok := e.cache.Lookup(n.Name()); ok {
			artifacts.set(n.Name(), rec.ArtifactRef)
			n.SetState(graph.Built)
			logger.Debug("Module is up to date.", "artifact", rec.ArtifactRef)
			return nodeResult{outcome: outcomeReused, artifact: rec.ArtifactRef}
		}
	}

	n.Transition(graph.Scheduled, graph.Building)
	req := toolchain.CompileRequest{
		Module:      n.Name(),
		SourcesRoot: n.Module().SourcesRoot(),
		PCH:         n.PCH().String(),
	}
	if n.PCH() == graph.Shared {
		req.Baseline = plan.Baseline
	}
	for _, d := range n.Visible() {
		if ref := artifacts.get(d.Name()); ref != "" {
			req.Dependencies = append(req.Dependencies, ref)
		}
	}

	logger.Info("Compiling module.", "pch", req.PCH, "deps", len(req.Dependencies))
	ref, err := e.toolchain.Compile(context.WithoutCancel(ctx), req)
	if err != nil {
		var compileErr *toolchain.CompileError
		if !errors.As(err, &compileErr) {
			err = &toolchain.CompileError{Module: n.Name(), Err: err}
		}
		n.SetState(graph.Failed)
		logger.Error("Module failed to compile.", "error", err)
		return nodeResult{outcome: outcomeFailed, err: err}
	}

	artifacts.set(n.Name(), ref)
	if fp != "" {
		e.cache.Put(n.Name(), cache.Record{Fingerprint: fp, ArtifactRef: ref, Timestamp: time.Now().UTC()})
	}
	n.SetState(graph.Built)
	logger.Debug("Module built.", "artifact", ref)
	return nodeResult{outcome: outcomeBuilt, artifact: ref}
}

// link links the target, reusing the recorded link when nothing it links
// has changed.
func (e *Executor) link(ctx context.Context, plan *BuildPlan, artifacts *artifactSet, res *BuildResult) {
	logger := ctxlog.FromContext(ctx).With("target", plan.Target)
	nodes := plan.Nodes()
	key := cache.TargetKey(plan.Target)
	fp := cache.TargetFingerprint(plan.Target, plan.Kind.String(), e.toolID, nodes)

	if !e.force && len(res.Built) == 0 && !e.cache.ShouldRebuild(key, fp) {
		if rec, ok := e.cache.Lookup(key); ok {
			logger.Debug("Target link is up to date.", "artifact", rec.ArtifactRef)
			res.LinkArtifact = rec.ArtifactRef
			res.LinkReused = true
			return
		}
	}

	req := toolchain.LinkRequest{Target: plan.Target, Kind: plan.Kind}
	for _, n := range nodes {
		req.Artifacts = append(req.Artifacts, artifacts.get(n.Name()))
	}

	logger.Info("Linking target.", "kind", plan.Kind, "artifacts", len(req.Artifacts))
	ref, err := e.toolchain.Link(context.WithoutCancel(ctx), req)
	if err != nil {
		var linkErr *toolchain.LinkError
		if !errors.As(err, &linkErr) {
			err = &toolchain.LinkError{Target: plan.Target, Err: err}
		}
		logger.Error("Target failed to link.", "error", err)
		res.Status = Failed
		res.LinkErr = err
		return
	}
	res.LinkArtifact = ref
	e.cache.Put(key, cache.Record{Fingerprint: fp, ArtifactRef: ref, Timestamp: time.Now().UTC()})
}

func namesOf(layers [][]*graph.Node) []string {
	var out []string
	for _, layer := range layers {
		for _, n := range layer {
			out = append(out, n.Name())
		}
	}
	return out
}
