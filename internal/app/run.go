package app

import (
	"context"
	"fmt"

	"github.com/vk/modplan/internal/cache"
	"github.com/vk/modplan/internal/config"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/graph"
	"github.com/vk/modplan/internal/pch"
	"github.com/vk/modplan/internal/scheduler"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = a.Context(ctx)
	a.logger.Debug("App.Run method started.", "target", a.config.Target)

	var err error
	switch a.config.Command {
	case CommandPlan:
		err = a.Plan(ctx)
	case CommandBuild:
		_, err = a.Build(ctx)
	default:
		err = &ConfigError{Err: fmt.Errorf("unknown command %q", a.config.Command)}
	}

	a.logger.Debug("App.Run method finished.", "error", err)
	return err
}

// Plan resolves the target and writes its layered build plan.
func (a *App) Plan(ctx context.Context) error {
	ctx = a.Context(ctx)
	g, err := a.resolve(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.outW, scheduler.Plan(g).String())
	return err
}

// Build resolves the target, builds every out-of-date module and links it.
// The cache is persisted whatever the outcome.
func (a *App) Build(ctx context.Context) (*scheduler.BuildResult, error) {
	ctx = a.Context(ctx)
	logger := ctxlog.FromContext(ctx)

	g, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}

	// Source hashes are memoized, so each build gets a fresh Fingerprinter.
	fingerprinter, err := cache.NewFingerprinter(cache.DefaultSourceCacheSize)
	if err != nil {
		return nil, err
	}
	if err := fingerprinter.Annotate(ctx, g); err != nil {
		return nil, &ConfigError{Err: err}
	}

	store := cache.Load(ctx, a.config.CachePath)
	exec := scheduler.NewExecutor(a.toolchain, store, scheduler.Options{
		Jobs:         a.config.Jobs,
		ForceRebuild: a.config.ForceRebuild,
	})
	res := exec.Execute(ctx, scheduler.Plan(g))

	if err := store.Save(a.config.CachePath); err != nil {
		logger.Warn("Failed to persist build cache.", "path", a.config.CachePath, "error", err)
	}

	if err := renderSummary(a.outW, res); err != nil {
		return res, err
	}
	if res.Status != scheduler.Succeeded {
		return res, &BuildError{Result: res}
	}
	return res, nil
}

// resolve loads descriptors and returns the annotated graph of the target.
// Every error it returns is a *ConfigError.
func (a *App) resolve(ctx context.Context) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	store, err := config.Load(ctx, a.config.DescriptorPaths, a.loaders...)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to load descriptors: %w", err)}
	}
	for _, name := range a.config.EngineModules {
		added, err := store.EnsureExternal(name, "engine/"+name)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		if added {
			logger.Debug("Registered engine module as external.", "module", name)
		}
	}

	g, err := graph.Build(ctx, store, a.config.Target)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to build dependency graph: %w", err)}
	}
	if err := pch.Annotate(ctx, g); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to plan precompiled headers: %w", err)}
	}

	logger.Info("Target resolved.", "target", a.config.Target, "modules", g.Len(), "baseline", g.Baseline())
	return g, nil
}
