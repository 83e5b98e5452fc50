package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/modplan/internal/config"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/vk/modplan/internal/hcl"
	"github.com/vk/modplan/internal/rules"
	"github.com/vk/modplan/internal/toolchain"
	"github.com/vk/modplan/internal/yamldesc"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	loaders   []config.FileLoader
	toolchain toolchain.Toolchain
}

// Option customizes an App.
type Option func(*App)

// WithToolchain replaces the toolchain derived from the configuration.
func WithToolchain(tc toolchain.Toolchain) Option {
	return func(a *App) { a.toolchain = tc }
}

// WithLoaders replaces the default descriptor loaders.
func WithLoaders(loaders ...config.FileLoader) Option {
	return func(a *App) { a.loaders = loaders }
}

// NewApp is the constructor for the main application. Results are written to
// outW and logs to logW, each App owning its isolated logger.
func NewApp(outW, logW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg, logW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		loaders: []config.FileLoader{hcl.NewLoader(), yamldesc.NewLoader(), rules.NewLoader()},
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.toolchain == nil {
		if cfg.CompileCommand == "" {
			logger.Debug("No toolchain commands configured, using dry run.", "out_dir", cfg.OutDir)
			a.toolchain = toolchain.NewDryRun(cfg.OutDir)
		} else {
			tc, err := toolchain.NewCommand(cfg.CompileCommand, cfg.LinkCommand, cfg.OutDir)
			if err != nil {
				return nil, &ConfigError{Err: fmt.Errorf("configuring toolchain: %w", err)}
			}
			a.toolchain = tc
		}
	}
	return a, nil
}

// Context returns ctx carrying the app's logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
