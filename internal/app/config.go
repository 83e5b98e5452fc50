package app

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Commands understood by App.Run.
const (
	CommandPlan  = "plan"
	CommandBuild = "build"
)

// DefaultEngineModules are the engine runtime modules treated as externals
// unless a descriptor declares them.
var DefaultEngineModules = []string{"Core", "CoreUObject", "Engine", "InputCore"}

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command string
	Target  string

	// DescriptorPaths are files or directories holding .hcl, .yaml/.yml,
	// .Target.cs and .Build.cs descriptors.
	DescriptorPaths []string
	EngineModules   []string

	CachePath string
	OutDir    string
	// CompileCommand and LinkCommand are toolchain command templates. When
	// both are empty the build runs against a dry-run toolchain.
	CompileCommand string
	LinkCommand    string

	Jobs         int
	ForceRebuild bool

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandPlan, CommandBuild:
	case "":
		return nil, errors.New("a command is required: 'plan' or 'build'")
	default:
		return nil, fmt.Errorf("unknown command %q: must be 'plan' or 'build'", cfg.Command)
	}
	if cfg.Target == "" {
		return nil, errors.New("Target is a required configuration field and cannot be empty")
	}
	if len(cfg.DescriptorPaths) == 0 {
		return nil, errors.New("DescriptorPaths is a required configuration field and cannot be empty")
	}
	if cfg.Jobs < 0 {
		return nil, fmt.Errorf("jobs must not be negative, got %d", cfg.Jobs)
	}
	if (cfg.CompileCommand == "") != (cfg.LinkCommand == "") {
		return nil, errors.New("compile and link commands must be configured together")
	}

	if cfg.EngineModules == nil {
		cfg.EngineModules = append([]string(nil), DefaultEngineModules...)
	}
	if cfg.OutDir == "" {
		cfg.OutDir = filepath.Join(".modplan", "out")
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(".modplan", "cache.json")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}
