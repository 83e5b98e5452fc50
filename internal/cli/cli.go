package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vk/modplan/internal/app"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitBuildFailed = 1
	ExitUsage       = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// FromRunError maps an application error onto the process exit code:
// configuration and graph errors exit 2, build failures exit 1.
func FromRunError(err error) *ExitError {
	var exitErr *ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		return exitErr
	case app.IsConfigError(err):
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	default:
		return &ExitError{Code: ExitBuildFailed, Message: err.Error()}
	}
}

const usageText = `
modplan - module dependency resolver and build planner.

Usage:
  modplan [options] plan <target>
  modplan [options] build <target> [--jobs N] [--force-rebuild]

Commands:
  plan    Print the layered build order of a target.
  build   Build every out-of-date module of a target and link it.

Exit codes:
  0 success, 1 module or link failure, 2 configuration or graph error.

Options:
`

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
// getenv supplies MODPLAN_* defaults.
func Parse(args []string, output io.Writer, getenv func(string) string) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	flagSet := flag.NewFlagSet("modplan", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageText)
		flagSet.PrintDefaults()
	}

	descriptorsFlag := flagSet.String("descriptors", envOr(getenv, "MODPLAN_DESCRIPTORS", "."), "Comma-separated descriptor files or directories.")
	engineFlag := flagSet.String("engine-modules", envOr(getenv, "MODPLAN_ENGINE_MODULES", strings.Join(app.DefaultEngineModules, ",")), "Comma-separated engine modules resolved as externals.")
	cacheFlag := flagSet.String("cache", envOr(getenv, "MODPLAN_CACHE", ".modplan/cache.json"), "Path of the incremental build cache.")
	outFlag := flagSet.String("out", envOr(getenv, "MODPLAN_OUT_DIR", ".modplan/out"), "Directory for build artifacts.")
	compileFlag := flagSet.String("compile-cmd", getenv("MODPLAN_COMPILE_CMD"), "Compile command template. Empty runs a dry-run toolchain.")
	linkFlag := flagSet.String("link-cmd", getenv("MODPLAN_LINK_CMD"), "Link command template.")
	logFormatFlag := flagSet.String("log-format", envOr(getenv, "MODPLAN_LOG_FORMAT", "text"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", envOr(getenv, "MODPLAN_LOG_LEVEL", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Global arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No command provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	command := flagSet.Arg(0)
	cmdFlags := flag.NewFlagSet("modplan "+command, flag.ContinueOnError)
	cmdFlags.SetOutput(output)
	var jobs *int
	var force *bool
	switch command {
	case app.CommandPlan:
	case app.CommandBuild:
		defaultJobs, err := envInt(getenv, "MODPLAN_JOBS")
		if err != nil {
			return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
		}
		jobs = cmdFlags.Int("jobs", defaultJobs, "Maximum concurrent compilations. 0 uses every CPU.")
		force = cmdFlags.Bool("force-rebuild", false, "Ignore the cache and rebuild every module.")
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unknown command %q: must be 'plan' or 'build'", command)}
	}

	target, err := parseCommand(cmdFlags, flagSet.Args()[1:])
	if err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Command arguments parsed.", "command", command, "target", target)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		Command:         command,
		Target:          target,
		DescriptorPaths: splitList(*descriptorsFlag),
		EngineModules:   splitList(*engineFlag),
		CachePath:       *cacheFlag,
		OutDir:          *outFlag,
		CompileCommand:  *compileFlag,
		LinkCommand:     *linkFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	}
	if jobs != nil {
		cfg.Jobs = *jobs
		cfg.ForceRebuild = *force
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// parseCommand accepts command flags before or after the target argument.
func parseCommand(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() == 0 {
		return "", fmt.Errorf("%s: a target name is required", fs.Name())
	}
	target := fs.Arg(0)
	if rest := fs.Args()[1:]; len(rest) > 0 {
		if err := fs.Parse(rest); err != nil {
			return "", err
		}
		if fs.NArg() > 0 {
			return "", fmt.Errorf("%s: unexpected arguments %v", fs.Name(), fs.Args())
		}
	}
	return target, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(getenv func(string) string, key string) (int, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, v)
	}
	return n, nil
}

// splitList splits a comma-separated list, dropping blanks. An empty input
// yields an empty, non-nil list.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
