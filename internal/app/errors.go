package app

import (
	"errors"
	"fmt"

	"github.com/vk/modplan/internal/scheduler"
)

// ConfigError wraps every failure detected before build work starts:
// descriptor loading, graph resolution and precompiled-state planning.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// BuildError reports a build that did not succeed. The result carries every
// failing module.
type BuildError struct {
	Result *scheduler.BuildResult
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %q %s: %v", e.Result.Target, e.Result.Status, e.Result.Err())
}

func (e *BuildError) Unwrap() error { return e.Result.Err() }

// IsConfigError reports whether err happened before any build work.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
