package scheduler

import (
	"errors"
	"fmt"
)

// Status is the overall outcome of a build.
type Status int

const (
	Succeeded Status = iota
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Failure is one module that failed to build.
type Failure struct {
	Module string
	Err    error
}

// BuildResult reports what a build did, including partial progress.
type BuildResult struct {
	Target string
	Status Status
	// Built lists modules compiled in this run, in plan order.
	Built []string
	// Reused lists modules whose cached artifact was still current.
	Reused []string
	// Failures lists every module that failed, in plan order.
	Failures []Failure
	// NotAttempted lists modules of layers that were never started.
	NotAttempted []string

	LinkArtifact string
	LinkReused   bool
	LinkErr      error
	// CancelErr is the context error that stopped the build, if any.
	CancelErr error
}

// Err aggregates every failure of the build, or returns nil on success.
func (r *BuildResult) Err() error {
	var errs []error
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	if r.LinkErr != nil {
		errs = append(errs, r.LinkErr)
	}
	if r.CancelErr != nil {
		errs = append(errs, fmt.Errorf("build of %q cancelled: %w", r.Target, r.CancelErr))
	}
	return errors.Join(errs...)
}

// FailedModules returns the names of the failed modules.
func (r *BuildResult) FailedModules() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Module
	}
	return out
}
