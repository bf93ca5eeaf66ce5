// Package engine wraps the external NIfTI converters behind a uniform adapter.
package engine

import (
	"context"
	"fmt"
	"strings"

	"niftiwork/internal/instance"
)

// Engine names a converter backend.
type Engine string

const (
	Plastimatch Engine = "plastimatch"
	Dcm2niix    Engine = "dcm2niix"
)

// ParseEngine validates an engine name from configuration.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return e, fmt.Errorf("%w: %q", ErrUnknownEngine, s)
	}
	return e, nil
}

func (e Engine) Valid() bool { return e == Plastimatch || e == Dcm2niix }

// Verbosity is the module-level output level handed to each adapter call.
type Verbosity int

const (
	Quiet Verbosity = iota
	Verbose
	Debug
)

// VerbosityFrom maps the debug/verbose settings, debug taking precedence.
func VerbosityFrom(verbose, debug bool) Verbosity {
	switch {
	case debug:
		return Debug
	case verbose:
		return Verbose
	default:
		return Quiet
	}
}

// Job is a single input/output pair. Log is nil when the caller has no log artifact.
type Job struct {
	Input     *instance.Artifact
	Output    *instance.Artifact
	Log       *instance.Artifact
	Verbosity Verbosity
}

// Adapter converts one input into one output. Errors are fatal for the batch.
type Adapter interface {
	Engine() Engine
	Convert(ctx context.Context, job Job) error
}
