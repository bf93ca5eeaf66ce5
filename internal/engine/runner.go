package engine

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command is one external process invocation.
type Command struct {
	Name   string
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner starts a process and blocks until it exits.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec. There is no timeout: a hung
// converter hangs the caller until ctx is cancelled.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // binaries come from deployment config
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok { //nolint:errorlint
			return fmt.Errorf("%s exited with code %d: %w", c.Name, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("run %s: %w", c.Name, err)
	}
	return nil
}

// RunnerFunc adapts a function to CommandRunner.
type RunnerFunc func(ctx context.Context, cmd Command) error

func (f RunnerFunc) Run(ctx context.Context, cmd Command) error { return f(ctx, cmd) }
