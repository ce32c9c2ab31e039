// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

const (
	// DefaultTimeout bounds one build or one run.
	DefaultTimeout = 30 * time.Minute

	// DefaultMaxOutputBytes caps captured output per stream.
	DefaultMaxOutputBytes = 64 * 1024

	// waitDelay bounds how long output pipes may stay open after a kill,
	// e.g. when make leaves a grandchild holding stdout.
	waitDelay = 5 * time.Second
)

var (
	// ErrCommandTimeout indicates the command was killed by its timeout.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrEmptyCommand indicates a CommandSpec without a program.
	ErrEmptyCommand = errors.New("empty command")
)

// =============================================================================
// COMMAND
// =============================================================================

// CommandSpec describes one external command.
type CommandSpec struct {
	// Label names the command in logs ("build", "run").
	Label string

	// Argv is the program followed by its arguments.
	Argv []string

	// Dir is the working directory. Empty uses the current directory.
	Dir string

	// BaseEnv is the environment the command starts from.
	// Nil inherits the current process environment.
	BaseEnv []string

	// Env entries override BaseEnv (e.g. NTHREADS=96).
	Env map[string]string

	// Timeout bounds a single invocation. Zero uses DefaultTimeout.
	Timeout time.Duration

	// MaxOutputBytes caps stdout and stderr each. Zero uses DefaultMaxOutputBytes.
	MaxOutputBytes int
}

// ParseCommandLine splits a command line on whitespace.
// Quoting is not interpreted; use CommandSpec.Argv directly for that.
func ParseCommandLine(line string) []string {
	return strings.Fields(line)
}

// Command runs a CommandSpec and implements tuner.Builder and tuner.Executor.
//
// Thread Safety: Safe for concurrent use. Each call starts its own process.
type Command struct {
	spec   CommandSpec
	logger *slog.Logger
}

// NewCommand creates a command, filling defaults for zero fields.
func NewCommand(spec CommandSpec, logger *slog.Logger) *Command {
	if logger == nil {
		logger = slog.Default()
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}
	if spec.MaxOutputBytes <= 0 {
		spec.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if spec.Label == "" && len(spec.Argv) > 0 {
		spec.Label = spec.Argv[0]
	}
	return &Command{spec: spec, logger: logger}
}

// Spec returns a copy of the command spec.
func (c *Command) Spec() CommandSpec {
	return c.spec
}

// Build implements tuner.Builder.
func (c *Command) Build(ctx context.Context) (*tuner.CommandResult, error) {
	return c.Run(ctx)
}

// Execute implements tuner.Executor.
func (c *Command) Execute(ctx context.Context) (*tuner.CommandResult, error) {
	return c.Run(ctx)
}

// Run executes the command once and waits for it.
//
// Description:
//
//	Runs with the configured timeout, directory and environment, capturing
//	stdout and stderr up to MaxOutputBytes each. A nonzero exit is reported
//	through ExitCode, not as an error.
//
// Inputs:
//
//	ctx - Context for cancellation
//
// Outputs:
//
//	*tuner.CommandResult - Captured result. Non-nil whenever the process started.
//	error - ErrCommandTimeout, ErrEmptyCommand, a start failure or ctx.Err()
func (c *Command) Run(ctx context.Context) (*tuner.CommandResult, error) {
	if ctx == nil {
		return nil, tuner.ErrNilContext
	}
	if len(c.spec.Argv) == 0 || c.spec.Argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	ctx, cancel := context.WithTimeout(ctx, c.spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.spec.Argv[0], c.spec.Argv[1:]...)
	cmd.Dir = c.spec.Dir
	cmd.Env = c.environ()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: c.spec.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderr, limit: c.spec.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	c.logger.Debug("Executing command",
		slog.String("label", c.spec.Label),
		slog.Any("argv", c.spec.Argv),
		slog.String("dir", c.spec.Dir),
		slog.Duration("timeout", c.spec.Timeout),
	)

	start := time.Now()
	err := cmd.Run()

	result := &tuner.CommandResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		c.logger.Warn("Command timed out",
			slog.String("label", c.spec.Label),
			slog.Duration("timeout", c.spec.Timeout),
		)
		return result, fmt.Errorf("%w: %s after %s", ErrCommandTimeout, c.spec.Label, c.spec.Timeout)
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.ExitCode = -1
			return result, fmt.Errorf("%s: command execution failed: %w", c.spec.Label, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	c.logger.Debug("Command finished",
		slog.String("label", c.spec.Label),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration),
		slog.Int("stdout_bytes", len(result.Stdout)),
		slog.Bool("truncated", result.Truncated),
	)
	return result, nil
}

// environ merges Env over BaseEnv. Later entries win in exec.Cmd.
func (c *Command) environ() []string {
	base := c.spec.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+len(c.spec.Env))
	env = append(env, base...)

	keys := make([]string, 0, len(c.spec.Env))
	for k := range c.spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.spec.Env[k])
	}
	return env
}

// =============================================================================
// LIMITED WRITER
// =============================================================================

// limitedWriter keeps the first limit bytes and discards the rest.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.limit - lw.written; len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}
