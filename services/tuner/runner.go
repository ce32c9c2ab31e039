// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/cutofftune/pkg/telemetry"
)

// =============================================================================
// EXTERNAL INTERFACES
// =============================================================================

// ConfigurationTarget is the configuration surface of the benchmarked build.
//
// SetThreshold must be an idempotent overwrite: applying the same value twice
// leaves the configuration unchanged.
type ConfigurationTarget interface {
	SetThreshold(value int) error
}

// CommandResult is the captured outcome of one external command.
type CommandResult struct {
	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// ExitCode is the process exit code, -1 if it did not exit normally.
	ExitCode int

	// Duration is the wall-clock time of the command.
	Duration time.Duration

	// TimedOut indicates the command was killed by its timeout.
	TimedOut bool

	// Truncated indicates output exceeded the capture limit.
	Truncated bool
}

// Output returns stdout followed by stderr.
func (r *CommandResult) Output() string {
	return r.Stdout + r.Stderr
}

// Builder rebuilds the benchmarked artifact.
//
// Build must be synchronous. A non-nil error means the command could not run
// to completion (start failure, timeout); a nonzero ExitCode with a nil error
// is an ordinary build failure.
type Builder interface {
	Build(ctx context.Context) (*CommandResult, error)
}

// Executor runs the benchmarked artifact once.
//
// Error semantics match Builder.
type Executor interface {
	Execute(ctx context.Context) (*CommandResult, error)
}

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// BenchmarkRunner evaluates one cutoff by set -> build -> execute -> parse.
//
// The runner is the only writer of the target configuration, and every write
// is immediately followed by a rebuild before any run is measured.
//
// Thread Safety: NOT safe for concurrent use. All candidates share a single
// build artifact.
type BenchmarkRunner struct {
	target   ConfigurationTarget
	builder  Builder
	executor Executor
	repeat   int
	reducer  ScoreReducer
	logger   *slog.Logger
}

// NewBenchmarkRunner creates a new benchmark runner.
//
// Inputs:
//
//	cfg - Search configuration (RepeatCount, PenaltyWeight)
//	target - Configuration surface of the build
//	builder - Rebuild trigger
//	executor - Timed run of the built artifact
//	logger - Logger for structured logging
//
// Outputs:
//
//	*BenchmarkRunner - Configured runner
func NewBenchmarkRunner(cfg *Config, target ConfigurationTarget, builder Builder, executor Executor, logger *slog.Logger) *BenchmarkRunner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	repeat := cfg.RepeatCount
	if repeat < 1 {
		repeat = 1
	}
	return &BenchmarkRunner{
		target:   target,
		builder:  builder,
		executor: executor,
		repeat:   repeat,
		reducer:  cfg.Reducer(),
		logger:   logger,
	}
}

// Evaluate benchmarks value and returns its result.
//
// Description:
//
//	Writes value to the target, rebuilds, then executes the artifact
//	RepeatCount times. Runs that exit nonzero or print no duration token
//	are dropped. Evaluate does not memoize; use ResultCache.Resolve.
//
// Inputs:
//
//	ctx - Context for cancellation
//	value - The cutoff to benchmark
//
// Outputs:
//
//	*CandidateResult - Result with at least one sample
//	error - *ConfigurationPatternError, *BuildFailure, *EmptyResultError,
//	        ErrRunTimeout or a context error. All are fatal to the search.
//
// Thread Safety: NOT safe for concurrent use.
func (r *BenchmarkRunner) Evaluate(ctx context.Context, value int) (*CandidateResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	start := time.Now()
	ctx, span := startEvaluateSpan(ctx, value, r.repeat)
	defer span.End()

	result, dropped, err := r.evaluate(ctx, value)
	recordEvaluation(ctx, time.Since(start), result, dropped, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (r *BenchmarkRunner) evaluate(ctx context.Context, value int) (*CandidateResult, int, error) {
	logger := telemetry.LoggerWithTrace(ctx, r.logger)
	logger.Info("Testing cutoff",
		slog.Int("value", value),
		slog.Int("repeat", r.repeat),
	)

	if err := r.target.SetThreshold(value); err != nil {
		return nil, 0, err
	}

	if err := r.build(ctx, value); err != nil {
		return nil, 0, err
	}

	samples := make([]float64, 0, r.repeat)
	var lastDrop error
	for run := 0; run < r.repeat; run++ {
		secs, err := r.run(ctx, value, run)
		if err == nil {
			samples = append(samples, secs)
			continue
		}
		if !isSampleError(err) {
			return nil, r.repeat - len(samples), err
		}
		lastDrop = err
		logger.Warn("Dropping sample",
			slog.Int("value", value),
			slog.Int("run", run),
			slog.String("error", err.Error()),
		)
	}

	dropped := r.repeat - len(samples)
	if len(samples) == 0 {
		return nil, dropped, &EmptyResultError{Value: value, Requested: r.repeat, LastError: lastDrop}
	}

	result := &CandidateResult{
		Value:         value,
		Samples:       samples,
		Requested:     r.repeat,
		Dropped:       dropped,
		EvaluatedAt:   time.Now(),
		PenaltyWeight: r.reducer.PenaltyWeight,
	}

	logger.Info("Cutoff evaluated",
		slog.Int("value", value),
		slog.Any("times", samples),
		slog.Float64("mean", result.Mean()),
		slog.Float64("stdev", result.Stdev()),
		slog.Float64("score", result.Score()),
		slog.Int("dropped", dropped),
	)
	return result, dropped, nil
}

// build rebuilds the artifact. Every outcome except exit 0 is fatal.
func (r *BenchmarkRunner) build(ctx context.Context, value int) error {
	res, err := r.builder.Build(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := &BuildFailure{Value: value, ExitCode: -1, Cause: err}
		if res != nil {
			failure.ExitCode = res.ExitCode
			failure.Output = res.Output()
			if res.TimedOut && !errors.Is(err, ErrBuildTimeout) {
				failure.Cause = fmt.Errorf("%w: %v", ErrBuildTimeout, err)
			}
		}
		r.logger.Error("Build failed",
			slog.Int("value", value),
			slog.String("error", failure.Error()),
		)
		return failure
	}
	if res.ExitCode != 0 {
		r.logger.Error("Build failed",
			slog.Int("value", value),
			slog.Int("exit_code", res.ExitCode),
			slog.Int("output_bytes", len(res.Output())),
		)
		return &BuildFailure{Value: value, ExitCode: res.ExitCode, Output: res.Output()}
	}
	r.logger.Debug("Build completed",
		slog.Int("value", value),
		slog.Duration("duration", res.Duration),
	)
	return nil
}

// run executes one timed invocation and extracts its sample.
func (r *BenchmarkRunner) run(ctx context.Context, value, run int) (float64, error) {
	res, err := r.executor.Execute(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if res != nil && res.TimedOut && !errors.Is(err, ErrRunTimeout) {
			return 0, fmt.Errorf("%w: cutoff %d run %d: %v", ErrRunTimeout, value, run, err)
		}
		return 0, fmt.Errorf("cutoff %d run %d: %w", value, run, err)
	}
	if res.ExitCode != 0 {
		return 0, &ExecutionFailure{Value: value, Run: run, ExitCode: res.ExitCode}
	}
	secs, ok := ParseDuration(res.Stdout)
	if !ok {
		return 0, &UnparseableOutputError{Value: value, Run: run, OutputBytes: len(res.Stdout)}
	}
	r.logger.Debug("Run completed",
		slog.Int("value", value),
		slog.Int("run", run),
		slog.Float64("seconds", secs),
	)
	return secs, nil
}

// isSampleError reports whether err only invalidates a single sample.
func isSampleError(err error) bool {
	return errors.Is(err, ErrExecutionFailed) || errors.Is(err, ErrNoDurationToken)
}
