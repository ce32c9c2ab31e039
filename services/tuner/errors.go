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
	"errors"
	"strconv"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrPatternNotFound indicates the threshold pattern did not match.
	ErrPatternNotFound = errors.New("threshold pattern not found")

	// ErrPatternAmbiguous indicates the threshold pattern matched more than once.
	ErrPatternAmbiguous = errors.New("threshold pattern matched more than once")

	// ErrBuildFailed indicates the rebuild exited nonzero.
	ErrBuildFailed = errors.New("build failed")

	// ErrBuildTimeout indicates the rebuild exceeded its timeout.
	ErrBuildTimeout = errors.New("build timeout")

	// ErrExecutionFailed indicates a timed run exited nonzero.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrRunTimeout indicates a timed run exceeded its timeout.
	// A hang aborts the search instead of dropping the sample.
	ErrRunTimeout = errors.New("run timeout")

	// ErrNoDurationToken indicates run output had no "took <float> sec" token.
	ErrNoDurationToken = errors.New("no duration token in output")

	// ErrEmptyResult indicates a candidate ended with zero accepted samples.
	ErrEmptyResult = errors.New("candidate has no accepted samples")

	// ErrNoSamples indicates an empty sample set was passed to the reducer.
	ErrNoSamples = errors.New("no samples to reduce")

	// ErrInvalidBracket indicates the search domain or tolerance is invalid.
	ErrInvalidBracket = errors.New("invalid search bracket")

	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrAlreadyRunning indicates the search is already running.
	ErrAlreadyRunning = errors.New("search already running")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigurationPatternError reports that the threshold could not be written
// because its pattern was missing or ambiguous. Fatal to the search.
type ConfigurationPatternError struct {
	// Path is the file that was searched.
	Path string

	// Pattern is the regular expression that was applied.
	Pattern string

	// Matches is how many times the pattern matched.
	Matches int
}

// Error implements the error interface.
func (e *ConfigurationPatternError) Error() string {
	return "threshold pattern " + strconv.Quote(e.Pattern) + " matched " +
		strconv.Itoa(e.Matches) + " times in " + e.Path + ", want exactly 1"
}

// Unwrap returns ErrPatternNotFound or ErrPatternAmbiguous.
func (e *ConfigurationPatternError) Unwrap() error {
	if e.Matches == 0 {
		return ErrPatternNotFound
	}
	return ErrPatternAmbiguous
}

// BuildFailure reports a nonzero exit from the rebuild. Fatal to the search.
type BuildFailure struct {
	// Value is the cutoff being built.
	Value int

	// ExitCode is the build process exit code.
	ExitCode int

	// Output is the captured stdout/stderr.
	Output string

	// Cause is the underlying error if any.
	Cause error
}

// Error implements the error interface.
func (e *BuildFailure) Error() string {
	msg := "build failed for cutoff " + strconv.Itoa(e.Value)
	if e.Cause != nil && !errors.Is(e.Cause, ErrBuildFailed) {
		return msg + ": " + e.Cause.Error()
	}
	return msg + ": exit code " + strconv.Itoa(e.ExitCode)
}

// Unwrap returns ErrBuildFailed and the cause, if any.
func (e *BuildFailure) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrBuildFailed, e.Cause}
	}
	return []error{ErrBuildFailed}
}

// ExecutionFailure reports a nonzero exit from one timed run.
// The sample is dropped; the search continues.
type ExecutionFailure struct {
	// Value is the cutoff being measured.
	Value int

	// Run is the 0-based run index.
	Run int

	// ExitCode is the process exit code.
	ExitCode int
}

// Error implements the error interface.
func (e *ExecutionFailure) Error() string {
	return "run " + strconv.Itoa(e.Run) + " for cutoff " + strconv.Itoa(e.Value) +
		" failed: exit code " + strconv.Itoa(e.ExitCode)
}

// Unwrap returns ErrExecutionFailed.
func (e *ExecutionFailure) Unwrap() error {
	return ErrExecutionFailed
}

// UnparseableOutputError reports a successful run without a duration token.
// The sample is dropped; the search continues.
type UnparseableOutputError struct {
	// Value is the cutoff being measured.
	Value int

	// Run is the 0-based run index.
	Run int

	// OutputBytes is the size of the captured stdout.
	OutputBytes int
}

// Error implements the error interface.
func (e *UnparseableOutputError) Error() string {
	return "run " + strconv.Itoa(e.Run) + " for cutoff " + strconv.Itoa(e.Value) +
		": no duration token in " + strconv.Itoa(e.OutputBytes) + " bytes of output"
}

// Unwrap returns ErrNoDurationToken.
func (e *UnparseableOutputError) Unwrap() error {
	return ErrNoDurationToken
}

// EmptyResultError reports that every run of a candidate was dropped.
// Fatal to the search, an unscored candidate cannot be ranked.
type EmptyResultError struct {
	// Value is the cutoff that produced no samples.
	Value int

	// Requested is the number of runs attempted.
	Requested int

	// LastError is the reason the last run was dropped.
	LastError error
}

// Error implements the error interface.
func (e *EmptyResultError) Error() string {
	msg := "cutoff " + strconv.Itoa(e.Value) + ": all " + strconv.Itoa(e.Requested) + " runs dropped"
	if e.LastError != nil {
		msg += " (last: " + e.LastError.Error() + ")"
	}
	return msg
}

// Unwrap returns ErrEmptyResult.
func (e *EmptyResultError) Unwrap() error {
	return ErrEmptyResult
}

// SearchError wraps a fatal error with the round and candidate it stopped at.
type SearchError struct {
	// RunID identifies the aborted search.
	RunID string

	// Round is the 1-based round that failed.
	Round int

	// Value is the candidate being evaluated.
	Value int

	// Bracket is the bracket at the time of failure.
	Bracket Bracket

	// Err is the fatal error.
	Err error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return "search aborted in round " + strconv.Itoa(e.Round) + " " + e.Bracket.String() +
		" at cutoff " + strconv.Itoa(e.Value) + ": " + e.Err.Error()
}

// Unwrap returns the fatal error.
func (e *SearchError) Unwrap() error {
	return e.Err
}
