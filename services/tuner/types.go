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

import "time"

// =============================================================================
// STATE
// =============================================================================

// State represents a state of the search loop.
type State string

const (
	// StateIdle is the state before Run is called.
	StateIdle State = "idle"

	// StateSearching narrows the bracket until it is within tolerance.
	StateSearching State = "searching"

	// StateConverged indicates the bracket width reached the tolerance.
	StateConverged State = "converged"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true once the search has converged.
func (s State) IsTerminal() bool {
	return s == StateConverged
}

// =============================================================================
// CANDIDATE RESULT
// =============================================================================

// CandidateResult holds the accepted timing samples for one cutoff value.
//
// A result is created on the first evaluation of a value and is read-only
// afterwards. Mean, Stdev and Score are derived from Samples on demand.
type CandidateResult struct {
	// Value is the cutoff that was benchmarked.
	Value int `json:"value"`

	// Samples are wall-clock durations in seconds, one per accepted run.
	Samples []float64 `json:"samples"`

	// Requested is the number of runs that were asked for.
	Requested int `json:"requested"`

	// Dropped is the number of runs that failed or printed no duration.
	Dropped int `json:"dropped"`

	// Order is the evaluation sequence number within one search (0-based).
	// Used to break score ties in favor of the earlier evaluation.
	Order int `json:"order"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// PenaltyWeight is the stdev weight used by Score.
	PenaltyWeight float64 `json:"penalty_weight"`
}

// Mean returns the arithmetic mean of the samples, or 0 when there are none.
func (r *CandidateResult) Mean() float64 {
	return Mean(r.Samples)
}

// Stdev returns the sample standard deviation, 0 for fewer than 2 samples.
func (r *CandidateResult) Stdev() float64 {
	return Stdev(r.Samples)
}

// Score returns mean + PenaltyWeight*stdev. Lower is better.
//
// Callers must not score a result without samples; the runner never returns
// one.
func (r *CandidateResult) Score() float64 {
	return ScoreReducer{PenaltyWeight: r.PenaltyWeight}.MustReduce(r.Samples)
}

// Usable returns true if the result has at least one sample.
func (r *CandidateResult) Usable() bool {
	return len(r.Samples) > 0
}

// better reports whether r ranks ahead of other.
func (r *CandidateResult) better(other *CandidateResult) bool {
	a, b := r.Score(), other.Score()
	if a != b {
		return a < b
	}
	return r.Order < other.Order
}

// =============================================================================
// ROUND & REPORT
// =============================================================================

// Round records one narrowing step of the search.
type Round struct {
	// Index is the 1-based round number.
	Index int `json:"index"`

	// Before is the bracket the round started with.
	Before Bracket `json:"before"`

	// Mid is the midpoint that was evaluated.
	Mid int `json:"mid"`

	// BestValue is the best in-bracket value chosen for re-centering.
	BestValue int `json:"best_value"`

	// BestScore is the score of BestValue.
	BestScore float64 `json:"best_score"`

	// After is the narrowed bracket.
	After Bracket `json:"after"`
}

// Start describes a search that is about to begin.
type Start struct {
	RunID       string    `json:"run_id"`
	Initial     Bracket   `json:"initial"`
	Tolerance   int       `json:"tolerance"`
	RepeatCount int       `json:"repeat_count"`
	StartedAt   time.Time `json:"started_at"`
}

// Report is the outcome of a converged search.
type Report struct {
	// RunID uniquely identifies the search.
	RunID string `json:"run_id"`

	// State is the final search state.
	State State `json:"state"`

	// Initial is the bracket the search started with.
	Initial Bracket `json:"initial"`

	// Final is the bracket at convergence.
	Final Bracket `json:"final"`

	// Tolerance is the convergence width.
	Tolerance int `json:"tolerance"`

	// Best is the minimum-score result over every evaluated value.
	Best *CandidateResult `json:"best"`

	// Results are all evaluated candidates in evaluation order.
	Results []*CandidateResult `json:"results"`

	// Rounds are the narrowing steps in order.
	Rounds []Round `json:"rounds"`

	// StartedAt is when the search started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the search converged.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the search took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
