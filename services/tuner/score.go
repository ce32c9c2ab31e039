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

import "math"

// DefaultPenaltyWeight is the stdev weight applied by the default reducer.
const DefaultPenaltyWeight = 0.1

// ScoreReducer collapses repeated samples into one comparable score.
//
// Score = mean + PenaltyWeight * stdev. A single sample has stdev 0, so it
// scores its own value. Between two candidates with equal means the one with
// the wider spread ranks worse.
//
// Thread Safety: Value type, safe for concurrent use.
type ScoreReducer struct {
	// PenaltyWeight scales the stdev term. Must be >= 0.
	PenaltyWeight float64
}

// DefaultScoreReducer returns a reducer with DefaultPenaltyWeight.
func DefaultScoreReducer() ScoreReducer {
	return ScoreReducer{PenaltyWeight: DefaultPenaltyWeight}
}

// Reduce returns the score of samples.
//
// Inputs:
//
//	samples - Non-empty sequence of non-negative durations
//
// Outputs:
//
//	float64 - The score, lower is better
//	error - ErrNoSamples if samples is empty
func (s ScoreReducer) Reduce(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	return Mean(samples) + s.PenaltyWeight*Stdev(samples), nil
}

// MustReduce is Reduce for callers that already guarantee non-empty input.
// It panics on an empty slice.
func (s ScoreReducer) MustReduce(samples []float64) float64 {
	score, err := s.Reduce(samples)
	if err != nil {
		panic(err)
	}
	return score
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Stdev returns the sample (n-1) standard deviation of xs.
// Fewer than two samples yield 0 rather than NaN.
func Stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
