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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SCORE REDUCER TESTS
// =============================================================================

func TestScoreReducer_Reduce(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{"single sample scores itself", []float64{5.0}, 5.0},
		{"identical samples", []float64{2.0, 2.0, 2.0}, 2.0},
		{"mean plus tenth of stdev", []float64{1.0, 2.0, 3.0}, 2.1},
		{"two samples", []float64{1.0, 3.0}, 2.0 + 0.1*math.Sqrt2},
	}

	r := DefaultScoreReducer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Reduce(tt.samples)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreReducer_Empty(t *testing.T) {
	_, err := DefaultScoreReducer().Reduce(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	assert.Panics(t, func() {
		DefaultScoreReducer().MustReduce([]float64{})
	})
}

func TestScoreReducer_PenalizesSpread(t *testing.T) {
	r := DefaultScoreReducer()
	tight := r.MustReduce([]float64{2.0, 2.0, 2.0})
	wide := r.MustReduce([]float64{1.0, 2.0, 3.0})

	assert.Less(t, tight, wide, "equal means should rank the tighter spread first")
}

func TestScoreReducer_ZeroWeight(t *testing.T) {
	got := ScoreReducer{}.MustReduce([]float64{1.0, 2.0, 3.0})
	assert.InDelta(t, 2.0, got, 1e-9)
}

func TestStdev(t *testing.T) {
	assert.Zero(t, Stdev(nil))
	assert.Zero(t, Stdev([]float64{42}))
	assert.InDelta(t, 1.0, Stdev([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Mean(nil))
}
