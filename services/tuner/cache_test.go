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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEvaluator scores each value with fn and counts calls per value.
type countingEvaluator struct {
	fn    func(v int) float64
	calls map[int]int
}

func newCountingEvaluator(fn func(v int) float64) *countingEvaluator {
	return &countingEvaluator{fn: fn, calls: make(map[int]int)}
}

func (e *countingEvaluator) Evaluate(_ context.Context, v int) (*CandidateResult, error) {
	e.calls[v]++
	return &CandidateResult{Value: v, Samples: []float64{e.fn(v)}, Requested: 1, PenaltyWeight: DefaultPenaltyWeight}, nil
}

func TestResultCache_Resolve(t *testing.T) {
	ctx := context.Background()
	eval := newCountingEvaluator(func(v int) float64 { return float64(v) })
	c := NewResultCache()

	t.Run("miss evaluates", func(t *testing.T) {
		r, fresh, err := c.Resolve(ctx, 7, eval)
		require.NoError(t, err)
		assert.True(t, fresh)
		assert.Equal(t, 7, r.Value)
		assert.Equal(t, 0, r.Order)
	})

	t.Run("hit returns same result", func(t *testing.T) {
		first, _ := c.Get(7)
		r, fresh, err := c.Resolve(ctx, 7, eval)
		require.NoError(t, err)
		assert.False(t, fresh)
		assert.Same(t, first, r)
		assert.Equal(t, 1, eval.calls[7])
	})

	t.Run("orders distinct values", func(t *testing.T) {
		r, _, err := c.Resolve(ctx, 3, eval)
		require.NoError(t, err)
		assert.Equal(t, 1, r.Order)
		assert.Equal(t, 2, c.Len())
	})
}

func TestResultCache_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	fail := true
	eval := EvaluatorFunc(func(_ context.Context, v int) (*CandidateResult, error) {
		if fail {
			return nil, boom
		}
		return &CandidateResult{Value: v, Samples: []float64{1}}, nil
	})

	c := NewResultCache()
	_, _, err := c.Resolve(ctx, 1, eval)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	fail = false
	_, fresh, err := c.Resolve(ctx, 1, eval)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestResultCache_RejectsEmptyResult(t *testing.T) {
	eval := EvaluatorFunc(func(_ context.Context, v int) (*CandidateResult, error) {
		return &CandidateResult{Value: v}, nil
	})

	_, _, err := NewResultCache().Resolve(context.Background(), 5, eval)

	var empty *EmptyResultError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 5, empty.Value)
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestResultCache_RejectsMismatchedValue(t *testing.T) {
	eval := EvaluatorFunc(func(_ context.Context, v int) (*CandidateResult, error) {
		return &CandidateResult{Value: v + 1, Samples: []float64{1}}, nil
	})

	_, _, err := NewResultCache().Resolve(context.Background(), 5, eval)
	assert.Error(t, err)
}

func TestResultCache_Best(t *testing.T) {
	ctx := context.Background()
	scores := map[int]float64{0: 1.0, 8: 3.0, 16: 2.0, 12: 2.0}
	eval := newCountingEvaluator(func(v int) float64 { return scores[v] })
	c := NewResultCache()

	assert.Nil(t, c.Best())

	for _, v := range []int{0, 8, 16, 12} {
		_, _, err := c.Resolve(ctx, v, eval)
		require.NoError(t, err)
	}

	t.Run("global best survives narrowing", func(t *testing.T) {
		assert.Equal(t, 0, c.Best().Value)
	})

	t.Run("in-bracket best excludes outside values", func(t *testing.T) {
		assert.Equal(t, 16, c.BestIn(Bracket{8, 16}).Value, "16 and 12 tie; 16 was evaluated first")
	})

	t.Run("empty bracket", func(t *testing.T) {
		assert.Nil(t, c.BestIn(Bracket{1, 7}))
	})

	t.Run("all in order", func(t *testing.T) {
		all := c.All()
		require.Len(t, all, 4)
		for i, r := range all {
			assert.Equal(t, i, r.Order)
		}
	})
}
