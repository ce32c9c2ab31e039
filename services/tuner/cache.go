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
	"fmt"
)

// Evaluator benchmarks one cutoff value.
//
// Implementations perform the full set -> build -> execute -> parse cycle and
// are not memoized; ResultCache provides memoization per search.
type Evaluator interface {
	Evaluate(ctx context.Context, value int) (*CandidateResult, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, value int) (*CandidateResult, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, value int) (*CandidateResult, error) {
	return f(ctx, value)
}

// ResultCache memoizes CandidateResults by value for one search.
//
// Thread Safety: NOT safe for concurrent use. Owned by a single Search.Run.
type ResultCache struct {
	byValue map[int]*CandidateResult
	order   []*CandidateResult
}

// NewResultCache creates an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{byValue: make(map[int]*CandidateResult)}
}

// Get returns the cached result for value.
func (c *ResultCache) Get(value int) (*CandidateResult, bool) {
	r, ok := c.byValue[value]
	return r, ok
}

// Len returns the number of distinct values evaluated.
func (c *ResultCache) Len() int {
	return len(c.order)
}

// Resolve returns the cached result for value, evaluating it on a miss.
//
// Description:
//
//	On a hit the cached result is returned unchanged and eval is not called.
//	On a miss eval runs once; a usable result is stamped with its evaluation
//	order and stored. Errors are never cached.
//
// Inputs:
//
//	ctx - Context for cancellation
//	value - The cutoff to resolve
//	eval - The evaluator used on a miss
//
// Outputs:
//
//	*CandidateResult - The cached or fresh result
//	bool - True if the result was freshly evaluated
//	error - Non-nil if evaluation failed
func (c *ResultCache) Resolve(ctx context.Context, value int, eval Evaluator) (*CandidateResult, bool, error) {
	if r, ok := c.byValue[value]; ok {
		return r, false, nil
	}
	r, err := eval.Evaluate(ctx, value)
	if err != nil {
		return nil, false, err
	}
	if r == nil || !r.Usable() {
		return nil, false, &EmptyResultError{Value: value}
	}
	if r.Value != value {
		return nil, false, fmt.Errorf("evaluator returned cutoff %d for requested %d", r.Value, value)
	}
	r.Order = len(c.order)
	c.byValue[value] = r
	c.order = append(c.order, r)
	return r, true, nil
}

// All returns every cached result in evaluation order.
func (c *ResultCache) All() []*CandidateResult {
	out := make([]*CandidateResult, len(c.order))
	copy(out, c.order)
	return out
}

// Best returns the minimum-score result over every cached value.
// Ties go to the earlier evaluation. Returns nil when the cache is empty.
func (c *ResultCache) Best() *CandidateResult {
	var best *CandidateResult
	for _, r := range c.order {
		if best == nil || r.better(best) {
			best = r
		}
	}
	return best
}

// BestIn returns the minimum-score result whose value lies inside b,
// including values evaluated under earlier, wider brackets.
func (c *ResultCache) BestIn(b Bracket) *CandidateResult {
	var best *CandidateResult
	for _, r := range c.order {
		if !b.Contains(r.Value) {
			continue
		}
		if best == nil || r.better(best) {
			best = r
		}
	}
	return best
}
