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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// SEARCH
// =============================================================================

// Search runs the modified binary search for the best cutoff.
//
// Thread Safety: Run must not be called concurrently; a second call while a
// search is in flight returns ErrAlreadyRunning. State is safe to read from
// other goroutines.
type Search struct {
	config    Config
	evaluator Evaluator
	target    ConfigurationTarget
	observers []Observer
	logger    *slog.Logger

	mu      sync.RWMutex
	state   State
	running bool
}

// SearchOption configures a Search.
type SearchOption func(*Search)

// WithObservers registers observers that receive search progress.
func WithObservers(observers ...Observer) SearchOption {
	return func(s *Search) {
		s.observers = append(s.observers, observers...)
	}
}

// NewSearch creates a new search.
//
// Inputs:
//
//	cfg - Search configuration. Nil uses DefaultConfig(). Copied.
//	evaluator - Benchmarks one cutoff (usually a *BenchmarkRunner)
//	target - Receives the winning value when cfg.ApplyBest is set. May be nil
//	         when ApplyBest is false.
//	logger - Logger for structured logging
//	opts - Search options
//
// Outputs:
//
//	*Search - Configured search in StateIdle
func NewSearch(cfg *Config, evaluator Evaluator, target ConfigurationTarget, logger *slog.Logger, opts ...SearchOption) *Search {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Search{
		config:    *cfg,
		evaluator: evaluator,
		target:    target,
		logger:    logger,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current search state.
func (s *Search) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Search) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run searches [MinCutoff, MaxCutoff] until the bracket is within tolerance.
//
// Description:
//
//	Each round resolves low, mid and high through a per-run ResultCache, so a
//	value is evaluated at most once. The bracket is re-centered on the best
//	evaluated value inside it. On convergence the best result over every
//	evaluated value is reported and, if ApplyBest is set, written back to the
//	target. The target is not rebuilt after the write-back.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before every round.
//
// Outputs:
//
//	*Report - The converged search report
//	error - ErrInvalidBracket, ErrAlreadyRunning or a *SearchError wrapping
//	        the fatal evaluation error. No partial report is returned.
//
// Thread Safety: See Search.
func (s *Search) Run(ctx context.Context) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.state = StateSearching
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runID := uuid.New().String()[:8]
	initial := s.config.Bracket()
	start := time.Now()

	ctx, span := startSearchSpan(ctx, runID, initial, s.config.Tolerance)
	defer span.End()

	logger := s.logger.With(slog.String("run_id", runID))
	notify := newMultiObserver(logger, s.observers...)

	logger.Info("Starting cutoff search",
		slog.String("bracket", initial.String()),
		slog.Int("tolerance", s.config.Tolerance),
		slog.Int("repeat", s.config.RepeatCount),
	)
	notify.started(ctx, Start{
		RunID:       runID,
		Initial:     initial,
		Tolerance:   s.config.Tolerance,
		RepeatCount: s.config.RepeatCount,
		StartedAt:   start,
	})

	report, err := s.search(ctx, runID, initial, logger, notify)
	recordSearch(ctx, time.Since(start), err == nil)
	if err != nil {
		s.setState(StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Cutoff search aborted", slog.String("error", err.Error()))
		notify.aborted(context.WithoutCancel(ctx), runID, err)
		return nil, err
	}

	report.StartedAt = start
	report.FinishedAt = time.Now()
	setSearchSpanResult(span, report.Best, len(report.Rounds), len(report.Results))
	span.SetStatus(codes.Ok, "")

	s.setState(StateConverged)
	logger.Info("Cutoff search converged",
		slog.Int("best", report.Best.Value),
		slog.Float64("score", report.Best.Score()),
		slog.String("final_bracket", report.Final.String()),
		slog.Int("evaluations", len(report.Results)),
		slog.Duration("duration", report.Duration()),
	)
	notify.converged(ctx, report)
	return report, nil
}

func (s *Search) search(ctx context.Context, runID string, b Bracket, logger *slog.Logger, notify *multiObserver) (*Report, error) {
	span := trace.SpanFromContext(ctx)
	cache := NewResultCache()
	initial := b
	var rounds []Round

	for !b.Converged(s.config.Tolerance) {
		index := len(rounds) + 1
		if err := ctx.Err(); err != nil {
			return nil, &SearchError{RunID: runID, Round: index, Value: b.Low, Bracket: b, Err: err}
		}

		mid := b.Mid()
		for _, v := range [...]int{b.Low, mid, b.High} {
			r, fresh, err := cache.Resolve(ctx, v, s.evaluator)
			if err != nil {
				return nil, &SearchError{RunID: runID, Round: index, Value: v, Bracket: b, Err: err}
			}
			if fresh {
				notify.evaluated(ctx, runID, r)
			}
		}

		best := cache.BestIn(b)
		next := b.Narrow(best.Value)
		round := Round{
			Index:     index,
			Before:    b,
			Mid:       mid,
			BestValue: best.Value,
			BestScore: best.Score(),
			After:     next,
		}
		rounds = append(rounds, round)

		logger.Info("Round complete",
			slog.Int("round", index),
			slog.String("bracket", b.String()),
			slog.Int("best", best.Value),
			slog.Float64("score", best.Score()),
			slog.String("next", next.String()),
		)
		addRoundEvent(span, round)
		recordRound(ctx, branchOf(b, best.Value))
		notify.round(ctx, runID, round)

		b = next
	}

	best := cache.Best()
	if best == nil {
		// Only reachable if the initial bracket was already converged,
		// which Validate rejects.
		return nil, &SearchError{RunID: runID, Round: len(rounds), Value: b.Low, Bracket: b, Err: ErrEmptyResult}
	}

	if s.config.ApplyBest && s.target != nil {
		if err := s.target.SetThreshold(best.Value); err != nil {
			return nil, &SearchError{RunID: runID, Round: len(rounds), Value: best.Value, Bracket: b, Err: err}
		}
		logger.Info("Applied best cutoff", slog.Int("value", best.Value))
	}

	return &Report{
		RunID:     runID,
		State:     StateConverged,
		Initial:   initial,
		Final:     b,
		Tolerance: s.config.Tolerance,
		Best:      best,
		Results:   cache.All(),
		Rounds:    rounds,
	}, nil
}

// branchOf names the narrowing rule that applies to best.
func branchOf(b Bracket, best int) string {
	switch best {
	case b.Low:
		return "low"
	case b.High:
		return "high"
	default:
		return "interior"
	}
}
