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
)

// Observer receives search progress.
//
// Observers are side channels (console output, run history, time series
// sinks). A returned error is logged and never aborts the search.
type Observer interface {
	// OnStarted is called once before the first evaluation.
	OnStarted(ctx context.Context, start Start) error

	// OnEvaluated is called once per freshly evaluated candidate.
	OnEvaluated(ctx context.Context, runID string, result *CandidateResult) error

	// OnRound is called after each narrowing step.
	OnRound(ctx context.Context, runID string, round Round) error

	// OnConverged is called once with the final report.
	OnConverged(ctx context.Context, report *Report) error

	// OnAborted is called once if the search stops with an error.
	OnAborted(ctx context.Context, runID string, err error) error
}

// NopObserver ignores all events. Embed it to implement a subset of Observer.
type NopObserver struct{}

// OnStarted implements Observer.
func (NopObserver) OnStarted(context.Context, Start) error { return nil }

// OnEvaluated implements Observer.
func (NopObserver) OnEvaluated(context.Context, string, *CandidateResult) error { return nil }

// OnRound implements Observer.
func (NopObserver) OnRound(context.Context, string, Round) error { return nil }

// OnConverged implements Observer.
func (NopObserver) OnConverged(context.Context, *Report) error { return nil }

// OnAborted implements Observer.
func (NopObserver) OnAborted(context.Context, string, error) error { return nil }

// multiObserver fans events out to several observers in order.
type multiObserver struct {
	observers []Observer
	logger    *slog.Logger
}

func newMultiObserver(logger *slog.Logger, observers ...Observer) *multiObserver {
	m := &multiObserver{logger: logger}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

func (m *multiObserver) started(ctx context.Context, start Start) {
	for _, o := range m.observers {
		if err := o.OnStarted(ctx, start); err != nil {
			m.logger.Warn("Observer failed",
				slog.String("event", "started"),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *multiObserver) evaluated(ctx context.Context, runID string, r *CandidateResult) {
	for _, o := range m.observers {
		if err := o.OnEvaluated(ctx, runID, r); err != nil {
			m.logger.Warn("Observer failed",
				slog.String("event", "evaluated"),
				slog.Int("value", r.Value),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *multiObserver) round(ctx context.Context, runID string, r Round) {
	for _, o := range m.observers {
		if err := o.OnRound(ctx, runID, r); err != nil {
			m.logger.Warn("Observer failed",
				slog.String("event", "round"),
				slog.Int("round", r.Index),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *multiObserver) converged(ctx context.Context, report *Report) {
	for _, o := range m.observers {
		if err := o.OnConverged(ctx, report); err != nil {
			m.logger.Warn("Observer failed",
				slog.String("event", "converged"),
				slog.String("run_id", report.RunID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *multiObserver) aborted(ctx context.Context, runID string, cause error) {
	for _, o := range m.observers {
		if err := o.OnAborted(ctx, runID, cause); err != nil {
			m.logger.Warn("Observer failed",
				slog.String("event", "aborted"),
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}
}
