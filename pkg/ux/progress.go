// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

// Progress prints search progress as it happens.
//
// It implements tuner.Observer and never returns an error.
type Progress struct {
	tuner.NopObserver
	p *Printer
}

// NewProgress creates a progress observer writing through p.
func NewProgress(p *Printer) *Progress {
	return &Progress{p: p}
}

// OnStarted implements tuner.Observer.
func (o *Progress) OnStarted(_ context.Context, s tuner.Start) error {
	if !o.p.rich() {
		fmt.Fprintf(o.p.w, "search run=%s range=%s tolerance=%d repeat=%d\n",
			s.RunID, s.Initial, s.Tolerance, s.RepeatCount)
		return nil
	}
	o.p.Title(fmt.Sprintf("Tuning cutoff over %s", s.Initial))
	o.p.Info(Styles.Muted.Render(fmt.Sprintf("run %s, tolerance %d, %d runs per value",
		s.RunID, s.Tolerance, s.RepeatCount)))
	return nil
}

// OnEvaluated implements tuner.Observer.
func (o *Progress) OnEvaluated(_ context.Context, _ string, r *tuner.CandidateResult) error {
	if !o.p.rich() {
		fmt.Fprintf(o.p.w, "candidate value=%d times=%s mean=%.6f stdev=%.6f score=%.6f dropped=%d\n",
			r.Value, formatTimes(r.Samples), r.Mean(), r.Stdev(), r.Score(), r.Dropped)
		return nil
	}
	line := fmt.Sprintf("cutoff %s  %s  mean %s ± %s  score %s",
		Styles.Bold.Render(fmt.Sprintf("%d", r.Value)),
		Styles.Muted.Render(formatTimes(r.Samples)),
		formatSeconds(r.Mean()),
		formatSeconds(r.Stdev()),
		Styles.Highlight.Render(formatSeconds(r.Score())),
	)
	if r.Dropped > 0 {
		line += "  " + Styles.Warning.Render(fmt.Sprintf("%d dropped", r.Dropped))
	}
	o.p.Info(line)
	return nil
}

// OnRound implements tuner.Observer.
func (o *Progress) OnRound(_ context.Context, _ string, r tuner.Round) error {
	if !o.p.rich() {
		fmt.Fprintf(o.p.w, "round index=%d range=%s mid=%d best=%d score=%.6f next=%s\n",
			r.Index, r.Before, r.Mid, r.BestValue, r.BestScore, r.After)
		return nil
	}
	fmt.Fprintf(o.p.w, "%s round %d  %s best %s %s %s\n",
		IconArrow.Render(),
		r.Index,
		r.Before,
		Styles.Highlight.Render(fmt.Sprintf("%d", r.BestValue)),
		IconArrow.Render(),
		r.After,
	)
	return nil
}

// OnConverged implements tuner.Observer.
func (o *Progress) OnConverged(_ context.Context, report *tuner.Report) error {
	best := report.Best
	if best == nil {
		return nil
	}
	if !o.p.rich() {
		fmt.Fprintf(o.p.w, "optimal value=%d mean=%.6f stdev=%.6f score=%.6f evaluations=%d rounds=%d\n",
			best.Value, best.Mean(), best.Stdev(), best.Score(), len(report.Results), len(report.Rounds))
		return nil
	}
	o.p.Box(fmt.Sprintf("Optimal cutoff: %d", best.Value),
		fmt.Sprintf("time %s ± %s", formatSeconds(best.Mean()), formatSeconds(best.Stdev())),
		Styles.Muted.Render(fmt.Sprintf("%d values in %d rounds, final range %s, took %s",
			len(report.Results), len(report.Rounds), report.Final, report.Duration().Round(1e6))),
	)
	return nil
}

// OnAborted implements tuner.Observer.
func (o *Progress) OnAborted(_ context.Context, runID string, err error) error {
	o.p.Error(fmt.Sprintf("search %s aborted: %v", runID, err))
	return nil
}

func formatSeconds(secs float64) string {
	return fmt.Sprintf("%.4fs", secs)
}

func formatTimes(samples []float64) string {
	parts := make([]string, len(samples))
	for i, s := range samples {
		parts[i] = fmt.Sprintf("%.4f", s)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
