// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status exposes a running search over HTTP.
//
// Routes:
//
//	GET /healthz    - liveness
//	GET /v1/status  - progress snapshot of the current or last search
//	GET /metrics    - Prometheus metrics, when the exporter is enabled
package status

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

// Phase is the lifecycle phase reported by the status endpoint.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSearching Phase = "searching"
	PhaseConverged Phase = "converged"
	PhaseAborted   Phase = "aborted"
)

// Candidate summarizes one evaluated cutoff.
type Candidate struct {
	Value   int       `json:"value"`
	Samples []float64 `json:"samples"`
	Dropped int       `json:"dropped"`
	Mean    float64   `json:"mean"`
	Stdev   float64   `json:"stdev"`
	Score   float64   `json:"score"`
}

// Snapshot is a point-in-time copy of search progress.
type Snapshot struct {
	RunID      string        `json:"run_id,omitempty"`
	Phase      Phase         `json:"phase"`
	Initial    tuner.Bracket `json:"initial"`
	Current    tuner.Bracket `json:"current"`
	Tolerance  int           `json:"tolerance"`
	Rounds     int           `json:"rounds"`
	Candidates []Candidate   `json:"candidates"`
	Best       *Candidate    `json:"best,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at,omitempty"`
}

// Tracker maintains a Snapshot from search events. It implements
// tuner.Observer.
//
// Thread Safety: Safe for concurrent use. Observer callbacks come from the
// search goroutine while HTTP handlers read snapshots.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a tracker in PhaseIdle.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Phase: PhaseIdle}, now: time.Now}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.snap
	out.Candidates = make([]Candidate, len(t.snap.Candidates))
	copy(out.Candidates, t.snap.Candidates)
	if t.snap.Best != nil {
		best := *t.snap.Best
		out.Best = &best
	}
	return out
}

func summarize(r *tuner.CandidateResult) Candidate {
	return Candidate{
		Value:   r.Value,
		Samples: append([]float64(nil), r.Samples...),
		Dropped: r.Dropped,
		Mean:    r.Mean(),
		Stdev:   r.Stdev(),
		Score:   r.Score(),
	}
}

// OnStarted resets the snapshot for a new search.
func (t *Tracker) OnStarted(_ context.Context, start tuner.Start) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap = Snapshot{
		RunID:     start.RunID,
		Phase:     PhaseSearching,
		Initial:   start.Initial,
		Current:   start.Initial,
		Tolerance: start.Tolerance,
		StartedAt: start.StartedAt,
		UpdatedAt: t.now(),
	}
	return nil
}

// OnEvaluated appends a candidate and tracks the running best.
func (t *Tracker) OnEvaluated(_ context.Context, _ string, r *tuner.CandidateResult) error {
	c := summarize(r)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Candidates = append(t.snap.Candidates, c)
	if t.snap.Best == nil || c.Score < t.snap.Best.Score {
		best := c
		t.snap.Best = &best
	}
	t.snap.UpdatedAt = t.now()
	return nil
}

// OnRound records the narrowed bracket.
func (t *Tracker) OnRound(_ context.Context, _ string, r tuner.Round) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Current = r.After
	t.snap.Rounds = r.Index
	t.snap.UpdatedAt = t.now()
	return nil
}

// OnConverged records the final winner.
func (t *Tracker) OnConverged(_ context.Context, report *tuner.Report) error {
	best := summarize(report.Best)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = PhaseConverged
	t.snap.Current = report.Final
	t.snap.Best = &best
	t.snap.UpdatedAt = t.now()
	return nil
}

// OnAborted records the fatal error.
func (t *Tracker) OnAborted(_ context.Context, _ string, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Phase = PhaseAborted
	t.snap.Error = err.Error()
	t.snap.UpdatedAt = t.now()
	return nil
}
