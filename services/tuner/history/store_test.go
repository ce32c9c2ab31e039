// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig(), "merge-sort")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func candidate(value, order int, samples ...float64) *tuner.CandidateResult {
	return &tuner.CandidateResult{
		Value:         value,
		Samples:       samples,
		Requested:     len(samples),
		Order:         order,
		PenaltyWeight: tuner.DefaultPenaltyWeight,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{}, "x")
	assert.ErrorIs(t, err, ErrPathRequired)
}

func TestStore_RecordsConvergedRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.OnStarted(ctx, tuner.Start{
		RunID: "abcd1234", Initial: tuner.Bracket{Low: 0, High: 16}, Tolerance: 4, RepeatCount: 3, StartedAt: start,
	}))
	require.NoError(t, s.OnEvaluated(ctx, "abcd1234", candidate(0, 0, 3.0)))
	require.NoError(t, s.OnEvaluated(ctx, "abcd1234", candidate(8, 1, 1.0, 1.2)))
	require.NoError(t, s.OnEvaluated(ctx, "abcd1234", candidate(16, 2, 2.0)))
	require.NoError(t, s.OnRound(ctx, "abcd1234", tuner.Round{
		Index: 1, Before: tuner.Bracket{Low: 0, High: 16}, Mid: 8, BestValue: 8, After: tuner.Bracket{Low: 4, High: 12},
	}))

	running, err := s.GetRun("abcd1234")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, running.Run.Status)
	assert.Equal(t, 3, running.Run.Evaluations)
	assert.Equal(t, tuner.Bracket{Low: 4, High: 12}, running.Run.Final)

	best := candidate(8, 1, 1.0, 1.2)
	require.NoError(t, s.OnConverged(ctx, &tuner.Report{
		RunID:      "abcd1234",
		Final:      tuner.Bracket{Low: 6, High: 10},
		Best:       best,
		Results:    []*tuner.CandidateResult{candidate(0, 0, 3.0), best, candidate(16, 2, 2.0)},
		Rounds:     make([]tuner.Round, 2),
		FinishedAt: start.Add(time.Minute),
	}))

	detail, err := s.GetRun("abcd1234")
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, detail.Run.Status)
	assert.Equal(t, "merge-sort", detail.Run.Task)
	assert.Equal(t, 8, detail.Run.BestValue)
	assert.InDelta(t, best.Score(), detail.Run.BestScore, 1e-9)
	assert.Equal(t, 2, detail.Run.Rounds)

	require.Len(t, detail.Candidates, 3)
	for i, c := range detail.Candidates {
		assert.Equal(t, i, c.Order, "candidates come back in evaluation order")
	}
	assert.Equal(t, []float64{1.0, 1.2}, detail.Candidates[1].Samples)
	require.Len(t, detail.Rounds, 1)
	assert.Equal(t, 8, detail.Rounds[0].BestValue)
}

func TestStore_RecordsAbortedRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.OnStarted(ctx, tuner.Start{RunID: "r1", StartedAt: time.Now()}))
	require.NoError(t, s.OnAborted(ctx, "r1", errors.New("build failed for cutoff 8: exit code 2")))

	detail, err := s.GetRun("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, detail.Run.Status)
	assert.Contains(t, detail.Run.Error, "exit code 2")
	assert.False(t, detail.Run.FinishedAt.IsZero())
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.OnEvaluated(context.Background(), "missing", candidate(1, 0, 1))
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.OnStarted(ctx, tuner.Start{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "old", runs[2].RunID)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := Open(cfg, "merge-sort")
	require.NoError(t, err)
	require.NoError(t, s.OnStarted(context.Background(), tuner.Start{RunID: "keep", StartedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(cfg, "merge-sort")
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "keep", runs[0].RunID)
}

func TestStore_ImplementsObserver(t *testing.T) {
	var _ tuner.Observer = (*Store)(nil)
}
