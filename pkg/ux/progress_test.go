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
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

func candidate(value int, samples ...float64) *tuner.CandidateResult {
	return &tuner.CandidateResult{
		Value:         value,
		Samples:       samples,
		Requested:     len(samples),
		PenaltyWeight: tuner.DefaultPenaltyWeight,
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_PlainPrefixes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Title("hidden")
	p.Success("done")
	p.Warning("careful")
	p.Error("broken")
	p.Info("fyi")

	assert.Equal(t, "OK: done\nWARN: careful\nERROR: broken\nfyi\n", buf.String())
}

func TestPrinter_RichUsesIcons(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeRich)

	p.Success("done")
	p.Error("broken")
	p.Box("Title", "line one")

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "╭")
}

func TestPrinter_UnknownModeIsPlain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, Mode("sparkly"))
	assert.Equal(t, ModePlain, p.Mode())
}

func TestPrinter_TablePlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Table([]string{"run", "best"}, [][]string{{"ab12cd34", "4096"}})

	assert.Equal(t, "run\tbest\nab12cd34\t4096\n", buf.String())
}

func TestPrinter_TableRich(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeRich)

	p.Table([]string{"run", "best"}, [][]string{{"ab12cd34", "4096"}})

	out := buf.String()
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "ab12cd34")
	assert.Contains(t, out, "4096")
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeRich, ParseMode("rich", nil))
	assert.Equal(t, ModePlain, ParseMode("PLAIN", nil))
	assert.Equal(t, ModePlain, ParseMode("auto", nil), "nil file is never a terminal")
}

func TestDetectMode_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModePlain, DetectMode(os.Stdout))
}

func TestDetectMode_RegularFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, ModePlain, DetectMode(f))
}

// =============================================================================
// Progress Tests
// =============================================================================

func TestProgress_PlainLines(t *testing.T) {
	var buf bytes.Buffer
	o := NewProgress(NewPrinter(&buf, ModePlain))
	ctx := context.Background()

	require.NoError(t, o.OnStarted(ctx, tuner.Start{
		RunID:       "ab12cd34",
		Initial:     tuner.Bracket{Low: 0, High: 16},
		Tolerance:   4,
		RepeatCount: 2,
	}))
	r := candidate(8, 1.0, 1.0)
	r.Dropped = 1
	require.NoError(t, o.OnEvaluated(ctx, "ab12cd34", r))
	require.NoError(t, o.OnRound(ctx, "ab12cd34", tuner.Round{
		Index:     1,
		Before:    tuner.Bracket{Low: 0, High: 16},
		Mid:       8,
		BestValue: 8,
		BestScore: 1,
		After:     tuner.Bracket{Low: 4, High: 12},
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "search run=ab12cd34 range=[0, 16] tolerance=4 repeat=2", string(lines[0]))
	assert.Equal(t, "candidate value=8 times=[1.0000,1.0000] mean=1.000000 stdev=0.000000 score=1.000000 dropped=1", string(lines[1]))
	assert.Equal(t, "round index=1 range=[0, 16] mid=8 best=8 score=1.000000 next=[4, 12]", string(lines[2]))
}

func TestProgress_ConvergedBanner(t *testing.T) {
	best := candidate(8, 1.0, 3.0)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := &tuner.Report{
		RunID:      "ab12cd34",
		Final:      tuner.Bracket{Low: 6, High: 10},
		Best:       best,
		Results:    []*tuner.CandidateResult{best},
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}

	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewProgress(NewPrinter(&buf, ModePlain)).OnConverged(context.Background(), report))
		assert.Contains(t, buf.String(), "optimal value=8 mean=2.000000")
		assert.Contains(t, buf.String(), "evaluations=1 rounds=0")
	})

	t.Run("rich", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewProgress(NewPrinter(&buf, ModeRich)).OnConverged(context.Background(), report))
		assert.Contains(t, buf.String(), "Optimal cutoff: 8")
		assert.Contains(t, buf.String(), "2.0000s ± 1.4142s")
	})
}

func TestProgress_NilBestIsSilent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewProgress(NewPrinter(&buf, ModeRich)).OnConverged(context.Background(), &tuner.Report{}))
	assert.Empty(t, buf.String())
}

func TestProgress_Aborted(t *testing.T) {
	var buf bytes.Buffer
	o := NewProgress(NewPrinter(&buf, ModePlain))

	require.NoError(t, o.OnAborted(context.Background(), "ab12cd34", errors.New("build failed")))
	assert.Equal(t, "ERROR: search ab12cd34 aborted: build failed\n", buf.String())
}
