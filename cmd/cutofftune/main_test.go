// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cutofftune/cmd/cutofftune/config"
	"github.com/AleutianAI/cutofftune/services/tuner/history"
)

const mergeSortSource = `void merge_sort(int *a, int size) {
    if (size >= 100) {
        spawn_halves(a, size);
    }
}
`

// runScript reports |cutoff - 6| + 1 seconds for the cutoff in main.cpp.
const runScript = `#!/bin/sh
v=$(sed -n 's/.*size >= \([0-9]*\).*/\1/p' main.cpp)
d=$((v - 6))
if [ "$d" -lt 0 ]; then d=$((-d)); fi
echo "took $((d + 1)).0 sec"
`

type fixture struct {
	dir        string
	configPath string
	sourcePath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "cutofftune.yaml"),
		sourcePath: filepath.Join(dir, "main.cpp"),
	}
	require.NoError(t, os.WriteFile(f.sourcePath, []byte(mergeSortSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(runScript), 0755))

	cfg := config.Default()
	cfg.Task.Dir = dir
	cfg.Task.Workers = 4
	cfg.Build.Command = "true"
	cfg.Run.Command = "sh run.sh"
	cfg.Search.Min = 0
	cfg.Search.Max = 16
	cfg.Search.Tolerance = 4
	cfg.Search.Repeat = 2
	cfg.History.Path = filepath.Join(dir, "history")
	cfg.Output.Mode = "plain"
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "none"
	require.NoError(t, config.Write(f.configPath, cfg, false))
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", f.configPath, "--log-level", "warn"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (f *fixture) source(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.sourcePath)
	require.NoError(t, err)
	return string(data)
}

func TestTune_EndToEnd(t *testing.T) {
	f := newFixture(t)
	csvPath := filepath.Join(f.dir, "out", "samples.csv")
	jsonPath := filepath.Join(f.dir, "out", "report.json")

	out, err := f.run(t, "tune", "--csv", csvPath, "--json", jsonPath)
	require.NoError(t, err)

	assert.Contains(t, out, "search run=")
	assert.Contains(t, out, "round index=1 range=[0, 16] mid=8 best=8")
	assert.Contains(t, out, "round index=2 range=[4, 12] mid=8 best=8")
	assert.Contains(t, out, "optimal value=8 mean=3.000000")
	assert.Contains(t, f.source(t), "if (size >= 8)")

	rows := readCSV(t, csvPath)
	require.Len(t, rows, 1+5*2, "header plus two samples for each of 0, 8, 16, 4, 12")
	assert.Equal(t, []string{"merge-sort", "parallel", "4", "large", "0", "0", "7"}, rows[1])

	var doc struct {
		Best struct {
			Value int     `json:"value"`
			Score float64 `json:"score"`
		} `json:"best"`
	}
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 8, doc.Best.Value)
	assert.Equal(t, 3.0, doc.Best.Score)

	out, err = f.run(t, "history", "list", "--json")
	require.NoError(t, err)
	var runs []history.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusConverged, runs[0].Status)
	assert.Equal(t, 8, runs[0].BestValue)
	assert.Equal(t, 5, runs[0].Evaluations)

	out, err = f.run(t, "history", "show", runs[0].RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+runs[0].RunID)
	assert.Contains(t, out, "CUTOFF")
}

func TestTune_NoApplyLeavesLastValue(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "tune", "--no-apply", "--no-history")
	require.NoError(t, err)

	// 12 is the last value evaluated.
	assert.Contains(t, f.source(t), "if (size >= 12)")
	_, statErr := os.Stat(filepath.Join(f.dir, "history"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTune_InvalidRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "tune", "--min", "10", "--max", "5")
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Equal(t, mergeSortSource, f.source(t))
}

func TestTune_BuildFailureAborts(t *testing.T) {
	f := newFixture(t)
	cfg, err := config.Load(f.configPath, true)
	require.NoError(t, err)
	cfg.Build.Command = "false"
	require.NoError(t, config.Write(f.configPath, *cfg, true))

	_, err = f.run(t, "tune")
	require.Error(t, err)

	out, err := f.run(t, "history", "list", "--json")
	require.NoError(t, err)
	var runs []history.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusAborted, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestEvaluate_RestoresSource(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "evaluate", "12", "--repeat", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "candidate value=12 times=[7.0000,7.0000,7.0000]")
	assert.Equal(t, mergeSortSource, f.source(t))
}

func TestEvaluate_Keep(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "evaluate", "6", "--keep")
	require.NoError(t, err)
	assert.Contains(t, f.source(t), "if (size >= 6)")
}

func TestEvaluate_NotAnInteger(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "evaluate", "big")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cutofftune.yaml")
	f := &fixture{dir: dir, configPath: path}

	out, err := f.run(t, "--output", "plain", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "OK: configuration written to")

	_, err = f.run(t, "config", "init")
	assert.ErrorIs(t, err, config.ErrExists)

	out, err = f.run(t, "--output", "plain", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	out, err = f.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "command: make clean build")
}

func TestMissingExplicitConfig(t *testing.T) {
	f := &fixture{configPath: filepath.Join(t.TempDir(), "absent.yaml")}

	_, err := f.run(t, "config", "validate")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}
