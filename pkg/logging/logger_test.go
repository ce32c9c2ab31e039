// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"trace", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_ConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Output: &buf, Service: "cutofftune"})
	require.NoError(t, err)
	defer logger.Close()

	logger.Slog().Info("hidden")
	logger.Slog().Warn("shown", "value", 4096)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "value=4096")
	assert.Contains(t, out, "service=cutofftune")
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{JSON: true, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Info("cutoff evaluated", "score", 1.5)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cutoff evaluated", rec["msg"])
	assert.Equal(t, 1.5, rec["score"])
}

func TestNew_FileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, LogDir: dir, Service: "tune", Output: &console})
	require.NoError(t, err)

	logger.Slog().Debug("to both", "round", 1)
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	path := logger.FilePath()
	assert.True(t, strings.HasPrefix(filepath.Base(path), "tune_"))
	assert.Contains(t, console.String(), "to both")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var rec map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "to both", rec["msg"])
	assert.Equal(t, "tune", rec["service"])
}

func TestNew_QuietWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &buf})
	require.NoError(t, err)

	logger.Slog().Error("dropped")
	assert.Empty(t, buf.String())
}

func TestNew_BadLogDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := New(Config{LogDir: filepath.Join(file, "sub")})
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".cutofftune"), expandPath("~/.cutofftune"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
