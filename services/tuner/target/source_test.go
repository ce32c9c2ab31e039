// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

const mergeSortSource = `#include <cstdio>
void merge_sort(int *a, int size) {
    if (size >= 4096) {
        #pragma omp task
        merge_sort(a, size / 2);
    } else {
        sequential_sort(a, size);
    }
}
`

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readSource(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// SOURCE FILE TESTS
// =============================================================================

func TestNewSourceFile(t *testing.T) {
	t.Run("default pattern", func(t *testing.T) {
		_, err := NewSourceFile("main.cpp", DefaultPattern, nil)
		assert.NoError(t, err)
	})

	t.Run("no capture group", func(t *testing.T) {
		_, err := NewSourceFile("main.cpp", `size >= \d+`, nil)
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("two capture groups", func(t *testing.T) {
		_, err := NewSourceFile("main.cpp", `(size) >= (\d+)`, nil)
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("bad regexp", func(t *testing.T) {
		_, err := NewSourceFile("main.cpp", `(`, nil)
		assert.Error(t, err)
	})
}

func TestSourceFile_SetThreshold(t *testing.T) {
	path := writeSource(t, mergeSortSource)
	src, err := NewSourceFile(path, DefaultPattern, nil)
	require.NoError(t, err)

	require.NoError(t, src.SetThreshold(50500))
	assert.Contains(t, readSource(t, path), "if (size >= 50500) {")
	assert.NotContains(t, readSource(t, path), "4096")

	current, err := src.Current()
	require.NoError(t, err)
	assert.Equal(t, 50500, current)

	t.Run("idempotent", func(t *testing.T) {
		before := readSource(t, path)
		require.NoError(t, src.SetThreshold(50500))
		require.NoError(t, src.SetThreshold(50500))
		assert.Equal(t, before, readSource(t, path))
	})

	t.Run("only the literal changes", func(t *testing.T) {
		require.NoError(t, src.SetThreshold(7))
		want := mergeSortSource[:len("#include <cstdio>\nvoid merge_sort(int *a, int size) {\n    if (size >= ")] + "7" +
			mergeSortSource[len("#include <cstdio>\nvoid merge_sort(int *a, int size) {\n    if (size >= 4096"):]
		assert.Equal(t, want, readSource(t, path))
	})

	t.Run("no temp file left behind", func(t *testing.T) {
		_, err := os.Stat(path + ".cutofftune.tmp")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestSourceFile_PatternErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		matches int
		want    error
	}{
		{"missing", "int main() { return 0; }\n", 0, tuner.ErrPatternNotFound},
		{"ambiguous", "if (size >= 1) {}\nif (size >= 2) {}\n", 2, tuner.ErrPatternAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSource(t, tt.content)
			src, err := NewSourceFile(path, DefaultPattern, nil)
			require.NoError(t, err)

			err = src.SetThreshold(100)

			var pe *tuner.ConfigurationPatternError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.matches, pe.Matches)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.content, readSource(t, path), "file untouched")
		})
	}
}

func TestSourceFile_Restore(t *testing.T) {
	path := writeSource(t, mergeSortSource)
	src, err := NewSourceFile(path, DefaultPattern, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, src.Restore(), ErrNothingToRestore)

	require.NoError(t, src.SetThreshold(1000))
	require.NoError(t, src.SetThreshold(2000))
	require.NoError(t, src.Restore())

	assert.Equal(t, mergeSortSource, readSource(t, path))
}

func TestSourceFile_MissingFile(t *testing.T) {
	src, err := NewSourceFile(filepath.Join(t.TempDir(), "nope.cpp"), DefaultPattern, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, src.SetThreshold(1), ErrWriteFailed)
}
