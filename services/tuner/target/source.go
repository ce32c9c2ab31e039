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
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

const (
	// DefaultFile is the source file holding the cutoff.
	DefaultFile = "main.cpp"

	// DefaultPattern matches the merge sort cutoff. The single capture group
	// holds the integer that gets replaced.
	DefaultPattern = `if \(size >= (\d+)\)`
)

var (
	// ErrInvalidPattern indicates the pattern does not have exactly one capture group.
	ErrInvalidPattern = errors.New("pattern must have exactly one capture group")

	// ErrWriteFailed indicates the source file could not be rewritten.
	ErrWriteFailed = errors.New("source write failed")

	// ErrNothingToRestore indicates Restore was called before any write.
	ErrNothingToRestore = errors.New("no backup to restore")
)

// =============================================================================
// SOURCE FILE TARGET
// =============================================================================

// SourceFile is a tuner.ConfigurationTarget backed by one source file.
//
// The first successful write keeps a copy of the original content so Restore
// can undo every change. Writes go to a temp file that is renamed over the
// original.
//
// Thread Safety: Safe for concurrent use. Not safe against other processes
// editing the same file.
type SourceFile struct {
	path    string
	pattern *regexp.Regexp
	logger  *slog.Logger

	mu       sync.Mutex
	original []byte
}

// NewSourceFile creates a target for the file at path.
//
// Inputs:
//
//	path - Source file containing the cutoff literal
//	pattern - Regular expression with exactly one capture group
//	logger - Logger for structured logging
//
// Outputs:
//
//	*SourceFile - Configured target
//	error - ErrInvalidPattern or a regexp compile error
func NewSourceFile(path, pattern string, logger *slog.Logger) (*SourceFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("%w: %q has %d", ErrInvalidPattern, pattern, re.NumSubexp())
	}
	return &SourceFile{
		path:    filepath.Clean(path),
		pattern: re,
		logger:  logger,
	}, nil
}

// Path returns the source file path.
func (s *SourceFile) Path() string {
	return s.path
}

// SetThreshold rewrites the captured literal to value.
//
// Description:
//
//	Reads the file, requires exactly one match and replaces the capture
//	group. Writing a value that is already present leaves the file
//	untouched, so repeated calls are idempotent.
//
// Outputs:
//
//	error - *tuner.ConfigurationPatternError if the pattern is missing or
//	        ambiguous, ErrWriteFailed on I/O failure
//
// Thread Safety: Uses internal locking.
func (s *SourceFile) SetThreshold(value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrWriteFailed, s.path, err)
	}

	start, end, err := s.locate(content)
	if err != nil {
		return err
	}

	literal := []byte(strconv.Itoa(value))
	if bytes.Equal(content[start:end], literal) {
		s.logger.Debug("Cutoff already set",
			slog.String("path", s.path),
			slog.Int("value", value),
		)
		return nil
	}

	updated := make([]byte, 0, len(content)+len(literal))
	updated = append(updated, content[:start]...)
	updated = append(updated, literal...)
	updated = append(updated, content[end:]...)

	if s.original == nil {
		s.original = content
	}
	if err := writeAtomic(s.path, updated); err != nil {
		s.logger.Error("Failed to write cutoff",
			slog.String("path", s.path),
			slog.Int("value", value),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Debug("Cutoff written",
		slog.String("path", s.path),
		slog.String("old", string(content[start:end])),
		slog.Int("new", value),
	)
	return nil
}

// Current returns the cutoff currently in the file.
func (s *SourceFile) Current() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		return 0, err
	}
	start, end, err := s.locate(content)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(content[start:end]))
}

// Restore writes back the content seen before the first change.
//
// Outputs:
//
//	error - ErrNothingToRestore if nothing was written, ErrWriteFailed on I/O failure
//
// Thread Safety: Uses internal locking.
func (s *SourceFile) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.original == nil {
		return ErrNothingToRestore
	}
	if err := writeAtomic(s.path, s.original); err != nil {
		return err
	}
	s.original = nil

	s.logger.Info("Restored source file", slog.String("path", s.path))
	return nil
}

// locate returns the byte range of the single capture group.
func (s *SourceFile) locate(content []byte) (int, int, error) {
	matches := s.pattern.FindAllSubmatchIndex(content, -1)
	if len(matches) != 1 {
		return 0, 0, &tuner.ConfigurationPatternError{
			Path:    s.path,
			Pattern: s.pattern.String(),
			Matches: len(matches),
		}
	}
	m := matches[0]
	if m[2] < 0 {
		// Optional group that did not participate.
		return 0, 0, &tuner.ConfigurationPatternError{Path: s.path, Pattern: s.pattern.String()}
	}
	return m[2], m[3], nil
}

// writeAtomic writes data to a temp file next to path and renames it over path.
func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tempPath := path + ".cutofftune.tmp"
	if err := os.WriteFile(tempPath, data, mode); err != nil {
		return fmt.Errorf("%w: write temp: %v", ErrWriteFailed, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: rename: %v", ErrWriteFailed, err)
	}
	return nil
}
