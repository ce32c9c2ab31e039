// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history keeps an append-only journal of cutoff searches in BadgerDB.
//
// The journal is an audit trail for the history command. Searches never read
// it back as a result cache.
//
// Key layout:
//
//	run/<run-id>                 -> RunRecord
//	cand/<run-id>/<order:06d>    -> tuner.CandidateResult
//	round/<run-id>/<index:04d>   -> tuner.Round
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

var (
	// ErrRunNotFound indicates no run with the given ID is recorded.
	ErrRunNotFound = errors.New("run not found")

	// ErrPathRequired indicates a persistent store was opened without a path.
	ErrPathRequired = errors.New("path is required for persistent history")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the history store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the journal in RAM only. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	// Default: true
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	// Default: 10 minutes
	GCInterval time.Duration

	// Logger receives BadgerDB's internal logs. Nil silences them.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 10 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// RECORDS
// =============================================================================

// Status is the lifecycle status of a recorded run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusConverged Status = "converged"
	StatusAborted   Status = "aborted"
)

// RunRecord summarizes one search.
type RunRecord struct {
	RunID       string        `json:"run_id"`
	Task        string        `json:"task,omitempty"`
	Status      Status        `json:"status"`
	Initial     tuner.Bracket `json:"initial"`
	Final       tuner.Bracket `json:"final"`
	Tolerance   int           `json:"tolerance"`
	RepeatCount int           `json:"repeat_count"`
	BestValue   int           `json:"best_value,omitempty"`
	BestScore   float64       `json:"best_score,omitempty"`
	Evaluations int           `json:"evaluations"`
	Rounds      int           `json:"rounds"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
}

// RunDetail is a run with its candidates and rounds.
type RunDetail struct {
	Run        RunRecord                `json:"run"`
	Candidates []*tuner.CandidateResult `json:"candidates"`
	Rounds     []tuner.Round            `json:"rounds"`
}

func runKey(runID string) []byte {
	return []byte("run/" + runID)
}

func candidateKey(runID string, order int) []byte {
	return []byte(fmt.Sprintf("cand/%s/%06d", runID, order))
}

func roundKey(runID string, index int) []byte {
	return []byte(fmt.Sprintf("round/%s/%04d", runID, index))
}

// =============================================================================
// STORE
// =============================================================================

// Store is the run journal. It implements tuner.Observer.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	task   string
	logger *slog.Logger

	stopGC chan struct{}
	gcDone chan struct{}
}

// Open opens the journal.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//	task - Task label stored on every run (e.g. "merge-sort")
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close().
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config, task string) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrPathRequired
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, task: task, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("History GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// updateRun applies fn to the stored record inside one transaction.
func (s *Store) updateRun(runID string, fn func(*RunRecord)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec RunRecord
		if err := getJSON(txn, runKey(runID), &rec); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return err
		}
		fn(&rec)
		return putJSON(txn, runKey(runID), &rec)
	})
}

// =============================================================================
// OBSERVER
// =============================================================================

// OnStarted records a new running search.
func (s *Store) OnStarted(_ context.Context, start tuner.Start) error {
	rec := RunRecord{
		RunID:       start.RunID,
		Task:        s.task,
		Status:      StatusRunning,
		Initial:     start.Initial,
		Final:       start.Initial,
		Tolerance:   start.Tolerance,
		RepeatCount: start.RepeatCount,
		StartedAt:   start.StartedAt,
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, runKey(start.RunID), &rec)
	})
}

// OnEvaluated appends a candidate to the run.
func (s *Store) OnEvaluated(_ context.Context, runID string, r *tuner.CandidateResult) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, candidateKey(runID, r.Order), r)
	})
	if err != nil {
		return err
	}
	return s.updateRun(runID, func(rec *RunRecord) {
		rec.Evaluations++
	})
}

// OnRound appends a round to the run.
func (s *Store) OnRound(_ context.Context, runID string, r tuner.Round) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, roundKey(runID, r.Index), r)
	})
	if err != nil {
		return err
	}
	return s.updateRun(runID, func(rec *RunRecord) {
		rec.Rounds = r.Index
		rec.Final = r.After
	})
}

// OnConverged marks the run converged with its winner.
func (s *Store) OnConverged(_ context.Context, report *tuner.Report) error {
	return s.updateRun(report.RunID, func(rec *RunRecord) {
		rec.Status = StatusConverged
		rec.Final = report.Final
		rec.BestValue = report.Best.Value
		rec.BestScore = report.Best.Score()
		rec.Evaluations = len(report.Results)
		rec.Rounds = len(report.Rounds)
		rec.FinishedAt = report.FinishedAt
	})
}

// OnAborted marks the run aborted with the fatal error.
func (s *Store) OnAborted(_ context.Context, runID string, cause error) error {
	return s.updateRun(runID, func(rec *RunRecord) {
		rec.Status = StatusAborted
		rec.Error = cause.Error()
		rec.FinishedAt = time.Now()
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// ListRuns returns recorded runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec RunRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			runs = append(runs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun returns a run with its candidates (evaluation order) and rounds.
func (s *Store) GetRun(runID string) (*RunDetail, error) {
	detail := &RunDetail{}
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, runKey(runID), &detail.Run); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("cand/" + runID + "/")
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var r tuner.CandidateResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				it.Close()
				return err
			}
			detail.Candidates = append(detail.Candidates, &r)
		}
		it.Close()

		opts.Prefix = []byte("round/" + runID + "/")
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var r tuner.Round
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			detail.Rounds = append(detail.Rounds, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
