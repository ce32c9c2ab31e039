// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/cutofftune/services/tuner"
)

const (
	// SampleMeasurement holds one point per accepted timing sample.
	SampleMeasurement = "cutoff_samples"

	// SearchMeasurement holds one point per converged search.
	SearchMeasurement = "cutoff_searches"
)

// ErrInfluxURLRequired indicates an influx sink without a server URL.
var ErrInfluxURLRequired = errors.New("influx url is required")

// InfluxConfig configures the time-series sink.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Task is written as the "task" tag.
	Task string
}

// pointWriter is the subset of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink streams samples to InfluxDB as the search runs.
// It implements tuner.Observer.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	tuner.NopObserver

	writer pointWriter
	close  func()
	task   string
	logger *slog.Logger
}

// NewInfluxSink connects a blocking write API for cfg.
func NewInfluxSink(cfg InfluxConfig, logger *slog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, ErrInfluxURLRequired
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	sink := newInfluxSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Task, logger)
	sink.close = client.Close
	return sink, nil
}

func newInfluxSink(w pointWriter, task string, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &InfluxSink{writer: w, close: func() {}, task: task, logger: logger}
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.close()
}

// OnEvaluated writes one point per accepted sample.
//
// Samples of one candidate share tags, so each point is offset by its run
// index in nanoseconds to keep them distinct.
func (s *InfluxSink) OnEvaluated(ctx context.Context, runID string, r *tuner.CandidateResult) error {
	ts := r.EvaluatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	points := make([]*write.Point, 0, len(r.Samples))
	for i, secs := range r.Samples {
		p := influxdb2.NewPointWithMeasurement(SampleMeasurement).
			AddTag("task", s.task).
			AddTag("run_id", runID).
			AddTag("cutoff", strconv.Itoa(r.Value)).
			AddField("seconds", secs).
			AddField("run", i).
			SetTime(ts.Add(time.Duration(i)))
		points = append(points, p)
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return err
	}
	s.logger.Debug("Wrote samples to influx",
		slog.Int("value", r.Value),
		slog.Int("points", len(points)),
	)
	return nil
}

// OnConverged writes the winner of the search.
func (s *InfluxSink) OnConverged(ctx context.Context, report *tuner.Report) error {
	p := influxdb2.NewPointWithMeasurement(SearchMeasurement).
		AddTag("task", s.task).
		AddTag("run_id", report.RunID).
		AddField("best_cutoff", report.Best.Value).
		AddField("best_score", report.Best.Score()).
		AddField("best_mean", report.Best.Mean()).
		AddField("best_stdev", report.Best.Stdev()).
		AddField("evaluations", len(report.Results)).
		AddField("rounds", len(report.Rounds)).
		AddField("duration_seconds", report.Duration().Seconds()).
		SetTime(report.FinishedAt)
	return s.writer.WritePoint(ctx, p)
}
