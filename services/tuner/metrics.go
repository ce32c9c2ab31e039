// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tuner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for tuner operations.
var (
	tracer = otel.Tracer("cutofftune.tuner")
	meter  = otel.Meter("cutofftune.tuner")
)

// Metrics for tuner operations.
var (
	evaluationLatency metric.Float64Histogram
	evaluationTotal   metric.Int64Counter
	samplesDropped    metric.Int64Counter
	roundsTotal       metric.Int64Counter
	candidateScore    metric.Float64Histogram
	searchLatency     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		evaluationLatency, err = meter.Float64Histogram(
			"cutofftune_evaluation_duration_seconds",
			metric.WithDescription("Duration of one set/build/execute cycle"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evaluationTotal, err = meter.Int64Counter(
			"cutofftune_evaluations_total",
			metric.WithDescription("Total number of candidate evaluations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		samplesDropped, err = meter.Int64Counter(
			"cutofftune_samples_dropped_total",
			metric.WithDescription("Total number of dropped timing samples"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		roundsTotal, err = meter.Int64Counter(
			"cutofftune_rounds_total",
			metric.WithDescription("Total number of bracket narrowing rounds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		candidateScore, err = meter.Float64Histogram(
			"cutofftune_candidate_score_seconds",
			metric.WithDescription("Score of evaluated candidates"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		searchLatency, err = meter.Float64Histogram(
			"cutofftune_search_duration_seconds",
			metric.WithDescription("Duration of complete searches"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startSearchSpan creates a span for a search run.
func startSearchSpan(ctx context.Context, runID string, b Bracket, tolerance int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Search.Run",
		trace.WithAttributes(
			attribute.String("tuner.run_id", runID),
			attribute.Int("tuner.min", b.Low),
			attribute.Int("tuner.max", b.High),
			attribute.Int("tuner.tolerance", tolerance),
		),
	)
}

// startEvaluateSpan creates a span for one candidate evaluation.
func startEvaluateSpan(ctx context.Context, value, repeat int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "BenchmarkRunner.Evaluate",
		trace.WithAttributes(
			attribute.Int("tuner.value", value),
			attribute.Int("tuner.repeat", repeat),
		),
	)
}

// setSearchSpanResult sets the result attributes on a search span.
func setSearchSpanResult(span trace.Span, best *CandidateResult, rounds, evaluations int) {
	attrs := []attribute.KeyValue{
		attribute.Int("tuner.rounds", rounds),
		attribute.Int("tuner.evaluations", evaluations),
	}
	if best != nil {
		attrs = append(attrs,
			attribute.Int("tuner.best_value", best.Value),
			attribute.Float64("tuner.best_score", best.Score()),
		)
	}
	span.SetAttributes(attrs...)
}

// addRoundEvent adds a narrowing event to the span.
func addRoundEvent(span trace.Span, r Round) {
	span.AddEvent("round", trace.WithAttributes(
		attribute.Int("index", r.Index),
		attribute.Int("low", r.Before.Low),
		attribute.Int("high", r.Before.High),
		attribute.Int("best", r.BestValue),
		attribute.Int("new_low", r.After.Low),
		attribute.Int("new_high", r.After.High),
	))
}

// recordEvaluation records metrics for one candidate evaluation.
func recordEvaluation(ctx context.Context, duration time.Duration, result *CandidateResult, dropped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))

	evaluationLatency.Record(ctx, duration.Seconds(), attrs)
	evaluationTotal.Add(ctx, 1, attrs)
	if dropped > 0 {
		samplesDropped.Add(ctx, int64(dropped))
	}
	if success && result != nil {
		candidateScore.Record(ctx, result.Score())
	}
}

// recordRound records a narrowing round.
func recordRound(ctx context.Context, branch string) {
	if err := initMetrics(); err != nil {
		return
	}
	roundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}

// recordSearch records metrics for a complete search.
func recordSearch(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	searchLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}
