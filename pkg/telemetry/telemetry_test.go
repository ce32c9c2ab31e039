// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("CUTOFFTUNE_ENV", "ci")

	cfg := DefaultConfig()
	assert.Equal(t, "cutofftune", cfg.ServiceName)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, "ci", cfg.Environment)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // testing nil context handling
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoopExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	t.Run("trace", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "zipkin"
		_, err := Init(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})

	t.Run("metric", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TraceExporter = "none"
		cfg.MetricExporter = "statsd"
		_, err := Init(context.Background(), cfg)
		assert.ErrorIs(t, err, ErrUnknownExporter)
	})
}

func TestInit_StdoutExporters(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "stdout"
	cfg.Output = &out

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name": "op"`)
}

func TestMetricsHandler_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	counter, err := otel.Meter("test").Int64Counter("telemetry_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	handler := MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "telemetry_test_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInit_PrometheusTwice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	for i := 0; i < 2; i++ {
		shutdown, err := Init(context.Background(), cfg)
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Run("no span", func(t *testing.T) {
		assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))
	})

	t.Run("nil logger", func(t *testing.T) {
		assert.NotNil(t, LoggerWithTrace(context.Background(), nil))
	})

	t.Run("with span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		LoggerWithTrace(ctx, logger).Info("hello")
		assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
		assert.Contains(t, buf.String(), `"span_id"`)
	})
}

func TestGetEnvOr(t *testing.T) {
	t.Setenv("CUTOFFTUNE_TEST_VAR", "")
	assert.Equal(t, "fallback", getEnvOr("CUTOFFTUNE_TEST_VAR", "fallback"))

	t.Setenv("CUTOFFTUNE_TEST_VAR", "set")
	assert.Equal(t, "set", getEnvOr("CUTOFFTUNE_TEST_VAR", "fallback"))
}
