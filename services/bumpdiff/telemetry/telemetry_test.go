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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// resetGlobals restores no-op providers after a test installs real ones.
func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(noop.NewMeterProvider())
	})
}

func TestInit_None(t *testing.T) {
	p, err := Init(context.Background(), Config{Traces: ExporterNone, Metrics: ExporterNone})
	require.NoError(t, err)
	assert.Nil(t, p.MetricsHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: "jaeger"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{Metrics: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_PrometheusServesMetrics(t *testing.T) {
	resetGlobals(t)
	ctx := context.Background()
	p, err := Init(ctx, Config{ServiceName: "bumpdiff", Metrics: ExporterPrometheus})
	require.NoError(t, err)
	defer p.Shutdown(ctx)

	counter, err := otel.Meter("telemetry_test").Int64Counter("bumpdiff_test_events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NotNil(t, p.MetricsHandler())
	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bumpdiff_test_events")
}

func TestInit_StdoutTraces(t *testing.T) {
	resetGlobals(t)
	ctx := context.Background()
	var out bytes.Buffer
	p, err := Init(ctx, Config{ServiceName: "bumpdiff", Traces: ExporterStdout, Output: &out})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(ctx, "unit-of-work")
	span.End()
	require.NoError(t, p.Shutdown(ctx))

	assert.Contains(t, out.String(), "unit-of-work")
}
