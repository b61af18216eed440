// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
)

var (
	tracer = otel.Tracer("bumpdiff.report")
	meter  = otel.Meter("bumpdiff.report")
)

var (
	differencesTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		differencesTotal, metricsErr = meter.Int64Counter(
			"report_differences_total",
			metric.WithDescription("Differences found between matched invocations, by type"),
		)
	})
	return metricsErr
}

func recordDifferences(ctx context.Context, counts map[compare.DifferenceType]int) {
	if err := initMetrics(); err != nil {
		return
	}
	for typ, n := range counts {
		differencesTotal.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("type", string(typ))))
	}
}
