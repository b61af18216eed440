// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package invocation

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("bumpdiff.invocation")
	meter  = otel.Meter("bumpdiff.invocation")
)

var (
	skippedLines metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		skippedLines, metricsErr = meter.Int64Counter(
			"invocation_log_skipped_lines_total",
			metric.WithDescription("Invocation log lines skipped as malformed"),
		)
	})
	return metricsErr
}

func recordSkippedLine(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	skippedLines.Add(ctx, 1)
}
