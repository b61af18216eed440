// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matching

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("bumpdiff.matching")
	meter  = otel.Meter("bumpdiff.matching")
)

var (
	pairsTotal    metric.Int64Counter
	groupFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		pairsTotal, err = meter.Int64Counter(
			"matching_pairs_total",
			metric.WithDescription("Invocation pairs produced, by whether the post side was found"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		groupFailures, err = meter.Int64Counter(
			"matching_group_failures_total",
			metric.WithDescription("Scope groups dropped because argument matching failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPairs(ctx context.Context, pairs []Pair) {
	if err := initMetrics(); err != nil {
		return
	}
	var matched, unmatched int64
	for _, p := range pairs {
		if p.Post != nil {
			matched++
		} else {
			unmatched++
		}
	}
	pairsTotal.Add(ctx, matched, metric.WithAttributes(attribute.Bool("matched", true)))
	pairsTotal.Add(ctx, unmatched, metric.WithAttributes(attribute.Bool("matched", false)))
}

func recordGroupFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	groupFailures.Add(ctx, 1)
}
