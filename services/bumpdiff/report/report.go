// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report assembles, stores and renders the differences found between
// matched invocation pairs.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/compare"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/matching"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/valuegraph"
)

// Report holds one difference list per invocation pair. Element i belongs
// to pair i of the batch it was assembled from.
type Report [][]compare.Difference

// HasFindings reports whether any pair has at least one difference.
func (r Report) HasFindings() bool {
	for _, diffs := range r {
		if len(diffs) > 0 {
			return true
		}
	}
	return false
}

// Count returns the total number of differences.
func (r Report) Count() int {
	n := 0
	for _, diffs := range r {
		n += len(diffs)
	}
	return n
}

// CountByType returns the number of differences of each type.
func (r Report) CountByType() map[compare.DifferenceType]int {
	out := make(map[compare.DifferenceType]int)
	for _, diffs := range r {
		for _, d := range diffs {
			out[d.Type]++
		}
	}
	return out
}

// Option configures Assemble.
type Option func(*assembleOptions)

type assembleOptions struct {
	concurrency int
	logger      *slog.Logger
}

// WithConcurrency bounds the number of pairs compared at once. Values below
// one mean GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(o *assembleOptions) {
		o.concurrency = n
	}
}

// WithLogger sets the logger for skipped pairs. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *assembleOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Assemble compares the return values of every pair.
//
// Description:
//
//	Pairs are compared in parallel; each comparison owns its own state.
//	A pair with a missing side is compared against nothing and reports
//	one OTHER difference. A pair whose return value does not parse is
//	logged and contributes an empty list. The batch always completes.
//
// Inputs:
//   - ctx: Context for tracing and metrics.
//   - pairs: Matched pairs.
//   - opts: WithConcurrency, WithLogger.
//
// Outputs:
//   - Report: len(pairs) lists, index-aligned with pairs. Inner lists are
//     never nil.
func Assemble(ctx context.Context, pairs []matching.Pair, opts ...Option) Report {
	o := assembleOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = runtime.GOMAXPROCS(0)
	}

	ctx, span := tracer.Start(ctx, "report.Assemble",
		trace.WithAttributes(attribute.Int("report.pairs", len(pairs))))
	defer span.End()

	out := make(Report, len(pairs))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range pairs {
		g.Go(func() error {
			diffs, err := comparePair(pairs[i])
			if err != nil {
				o.logger.Warn("skipping pair with unparsable return value",
					slog.Int("pair", i),
					slog.String("error", err.Error()))
				diffs = make([]compare.Difference, 0)
			}
			out[i] = diffs
			return nil
		})
	}
	_ = g.Wait()

	counts := out.CountByType()
	recordDifferences(ctx, counts)
	span.SetAttributes(attribute.Int("report.differences", out.Count()))
	return out
}

func comparePair(p matching.Pair) ([]compare.Difference, error) {
	var pre, post *valuegraph.Node
	var err error
	if p.Pre != nil {
		if pre, err = parseReturn(p.Pre.ReturnValue); err != nil {
			return nil, fmt.Errorf("pre return value: %w", err)
		}
	}
	if p.Post != nil {
		if post, err = parseReturn(p.Post.ReturnValue); err != nil {
			return nil, fmt.Errorf("post return value: %w", err)
		}
	}
	return compare.Compare(pre, post), nil
}

// parseReturn parses a serialized return value. An empty payload stands for
// a call that returned nothing.
func parseReturn(text string) (*valuegraph.Node, error) {
	if text == "" {
		return nil, nil
	}
	return valuegraph.Parse(text)
}
