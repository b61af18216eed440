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
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stats summarizes one log read.
type Stats struct {
	Lines    int
	Parsed   int
	Skipped  int
	Filtered int
}

// Option configures ReadLog.
type Option func(*readOptions)

type readOptions struct {
	logger *slog.Logger
	target *Target
}

// WithLogger sets the logger used for skipped lines. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *readOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTarget keeps only invocations of the given target method.
func WithTarget(t Target) Option {
	return func(o *readOptions) {
		o.target = &t
	}
}

// ReadLog reads every invocation recorded in a log file.
//
// Description:
//
//	Lines are decoded in file order. Empty and malformed lines are skipped
//	and logged. A missing or unreadable file yields no invocations and a
//	warning; it is never an error.
//
// Inputs:
//   - ctx: Context for tracing and cancellation. Reading stops early, with
//     what was read so far, once ctx is done.
//   - path: Path to the newline-delimited invocation log.
//   - opts: WithLogger, WithTarget.
//
// Outputs:
//   - []MethodInvocation: Decoded invocations in file order. Never nil.
//   - Stats: Line accounting for the read.
func ReadLog(ctx context.Context, path string, opts ...Option) ([]MethodInvocation, Stats) {
	o := readOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := tracer.Start(ctx, "invocation.ReadLog",
		trace.WithAttributes(attribute.String("invocation.path", path)))
	defer span.End()

	var stats Stats
	out := make([]MethodInvocation, 0)

	f, err := os.Open(path)
	if err != nil {
		o.logger.Warn("invocation log unavailable, treating as empty",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return out, stats
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		if ctx.Err() != nil {
			o.logger.Warn("invocation log read cancelled",
				slog.String("path", path),
				slog.Int("lines", stats.Lines))
			break
		}

		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			stats.Lines++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				out = o.accept(ctx, out, line, path, &stats)
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				o.logger.Warn("invocation log read failed",
					slog.String("path", path),
					slog.Int("line", stats.Lines),
					slog.String("error", readErr.Error()))
			}
			break
		}
	}

	span.SetAttributes(
		attribute.Int("invocation.lines", stats.Lines),
		attribute.Int("invocation.parsed", stats.Parsed),
		attribute.Int("invocation.skipped", stats.Skipped),
	)
	return out, stats
}

func (o *readOptions) accept(ctx context.Context, out []MethodInvocation, line []byte, path string, stats *Stats) []MethodInvocation {
	inv, err := ParseLine(line)
	if err != nil {
		stats.Skipped++
		recordSkippedLine(ctx)
		o.logger.Warn("skipping malformed invocation line",
			slog.String("path", path),
			slog.Int("line", stats.Lines),
			slog.String("error", err.Error()))
		return out
	}
	if o.target != nil && !o.target.Matches(&inv) {
		stats.Filtered++
		return out
	}
	stats.Parsed++
	return append(out, inv)
}
