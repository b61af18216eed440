// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package check runs one end-to-end semantic breaking change check: extract
// both images, match their invocations, compare the pairs and persist the
// report.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/matching"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/report"
)

var tracer = otel.Tracer("bumpdiff.check")

// ErrNoExtractor indicates Run was called on a Checker built without an
// extractor.
var ErrNoExtractor = errors.New("no image extractor configured")

// Extractor produces the extracted run directories of an update.
//
// *container.Extractor implements it.
type Extractor interface {
	ExtractPair(ctx context.Context, preImage, postImage string) (preDir, postDir string, err error)
}

// Request identifies one update to check.
type Request struct {
	// ID names the run and its report file. Generated when empty.
	ID        string
	PreImage  string
	PostImage string
}

// Result is the outcome of a check.
type Result struct {
	ID     string
	Pairs  []matching.Pair
	Report report.Report

	// Found reports whether any pair has a difference.
	Found bool

	// OutputPath is the written report, or "" when nothing was found.
	OutputPath string
}

// Checker wires extraction, matching and comparison together.
type Checker struct {
	outputDir   string
	extractor   Extractor
	matcher     *matching.Matcher
	concurrency int
	logger      *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithExtractor sets the image extractor Run uses.
func WithExtractor(x Extractor) Option {
	return func(c *Checker) {
		c.extractor = x
	}
}

// WithMatcher replaces the default matcher.
func WithMatcher(m *matching.Matcher) Option {
	return func(c *Checker) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithCompareConcurrency bounds parallel pair comparison.
func WithCompareConcurrency(n int) Option {
	return func(c *Checker) {
		c.concurrency = n
	}
}

// WithLogger sets the checker's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker creates a Checker writing reports to outputDir.
func NewChecker(outputDir string, opts ...Option) *Checker {
	c := &Checker{outputDir: outputDir, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.matcher == nil {
		c.matcher = matching.NewMatcher(matching.WithLogger(c.logger))
	}
	return c
}

// Run extracts both images of req and checks them.
//
// Outputs:
//   - *Result: The check outcome.
//   - error: Extraction, loading or report write failures.
func (c *Checker) Run(ctx context.Context, req Request) (*Result, error) {
	if c.extractor == nil {
		return nil, ErrNoExtractor
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "check.Run", trace.WithAttributes(
		attribute.String("check.id", req.ID),
		attribute.String("check.pre_image", req.PreImage),
		attribute.String("check.post_image", req.PostImage),
	))
	defer span.End()

	preDir, postDir, err := c.extractor.ExtractPair(ctx, req.PreImage, req.PostImage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("check %s: %w", req.ID, err)
	}
	return c.RunDirs(ctx, req.ID, preDir, postDir)
}

// RunDirs checks two already extracted run directories.
//
// Description:
//
//	Matches the runs, compares every pair and, when any pair differs,
//	writes the report to <outputDir>/<id>.json. An empty id is replaced
//	by a generated one.
func (c *Checker) RunDirs(ctx context.Context, id, preDir, postDir string) (*Result, error) {
	if id == "" {
		id = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "check.RunDirs", trace.WithAttributes(attribute.String("check.id", id)))
	defer span.End()

	pairs, err := c.matcher.ReadAndMatch(ctx, preDir, postDir)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", id, err)
	}
	rep := report.Assemble(ctx, pairs,
		report.WithConcurrency(c.concurrency),
		report.WithLogger(c.logger),
	)

	res := &Result{ID: id, Pairs: pairs, Report: rep, Found: rep.HasFindings()}
	span.SetAttributes(
		attribute.Int("check.pairs", len(pairs)),
		attribute.Int("check.differences", rep.Count()),
	)
	if !res.Found {
		c.logger.Info("no differences found", slog.String("id", id), slog.Int("pairs", len(pairs)))
		return res, nil
	}

	res.OutputPath = filepath.Join(c.outputDir, id+".json")
	if err := rep.Write(res.OutputPath); err != nil {
		return res, fmt.Errorf("check %s: write report: %w", id, err)
	}
	c.logger.Info("differences found",
		slog.String("id", id),
		slog.Int("pairs", len(pairs)),
		slog.Int("differences", rep.Count()),
		slog.String("report", res.OutputPath),
	)
	return res, nil
}
