// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bench runs the detector over a dataset of dependency updates with
// known outcomes and scores it.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/report"
)

var tracer = otel.Tracer("bumpdiff.bench")

// Update is one dataset entry.
type Update struct {
	ID                   int    `json:"id"`
	PreVersionImageName  string `json:"preVersionImageName"`
	PostVersionImageName string `json:"postVersionImageName"`
	TargetMethod         string `json:"targetMethod"`

	// SemB marks updates that carry a semantic breaking change.
	SemB bool `json:"semB"`

	// GroundTruth marks updates whose change the tests can observe.
	GroundTruth bool `json:"groundTruth"`
}

// Result is the detector's verdict on one update.
type Result struct {
	ID          string `json:"id"`
	SemB        bool   `json:"semB"`
	GroundTruth bool   `json:"groundTruth"`
	Detected    bool   `json:"detected"`
}

// LoadDataset reads a JSON array of updates.
func LoadDataset(path string) ([]Update, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var updates []Update
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return updates, nil
}

// WriteResults stores results as a JSON array.
func WriteResults(path string, results []Result) error {
	if results == nil {
		results = []Result{}
	}
	return report.WriteJSON(path, results)
}

// CheckFunc checks one update and reports whether differences were found.
type CheckFunc func(ctx context.Context, u Update) (bool, error)

// Runner checks dataset updates one after another.
type Runner struct {
	check  CheckFunc
	logger *slog.Logger
}

// NewRunner creates a Runner. A nil logger means slog.Default().
func NewRunner(check CheckFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{check: check, logger: logger}
}

// Run checks every update in order.
//
// Description:
//
//	Updates run sequentially since each one drives two container runs. A
//	failing update is logged and recorded as not detected; the remaining
//	updates still run. Cancelling ctx stops before the next update.
//
// Outputs:
//   - []Result: One result per update that was attempted, in dataset order.
//   - error: ctx.Err() if the run was cancelled.
func (r *Runner) Run(ctx context.Context, updates []Update) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "bench.Run",
		trace.WithAttributes(attribute.Int("bench.updates", len(updates))))
	defer span.End()

	results := make([]Result, 0, len(updates))
	for i, u := range updates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		id := strconv.Itoa(u.ID)
		r.logger.Info("starting update",
			slog.String("id", id),
			slog.Int("index", i+1),
			slog.Int("total", len(updates)))

		start := time.Now()
		detected, err := r.check(ctx, u)
		if err != nil {
			r.logger.Error("update failed",
				slog.String("id", id),
				slog.String("error", err.Error()))
			detected = false
		}
		r.logger.Info("finished update",
			slog.String("id", id),
			slog.Bool("detected", detected),
			slog.Duration("elapsed", time.Since(start)))

		results = append(results, Result{
			ID:          id,
			SemB:        u.SemB,
			GroundTruth: u.GroundTruth,
			Detected:    detected,
		})
	}
	return results, nil
}

// Summary is a confusion matrix of Detected against GroundTruth.
type Summary struct {
	TruePositives  int `json:"truePositives"`
	FalsePositives int `json:"falsePositives"`
	FalseNegatives int `json:"falseNegatives"`
	TrueNegatives  int `json:"trueNegatives"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Detected && r.GroundTruth:
			s.TruePositives++
		case r.Detected:
			s.FalsePositives++
		case r.GroundTruth:
			s.FalseNegatives++
		default:
			s.TrueNegatives++
		}
	}
	return s
}

// Precision is TP / (TP + FP), or 0 with no positive verdicts.
func (s Summary) Precision() float64 {
	if d := s.TruePositives + s.FalsePositives; d > 0 {
		return float64(s.TruePositives) / float64(d)
	}
	return 0
}

// Recall is TP / (TP + FN), or 0 with no positive ground truth.
func (s Summary) Recall() float64 {
	if d := s.TruePositives + s.FalseNegatives; d > 0 {
		return float64(s.TruePositives) / float64(d)
	}
	return 0
}

func (s Summary) String() string {
	return fmt.Sprintf("TP=%d FP=%d FN=%d TN=%d precision=%.2f recall=%.2f",
		s.TruePositives, s.FalsePositives, s.FalseNegatives, s.TrueNegatives, s.Precision(), s.Recall())
}
