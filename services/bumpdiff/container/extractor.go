// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultAgentMount is where the agent jar appears inside the container.
	DefaultAgentMount = "/instrumentation/semantic-agent.jar"

	// ContainerProjectDir is the project root inside every update image.
	ContainerProjectDir = "/project"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Extractor runs an image's test suite under the instrumentation agent and
// copies the resulting project tree to the host.
type Extractor struct {
	engine     Engine
	workDir    string
	agentPath  string
	agentMount string
	target     string
	runID      string
	logger     *slog.Logger
}

// ExtractorOption configures NewExtractor.
type ExtractorOption func(*Extractor)

// WithAgentMount overrides DefaultAgentMount.
func WithAgentMount(p string) ExtractorOption {
	return func(x *Extractor) {
		if p != "" {
			x.agentMount = p
		}
	}
}

// WithRunID places extracted trees under workDir/<id>.
func WithRunID(id string) ExtractorOption {
	return func(x *Extractor) {
		x.runID = id
	}
}

// WithExtractorLogger sets the extractor's logger.
func WithExtractorLogger(l *slog.Logger) ExtractorOption {
	return func(x *Extractor) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewExtractor creates an Extractor.
//
// Inputs:
//   - engine: Container runtime. Must not be nil.
//   - workDir: Host directory receiving extracted trees.
//   - agentPath: Host path of the instrumentation agent jar.
//   - target: Instrumented method, passed verbatim to the agent.
func NewExtractor(engine Engine, workDir, agentPath, target string, opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		engine:     engine,
		workDir:    workDir,
		agentPath:  agentPath,
		agentMount: DefaultAgentMount,
		target:     target,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Command returns the instrumented Maven invocation.
func (x *Extractor) Command() []string {
	return []string{
		"mvn", "test", "-l", "output.log",
		fmt.Sprintf("-DargLine=-javaagent:%s=%s", x.agentMount, x.target),
	}
}

// Extract runs the instrumented tests of image and copies its project tree
// out.
//
// Description:
//
//	Ensures the image is present, runs the test suite with the agent
//	mounted read-only, copies ContainerProjectDir to the host and removes
//	the container. A failing test run is logged but not an error: the
//	invocation log is still collected.
//
// Outputs:
//   - string: Host directory that contains "project/".
//   - error: Non-nil if the image cannot be run or the copy fails.
func (x *Extractor) Extract(ctx context.Context, image string) (dir string, err error) {
	ctx, span := tracer.Start(ctx, "container.Extract",
		trace.WithAttributes(attribute.String("container.image", image)))
	defer span.End()
	start := time.Now()
	defer func() {
		recordExtraction(ctx, time.Since(start), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := x.engine.EnsureImage(ctx, image); err != nil {
		return "", err
	}

	agent, err := filepath.Abs(x.agentPath)
	if err != nil {
		return "", fmt.Errorf("resolve agent path: %w", err)
	}

	x.logger.Info("running instrumented tests", slog.String("image", image), slog.String("target", x.target))
	res, runErr := x.engine.Run(ctx, RunSpec{
		Image:      image,
		Cmd:        x.Command(),
		WorkingDir: ContainerProjectDir,
		Mounts:     []Mount{{Source: agent, Target: x.agentMount, ReadOnly: true}},
	})
	if res.ContainerID != "" {
		defer func() {
			// The run context may already be cancelled.
			rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if rmErr := x.engine.Remove(rmCtx, res.ContainerID); rmErr != nil {
				x.logger.Warn("failed to remove container",
					slog.String("container", res.ContainerID), slog.String("error", rmErr.Error()))
			}
		}()
	}
	if runErr != nil {
		return "", runErr
	}
	if res.ExitCode != 0 {
		x.logger.Warn("test run exited non-zero",
			slog.String("image", image), slog.Int64("exit_code", res.ExitCode))
	}

	dir = filepath.Join(x.workDir, x.runID, DirName(image))
	if err := x.engine.CopyOut(ctx, res.ContainerID, ContainerProjectDir, dir); err != nil {
		return "", err
	}
	x.logger.Info("extracted project", slog.String("image", image), slog.String("dir", dir))
	return dir, nil
}

// ExtractPair extracts the pre and post images of one update.
func (x *Extractor) ExtractPair(ctx context.Context, preImage, postImage string) (preDir, postDir string, err error) {
	if DirName(preImage) == DirName(postImage) {
		return "", "", errors.New("pre and post images map to the same directory")
	}
	if preDir, err = x.Extract(ctx, preImage); err != nil {
		return "", "", fmt.Errorf("extract pre image: %w", err)
	}
	if postDir, err = x.Extract(ctx, postImage); err != nil {
		return "", "", fmt.Errorf("extract post image: %w", err)
	}
	return preDir, postDir, nil
}

// DirName derives a file-system safe directory name from an image
// reference: its last path segment with unsafe characters replaced.
//
//	DirName("ghcr.io/org/app:1.2") == "app_1.2"
func DirName(image string) string {
	name := path.Base(strings.TrimSuffix(image, "/"))
	name = unsafeNameChars.ReplaceAllString(strings.ReplaceAll(name, ":", "_"), "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return "image"
	}
	return name
}
