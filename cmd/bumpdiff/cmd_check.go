// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/check"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/container"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/invocation"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/matching"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/report"
)

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg := app.cfg
	if cfg.AgentPath == "" {
		return fmt.Errorf("an agent jar is required (--agent or agent_path)")
	}
	if cfg.TargetMethod == "" {
		return fmt.Errorf("a target method is required (--method or target_method)")
	}
	id := runID
	if id == "" {
		id = uuid.NewString()
	}

	engine, err := container.NewDockerEngine(
		container.WithHost(cfg.DockerHost),
		container.WithLogger(app.log()),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	checker := newChecker(nil, cfg.TargetMethod, id, engine)
	res, err := checker.Run(cmd.Context(), check.Request{ID: id, PreImage: preImage, PostImage: postImage})
	if err != nil {
		return err
	}
	return finish(cmd, res)
}

func runDiff(cmd *cobra.Command, args []string) error {
	var opts []matching.Option
	if app.cfg.TargetMethod != "" && cmd.Flags().Changed("method") {
		target, err := invocation.ParseTarget(app.cfg.TargetMethod)
		if err != nil {
			return err
		}
		opts = append(opts, matching.WithTarget(target))
	}
	checker := newChecker(opts, "", "", nil)
	res, err := checker.RunDirs(cmd.Context(), runID, args[0], args[1])
	if err != nil {
		return err
	}
	return finish(cmd, res)
}

// newChecker builds a Checker from the loaded config. engine may be nil
// when only extracted directories are checked.
func newChecker(matchOpts []matching.Option, target, id string, engine container.Engine) *check.Checker {
	cfg := app.cfg
	logger := app.log()
	matchOpts = append(matchOpts,
		matching.WithLogger(logger),
		matching.WithParseConcurrency(cfg.ParseConcurrency),
	)
	opts := []check.Option{
		check.WithLogger(logger),
		check.WithCompareConcurrency(cfg.CompareConcurrency),
		check.WithMatcher(matching.NewMatcher(matchOpts...)),
	}
	if engine != nil {
		opts = append(opts, check.WithExtractor(container.NewExtractor(engine, cfg.WorkDir, cfg.AgentPath, target,
			container.WithAgentMount(cfg.AgentMount),
			container.WithRunID(id),
			container.WithExtractorLogger(logger),
		)))
	}
	return check.NewChecker(cfg.OutputDir, opts...)
}

// finish renders a check result and maps findings to errDifferencesFound.
func finish(cmd *cobra.Command, res *check.Result) error {
	if err := report.Render(cmd.OutOrStdout(), res.Report, res.Pairs, report.RenderOptions{Verbose: verbose}); err != nil {
		return err
	}
	if !res.Found {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", res.OutputPath)
	return errDifferencesFound
}

// checkUpdate runs one check for the bench command.
func checkUpdate(ctx context.Context, engine container.Engine, id, pre, post, target string) (bool, error) {
	res, err := newChecker(nil, target, id, engine).Run(ctx, check.Request{ID: id, PreImage: pre, PostImage: post})
	if err != nil {
		return false, err
	}
	app.log().Debug("update checked", slog.String("id", id), slog.Int("pairs", len(res.Pairs)))
	return res.Found, nil
}
