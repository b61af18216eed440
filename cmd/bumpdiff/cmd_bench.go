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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bumpdiff/services/bumpdiff/bench"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/container"
)

func runBench(cmd *cobra.Command, _ []string) error {
	updates, err := bench.LoadDataset(datasetPath)
	if err != nil {
		return err
	}
	if app.cfg.AgentPath == "" {
		return fmt.Errorf("an agent jar is required (--agent or agent_path)")
	}

	engine, err := container.NewDockerEngine(
		container.WithHost(app.cfg.DockerHost),
		container.WithLogger(app.log()),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	runner := bench.NewRunner(func(ctx context.Context, u bench.Update) (bool, error) {
		return checkUpdate(ctx, engine, strconv.Itoa(u.ID), u.PreVersionImageName, u.PostVersionImageName, u.TargetMethod)
	}, app.log())

	results, runErr := runner.Run(cmd.Context(), updates)
	if err := bench.WriteResults(resultsPath, results); err != nil {
		return err
	}
	summary := bench.Summarize(results)
	app.log().Info("benchmark finished",
		slog.Int("updates", len(results)),
		slog.String("results", resultsPath),
		slog.String("summary", summary.String()))
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return runErr
}
