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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	logLevel    string
	logJSON     bool
	logDir      string
	metricsAddr string

	preImage    string
	postImage   string
	agentPath   string
	method      string
	outputDir   string
	workDir     string
	runID       string
	verbose     bool
	jsonOutput  bool
	projectDir  string
	datasetPath string
	resultsPath string

	rootCmd = &cobra.Command{
		Use:   "bumpdiff",
		Short: "Detect semantic breaking changes in dependency updates",
		Long: `bumpdiff runs a project's tests against the old and new version of a
dependency, records every call to a target method and reports where the
observed return values differ.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Run the instrumented tests of two images and compare them",
		Args:  cobra.NoArgs,
		RunE:  runCheck, // Defined in cmd_check.go
	}

	diffCmd = &cobra.Command{
		Use:   "diff PRE_DIR POST_DIR",
		Short: "Compare two already extracted runs",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff, // Defined in cmd_check.go
	}

	compareCmd = &cobra.Command{
		Use:   "compare LEFT.json RIGHT.json",
		Short: "Structurally compare two serialized value graphs",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare, // Defined in cmd_compare.go
	}

	locateCmd = &cobra.Command{
		Use:   "locate File.java:LINE",
		Short: "Resolve the test scope of a source position",
		Args:  cobra.ExactArgs(1),
		RunE:  runLocate, // Defined in cmd_locate.go
	}

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Score the detector against a dataset of updates",
		Args:  cobra.NoArgs,
		RunE:  runBench, // Defined in cmd_bench.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "bumpdiff.yaml", "path to the YAML config file")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.BoolVar(&logJSON, "log-json", false, "log JSON to stderr")
	pf.StringVar(&logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")

	checkCmd.Flags().StringVar(&preImage, "pre", "", "image of the project with the old dependency version")
	checkCmd.Flags().StringVar(&postImage, "post", "", "image of the project with the new dependency version")
	checkCmd.Flags().StringVar(&agentPath, "agent", "", "path of the instrumentation agent jar")
	checkCmd.Flags().StringVar(&method, "method", "", "fully qualified target method, e.g. org.lib.Codec:encode")
	checkCmd.Flags().StringVar(&outputDir, "output", "", "directory for difference reports")
	checkCmd.Flags().StringVar(&workDir, "work-dir", "", "directory for extracted runs")
	checkCmd.Flags().StringVar(&runID, "id", "", "run identifier; generated when empty")
	checkCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show return value diffs")
	_ = checkCmd.MarkFlagRequired("pre")
	_ = checkCmd.MarkFlagRequired("post")

	diffCmd.Flags().StringVar(&method, "method", "", "only match invocations of this method")
	diffCmd.Flags().StringVar(&outputDir, "output", "", "directory for difference reports")
	diffCmd.Flags().StringVar(&runID, "id", "", "run identifier; generated when empty")
	diffCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show return value diffs")

	compareCmd.Flags().BoolVar(&jsonOutput, "json", false, "print differences as JSON")

	locateCmd.Flags().StringVar(&projectDir, "project", ".", "root of the Java project")

	benchCmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset JSON file")
	benchCmd.Flags().StringVar(&resultsPath, "results", "results.json", "where to write results")
	benchCmd.Flags().StringVar(&agentPath, "agent", "", "path of the instrumentation agent jar")
	benchCmd.Flags().StringVar(&outputDir, "output", "", "directory for difference reports")
	benchCmd.Flags().StringVar(&workDir, "work-dir", "", "directory for extracted runs")
	_ = benchCmd.MarkFlagRequired("dataset")

	rootCmd.AddCommand(checkCmd, diffCmd, compareCmd, locateCmd, benchCmd)
}
