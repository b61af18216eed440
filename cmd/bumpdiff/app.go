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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/bumpdiff/pkg/logging"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/config"
	"github.com/AleutianAI/bumpdiff/services/bumpdiff/telemetry"
)

var version = "dev"

// appState holds what setup builds for the running command.
type appState struct {
	cfg       config.Config
	logger    *logging.Logger
	telemetry *telemetry.Provider
	metrics   *http.Server
}

var app appState

// setup loads configuration and starts logging and telemetry before any
// command runs.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	app.cfg = cfg

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "bumpdiff",
		JSON:    cfg.Log.JSON,
		Console: cmd.ErrOrStderr(),
	})
	app.logger = logger
	if err != nil {
		logger.Slog().Warn("file logging disabled", slog.String("error", err.Error()))
	}
	slog.SetDefault(logger.Slog())

	app.telemetry, err = telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    "bumpdiff",
		ServiceVersion: version,
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Output:         cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if h := app.telemetry.MetricsHandler(); h != nil && cfg.Telemetry.MetricsAddr != "" {
		return serveMetrics(cfg.Telemetry.MetricsAddr, h)
	}
	return nil
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if changed("log-json") {
		cfg.Log.JSON = logJSON
	}
	if changed("log-dir") {
		cfg.Log.Dir = logDir
	}
	if changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = metricsAddr
		if metricsAddr != "" {
			cfg.Telemetry.Metrics = telemetry.ExporterPrometheus
		}
	}
	if changed("agent") {
		cfg.AgentPath = agentPath
	}
	if changed("method") {
		cfg.TargetMethod = method
	}
	if changed("output") {
		cfg.OutputDir = outputDir
	}
	if changed("work-dir") {
		cfg.WorkDir = workDir
	}
}

func serveMetrics(addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	app.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := app.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log().Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	app.log().Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

func (r *appState) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger.Slog()
}

// close flushes telemetry and releases the log file.
func (r *appState) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if r.metrics != nil {
		_ = r.metrics.Shutdown(ctx)
		r.metrics = nil
	}
	if r.telemetry != nil {
		if err := r.telemetry.Shutdown(ctx); err != nil {
			r.log().Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		r.telemetry = nil
	}
	if r.logger != nil {
		_ = r.logger.Close()
		r.logger = nil
	}
}
