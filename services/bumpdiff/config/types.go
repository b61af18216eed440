// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds bumpdiff's runtime configuration.
//
// Values come from, in increasing precedence: Default, a YAML file,
// BUMPDIFF_* environment variables and command-line flags (applied by the
// caller after Load).
package config

// Config is the complete bumpdiff configuration.
type Config struct {
	// WorkDir receives extracted project trees.
	WorkDir string `yaml:"work_dir" validate:"required"`

	// OutputDir receives per-run difference reports.
	OutputDir string `yaml:"output_dir" validate:"required"`

	// AgentPath is the host path of the instrumentation agent jar.
	AgentPath string `yaml:"agent_path"`

	// AgentMount is where the agent jar is mounted inside the container.
	AgentMount string `yaml:"agent_mount" validate:"required,startswith=/"`

	// TargetMethod is the instrumented method, e.g. "com.acme.Codec:encode".
	TargetMethod string `yaml:"target_method"`

	// DockerHost overrides DOCKER_HOST when set.
	DockerHost string `yaml:"docker_host"`

	// CompareConcurrency bounds parallel pair comparison.
	CompareConcurrency int `yaml:"compare_concurrency" validate:"gte=1,lte=256"`

	// ParseConcurrency bounds parallel Java source parsing.
	ParseConcurrency int `yaml:"parse_concurrency" validate:"gte=1,lte=256"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	Traces       string `yaml:"traces" validate:"oneof=otlp stdout none"`
	Metrics      string `yaml:"metrics" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
	MetricsAddr  string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir:            ".tmp",
		OutputDir:          ".tmp/differences",
		AgentMount:         "/instrumentation/semantic-agent.jar",
		CompareConcurrency: 8,
		ParseConcurrency:   8,
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Traces:       "none",
			Metrics:      "none",
			OTLPEndpoint: "localhost:4317",
		},
	}
}
