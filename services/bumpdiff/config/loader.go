// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BUMPDIFF_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration.
//
// Description:
//
//	Starts from Default, overlays the YAML file at path if it exists, then
//	applies BUMPDIFF_* environment overrides and validates the result.
//	An empty path or a missing file is not an error.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Non-nil on unreadable or malformed files, bad environment
//     values, or validation failures.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration's struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"WORK_DIR":         &cfg.WorkDir,
		"OUTPUT_DIR":       &cfg.OutputDir,
		"AGENT_PATH":       &cfg.AgentPath,
		"AGENT_MOUNT":      &cfg.AgentMount,
		"TARGET_METHOD":    &cfg.TargetMethod,
		"DOCKER_HOST":      &cfg.DockerHost,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_DIR":          &cfg.Log.Dir,
		"TRACES_EXPORTER":  &cfg.Telemetry.Traces,
		"METRICS_EXPORTER": &cfg.Telemetry.Metrics,
		"OTLP_ENDPOINT":    &cfg.Telemetry.OTLPEndpoint,
		"METRICS_ADDR":     &cfg.Telemetry.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"COMPARE_CONCURRENCY": &cfg.CompareConcurrency,
		"PARSE_CONCURRENCY":   &cfg.ParseConcurrency,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", EnvPrefix, err)
		}
		cfg.Log.JSON = b
	}
	return nil
}
