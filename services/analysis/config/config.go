// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the analysis configuration: embedded defaults,
// optionally overlaid by a user YAML file, then validated.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Validation errors.
var (
	ErrInvalidMaxFileSize = errors.New("config: max_file_size_bytes must be positive")
	ErrInvalidWorkerCount = errors.New("config: worker_count must be positive")
	ErrInvalidCacheSize   = errors.New("config: cache_size must be positive")
)

// Config is the full analysis configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Tree     TreeConfig     `yaml:"tree"`
}

// AnalysisConfig controls extraction and assembly.
type AnalysisConfig struct {
	// MaxFileSizeBytes is the per-file size ceiling for extraction.
	MaxFileSizeBytes int `yaml:"max_file_size_bytes"`

	// WorkerCount bounds concurrent per-file extraction.
	WorkerCount int `yaml:"worker_count"`

	// IncludeReturns synthesizes return messages in interaction models.
	IncludeReturns bool `yaml:"include_returns"`

	// CacheSize is the parsed-result cache entry count.
	CacheSize int `yaml:"cache_size"`
}

// TreeConfig controls scanning and tree aggregation.
type TreeConfig struct {
	// ExcludeDirs are directory base names pruned from scans.
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load returns the defaults overlaid with the YAML file at path.
//
// Description:
//
//	An empty path returns the defaults unchanged. The overlay is field
//	level: fields absent from the user file keep their default values.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: File, parse or validation failure; the config is unusable.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the analysis pipeline assumes.
func (c *Config) Validate() error {
	if c.Analysis.MaxFileSizeBytes <= 0 {
		return ErrInvalidMaxFileSize
	}
	if c.Analysis.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if c.Analysis.CacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	return nil
}
