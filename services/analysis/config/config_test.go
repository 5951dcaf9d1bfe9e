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
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("embedded defaults invalid: %v", err)
	}
	if cfg.Analysis.MaxFileSizeBytes != 10*1024*1024 {
		t.Fatalf("default max file size = %d", cfg.Analysis.MaxFileSizeBytes)
	}
	if cfg.Analysis.WorkerCount <= 0 || cfg.Analysis.CacheSize <= 0 {
		t.Fatalf("defaults = %+v", cfg.Analysis)
	}
	found := false
	for _, d := range cfg.Tree.ExcludeDirs {
		if d == "node_modules" {
			found = true
		}
	}
	if !found {
		t.Fatalf("default excludes missing node_modules: %v", cfg.Tree.ExcludeDirs)
	}
}

func TestLoadOverlaysUserFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "override.yaml")
	overlay := "analysis:\n  worker_count: 2\n  include_returns: true\n"
	if err := os.WriteFile(p, []byte(overlay), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.WorkerCount != 2 {
		t.Fatalf("worker count = %d, want 2", cfg.Analysis.WorkerCount)
	}
	if !cfg.Analysis.IncludeReturns {
		t.Fatalf("include_returns not overlaid")
	}
	// Untouched fields keep their defaults.
	if cfg.Analysis.MaxFileSizeBytes != 10*1024*1024 {
		t.Fatalf("max file size lost its default: %d", cfg.Analysis.MaxFileSizeBytes)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Analysis.WorkerCount != 8 {
		t.Fatalf("worker count = %d, want default 8", cfg.Analysis.WorkerCount)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("analysis:\n  worker_count: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); !errors.Is(err, ErrInvalidWorkerCount) {
		t.Fatalf("err = %v, want ErrInvalidWorkerCount", err)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file must fail")
	}
}
