// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
)

// DefaultExcludeDirs are skipped by Scan unless the caller overrides them.
var DefaultExcludeDirs = []string{
	".git", "node_modules", "__pycache__", ".venv", "venv",
	".mypy_cache", ".pytest_cache", "dist", "build", ".next",
}

// Scan walks a directory on disk and produces the flat listing Aggregate
// consumes.
//
// Description:
//
//	Paths in the result are relative to root, slash-separated. Excluded
//	directories are pruned from the walk entirely. Unreadable entries are
//	logged and skipped; only a failure on the root itself is an error.
//
// Inputs:
//   - ctx: Checked between entries; cancellation aborts the walk.
//   - root: The directory to walk.
//   - excludeDirs: Directory base names to prune; nil means
//     DefaultExcludeDirs.
//
// Thread Safety: Safe for concurrent use.
func Scan(ctx context.Context, root string, excludeDirs []string) ([]Entry, error) {
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}
	skip := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		skip[d] = true
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			slog.Warn("skipping unreadable entry", "path", p, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && skip[d.Name()] {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		e := Entry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				slog.Warn("skipping unstatable file", "path", p, "error", err)
				return nil
			}
			e.Size = info.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return entries, nil
}
