// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"path"
	"strings"

	"github.com/repomind/repomind/services/analysis/ast"
)

// ecmaExtensions are probed, in order, when resolving script imports that
// omit the extension.
var ecmaExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".mjs"}

// resolveImport maps an import declaration to a repository file path.
//
// Description:
//
//	Resolution is a pure probe against the in-memory file listing; no
//	filesystem access. Python module paths probe "<mod>.py" then
//	"<mod>/__init__.py"; script paths probe the literal path, then with
//	each known extension, then as a directory index. Anything that misses
//	the listing resolves external with the raw path preserved.
//
// Outputs:
//   - string: The resolved repository path, or the raw import path.
//   - bool: True when the target is a file in the repository.
func resolveImport(files map[string]bool, fromPath string, imp ast.ImportDecl) (string, bool) {
	raw := imp.Path
	if raw == "" {
		return raw, false
	}

	fromDir := path.Dir(fromPath)
	if fromDir == "." {
		fromDir = ""
	}

	if strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		if p, ok := probeScript(files, path.Join(fromDir, raw)); ok {
			return p, true
		}
		return raw, false
	}

	if strings.HasPrefix(raw, ".") {
		// Python relative import: one dot is the current package, each
		// extra dot climbs one level.
		dots := 0
		for dots < len(raw) && raw[dots] == '.' {
			dots++
		}
		base := fromDir
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
			if base == "." {
				base = ""
			}
		}
		rel := strings.ReplaceAll(raw[dots:], ".", "/")
		if p, ok := probePython(files, path.Join(base, rel)); ok {
			return p, true
		}
		// Bare "." / ".." script imports land here too; try the directory
		// index before giving up.
		if p, ok := probeScript(files, path.Join(base, rel)); ok {
			return p, true
		}
		return raw, false
	}

	// Absolute: probe as a Python module from the repository root, then
	// as a bare script path for non-relative TS/JS path aliases.
	if p, ok := probePython(files, strings.ReplaceAll(raw, ".", "/")); ok {
		return p, true
	}
	if p, ok := probeScript(files, raw); ok {
		return p, true
	}
	return raw, false
}

// probePython tries "<base>.py" then "<base>/__init__.py".
func probePython(files map[string]bool, base string) (string, bool) {
	base = path.Clean(base)
	if base == "." || base == "" {
		return "", false
	}
	if p := base + ".py"; files[p] {
		return p, true
	}
	if p := base + "/__init__.py"; files[p] {
		return p, true
	}
	return "", false
}

// probeScript tries the literal path, the path with each known extension,
// then the directory index files.
func probeScript(files map[string]bool, base string) (string, bool) {
	base = path.Clean(base)
	if base == "." || base == "" {
		return "", false
	}
	if files[base] {
		return base, true
	}
	for _, ext := range ecmaExtensions {
		if p := base + ext; files[p] {
			return p, true
		}
	}
	for _, ext := range ecmaExtensions {
		if p := base + "/index" + ext; files[p] {
			return p, true
		}
	}
	return "", false
}
