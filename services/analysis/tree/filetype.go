// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree aggregates a flat repository file listing into a rooted
// hierarchy with rolled-up statistics per directory. It runs over raw
// file metadata only; no file content is read here.
package tree

import (
	"path"
	"strings"
)

// FileType is the coarse content category assigned from a file extension.
type FileType string

// File type values.
const (
	TypePython     FileType = "python"
	TypeJavaScript FileType = "javascript"
	TypeTypeScript FileType = "typescript"
	TypeHTML       FileType = "html"
	TypeCSS        FileType = "css"
	TypeMarkdown   FileType = "markdown"
	TypeJSON       FileType = "json"
	TypeYAML       FileType = "yaml"
	TypeImage      FileType = "image"
	TypeShell      FileType = "shell"
	TypeUnknown    FileType = "unknown"
)

// ClassifyPath maps a file path to its FileType by extension.
func ClassifyPath(p string) FileType {
	switch strings.ToLower(path.Ext(p)) {
	case ".py", ".pyi":
		return TypePython
	case ".js", ".jsx", ".mjs", ".cjs":
		return TypeJavaScript
	case ".ts", ".tsx":
		return TypeTypeScript
	case ".html", ".htm":
		return TypeHTML
	case ".css", ".scss", ".sass", ".less":
		return TypeCSS
	case ".md", ".markdown", ".rst":
		return TypeMarkdown
	case ".json":
		return TypeJSON
	case ".yaml", ".yml":
		return TypeYAML
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico":
		return TypeImage
	case ".sh", ".bash", ".zsh":
		return TypeShell
	default:
		return TypeUnknown
	}
}
