// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptExtractorOption configures a TypeScriptExtractor instance.
type TypeScriptExtractorOption func(*TypeScriptExtractor)

// WithTypeScriptMaxFileSize sets the maximum file size the extractor accepts.
func WithTypeScriptMaxFileSize(bytes int64) TypeScriptExtractorOption {
	return func(e *TypeScriptExtractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// TypeScriptExtractor implements the Extractor interface for TypeScript
// source, including TSX (selected by file extension).
//
// Thread Safety:
//
//	TypeScriptExtractor instances are safe for concurrent use. Each
//	Extract call creates its own tree-sitter parser instance internally.
type TypeScriptExtractor struct {
	maxFileSize int64
}

// NewTypeScriptExtractor creates a new TypeScriptExtractor.
func NewTypeScriptExtractor(opts ...TypeScriptExtractorOption) *TypeScriptExtractor {
	e := &TypeScriptExtractor{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns "typescript".
func (e *TypeScriptExtractor) Language() string { return "typescript" }

// Extensions returns the file extensions this extractor handles.
func (e *TypeScriptExtractor) Extensions() []string { return []string{".ts", ".tsx"} }

// Extract emits the ordered call/construction event stream for content.
// See PythonExtractor.Extract for the shared contract; the TSX grammar is
// used for .tsx files, the plain TypeScript grammar otherwise.
//
// Thread Safety: Safe for concurrent use.
func (e *TypeScriptExtractor) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
	lang := typescript.GetLanguage()
	if strings.EqualFold(filepath.Ext(filePath), ".tsx") {
		lang = tsx.GetLanguage()
	}
	return runEcmaExtract(ctx, "typescript", lang, e.maxFileSize, content, filePath)
}
