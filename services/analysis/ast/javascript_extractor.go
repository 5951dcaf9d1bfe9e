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

	"github.com/smacker/go-tree-sitter/javascript"
)

// JavaScriptExtractorOption configures a JavaScriptExtractor instance.
type JavaScriptExtractorOption func(*JavaScriptExtractor)

// WithJavaScriptMaxFileSize sets the maximum file size the extractor accepts.
func WithJavaScriptMaxFileSize(bytes int64) JavaScriptExtractorOption {
	return func(e *JavaScriptExtractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// JavaScriptExtractor implements the Extractor interface for JavaScript
// source (including JSX, which the grammar parses natively).
//
// Thread Safety:
//
//	JavaScriptExtractor instances are safe for concurrent use. Each
//	Extract call creates its own tree-sitter parser instance internally.
type JavaScriptExtractor struct {
	maxFileSize int64
}

// NewJavaScriptExtractor creates a new JavaScriptExtractor.
func NewJavaScriptExtractor(opts ...JavaScriptExtractorOption) *JavaScriptExtractor {
	e := &JavaScriptExtractor{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns "javascript".
func (e *JavaScriptExtractor) Language() string { return "javascript" }

// Extensions returns the file extensions this extractor handles.
func (e *JavaScriptExtractor) Extensions() []string { return []string{".js", ".jsx", ".mjs"} }

// Extract emits the ordered call/construction event stream for content.
//
// Thread Safety: Safe for concurrent use.
func (e *JavaScriptExtractor) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
	return runEcmaExtract(ctx, "javascript", javascript.GetLanguage(), e.maxFileSize, content, filePath)
}
