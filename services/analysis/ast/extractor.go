// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast extracts ordered call and construction events from source
// files using tree-sitter. One extractor exists per supported language;
// all extractors emit the same language-neutral event stream consumed by
// the sequence assembler and the dependency graph builder.
package ast

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Size limits for extraction input.
const (
	// DefaultMaxFileSize is the maximum file size accepted by default (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold above which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024

	// MaxSnippetLen is the maximum length of a captured code snippet.
	MaxSnippetLen = 160

	// MaxWalkDepth bounds tree traversal recursion on pathological input.
	MaxWalkDepth = 512
)

// Sentinel errors returned by extractors.
var (
	// ErrParseFailed indicates the syntax tree for a file could not be
	// produced. Recoverable: multi-file callers skip the file and continue.
	ErrParseFailed = errors.New("parse failed")

	// ErrFileTooLarge indicates the content exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrUnsupportedLanguage indicates no extractor exists for the language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// LoopControl marks an explicit loop-control statement attached to an event.
type LoopControl int

const (
	// LoopControlNone is the zero value: no loop control present.
	LoopControlNone LoopControl = iota

	// LoopControlBreak marks an event guarded by an if that breaks a loop.
	LoopControlBreak

	// LoopControlContinue marks an event guarded by an if that continues a loop.
	LoopControlContinue
)

// String returns the string representation of the LoopControl.
func (lc LoopControl) String() string {
	switch lc {
	case LoopControlBreak:
		return "break"
	case LoopControlContinue:
		return "continue"
	default:
		return "none"
	}
}

// BlockType categorizes a conditional/loop/try syntactic region.
type BlockType string

// Block type values. The try variants are distinct because the assembled
// diagram labels Python and ECMAScript exception regions differently.
const (
	BlockIf      BlockType = "if"
	BlockLoop    BlockType = "loop"
	BlockTryPy   BlockType = "try_except"
	BlockTryEcma BlockType = "try_catch"
	BlockSwitch  BlockType = "switch"
)

// BlockDescriptor identifies one syntactic region open at the moment an
// event was emitted. The ID is unique within one extraction pass so the
// assembler can detect region entry and exit exactly by comparing the
// block paths of consecutive events.
//
// Thread Safety: Immutable after emission.
type BlockDescriptor struct {
	// ID is the per-file unique region instance identifier.
	ID int `json:"id"`

	// Type is the syntactic category of the region.
	Type BlockType `json:"type"`

	// Condition is the source text of the controlling condition
	// ("try" for try regions, "switch(expr)" for switch regions).
	Condition string `json:"condition"`

	// HasElse reports whether the region has an else/elif/default branch.
	HasElse bool `json:"has_else"`

	// LoopControl is set when the region is an if whose body directly
	// breaks or continues an enclosing loop.
	LoopControl LoopControl `json:"loop_control,omitempty"`
}

// IsLoop reports whether the descriptor covers a loop region.
func (b BlockDescriptor) IsLoop() bool {
	return b.Type == BlockLoop
}

// CallEvent is one raw call or construction site observed in source order.
//
// Description:
//
//	Events are emitted in pre-order, depth-first source position order and
//	are immutable once emitted. The syntactic context flags are derived
//	from lexical nesting at emission time; they describe where the call
//	sits, not what it does at runtime.
//
// Thread Safety: Immutable after emission.
type CallEvent struct {
	// CallerExpr is the receiver expression text ("service", "self",
	// "a.b", "chainedCall", "unknown"). Empty for constructions.
	CallerExpr string `json:"caller_expr"`

	// CalleeExpr is the full callee expression text, when distinct from
	// the receiver. Optional.
	CalleeExpr string `json:"callee_expr,omitempty"`

	// Method is the invoked method name, or the class name for
	// constructions.
	Method string `json:"method"`

	// Args holds the exact source substring of each argument, in order.
	Args []string `json:"args"`

	// Target is the assignment target when the event's value is bound
	// ("svc" for `svc = UserService()`). Empty when unbound.
	Target string `json:"target,omitempty"`

	// Line and Col locate the call in the source file (1-based line).
	Line int `json:"line"`
	Col  int `json:"col"`

	// Seq is the extraction sequence number, used only to keep emission
	// order stable when two events share a source position.
	Seq int `json:"seq"`

	// Scope is the name of the enclosing function, or "" at module level.
	Scope string `json:"scope,omitempty"`

	// ClassScope is the name of the enclosing class, when any.
	ClassScope string `json:"class_scope,omitempty"`

	// IsConstructor marks a construction event (no method name semantics).
	IsConstructor bool `json:"is_constructor,omitempty"`

	// SelfQualified marks a self/this-qualified call for later resolution.
	SelfQualified bool `json:"self_qualified,omitempty"`

	// IsAwait is true when the call sits under an await expression.
	IsAwait bool `json:"is_await,omitempty"`

	// IsAsyncContext is true when the call sits inside an async-declared
	// function.
	IsAsyncContext bool `json:"is_async_context,omitempty"`

	// SpawnsTrack is true when the call starts new control flow without
	// awaiting it (create_task, Thread, promise chains).
	SpawnsTrack bool `json:"spawns_track,omitempty"`

	// TrackHint names the kind of spawned control flow ("task", "thread",
	// "promise", "callback"). Only meaningful when SpawnsTrack is set.
	TrackHint string `json:"track_hint,omitempty"`

	// InTry, InLoop and InConditional report lexical nesting at emission.
	InTry         bool `json:"in_try,omitempty"`
	InLoop        bool `json:"in_loop,omitempty"`
	InConditional bool `json:"in_conditional,omitempty"`

	// LoopControl is set when the event is guarded by an if that breaks
	// or continues an enclosing loop.
	LoopControl LoopControl `json:"loop_control,omitempty"`

	// Blocks is the lexical region path at emission, outermost first.
	Blocks []BlockDescriptor `json:"blocks,omitempty"`

	// Snippet is the call source text, truncated to MaxSnippetLen.
	Snippet string `json:"snippet,omitempty"`
}

// ImportDecl is one import/require declaration observed in a file.
//
// Thread Safety: Immutable after emission.
type ImportDecl struct {
	// Path is the imported module path exactly as written.
	Path string `json:"path"`

	// Alias is the local alias, when the import is aliased.
	Alias string `json:"alias,omitempty"`

	// Names lists the imported symbols for from/named imports.
	Names []string `json:"names,omitempty"`

	// IsRelative reports a relative import (leading dot or ./ ../).
	IsRelative bool `json:"is_relative,omitempty"`

	// IsWildcard reports a wildcard import (from x import *).
	IsWildcard bool `json:"is_wildcard,omitempty"`

	// Line is the 1-based source line of the declaration.
	Line int `json:"line"`
}

// ExtractResult holds the ordered event stream for one source file.
//
// Description:
//
//	Events are ordered by source position (ties broken by extraction
//	sequence). Errors holds non-fatal extraction diagnostics; a file that
//	produced a result is usable even when Errors is non-empty.
//
// Thread Safety: Immutable after Extract returns.
type ExtractResult struct {
	// FilePath is the path the content was extracted from.
	FilePath string `json:"file_path"`

	// Language is the canonical language name ("python", "typescript", ...).
	Language string `json:"language"`

	// Hash is the hex SHA-256 of the input content.
	Hash string `json:"hash"`

	// Events is the position-ordered call/construction event stream.
	Events []CallEvent `json:"events"`

	// Imports holds one entry per import/require declaration.
	Imports []ImportDecl `json:"imports"`

	// Errors holds non-fatal extraction diagnostics.
	Errors []string `json:"errors,omitempty"`
}

// Extractor walks a parsed syntax tree for one language and emits events.
//
// Thread Safety: Implementations must be safe for concurrent use; each
// Extract call creates its own tree-sitter parser instance.
type Extractor interface {
	// Extract parses content and returns the ordered event stream.
	// Returns ErrParseFailed, ErrFileTooLarge or ErrInvalidContent on
	// complete failures; partial results carry entries in Errors instead.
	Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error)

	// Language returns the canonical language name.
	Language() string

	// Extensions returns the file extensions this extractor handles.
	Extensions() []string
}

// ForLanguage returns the extractor for a canonical language name.
//
// Inputs:
//   - language: "python", "typescript", "javascript" (case-insensitive;
//     "ts"/"js" accepted).
//
// Outputs:
//   - Extractor: the extractor instance.
//   - error: ErrUnsupportedLanguage when no extractor exists.
func ForLanguage(language string) (Extractor, error) {
	switch strings.ToLower(language) {
	case "python", "py":
		return NewPythonExtractor(), nil
	case "typescript", "ts":
		return NewTypeScriptExtractor(), nil
	case "javascript", "js":
		return NewJavaScriptExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
}

// ForPath returns the extractor for a file path based on its extension.
func ForPath(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi":
		return NewPythonExtractor(), nil
	case ".ts", ".tsx":
		return NewTypeScriptExtractor(), nil
	case ".js", ".jsx", ".mjs":
		return NewJavaScriptExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, filepath.Ext(path))
	}
}

// truncateSnippet clamps s to MaxSnippetLen, collapsing newlines.
func truncateSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > MaxSnippetLen {
		return s[:MaxSnippetLen]
	}
	return s
}
