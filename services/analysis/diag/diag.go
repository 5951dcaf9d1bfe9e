// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag defines the shared diagnostic record carried on analysis
// results. Diagnostics report contained, non-fatal faults: per-file
// failures never abort a multi-file analysis, they surface here instead.
package diag

import "fmt"

// Code identifies a diagnostic category.
type Code string

// Diagnostic categories.
const (
	// CodeParseError: one file's syntax tree could not be produced.
	// Recoverable; the file is skipped.
	CodeParseError Code = "parse_error"

	// CodeUnresolvedCalleeFallback: the participant resolver used its
	// last-resort literal-text rule. Not an error; counted only.
	CodeUnresolvedCalleeFallback Code = "unresolved_callee_fallback"

	// CodeMalformedBlockState: a region exit arrived with no matching
	// open block. The current file's assembly is aborted; messages
	// assembled before the fault are still returned.
	CodeMalformedBlockState Code = "malformed_block_state"

	// CodeGraphAggregationConflict: duplicate node id from two different
	// files. Resolved first-writer-wins.
	CodeGraphAggregationConflict Code = "graph_aggregation_conflict"
)

// Diagnostic is one non-fatal fault record attached to a result.
//
// Thread Safety: Immutable value type.
type Diagnostic struct {
	// Code is the diagnostic category.
	Code Code `json:"code"`

	// FilePath is the file the fault is scoped to, when applicable.
	FilePath string `json:"file_path,omitempty"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// String returns "code: message (file)" for logging.
func (d Diagnostic) String() string {
	if d.FilePath == "" {
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Code, d.Message, d.FilePath)
}
