// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sequence resolves call events into diagram participants and
// assembles them into an interaction model: an ordered message list,
// nested conditional/loop/try regions, and named execution tracks for
// asynchronous fan-out. The model is plain data for external renderers;
// no rendering happens here.
package sequence

import (
	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/diag"
)

// MainTrack is the name of the execution track that always exists and
// holds every message not claimed by a spawned track.
const MainTrack = "main"

// Message is one recorded call, construction or return between two
// participants.
//
// Description:
//
//	IDs are monotonic and stable within one assembly pass. From and To
//	always reference registered participants. The optional flags form a
//	fixed record, not a dynamic attribute bag.
//
// Thread Safety: Immutable after assembly.
type Message struct {
	// ID is the monotonic message identifier within one assembly pass.
	ID int `json:"id"`

	// From and To are registered participant names.
	From string `json:"from"`
	To   string `json:"to"`

	// Method is the invoked method, class name for constructions, or the
	// synthesized "return from X" label for return messages.
	Method string `json:"method"`

	// Args holds the argument source snippets, in order.
	Args []string `json:"args,omitempty"`

	// Line is the source line of the originating event.
	Line int `json:"line,omitempty"`

	// Track is the execution track this message belongs to.
	Track string `json:"track"`

	// IsReturn marks a synthesized return message.
	IsReturn bool `json:"is_return,omitempty"`

	// IsConstructor marks a construction message.
	IsConstructor bool `json:"is_constructor,omitempty"`

	// IsAsync marks a message emitted from an asynchronous context.
	IsAsync bool `json:"is_async,omitempty"`

	// IsAwaited marks a message that suspends on a spawned track.
	IsAwaited bool `json:"is_awaited,omitempty"`

	// IsConditional marks the first message of a newly entered
	// conditional region.
	IsConditional bool `json:"is_conditional,omitempty"`

	// InConditionalBlock is true while any block region is open.
	InConditionalBlock bool `json:"in_conditional_block,omitempty"`

	// LoopControl marks an explicit break/continue inside an open loop.
	LoopControl ast.LoopControl `json:"loop_control,omitempty"`

	// Condition is the controlling condition text, when IsConditional.
	Condition string `json:"condition,omitempty"`

	// CreatesTrack names the track spawned at this message, if any.
	CreatesTrack string `json:"creates_track,omitempty"`

	// ReturnsToTrack names the track control returns to at this message.
	ReturnsToTrack string `json:"returns_to_track,omitempty"`

	// Snippet is the originating call source text, when captured.
	Snippet string `json:"code_snippet,omitempty"`
}

// ConditionalBlock is a bracketed region of messages corresponding to an
// if/loop/try/switch construct in the source.
//
// Invariants: StartMessageID <= EndMessageID in assembly order, and a
// block with zero enclosed messages is never emitted.
//
// Thread Safety: Immutable after assembly.
type ConditionalBlock struct {
	// StartMessageID and EndMessageID bracket the region inclusively.
	StartMessageID int `json:"start_message_id"`
	EndMessageID   int `json:"end_message_id"`

	// Condition is the controlling condition text.
	Condition string `json:"condition"`

	// Type is the region category (if, loop, try_except, try_catch, switch).
	Type ast.BlockType `json:"type"`

	// NestingLevel is the count of ancestor blocks open at creation time.
	NestingLevel int `json:"nesting_level"`

	// HasElse reports an else/elif/default branch on the construct.
	HasElse bool `json:"has_else"`

	// IsLoop reports a loop region.
	IsLoop bool `json:"is_loop"`
}

// TrackRegion brackets a spawned track: the spawning message and its join.
// An unterminated spawn closes at the last message of the pass.
type TrackRegion struct {
	StartMessageID int `json:"start_message_id"`
	EndMessageID   int `json:"end_message_id"`
}

// InteractionModel is the assembled, renderer-facing result for one unit
// of analysis (a function or file).
//
// Description:
//
//	Participants are insertion-ordered (first appearance wins) and unique.
//	Tracks maps track names to the ordered message ids belonging to each
//	track; the "main" track always exists. The model is an immutable
//	snapshot once Assemble returns.
type InteractionModel struct {
	// Unit is the analyzed function or file name.
	Unit string `json:"unit"`

	// Participants is the insertion-ordered participant registry.
	Participants []string `json:"participants"`

	// Messages is the ordered, uniquely-identified message list.
	Messages []Message `json:"messages"`

	// Blocks is the set of nested conditional/loop/try regions.
	Blocks []ConditionalBlock `json:"conditional_blocks"`

	// Tracks maps track names to ordered message ids.
	Tracks map[string][]int `json:"execution_tracks"`

	// TrackRegions brackets each spawned track's lifetime.
	TrackRegions map[string]TrackRegion `json:"track_regions,omitempty"`

	// UnresolvedFallbacks counts literal-text participant resolutions.
	UnresolvedFallbacks int `json:"unresolved_fallbacks,omitempty"`

	// Diagnostics holds non-fatal faults encountered during assembly.
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// MessageByID returns the message with the given id, or nil.
func (m *InteractionModel) MessageByID(id int) *Message {
	for i := range m.Messages {
		if m.Messages[i].ID == id {
			return &m.Messages[i]
		}
	}
	return nil
}
