// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sequence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/diag"
)

// AssemblerOption configures an Assembler instance.
type AssemblerOption func(*Assembler)

// WithReturnMessages enables synthesized return messages: one is_return
// message per non-suspending call, with from/to swapped and conditional
// membership preserved.
func WithReturnMessages() AssemblerOption {
	return func(a *Assembler) {
		a.includeReturns = true
	}
}

// Assembler turns a resolved, position-ordered event stream for one unit
// of analysis into an InteractionModel.
//
// Description:
//
//	A single forward pass maintains a block stack (conditional/loop/try
//	regions) and a track context (current track plus a stack of open
//	spawns). Message ids are monotonic within the pass. Re-running the
//	assembler on unchanged input yields identical participant order and
//	identical message ids.
//
// Thread Safety:
//
//	Assembler is safe for concurrent use; each Assemble call operates on
//	its own pass-local state.
type Assembler struct {
	includeReturns bool
}

// NewAssembler creates an Assembler with the given options.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// openBlock is one entry on the pass-local block stack.
type openBlock struct {
	desc    ast.BlockDescriptor
	startID int // id of the next message at push time
	nesting int // open ancestors at creation
	lastID  int // id of the last message emitted while open
	hasMsg  bool
}

// openSpawn is one entry on the pass-local spawn stack.
type openSpawn struct {
	name    string
	startID int
}

// assemblyState is the mutable state of one Assemble pass. It is local
// to the pass and must never be shared across concurrent passes.
type assemblyState struct {
	model    *InteractionModel
	resolver *Resolver

	nextID int
	lastID int

	blocks  []openBlock
	openIDs map[int]bool // block descriptor ids currently open

	trackStack []string // current track is the last element
	spawns     []openSpawn

	// pendingBlocks are blocks pushed since the last message; the next
	// message becomes their is_conditional lead message.
	pendingBlocks int

	faulted bool
}

// Assemble consumes the event stream for one unit and produces the
// interaction model.
//
// Description:
//
//	Events are stable-sorted by source position (line, column) with the
//	extraction sequence as tie-break, then processed in a single forward
//	pass as described on Assembler. A MalformedBlockState fault aborts the
//	current pass but still returns the messages assembled before it.
//
// Inputs:
//   - ctx: Context for tracing only; the pass itself never blocks.
//   - unit: The function or file name being analyzed.
//   - events: The extracted event stream. May be empty.
//
// Outputs:
//   - *InteractionModel: Never nil. Immutable snapshot once returned.
//
// Thread Safety: Safe for concurrent use.
func (a *Assembler) Assemble(ctx context.Context, unit string, events []ast.CallEvent) *InteractionModel {
	ctx, span := startAssembleSpan(ctx, unit, len(events))
	defer span.End()

	start := time.Now()

	st := &assemblyState{
		model: &InteractionModel{
			Unit:         unit,
			Participants: make([]string, 0),
			Messages:     make([]Message, 0),
			Blocks:       make([]ConditionalBlock, 0),
			Tracks:       map[string][]int{MainTrack: {}},
			TrackRegions: make(map[string]TrackRegion),
		},
		resolver:   NewResolver(unit),
		lastID:     -1,
		openIDs:    make(map[int]bool),
		trackStack: []string{MainTrack},
	}

	ordered := make([]ast.CallEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Line != ordered[j].Line {
			return ordered[i].Line < ordered[j].Line
		}
		if ordered[i].Col != ordered[j].Col {
			return ordered[i].Col < ordered[j].Col
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	for i := range ordered {
		if !a.processEvent(st, &ordered[i]) {
			break
		}
	}

	a.finish(st)

	st.model.UnresolvedFallbacks = st.resolver.Fallbacks()

	setAssembleSpanResult(span, len(st.model.Messages), len(st.model.Blocks), len(st.model.Tracks))
	recordAssembleMetrics(ctx, time.Since(start), len(st.model.Messages), st.faulted)

	return st.model
}

// processEvent handles one event: block stack sync, message emission,
// and track bookkeeping. Returns false when the pass must abort.
func (a *Assembler) processEvent(st *assemblyState, ev *ast.CallEvent) bool {
	if !a.syncBlocks(st, ev.Blocks) {
		return false
	}

	from := st.resolver.Source(ev)
	to := st.resolver.Resolve(ev)
	st.resolver.Observe(ev)
	a.register(st, from)
	a.register(st, to)

	msg := Message{
		ID:                 st.nextID,
		From:               from,
		To:                 to,
		Method:             ev.Method,
		Args:               ev.Args,
		Line:               ev.Line,
		IsConstructor:      ev.IsConstructor,
		IsAsync:            ev.IsAsyncContext || ev.SpawnsTrack,
		InConditionalBlock: len(st.blocks) > 0,
		LoopControl:        ev.LoopControl,
		Snippet:            ev.Snippet,
	}
	st.nextID++

	// The first message inside a newly entered region carries the
	// condition; later messages only carry block membership.
	if st.pendingBlocks > 0 {
		msg.IsConditional = true
		msg.Condition = st.blocks[len(st.blocks)-1].desc.Condition
		st.pendingBlocks = 0
	}

	// A join pops the spawn stack before the message is assigned, so the
	// awaiting message lands on the restored track.
	if ev.IsAwait && len(st.spawns) > 0 {
		s := st.spawns[len(st.spawns)-1]
		st.spawns = st.spawns[:len(st.spawns)-1]
		st.trackStack = st.trackStack[:len(st.trackStack)-1]
		st.model.TrackRegions[s.name] = TrackRegion{StartMessageID: s.startID, EndMessageID: msg.ID}
		msg.IsAwaited = true
		msg.ReturnsToTrack = st.currentTrack()
	}

	track := st.currentTrack()
	msg.Track = track
	st.model.Messages = append(st.model.Messages, msg)
	st.model.Tracks[track] = append(st.model.Tracks[track], msg.ID)
	st.lastID = msg.ID

	for i := range st.blocks {
		st.blocks[i].hasMsg = true
		st.blocks[i].lastID = msg.ID
	}

	// A spawn switches the current track after the spawning message.
	if ev.SpawnsTrack && !ev.IsAwait {
		name := a.synthTrackName(st, ev.TrackHint)
		st.model.Messages[len(st.model.Messages)-1].CreatesTrack = name
		st.model.Tracks[name] = []int{}
		st.spawns = append(st.spawns, openSpawn{name: name, startID: msg.ID})
		st.trackStack = append(st.trackStack, name)
	}

	return true
}

// syncBlocks reconciles the open block stack with the event's lexical
// region path: pop regions the event has left, push regions it entered.
func (a *Assembler) syncBlocks(st *assemblyState, path []ast.BlockDescriptor) bool {
	prefix := 0
	for prefix < len(st.blocks) && prefix < len(path) && st.blocks[prefix].desc.ID == path[prefix].ID {
		prefix++
	}

	for len(st.blocks) > prefix {
		a.popBlock(st)
	}

	for _, desc := range path[prefix:] {
		if st.openIDs[desc.ID] {
			// A region id reappearing under a different parent means the
			// extractor's markers are inconsistent.
			st.faulted = true
			st.model.Diagnostics = append(st.model.Diagnostics, diag.Diagnostic{
				Code:    diag.CodeMalformedBlockState,
				Message: fmt.Sprintf("region %d re-entered while still open", desc.ID),
			})
			return false
		}
		st.blocks = append(st.blocks, openBlock{
			desc:    desc,
			startID: st.nextID,
			nesting: len(st.blocks),
		})
		st.openIDs[desc.ID] = true
		st.pendingBlocks++
	}

	return true
}

// popBlock closes the innermost open region. Regions whose lifetime saw
// no messages (directly or via descendants) are discarded entirely.
func (a *Assembler) popBlock(st *assemblyState) {
	b := st.blocks[len(st.blocks)-1]
	st.blocks = st.blocks[:len(st.blocks)-1]
	delete(st.openIDs, b.desc.ID)
	if st.pendingBlocks > 0 {
		st.pendingBlocks--
	}

	if !b.hasMsg {
		return
	}

	st.model.Blocks = append(st.model.Blocks, ConditionalBlock{
		StartMessageID: b.startID,
		EndMessageID:   b.lastID,
		Condition:      b.desc.Condition,
		Type:           b.desc.Type,
		NestingLevel:   b.nesting,
		HasElse:        b.desc.HasElse,
		IsLoop:         b.desc.IsLoop(),
	})
}

// finish closes all still-open regions and spawns, then appends return
// messages when enabled.
func (a *Assembler) finish(st *assemblyState) {
	for len(st.blocks) > 0 {
		a.popBlock(st)
	}

	// Still-open spawns are treated as implicitly joined at the last
	// message of the pass.
	for i := len(st.spawns) - 1; i >= 0; i-- {
		s := st.spawns[i]
		st.model.TrackRegions[s.name] = TrackRegion{StartMessageID: s.startID, EndMessageID: st.lastID}
	}
	st.spawns = nil
	st.trackStack = []string{MainTrack}

	if a.includeReturns && !st.faulted {
		a.appendReturns(st)
	}

	sort.Slice(st.model.Blocks, func(i, j int) bool {
		return st.model.Blocks[i].StartMessageID < st.model.Blocks[j].StartMessageID
	})
}

// appendReturns synthesizes one return message per non-suspending call,
// preserving conditional membership. Suspend points already hand control
// back and get no return message.
func (a *Assembler) appendReturns(st *assemblyState) {
	calls := len(st.model.Messages)
	for i := 0; i < calls; i++ {
		src := st.model.Messages[i]
		if src.IsAwaited {
			continue
		}
		ret := Message{
			ID:                 st.nextID,
			From:               src.To,
			To:                 src.From,
			Method:             "return from " + src.Method,
			Line:               src.Line,
			Track:              src.Track,
			IsReturn:           true,
			IsAsync:            src.IsAsync,
			IsConditional:      src.IsConditional,
			InConditionalBlock: src.InConditionalBlock,
			Condition:          src.Condition,
		}
		st.nextID++
		st.model.Messages = append(st.model.Messages, ret)
		st.model.Tracks[ret.Track] = append(st.model.Tracks[ret.Track], ret.ID)
	}
}

// register adds a participant on first appearance; insertion order is
// fixed for the pass.
func (a *Assembler) register(st *assemblyState, name string) {
	for _, p := range st.model.Participants {
		if p == name {
			return
		}
	}
	st.model.Participants = append(st.model.Participants, name)
}

// synthTrackName builds a unique spawned-track name from the extractor's
// hint, numbered like the tracks map ("task_1", "promise_2", ...).
func (a *Assembler) synthTrackName(st *assemblyState, hint string) string {
	if hint == "" {
		hint = "async"
	}
	for n := len(st.model.Tracks); ; n++ {
		name := fmt.Sprintf("%s_%d", hint, n)
		if _, taken := st.model.Tracks[name]; !taken {
			return name
		}
	}
}

func (st *assemblyState) currentTrack() string {
	return st.trackStack[len(st.trackStack)-1]
}
