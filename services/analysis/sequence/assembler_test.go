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
	"reflect"
	"testing"

	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/diag"
)

func assemble(t *testing.T, unit string, events []ast.CallEvent, opts ...AssemblerOption) *InteractionModel {
	t.Helper()
	return NewAssembler(opts...).Assemble(context.Background(), unit, events)
}

func TestAssembleFlatStream(t *testing.T) {
	events := []ast.CallEvent{
		{CallerExpr: "db", Method: "open", Scope: "run", Line: 1},
		{CallerExpr: "db", Method: "query", Scope: "run", Line: 2},
		{CallerExpr: "db", Method: "close", Scope: "run", Line: 3},
	}
	m := assemble(t, "run", events)

	if len(m.Messages) != len(events) {
		t.Fatalf("messages = %d, want %d", len(m.Messages), len(events))
	}
	if len(m.Blocks) != 0 {
		t.Fatalf("flat stream produced %d blocks, want 0", len(m.Blocks))
	}
	for i, msg := range m.Messages {
		if msg.ID != i {
			t.Fatalf("message %d has id %d, ids must be monotonic from 0", i, msg.ID)
		}
		if msg.Track != MainTrack {
			t.Fatalf("message %d on track %q, want main", i, msg.Track)
		}
	}
	if got := m.Tracks[MainTrack]; len(got) != 3 {
		t.Fatalf("main track ids = %v, want 3 entries", got)
	}
}

func TestAssembleAuthenticateUserScenario(t *testing.T) {
	events := []ast.CallEvent{
		{IsConstructor: true, Method: "UserService", Target: "svc", Scope: "authenticate_user", Line: 2},
		{CallerExpr: "svc", Method: "find_by_username", Scope: "authenticate_user", Line: 3},
		{IsConstructor: true, Method: "User", Target: "user", Scope: "authenticate_user", Line: 4},
		{IsConstructor: true, Method: "TokenService", Target: "tokens", Scope: "authenticate_user", Line: 5},
		{CallerExpr: "tokens", Method: "issue", Scope: "authenticate_user", Line: 6},
	}
	m := assemble(t, "authenticate_user", events)

	wantParticipants := []string{"authenticate_user", "UserService", "User", "TokenService"}
	if !reflect.DeepEqual(m.Participants, wantParticipants) {
		t.Fatalf("participants = %v, want %v", m.Participants, wantParticipants)
	}

	find := m.Messages[1]
	if find.From != "authenticate_user" || find.To != "UserService" {
		t.Fatalf("svc.find_by_username routed %s -> %s, want authenticate_user -> UserService",
			find.From, find.To)
	}
	issue := m.Messages[4]
	if issue.To != "TokenService" {
		t.Fatalf("tokens.issue routed to %q, want TokenService", issue.To)
	}
	if m.UnresolvedFallbacks != 0 {
		t.Fatalf("fallbacks = %d, want 0", m.UnresolvedFallbacks)
	}
}

func TestAssembleConditionalBlock(t *testing.T) {
	ifBlock := ast.BlockDescriptor{ID: 0, Type: ast.BlockIf, Condition: "user.active", HasElse: true}
	events := []ast.CallEvent{
		{CallerExpr: "db", Method: "load", Scope: "run", Line: 1},
		{CallerExpr: "user", Method: "refresh", Scope: "run", Line: 2, Blocks: []ast.BlockDescriptor{ifBlock}},
		{CallerExpr: "user", Method: "touch", Scope: "run", Line: 3, Blocks: []ast.BlockDescriptor{ifBlock}},
		{CallerExpr: "db", Method: "save", Scope: "run", Line: 4},
	}
	m := assemble(t, "run", events)

	if len(m.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(m.Blocks))
	}
	b := m.Blocks[0]
	if b.StartMessageID != 1 || b.EndMessageID != 2 {
		t.Fatalf("block brackets [%d,%d], want [1,2]", b.StartMessageID, b.EndMessageID)
	}
	if b.Condition != "user.active" || !b.HasElse || b.NestingLevel != 0 {
		t.Fatalf("block = %+v", b)
	}

	if !m.Messages[1].IsConditional {
		t.Fatalf("first message in region must be conditional: %+v", m.Messages[1])
	}
	if m.Messages[1].Condition != "user.active" {
		t.Fatalf("lead message condition = %q", m.Messages[1].Condition)
	}
	if m.Messages[2].IsConditional {
		t.Fatalf("second message in region must not repeat is_conditional: %+v", m.Messages[2])
	}
	if !m.Messages[2].InConditionalBlock {
		t.Fatalf("second message must keep block membership: %+v", m.Messages[2])
	}
	if m.Messages[3].InConditionalBlock {
		t.Fatalf("message after the region must not be in a block: %+v", m.Messages[3])
	}
}

func TestAssembleNestedBlocks(t *testing.T) {
	outer := ast.BlockDescriptor{ID: 0, Type: ast.BlockLoop, Condition: "item in items"}
	inner := ast.BlockDescriptor{ID: 1, Type: ast.BlockIf, Condition: "item.bad"}
	events := []ast.CallEvent{
		{CallerExpr: "item", Method: "check", Scope: "scan", Line: 2, Blocks: []ast.BlockDescriptor{outer}},
		{CallerExpr: "item", Method: "drop", Scope: "scan", Line: 3, Blocks: []ast.BlockDescriptor{outer, inner}},
		{CallerExpr: "item", Method: "next", Scope: "scan", Line: 4, Blocks: []ast.BlockDescriptor{outer}},
	}
	m := assemble(t, "scan", events)

	if len(m.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(m.Blocks))
	}
	loop, cond := m.Blocks[0], m.Blocks[1]
	if !loop.IsLoop || loop.NestingLevel != 0 {
		t.Fatalf("outer block = %+v, want loop at nesting 0", loop)
	}
	if loop.StartMessageID != 0 || loop.EndMessageID != 2 {
		t.Fatalf("loop brackets [%d,%d], want [0,2]", loop.StartMessageID, loop.EndMessageID)
	}
	if cond.NestingLevel != 1 {
		t.Fatalf("inner block nesting = %d, want 1", cond.NestingLevel)
	}
	if cond.StartMessageID != 1 || cond.EndMessageID != 1 {
		t.Fatalf("inner brackets [%d,%d], want [1,1]", cond.StartMessageID, cond.EndMessageID)
	}
}

func TestAssembleSpawnAndJoinTracks(t *testing.T) {
	events := []ast.CallEvent{
		{CallerExpr: "asyncio", Method: "create_task", Scope: "main", Line: 1,
			IsAsyncContext: true, SpawnsTrack: true, TrackHint: "task"},
		{CallerExpr: "worker", Method: "step", Scope: "main", Line: 2, IsAsyncContext: true},
		{CallerExpr: "handle", Method: "result", Scope: "main", Line: 3,
			IsAsyncContext: true, IsAwait: true},
	}
	m := assemble(t, "main", events)

	spawn := m.Messages[0]
	if spawn.Track != MainTrack {
		t.Fatalf("spawning message on track %q, want main", spawn.Track)
	}
	if spawn.CreatesTrack == "" {
		t.Fatalf("spawning message must name the created track: %+v", spawn)
	}
	created := spawn.CreatesTrack

	if m.Messages[1].Track != created {
		t.Fatalf("message after spawn on track %q, want %q", m.Messages[1].Track, created)
	}

	join := m.Messages[2]
	if join.Track != MainTrack {
		t.Fatalf("joining message on track %q, want main", join.Track)
	}
	if !join.IsAwaited || join.ReturnsToTrack != MainTrack {
		t.Fatalf("join message = %+v, want awaited returning to main", join)
	}

	region, ok := m.TrackRegions[created]
	if !ok {
		t.Fatalf("no region recorded for track %q", created)
	}
	if region.StartMessageID != 0 || region.EndMessageID != 2 {
		t.Fatalf("region = %+v, want [0,2]", region)
	}

	if !reflect.DeepEqual(m.Tracks[MainTrack], []int{0, 2}) {
		t.Fatalf("main track = %v, want [0 2]", m.Tracks[MainTrack])
	}
	if !reflect.DeepEqual(m.Tracks[created], []int{1}) {
		t.Fatalf("spawned track = %v, want [1]", m.Tracks[created])
	}
}

func TestAssembleUnterminatedSpawnClosesAtLastMessage(t *testing.T) {
	events := []ast.CallEvent{
		{CallerExpr: "asyncio", Method: "create_task", Scope: "main", Line: 1,
			SpawnsTrack: true, TrackHint: "task"},
		{CallerExpr: "log", Method: "info", Scope: "main", Line: 2},
	}
	m := assemble(t, "main", events)

	created := m.Messages[0].CreatesTrack
	region, ok := m.TrackRegions[created]
	if !ok {
		t.Fatalf("open spawn must still record a region")
	}
	if region.EndMessageID != 1 {
		t.Fatalf("implicit join at id %d, want 1 (last message)", region.EndMessageID)
	}
}

func TestAssembleLoopControlPropagates(t *testing.T) {
	loop := ast.BlockDescriptor{ID: 0, Type: ast.BlockLoop, Condition: "row in rows"}
	events := []ast.CallEvent{
		{CallerExpr: "row", Method: "drop", Scope: "scan", Line: 2,
			Blocks: []ast.BlockDescriptor{loop}, LoopControl: ast.LoopControlBreak},
	}
	m := assemble(t, "scan", events)

	if m.Messages[0].LoopControl != ast.LoopControlBreak {
		t.Fatalf("loop control = %v, want break", m.Messages[0].LoopControl)
	}
	if len(m.Blocks) != 1 || !m.Blocks[0].IsLoop {
		t.Fatalf("blocks = %+v, want one loop block", m.Blocks)
	}
}

func TestAssembleReturnMessages(t *testing.T) {
	events := []ast.CallEvent{
		{IsConstructor: true, Method: "Repo", Target: "db", Scope: "run", Line: 1},
		{CallerExpr: "db", Method: "load", Scope: "run", Line: 2},
	}
	m := assemble(t, "run", events, WithReturnMessages())

	if len(m.Messages) != 4 {
		t.Fatalf("messages = %d, want 2 calls + 2 returns", len(m.Messages))
	}
	ret := m.Messages[3]
	if !ret.IsReturn {
		t.Fatalf("last message should be a return: %+v", ret)
	}
	if ret.Method != "return from load" {
		t.Fatalf("return method = %q", ret.Method)
	}
	src := m.Messages[1]
	if ret.From != src.To || ret.To != src.From {
		t.Fatalf("return %s -> %s does not mirror call %s -> %s",
			ret.From, ret.To, src.From, src.To)
	}
}

func TestAssembleReturnMessagesSkipAwaited(t *testing.T) {
	events := []ast.CallEvent{
		{CallerExpr: "asyncio", Method: "create_task", Scope: "main", Line: 1,
			SpawnsTrack: true, TrackHint: "task"},
		{CallerExpr: "handle", Method: "result", Scope: "main", Line: 2, IsAwait: true},
	}
	m := assemble(t, "main", events, WithReturnMessages())

	// The join suspends instead of returning: only the spawn gets a return.
	returns := 0
	for _, msg := range m.Messages {
		if msg.IsReturn {
			returns++
		}
	}
	if returns != 1 {
		t.Fatalf("returns = %d, want 1", returns)
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	block := ast.BlockDescriptor{ID: 0, Type: ast.BlockIf, Condition: "ok"}
	events := []ast.CallEvent{
		{IsConstructor: true, Method: "Svc", Target: "s", Scope: "run", Line: 1},
		{CallerExpr: "s", Method: "go", Scope: "run", Line: 2, Blocks: []ast.BlockDescriptor{block}},
		{CallerExpr: "s", Method: "stop", Scope: "run", Line: 3},
	}

	a := assemble(t, "run", events)
	b := assemble(t, "run", events)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("repeated assembly differs:\n%+v\n%+v", a, b)
	}
}

func TestAssembleStableSortPreservesExtractionOrder(t *testing.T) {
	// Same position: extraction sequence breaks the tie.
	events := []ast.CallEvent{
		{CallerExpr: "b", Method: "second", Scope: "run", Line: 1, Col: 0, Seq: 1},
		{CallerExpr: "a", Method: "first", Scope: "run", Line: 1, Col: 0, Seq: 0},
	}
	m := assemble(t, "run", events)
	if m.Messages[0].Method != "first" || m.Messages[1].Method != "second" {
		t.Fatalf("tie-break order wrong: %q then %q",
			m.Messages[0].Method, m.Messages[1].Method)
	}
}

func TestAssembleMalformedBlockStateReturnsPartial(t *testing.T) {
	dup := ast.BlockDescriptor{ID: 7, Type: ast.BlockIf, Condition: "x"}
	events := []ast.CallEvent{
		{CallerExpr: "a", Method: "ok", Scope: "run", Line: 1},
		{CallerExpr: "a", Method: "bad", Scope: "run", Line: 2,
			Blocks: []ast.BlockDescriptor{dup, dup}},
		{CallerExpr: "a", Method: "never", Scope: "run", Line: 3},
	}
	m := assemble(t, "run", events)

	if len(m.Messages) != 1 {
		t.Fatalf("messages = %d, want the 1 assembled before the fault", len(m.Messages))
	}
	found := false
	for _, d := range m.Diagnostics {
		if d.Code == diag.CodeMalformedBlockState {
			found = true
		}
	}
	if !found {
		t.Fatalf("no malformed_block_state diagnostic: %+v", m.Diagnostics)
	}
}

func TestAssembleEmptyStream(t *testing.T) {
	m := assemble(t, "empty", nil)
	if len(m.Messages) != 0 || len(m.Participants) != 0 || len(m.Blocks) != 0 {
		t.Fatalf("empty stream produced content: %+v", m)
	}
	if _, ok := m.Tracks[MainTrack]; !ok {
		t.Fatalf("main track must always exist")
	}
}

func TestSynthTrackNameSkipsTakenNames(t *testing.T) {
	a := NewAssembler()
	st := &assemblyState{model: &InteractionModel{Tracks: map[string][]int{
		MainTrack: {0},
		"task_3":  {1},
		"task_4":  {2},
	}}}

	if got := a.synthTrackName(st, "task"); got != "task_5" {
		t.Fatalf("track name = %q, want task_5 (task_3 and task_4 are taken)", got)
	}
	if got := a.synthTrackName(st, "promise"); got != "promise_3" {
		t.Fatalf("track name = %q, want promise_3", got)
	}
}
