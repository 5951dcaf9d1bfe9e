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
	"testing"
)

func extractTS(t *testing.T, src string) *ExtractResult {
	t.Helper()
	res, err := NewTypeScriptExtractor().Extract(context.Background(), []byte(src), "test.ts")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return res
}

func extractJS(t *testing.T, src string) *ExtractResult {
	t.Helper()
	res, err := NewJavaScriptExtractor().Extract(context.Background(), []byte(src), "test.js")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return res
}

func TestTypeScriptExtractNewAndMemberCalls(t *testing.T) {
	src := `
function setup(username: string) {
    const svc = new UserService();
    const user = svc.findByUsername(username);
    return user;
}
`
	res := extractTS(t, src)

	ctor := findEvent(t, res.Events, "UserService")
	if !ctor.IsConstructor {
		t.Fatalf("new UserService not flagged constructor: %+v", ctor)
	}
	if ctor.Target != "svc" {
		t.Fatalf("constructor target = %q, want svc", ctor.Target)
	}
	if ctor.Scope != "setup" {
		t.Fatalf("constructor scope = %q, want setup", ctor.Scope)
	}

	call := findEvent(t, res.Events, "findByUsername")
	if call.CallerExpr != "svc" {
		t.Fatalf("caller expr = %q, want svc", call.CallerExpr)
	}
}

func TestTypeScriptExtractDottedConstructorName(t *testing.T) {
	src := `const c = new api.HttpClient();`
	res := extractTS(t, src)

	ctor := findEvent(t, res.Events, "HttpClient")
	if ctor.CalleeExpr != "api.HttpClient" {
		t.Fatalf("callee expr = %q, want api.HttpClient", ctor.CalleeExpr)
	}
	if ctor.Target != "c" {
		t.Fatalf("target = %q, want c", ctor.Target)
	}
}

func TestTypeScriptExtractAwaitAndThis(t *testing.T) {
	src := `
class Repo {
    async load(id: string) {
        const row = await this.db.get(id);
        this.hydrate(row);
        return row;
    }
}
`
	res := extractTS(t, src)

	get := findEvent(t, res.Events, "get")
	if !get.IsAwait || !get.IsAsyncContext {
		t.Fatalf("awaited call flags wrong: %+v", get)
	}
	if !get.SelfQualified {
		t.Fatalf("this.db receiver should be self-qualified: %+v", get)
	}

	hydrate := findEvent(t, res.Events, "hydrate")
	if hydrate.IsAwait {
		t.Fatalf("hydrate is not awaited: %+v", hydrate)
	}
	if hydrate.ClassScope != "Repo" {
		t.Fatalf("class scope = %q, want Repo", hydrate.ClassScope)
	}
}

func TestTypeScriptExtractPromiseChainSpawns(t *testing.T) {
	src := `
function kick(client) {
    client.fetch("/users").then(handleUsers);
}
`
	res := extractTS(t, src)

	then := findEvent(t, res.Events, "then")
	if !then.SpawnsTrack || then.TrackHint != "promise" {
		t.Fatalf("unawaited .then should spawn a promise track: %+v", then)
	}
	if then.CallerExpr != "chainedCall" {
		t.Fatalf("chained receiver = %q, want chainedCall", then.CallerExpr)
	}

	fetch := findEvent(t, res.Events, "fetch")
	if fetch.SpawnsTrack {
		t.Fatalf("plain fetch should not spawn: %+v", fetch)
	}
}

func TestTypeScriptExtractAwaitedThenDoesNotSpawn(t *testing.T) {
	src := `
async function kick(client) {
    await client.fetch("/users").then(handleUsers);
}
`
	res := extractTS(t, src)
	then := findEvent(t, res.Events, "then")
	if then.SpawnsTrack {
		t.Fatalf("awaited .then must not spawn a track: %+v", then)
	}
}

func TestTypeScriptExtractSwitchAndTry(t *testing.T) {
	src := `
function route(req, handler) {
    try {
        switch (req.kind) {
            case "get":
                handler.read(req);
                break;
            default:
                handler.reject(req);
        }
    } catch (err) {
        handler.fail(err);
    }
}
`
	res := extractTS(t, src)

	read := findEvent(t, res.Events, "read")
	if !read.InTry {
		t.Fatalf("read should be inside try: %+v", read)
	}
	if len(read.Blocks) != 2 {
		t.Fatalf("read blocks = %d, want 2 (try + switch)", len(read.Blocks))
	}
	if read.Blocks[0].Type != BlockTryEcma {
		t.Fatalf("outer block = %q, want %q", read.Blocks[0].Type, BlockTryEcma)
	}
	sw := read.Blocks[1]
	if sw.Type != BlockSwitch {
		t.Fatalf("inner block = %q, want %q", sw.Type, BlockSwitch)
	}
	if sw.Condition != "switch(req.kind)" {
		t.Fatalf("switch condition = %q", sw.Condition)
	}
	if !sw.HasElse {
		t.Fatalf("switch with default arm should set HasElse: %+v", sw)
	}
}

func TestTypeScriptExtractImports(t *testing.T) {
	src := `
import React from "react";
import * as path from "path";
import { login, logout } from "./auth";
`
	res := extractTS(t, src)
	if len(res.Imports) != 3 {
		t.Fatalf("imports = %d, want 3: %+v", len(res.Imports), res.Imports)
	}

	def := res.Imports[0]
	if def.Path != "react" || def.Alias != "React" || len(def.Names) != 1 || def.Names[0] != "default" {
		t.Fatalf("default import = %+v", def)
	}

	ns := res.Imports[1]
	if !ns.IsWildcard {
		t.Fatalf("namespace import not flagged wildcard: %+v", ns)
	}

	named := res.Imports[2]
	if !named.IsRelative {
		t.Fatalf("./auth import should be relative: %+v", named)
	}
	if len(named.Names) != 2 || named.Names[0] != "login" || named.Names[1] != "logout" {
		t.Fatalf("named imports = %v, want [login logout]", named.Names)
	}
}

func TestJavaScriptExtractRequire(t *testing.T) {
	src := `
const express = require("express");
const helpers = require("./lib/helpers");
`
	res := extractJS(t, src)
	if len(res.Imports) != 2 {
		t.Fatalf("imports = %d, want 2: %+v", len(res.Imports), res.Imports)
	}
	if res.Imports[0].Path != "express" || res.Imports[0].Alias != "express" {
		t.Fatalf("require import = %+v", res.Imports[0])
	}
	if !res.Imports[1].IsRelative {
		t.Fatalf("relative require not flagged: %+v", res.Imports[1])
	}
}

func TestJavaScriptExtractWorkerSpawns(t *testing.T) {
	src := `const w = new Worker("crunch.js");`
	res := extractJS(t, src)

	worker := findEvent(t, res.Events, "Worker")
	if !worker.SpawnsTrack || worker.TrackHint != "thread" {
		t.Fatalf("new Worker should spawn a thread track: %+v", worker)
	}
}

func TestJavaScriptExtractLoopContext(t *testing.T) {
	src := `
function drain(queue) {
    while (queue.size() > 0) {
        queue.pop();
    }
}
`
	res := extractJS(t, src)

	pop := findEvent(t, res.Events, "pop")
	if !pop.InLoop {
		t.Fatalf("pop should be inside a loop: %+v", pop)
	}
	if len(pop.Blocks) != 1 || !pop.Blocks[0].IsLoop() {
		t.Fatalf("pop blocks = %+v, want one loop block", pop.Blocks)
	}
}
