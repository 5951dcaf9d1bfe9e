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
	"strings"

	"github.com/repomind/repomind/services/analysis/ast"
)

// resolutionStrategy is one step of the participant resolution chain.
// Strategies are tried in fixed order; the first match wins. Modeling the
// chain as data keeps each step independently testable.
type resolutionStrategy struct {
	name  string
	apply func(r *Resolver, expr string, ev *ast.CallEvent) (string, bool)
}

// Resolver maps raw caller/callee expressions to canonical participant
// names for one analysis pass.
//
// Description:
//
//	The resolver accumulates "var = ClassName(...)" bindings as events are
//	observed and memoizes resolutions so identical expressions resolve
//	identically within the pass. No state persists across passes.
//
//	This is explicitly a heuristic, not a type checker: dynamically
//	computed callees can be mis-attributed. Such cases fall through to the
//	literal-text rule and are surfaced via the Fallbacks counter only.
//
// Thread Safety: NOT safe for concurrent use. A Resolver belongs to
// exactly one assembly pass.
type Resolver struct {
	unit       string
	bindings   map[string]string // local variable -> constructed class
	memo       map[string]string // scope\x00expr -> participant
	fallbacks  int
	strategies []resolutionStrategy
}

// NewResolver creates a Resolver for one unit of analysis.
//
// Inputs:
//   - unit: The function or file name being analyzed. Used as the
//     participant for module-level callers and self-receivers without an
//     enclosing class.
func NewResolver(unit string) *Resolver {
	r := &Resolver{
		unit:     unit,
		bindings: make(map[string]string),
		memo:     make(map[string]string),
	}
	r.strategies = []resolutionStrategy{
		{name: "binding", apply: (*Resolver).resolveBinding},
		{name: "receiver", apply: (*Resolver).resolveReceiver},
		{name: "literal", apply: (*Resolver).resolveLiteral},
	}
	return r
}

// Observe records the constructed-variable binding carried by a
// construction event ("svc = UserService()" binds svc to UserService).
// Call after resolving the event itself so the binding only affects
// later events.
func (r *Resolver) Observe(ev *ast.CallEvent) {
	if ev.IsConstructor && ev.Target != "" {
		r.bindings[ev.Target] = ev.Method
	}
}

// Source returns the participant the event originates from: the
// enclosing function when known, otherwise the analysis unit.
func (r *Resolver) Source(ev *ast.CallEvent) string {
	if ev.Scope != "" {
		return ev.Scope
	}
	return r.unit
}

// Resolve returns the participant the event targets.
//
// Description:
//
//	Constructions resolve to the constructed class name. Method calls
//	resolve through the strategy chain: binding -> receiver -> literal.
//	Results are memoized per (scope, expression) for the pass.
func (r *Resolver) Resolve(ev *ast.CallEvent) string {
	if ev.IsConstructor {
		return ev.Method
	}

	expr := strings.TrimSpace(ev.CallerExpr)
	key := ev.Scope + "\x00" + expr
	if p, ok := r.memo[key]; ok {
		return p
	}

	var participant string
	for _, s := range r.strategies {
		if p, ok := s.apply(r, expr, ev); ok {
			participant = p
			break
		}
	}

	r.memo[key] = participant
	return participant
}

// Fallbacks returns the number of literal-text resolutions performed.
// Surfaced as a non-fatal diagnostic count, never an error.
func (r *Resolver) Fallbacks() int {
	return r.fallbacks
}

// resolveBinding maps an expression whose base variable was bound by an
// observed construction to the constructed class name.
func (r *Resolver) resolveBinding(expr string, _ *ast.CallEvent) (string, bool) {
	base := expr
	if idx := strings.Index(base, "."); idx >= 0 {
		base = base[:idx]
	}
	class, ok := r.bindings[base]
	return class, ok
}

// resolveReceiver maps self/this receivers to the enclosing class or
// function being analyzed.
func (r *Resolver) resolveReceiver(_ string, ev *ast.CallEvent) (string, bool) {
	if !ev.SelfQualified {
		return "", false
	}
	if ev.ClassScope != "" {
		return ev.ClassScope, true
	}
	if ev.Scope != "" {
		return ev.Scope, true
	}
	return r.unit, true
}

// resolveLiteral is the last-resort rule: the trimmed expression text
// becomes the participant name. Always matches.
func (r *Resolver) resolveLiteral(expr string, _ *ast.CallEvent) (string, bool) {
	r.fallbacks++
	if expr == "" {
		return r.unit, true
	}
	// The base object is the first segment of a dotted receiver.
	if idx := strings.Index(expr, "."); idx >= 0 {
		expr = expr[:idx]
	}
	return expr, true
}
