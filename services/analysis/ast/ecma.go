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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// runEcmaExtract is the shared Extract implementation for the TypeScript
// and JavaScript extractors. The two grammars produce compatible node
// types for everything this walker consumes, so a single traversal serves
// both languages.
func runEcmaExtract(ctx context.Context, lang string, sitterLang *sitter.Language, maxFileSize int64, content []byte, filePath string) (*ExtractResult, error) {
	ctx, span := startExtractSpan(ctx, lang, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordExtractMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, fmt.Errorf("extract canceled before start: %w", err)
	}
	if int64(len(content)) > maxFileSize {
		recordExtractMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("extracting large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordExtractMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(sitterLang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordExtractMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordExtractMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, fmt.Errorf("extract canceled after parse: %w", err)
	}

	result := &ExtractResult{
		FilePath: filePath,
		Language: lang,
		Hash:     hex.EncodeToString(hash[:]),
		Events:   make([]CallEvent, 0),
		Imports:  make([]ImportDecl, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	w := &ecmaWalker{content: content, result: result}
	w.walk(root, 0)

	setExtractSpanResult(span, len(result.Events), len(result.Errors))
	recordExtractMetrics(ctx, lang, time.Since(start), len(result.Events), true)

	return result, nil
}

// ecmaWalker holds traversal state for one TypeScript/JavaScript pass.
//
// Thread Safety: Local to one Extract call; never shared.
type ecmaWalker struct {
	content []byte
	result  *ExtractResult

	seq         int
	nextBlockID int
	blocks      []BlockDescriptor
	scopes      []string
	classes     []string
	asyncDepth  int
	awaitDepth  int
	loopDepth   int
	tryDepth    int
	condDepth   int
}

func (w *ecmaWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

// conditionText strips the surrounding parentheses tree-sitter keeps on
// ECMAScript conditions.
func (w *ecmaWalker) conditionText(n *sitter.Node) string {
	s := w.text(n)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	return strings.TrimSpace(s)
}

func (w *ecmaWalker) walk(node *sitter.Node, depth int) {
	if node == nil || depth > MaxWalkDepth {
		return
	}

	switch node.Type() {
	case "function_declaration", "function_expression", "function", "generator_function_declaration", "method_definition":
		isAsync := node.ChildCount() > 0 && node.Child(0).Type() == "async"
		name := w.text(node.ChildByFieldName("name"))
		if name == "" {
			name = "anonymous"
		}
		w.scopes = append(w.scopes, name)
		if isAsync {
			w.asyncDepth++
		}
		w.walkChildren(node, depth)
		if isAsync {
			w.asyncDepth--
		}
		w.scopes = w.scopes[:len(w.scopes)-1]
		return

	case "arrow_function":
		// Arrow functions inherit the enclosing scope name; only the
		// async flag changes.
		isAsync := node.ChildCount() > 0 && node.Child(0).Type() == "async"
		if isAsync {
			w.asyncDepth++
		}
		w.walkChildren(node, depth)
		if isAsync {
			w.asyncDepth--
		}
		return

	case "class_declaration", "class":
		w.classes = append(w.classes, w.text(node.ChildByFieldName("name")))
		w.walkChildren(node, depth)
		w.classes = w.classes[:len(w.classes)-1]
		return

	case "if_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockIf,
			Condition: w.conditionText(node.ChildByFieldName("condition")),
			HasElse:   node.ChildByFieldName("alternative") != nil,
		}
		if w.loopDepth > 0 {
			desc.LoopControl = ecmaDirectLoopControl(node.ChildByFieldName("consequence"))
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "ternary_expression":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockIf,
			Condition: w.text(node.ChildByFieldName("condition")),
			HasElse:   true, // a ternary always has an else arm
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "for_statement":
		cond := w.conditionText(node.ChildByFieldName("condition"))
		w.enterLoop(BlockDescriptor{ID: w.nextID(), Type: BlockLoop, Condition: cond}, node, depth)
		return

	case "for_in_statement":
		cond := w.text(node.ChildByFieldName("left")) + " of " + w.text(node.ChildByFieldName("right"))
		w.enterLoop(BlockDescriptor{ID: w.nextID(), Type: BlockLoop, Condition: cond}, node, depth)
		return

	case "while_statement", "do_statement":
		cond := w.conditionText(node.ChildByFieldName("condition"))
		w.enterLoop(BlockDescriptor{ID: w.nextID(), Type: BlockLoop, Condition: cond}, node, depth)
		return

	case "try_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockTryEcma,
			Condition: "try",
			HasElse:   node.ChildByFieldName("handler") != nil || node.ChildByFieldName("finalizer") != nil,
		}
		w.enterBlock(desc, node, depth, &w.tryDepth)
		return

	case "switch_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockSwitch,
			Condition: "switch(" + w.conditionText(node.ChildByFieldName("value")) + ")",
			HasElse:   switchHasDefault(node.ChildByFieldName("body")),
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "await_expression":
		w.awaitDepth++
		w.walkChildren(node, depth)
		w.awaitDepth--
		return

	case "import_statement":
		w.processImport(node)
		return

	case "call_expression":
		w.processCall(node)
		w.walkChildren(node, depth)
		return

	case "new_expression":
		w.processNew(node)
		w.walkChildren(node, depth)
		return
	}

	w.walkChildren(node, depth)
}

func (w *ecmaWalker) walkChildren(node *sitter.Node, depth int) {
	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), depth+1)
	}
}

func (w *ecmaWalker) nextID() int {
	id := w.nextBlockID
	w.nextBlockID++
	return id
}

func (w *ecmaWalker) enterBlock(desc BlockDescriptor, node *sitter.Node, depth int, counter *int) {
	w.blocks = append(w.blocks, desc)
	*counter++
	w.walkChildren(node, depth)
	*counter--
	w.blocks = w.blocks[:len(w.blocks)-1]
}

func (w *ecmaWalker) enterLoop(desc BlockDescriptor, node *sitter.Node, depth int) {
	w.blocks = append(w.blocks, desc)
	w.loopDepth++
	w.walkChildren(node, depth)
	w.loopDepth--
	w.blocks = w.blocks[:len(w.blocks)-1]
}

// processCall emits events for member calls (obj.method(...)) and records
// require() declarations. Plain lowercase identifier calls are skipped,
// matching the Python extractor's policy.
func (w *ecmaWalker) processCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	if fn.Type() == "identifier" && w.text(fn) == "require" {
		w.processRequire(node)
		return
	}
	if fn.Type() != "member_expression" {
		return
	}

	ev := CallEvent{
		Args:    w.argTexts(node.ChildByFieldName("arguments")),
		Line:    int(node.StartPoint().Row + 1),
		Col:     int(node.StartPoint().Column),
		Snippet: truncateSnippet(w.text(node)),
	}
	ev.Method = w.text(fn.ChildByFieldName("property"))
	ev.CallerExpr = w.receiverExpr(fn.ChildByFieldName("object"))
	ev.CalleeExpr = w.text(fn)

	if ev.CallerExpr == "this" || strings.HasPrefix(ev.CallerExpr, "this.") {
		ev.SelfQualified = true
	}

	// Promise chaining spawns control flow that resumes later.
	if (ev.Method == "then" || ev.Method == "catch" || ev.Method == "finally") && w.awaitDepth == 0 {
		ev.SpawnsTrack = true
		ev.TrackHint = "promise"
	}

	w.emit(&ev)
}

// processNew emits a construction event for `new ClassName(...)`.
func (w *ecmaWalker) processNew(node *sitter.Node) {
	ctor := node.ChildByFieldName("constructor")
	if ctor == nil {
		return
	}
	name := w.text(ctor)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}

	ev := CallEvent{
		Method:        name,
		CalleeExpr:    w.text(ctor),
		Args:          w.argTexts(node.ChildByFieldName("arguments")),
		Line:          int(node.StartPoint().Row + 1),
		Col:           int(node.StartPoint().Column),
		IsConstructor: true,
		Target:        w.assignmentTarget(node),
		Snippet:       truncateSnippet(w.text(node)),
	}
	if name == "Worker" || name == "Promise" {
		ev.SpawnsTrack = true
		ev.TrackHint = "promise"
		if name == "Worker" {
			ev.TrackHint = "thread"
		}
	}

	w.emit(&ev)
}

func (w *ecmaWalker) emit(ev *CallEvent) {
	ev.Seq = w.seq
	w.seq++
	if len(w.scopes) > 0 {
		ev.Scope = w.scopes[len(w.scopes)-1]
	}
	if len(w.classes) > 0 {
		ev.ClassScope = w.classes[len(w.classes)-1]
	}
	ev.IsAwait = w.awaitDepth > 0
	ev.IsAsyncContext = w.asyncDepth > 0
	ev.InTry = w.tryDepth > 0
	ev.InLoop = w.loopDepth > 0
	ev.InConditional = w.condDepth > 0
	ev.Blocks = append([]BlockDescriptor(nil), w.blocks...)
	for i := len(w.blocks) - 1; i >= 0; i-- {
		if w.blocks[i].LoopControl != LoopControlNone {
			ev.LoopControl = w.blocks[i].LoopControl
			break
		}
	}
	w.result.Events = append(w.result.Events, *ev)
}

func (w *ecmaWalker) receiverExpr(node *sitter.Node) string {
	if node == nil {
		return "unknown"
	}
	switch node.Type() {
	case "identifier", "this":
		return w.text(node)
	case "member_expression":
		return w.receiverExpr(node.ChildByFieldName("object")) + "." + w.text(node.ChildByFieldName("property"))
	case "call_expression":
		return "chainedCall"
	default:
		return "unknown"
	}
}

func (w *ecmaWalker) argTexts(args *sitter.Node) []string {
	out := make([]string, 0)
	if args == nil {
		return out
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		out = append(out, w.text(args.NamedChild(i)))
	}
	return out
}

func (w *ecmaWalker) assignmentTarget(node *sitter.Node) string {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "variable_declarator":
			value := p.ChildByFieldName("value")
			if value != nil && value.StartByte() == node.StartByte() && value.EndByte() == node.EndByte() {
				return w.text(p.ChildByFieldName("name"))
			}
			return ""
		case "assignment_expression":
			right := p.ChildByFieldName("right")
			if right != nil && right.StartByte() == node.StartByte() && right.EndByte() == node.EndByte() {
				return w.receiverTarget(p.ChildByFieldName("left"))
			}
			return ""
		case "expression_statement", "statement_block", "program", "arguments":
			return ""
		}
	}
	return ""
}

func (w *ecmaWalker) receiverTarget(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return w.text(node)
	case "member_expression":
		return w.receiverExpr(node.ChildByFieldName("object")) + "." + w.text(node.ChildByFieldName("property"))
	}
	return ""
}

// processImport handles ES module import statements.
func (w *ecmaWalker) processImport(node *sitter.Node) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return
	}
	path := strings.Trim(w.text(source), `"'`)
	decl := ImportDecl{
		Path:       path,
		IsRelative: strings.HasPrefix(path, "."),
		Line:       int(node.StartPoint().Row + 1),
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		clause := node.Child(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.ChildCount()); j++ {
			item := clause.Child(j)
			switch item.Type() {
			case "identifier":
				decl.Names = append(decl.Names, "default")
				decl.Alias = w.text(item)
			case "namespace_import":
				decl.IsWildcard = true
				decl.Names = append(decl.Names, "*")
			case "named_imports":
				for k := 0; k < int(item.NamedChildCount()); k++ {
					spec := item.NamedChild(k)
					if spec.Type() == "import_specifier" {
						decl.Names = append(decl.Names, w.text(spec.ChildByFieldName("name")))
					}
				}
			}
		}
	}

	w.result.Imports = append(w.result.Imports, decl)
}

// processRequire handles CommonJS `const x = require('module')`.
func (w *ecmaWalker) processRequire(node *sitter.Node) {
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return
	}
	path := strings.Trim(w.text(arg), `"'`)
	w.result.Imports = append(w.result.Imports, ImportDecl{
		Path:       path,
		Names:      []string{"default"},
		Alias:      w.assignmentTarget(node),
		IsRelative: strings.HasPrefix(path, "."),
		Line:       int(node.StartPoint().Row + 1),
	})
}

// ecmaDirectLoopControl inspects an if consequence for break/continue.
func ecmaDirectLoopControl(body *sitter.Node) LoopControl {
	if body == nil {
		return LoopControlNone
	}
	if body.Type() == "break_statement" {
		return LoopControlBreak
	}
	if body.Type() == "continue_statement" {
		return LoopControlContinue
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		switch body.Child(i).Type() {
		case "break_statement":
			return LoopControlBreak
		case "continue_statement":
			return LoopControlContinue
		}
	}
	return LoopControlNone
}

// switchHasDefault reports whether a switch body contains a default arm.
func switchHasDefault(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		if body.Child(i).Type() == "switch_default" {
			return true
		}
	}
	return false
}
