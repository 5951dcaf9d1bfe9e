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
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonExtractorOption configures a PythonExtractor instance.
type PythonExtractorOption func(*PythonExtractor)

// WithPythonMaxFileSize sets the maximum file size the extractor accepts.
func WithPythonMaxFileSize(bytes int64) PythonExtractorOption {
	return func(e *PythonExtractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// PythonExtractor implements the Extractor interface for Python source.
//
// Description:
//
//	PythonExtractor uses tree-sitter to parse Python source files and emit
//	an ordered stream of call/construction events together with import
//	declarations. It is error-tolerant: syntactically invalid files still
//	yield partial event streams with entries in ExtractResult.Errors.
//
// Thread Safety:
//
//	PythonExtractor instances are safe for concurrent use. Each Extract
//	call creates its own tree-sitter parser instance internally.
type PythonExtractor struct {
	maxFileSize int64
}

// NewPythonExtractor creates a new PythonExtractor with the given options.
func NewPythonExtractor(opts ...PythonExtractorOption) *PythonExtractor {
	e := &PythonExtractor{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns "python".
func (e *PythonExtractor) Language() string { return "python" }

// Extensions returns the file extensions this extractor handles.
func (e *PythonExtractor) Extensions() []string { return []string{".py", ".pyi"} }

// Extract emits the ordered call/construction event stream for content.
//
// Description:
//
//	Performs a single pre-order, depth-first traversal of the parse tree.
//	Method calls (obj.method(...)) and constructions (PascalCase identifier
//	calls) become CallEvents carrying the lexical context flags described
//	in the package documentation. Import statements, including inline
//	imports inside function bodies, become ImportDecls.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw Python source bytes. Must be valid UTF-8.
//   - filePath: Path for event attribution and error reporting.
//
// Outputs:
//   - *ExtractResult: Ordered events and imports. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, ErrParseFailed, or a
//     context error. Per-file failures are recoverable by design.
//
// Thread Safety: Safe for concurrent use.
func (e *PythonExtractor) Extract(ctx context.Context, content []byte, filePath string) (*ExtractResult, error) {
	ctx, span := startExtractSpan(ctx, "python", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordExtractMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("extract canceled before start: %w", err)
	}
	if int64(len(content)) > e.maxFileSize {
		recordExtractMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), e.maxFileSize)
	}
	if len(content) > WarnFileSize {
		slog.Warn("extracting large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		recordExtractMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordExtractMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordExtractMetrics(ctx, "python", time.Since(start), 0, false)
		return nil, fmt.Errorf("extract canceled after parse: %w", err)
	}

	result := &ExtractResult{
		FilePath: filePath,
		Language: "python",
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

	w := &pyWalker{content: content, result: result}
	w.walk(root, 0)

	setExtractSpanResult(span, len(result.Events), len(result.Errors))
	recordExtractMetrics(ctx, "python", time.Since(start), len(result.Events), true)

	return result, nil
}

// pyWalker holds the traversal state for one extraction pass.
//
// Thread Safety: Local to one Extract call; never shared.
type pyWalker struct {
	content []byte
	result  *ExtractResult

	seq         int
	nextBlockID int
	blocks      []BlockDescriptor
	scopes      []string // enclosing function names, innermost last
	classes     []string // enclosing class names, innermost last
	asyncDepth  int
	awaitDepth  int
	loopDepth   int
	tryDepth    int
	condDepth   int
}

func (w *pyWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *pyWalker) walk(node *sitter.Node, depth int) {
	if node == nil || depth > MaxWalkDepth {
		return
	}

	switch node.Type() {
	case "function_definition":
		isAsync := node.ChildCount() > 0 && node.Child(0).Type() == "async"
		name := w.text(node.ChildByFieldName("name"))
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

	case "class_definition":
		w.classes = append(w.classes, w.text(node.ChildByFieldName("name")))
		w.walkChildren(node, depth)
		w.classes = w.classes[:len(w.classes)-1]
		return

	case "if_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockIf,
			Condition: w.text(node.ChildByFieldName("condition")),
			HasElse:   hasChildOfType(node, "else_clause") || hasChildOfType(node, "elif_clause"),
		}
		if w.loopDepth > 0 {
			desc.LoopControl = directLoopControl(node.ChildByFieldName("consequence"))
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "for_statement":
		cond := w.text(node.ChildByFieldName("left")) + " in " + w.text(node.ChildByFieldName("right"))
		w.enterLoop(BlockDescriptor{ID: w.nextID(), Type: BlockLoop, Condition: cond}, node, depth)
		return

	case "while_statement":
		cond := w.text(node.ChildByFieldName("condition"))
		w.enterLoop(BlockDescriptor{ID: w.nextID(), Type: BlockLoop, Condition: cond}, node, depth)
		return

	case "try_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockTryPy,
			Condition: "try",
			HasElse:   hasChildOfType(node, "except_clause") || hasChildOfType(node, "finally_clause"),
		}
		w.enterBlock(desc, node, depth, &w.tryDepth)
		return

	case "conditional_expression":
		// a.f() if cond else b.g(): named children are consequence,
		// condition, alternative in that order.
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockIf,
			Condition: w.text(node.NamedChild(1)),
			HasElse:   true, // a ternary always has an else arm
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "match_statement":
		desc := BlockDescriptor{
			ID:        w.nextID(),
			Type:      BlockSwitch,
			Condition: "match(" + w.text(node.ChildByFieldName("subject")) + ")",
		}
		w.enterBlock(desc, node, depth, &w.condDepth)
		return

	case "await":
		w.awaitDepth++
		w.walkChildren(node, depth)
		w.awaitDepth--
		return

	case "import_statement":
		w.processImport(node)
		return

	case "import_from_statement":
		w.processImportFrom(node)
		return

	case "call":
		w.processCall(node)
		w.walkChildren(node, depth)
		return
	}

	w.walkChildren(node, depth)
}

func (w *pyWalker) walkChildren(node *sitter.Node, depth int) {
	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i), depth+1)
	}
}

func (w *pyWalker) nextID() int {
	id := w.nextBlockID
	w.nextBlockID++
	return id
}

// enterBlock pushes desc, walks the node's children inside the region and
// pops. The depth counter keeps the InTry/InConditional flags cheap.
func (w *pyWalker) enterBlock(desc BlockDescriptor, node *sitter.Node, depth int, counter *int) {
	w.blocks = append(w.blocks, desc)
	*counter++
	w.walkChildren(node, depth)
	*counter--
	w.blocks = w.blocks[:len(w.blocks)-1]
}

func (w *pyWalker) enterLoop(desc BlockDescriptor, node *sitter.Node, depth int) {
	w.blocks = append(w.blocks, desc)
	w.loopDepth++
	w.walkChildren(node, depth)
	w.loopDepth--
	w.blocks = w.blocks[:len(w.blocks)-1]
}

// processCall emits a CallEvent for method calls and constructions.
// Plain lowercase function calls are intentionally not emitted: they name
// no participant beyond the enclosing scope and only add noise to the
// assembled diagram.
func (w *pyWalker) processCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	ev := CallEvent{
		Args:    w.argTexts(node.ChildByFieldName("arguments")),
		Line:    int(node.StartPoint().Row + 1),
		Col:     int(node.StartPoint().Column),
		Snippet: truncateSnippet(w.text(node)),
	}

	switch fn.Type() {
	case "attribute":
		obj := fn.ChildByFieldName("object")
		ev.Method = w.text(fn.ChildByFieldName("attribute"))
		ev.CallerExpr = w.receiverExpr(obj)
		ev.CalleeExpr = w.text(fn)
		if ev.CallerExpr == "self" || strings.HasPrefix(ev.CallerExpr, "self.") {
			ev.SelfQualified = true
		}
		// asyncio.create_task spawns unawaited control flow unless the
		// whole expression is awaited.
		if ev.CallerExpr == "asyncio" && ev.Method == "create_task" && w.awaitDepth == 0 {
			ev.SpawnsTrack = true
			ev.TrackHint = "task"
		}

	case "identifier":
		name := w.text(fn)
		r, _ := utf8.DecodeRuneInString(name)
		if !unicode.IsUpper(r) {
			return
		}
		ev.Method = name
		ev.CalleeExpr = name
		ev.IsConstructor = true
		ev.Target = w.assignmentTarget(node)
		if name == "Thread" {
			ev.SpawnsTrack = true
			ev.TrackHint = "thread"
		}

	default:
		return
	}

	w.emit(&ev)
}

// emit stamps the lexical context onto ev and appends it to the result.
func (w *pyWalker) emit(ev *CallEvent) {
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

func (w *pyWalker) receiverExpr(node *sitter.Node) string {
	if node == nil {
		return "unknown"
	}
	switch node.Type() {
	case "identifier":
		return w.text(node)
	case "attribute":
		return w.receiverExpr(node.ChildByFieldName("object")) + "." + w.text(node.ChildByFieldName("attribute"))
	case "call":
		// Method chaining: represent the receiver as the prior call's result.
		return "chainedCall"
	default:
		return "unknown"
	}
}

func (w *pyWalker) argTexts(args *sitter.Node) []string {
	out := make([]string, 0)
	if args == nil {
		return out
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		out = append(out, w.text(args.NamedChild(i)))
	}
	return out
}

// assignmentTarget finds the binding target for `target = ClassName(...)`.
// Only direct assignments count; constructions used as arguments or dict
// values have no target.
func (w *pyWalker) assignmentTarget(call *sitter.Node) string {
	for p := call.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "assignment":
			right := p.ChildByFieldName("right")
			if right != nil && right.StartByte() == call.StartByte() && right.EndByte() == call.EndByte() {
				return w.targetName(p.ChildByFieldName("left"))
			}
			return ""
		case "expression_statement", "block", "module", "function_definition", "argument_list":
			return ""
		}
	}
	return ""
}

func (w *pyWalker) targetName(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return w.text(node)
	case "attribute":
		return w.receiverExpr(node.ChildByFieldName("object")) + "." + w.text(node.ChildByFieldName("attribute"))
	case "pattern_list", "tuple_pattern":
		// Tuple unpacking: take the leftmost element.
		if node.NamedChildCount() > 0 {
			return w.targetName(node.NamedChild(0))
		}
	}
	return ""
}

// processImport handles `import foo` and `import foo as bar`.
func (w *pyWalker) processImport(node *sitter.Node) {
	line := int(node.StartPoint().Row + 1)
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			w.result.Imports = append(w.result.Imports, ImportDecl{Path: w.text(child), Line: line})
		case "aliased_import":
			var path, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					path = w.text(gc)
				case "identifier":
					alias = w.text(gc)
				}
			}
			if path != "" {
				w.result.Imports = append(w.result.Imports, ImportDecl{Path: path, Alias: alias, Line: line})
			}
		}
	}
}

// processImportFrom handles `from x import y [as z]` including relative
// and wildcard forms.
func (w *pyWalker) processImportFrom(node *sitter.Node) {
	var modulePath string
	var names []string
	var isWildcard, isRelative, sawImport bool

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			isRelative = true
			modulePath = w.text(child)
		case "dotted_name":
			if !sawImport {
				modulePath = w.text(child)
			} else {
				names = append(names, w.text(child))
			}
		case "wildcard_import":
			isWildcard = true
		case "aliased_import":
			var importName, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case "dotted_name":
					if importName == "" {
						importName = w.text(gc)
					}
				case "identifier":
					if importName == "" {
						importName = w.text(gc)
					} else {
						alias = w.text(gc)
					}
				}
			}
			if alias != "" {
				names = append(names, importName+" as "+alias)
			} else if importName != "" {
				names = append(names, importName)
			}
		case "identifier":
			if sawImport {
				names = append(names, w.text(child))
			}
		}
	}

	if modulePath == "" && isRelative {
		modulePath = "."
	}
	if modulePath != "" {
		w.result.Imports = append(w.result.Imports, ImportDecl{
			Path:       modulePath,
			Names:      names,
			IsRelative: isRelative,
			IsWildcard: isWildcard,
			Line:       int(node.StartPoint().Row + 1),
		})
	}
}

// hasChildOfType reports whether node has a direct child of the given type.
func hasChildOfType(node *sitter.Node, typ string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

// directLoopControl inspects a suite for a break/continue statement among
// its direct children. Used to classify if-guarded loop exits.
func directLoopControl(body *sitter.Node) LoopControl {
	if body == nil {
		return LoopControlNone
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
