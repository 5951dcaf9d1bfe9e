// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/diag"
)

// DefaultWorkers bounds concurrent per-file extraction in BuildFromSources.
const DefaultWorkers = 8

// ErrIncomplete is returned when a build is abandoned before every file
// was merged; the accompanying graph is a best-effort partial.
var ErrIncomplete = errors.New("depgraph: build incomplete")

// Builder accumulates per-file import declarations into one shared graph.
//
// Description:
//
//	Per-file partial results may arrive in any order from concurrent
//	extraction; the merge itself is serialized behind a mutex so node and
//	edge uniqueness hold. A duplicate contribution for the same file path
//	is resolved first-writer-wins with a recorded diagnostic.
//
// Thread Safety: Safe for concurrent AddFile calls. Build must be called
// once, after all AddFile calls have returned.
type Builder struct {
	mu        sync.Mutex
	files     map[string]bool // repository file listing, for import resolution
	merged    map[string]bool // file paths already contributed
	nodes     map[string]Node
	nodeOrder []string
	edges     map[Edge]bool
	edgeOrder []Edge
	diags     []diag.Diagnostic
}

// NewBuilder creates a Builder over a repository file listing.
//
// Inputs:
//   - files: Repository-relative paths of every file in the snapshot.
//     Imports are resolved by probing this set; nothing touches disk.
func NewBuilder(files []string) *Builder {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		set[path.Clean(f)] = true
	}
	return &Builder{
		files:  set,
		merged: make(map[string]bool),
		nodes:  make(map[string]Node),
		edges:  make(map[Edge]bool),
	}
}

// AddFile merges one file's import declarations into the graph.
//
// Description:
//
//	Each declaration is resolved against the file listing. A resolved
//	import adds an internal edge plus nodes for both endpoints; an
//	unresolved one adds an external edge and a node for the source only.
//	Files whose imports all fail to parse simply contribute nothing.
//
// Thread Safety: Safe for concurrent use.
func (b *Builder) AddFile(filePath string, imports []ast.ImportDecl) {
	filePath = path.Clean(filePath)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.merged[filePath] {
		b.diags = append(b.diags, diag.Diagnostic{
			Code:     diag.CodeGraphAggregationConflict,
			FilePath: filePath,
			Message:  "duplicate contribution for file; first writer wins",
		})
		return
	}
	b.merged[filePath] = true

	for _, imp := range imports {
		target, internal := resolveImport(b.files, filePath, imp)
		if internal {
			b.addNode(filePath)
			b.addNode(target)
			b.addEdge(Edge{Source: filePath, Target: target, Type: EdgeInternal})
		} else {
			b.addNode(filePath)
			b.addEdge(Edge{Source: filePath, Target: target, Type: EdgeExternal})
		}
	}
}

// AddDiagnostic records a contained per-file fault (e.g. a parse error)
// without aborting the repository-wide build.
func (b *Builder) AddDiagnostic(d diag.Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.diags = append(b.diags, d)
}

// Build finalizes the graph: snapshots nodes and edges sorted by path
// (contribution order is racy under concurrent AddFile, sorting keeps the
// output reproducible) and runs cycle detection over the internal-edge
// subgraph.
//
// Outputs:
//   - *Graph: Immutable snapshot. Never nil.
func (b *Builder) Build(ctx context.Context) *Graph {
	ctx, span := startGraphSpan(ctx)
	defer span.End()

	start := time.Now()

	b.mu.Lock()
	g := &Graph{
		Nodes:       make([]Node, 0, len(b.nodeOrder)),
		Edges:       make([]Edge, len(b.edgeOrder)),
		Diagnostics: append([]diag.Diagnostic(nil), b.diags...),
	}
	for _, id := range b.nodeOrder {
		g.Nodes = append(g.Nodes, b.nodes[id])
	}
	copy(g.Edges, b.edgeOrder)
	b.mu.Unlock()

	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		if g.Edges[i].Target != g.Edges[j].Target {
			return g.Edges[i].Target < g.Edges[j].Target
		}
		return g.Edges[i].Type < g.Edges[j].Type
	})

	g.Cycles = detectCycles(g)

	setGraphSpanResult(span, len(g.Nodes), len(g.Edges), len(g.Cycles))
	recordGraphMetrics(ctx, time.Since(start), len(g.Cycles))

	return g
}

func (b *Builder) addNode(filePath string) {
	if _, ok := b.nodes[filePath]; ok {
		return
	}
	b.nodes[filePath] = Node{
		ID:   filePath,
		Name: path.Base(filePath),
		Path: filePath,
		Type: nodeType(filePath),
	}
	b.nodeOrder = append(b.nodeOrder, filePath)
}

func (b *Builder) addEdge(e Edge) {
	if b.edges[e] {
		return
	}
	b.edges[e] = true
	b.edgeOrder = append(b.edgeOrder, e)
}

// BuildFromSources extracts imports from every supported source file
// concurrently and assembles the dependency graph.
//
// Description:
//
//	Files are extracted in parallel (bounded by workers); merge order does
//	not affect the result because AddFile keys everything by file path and
//	the final snapshot sorts deterministically by path. Per-file parse
//	failures become diagnostics, never request failures. On cancellation
//	the partial graph is returned flagged Incomplete alongside
//	ErrIncomplete; it is never published as a final result.
//
// Inputs:
//   - ctx: Cancels outstanding extraction.
//   - sources: Repository-relative path -> file content.
//   - workers: Concurrent extraction bound; <= 0 means DefaultWorkers.
//
// Thread Safety: Safe for concurrent use.
func BuildFromSources(ctx context.Context, sources map[string][]byte, workers int) (*Graph, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	b := NewBuilder(paths)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range paths {
		ex, err := ast.ForPath(p)
		if err != nil {
			continue // not a source file
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := ex.Extract(gctx, sources[p], p)
			if err != nil {
				slog.Warn("import extraction failed", "file", p, "error", err)
				b.AddDiagnostic(diag.Diagnostic{
					Code:     diag.CodeParseError,
					FilePath: p,
					Message:  err.Error(),
				})
				return nil
			}
			b.AddFile(p, res.Imports)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		graph := b.Build(ctx)
		graph.Incomplete = true
		return graph, fmt.Errorf("%w: %w", ErrIncomplete, err)
	}

	return b.Build(ctx), nil
}
