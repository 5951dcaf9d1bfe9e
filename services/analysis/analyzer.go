// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis is the facade over the extraction, sequence, depgraph
// and tree components. It owns the parsed-result cache and the worker
// bounds; callers hand it raw content and get back plain result records.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/repomind/repomind/services/analysis/ast"
	"github.com/repomind/repomind/services/analysis/config"
	"github.com/repomind/repomind/services/analysis/depgraph"
	"github.com/repomind/repomind/services/analysis/diag"
	"github.com/repomind/repomind/services/analysis/sequence"
	"github.com/repomind/repomind/services/analysis/tree"
)

// Analyzer is the entry point for all analysis operations.
//
// Description:
//
//	Extraction results are cached by content hash, so re-analyzing an
//	unchanged file (a different function in the same file, or the same
//	file across requests) skips the parse entirely.
//
// Thread Safety: Safe for concurrent use.
type Analyzer struct {
	cfg   *config.Config
	cache *lru.Cache[string, *ast.ExtractResult]
}

// NewAnalyzer creates an Analyzer from a validated configuration.
func NewAnalyzer(cfg *config.Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *ast.ExtractResult](cfg.Analysis.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating extract cache: %w", err)
	}
	return &Analyzer{cfg: cfg, cache: cache}, nil
}

// SequenceModel extracts one file and assembles the interaction model for
// one unit of analysis within it.
//
// Inputs:
//   - content: The file content.
//   - filePath: Used for language routing and diagnostics.
//   - unit: Function name to analyze; empty means the whole file, with
//     the file path as the unit name.
//
// Outputs:
//   - *sequence.InteractionModel: The assembled model.
//   - error: Extraction failure (ErrParseFailed, ErrFileTooLarge, ...).
func (a *Analyzer) SequenceModel(ctx context.Context, content []byte, filePath, unit string) (*sequence.InteractionModel, error) {
	res, err := a.extract(ctx, content, filePath)
	if err != nil {
		return nil, err
	}

	events := res.Events
	name := unit
	if unit == "" {
		name = filePath
	} else {
		events = filterByUnit(res.Events, unit)
	}

	opts := []sequence.AssemblerOption{}
	if a.cfg.Analysis.IncludeReturns {
		opts = append(opts, sequence.WithReturnMessages())
	}
	model := sequence.NewAssembler(opts...).Assemble(ctx, name, events)

	for _, msg := range res.Errors {
		model.Diagnostics = append(model.Diagnostics, diag.Diagnostic{
			Code:     diag.CodeParseError,
			FilePath: filePath,
			Message:  msg,
		})
	}
	return model, nil
}

// DependencyGraph builds the repository-wide import graph from in-memory
// sources, extracting files concurrently through the shared cache.
//
// Description:
//
//	Per-file failures become diagnostics on the graph; only cancellation
//	aborts the build, returning the partial graph flagged Incomplete
//	together with depgraph.ErrIncomplete.
func (a *Analyzer) DependencyGraph(ctx context.Context, sources map[string][]byte) (*depgraph.Graph, error) {
	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	b := depgraph.NewBuilder(paths)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Analysis.WorkerCount)

	for _, p := range paths {
		if _, err := ast.ForPath(p); err != nil {
			continue // not a source file
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.extract(gctx, sources[p], p)
			if err != nil {
				slog.Warn("skipping file in dependency graph", "file", p, "error", err)
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
		return graph, fmt.Errorf("%w: %w", depgraph.ErrIncomplete, err)
	}
	return b.Build(ctx), nil
}

// FileTree scans a directory and aggregates it into a stats-bearing tree.
func (a *Analyzer) FileTree(ctx context.Context, root, rootName string) (*tree.TreeNode, error) {
	entries, err := tree.Scan(ctx, root, a.cfg.Tree.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	return tree.Aggregate(ctx, rootName, entries,
		tree.WithExcludeDirs(a.cfg.Tree.ExcludeDirs...)), nil
}

// extract parses one file through the content-hash cache.
func (a *Analyzer) extract(ctx context.Context, content []byte, filePath string) (*ast.ExtractResult, error) {
	if len(content) > a.cfg.Analysis.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)",
			ast.ErrFileTooLarge, len(content), a.cfg.Analysis.MaxFileSizeBytes)
	}

	sum := sha256.Sum256(content)
	key := filePath + "\x00" + hex.EncodeToString(sum[:])
	if res, ok := a.cache.Get(key); ok {
		return res, nil
	}

	ex, err := ast.ForPath(filePath)
	if err != nil {
		return nil, err
	}
	res, err := ex.Extract(ctx, content, filePath)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, res)
	return res, nil
}

// filterByUnit keeps the events emitted directly in one function's scope
// (or anywhere in a class of that name). Functions nested inside the unit
// carry their own scope name and are excluded.
func filterByUnit(events []ast.CallEvent, unit string) []ast.CallEvent {
	out := make([]ast.CallEvent, 0, len(events))
	for _, ev := range events {
		if ev.Scope == unit || ev.ClassScope == unit {
			out = append(out, ev)
		}
	}
	return out
}
