// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command repomind analyzes source repositories into diagrammable data:
// interaction models for single functions or files, repository-wide
// dependency graphs with cycle detection, and file trees with rolled-up
// statistics. All output is JSON on stdout for external renderers.
//
// Usage:
//
//	repomind sequence path/to/file.py --unit authenticate_user
//	repomind deps path/to/repo
//	repomind tree path/to/repo
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/repomind/repomind/services/analysis"
	"github.com/repomind/repomind/services/analysis/config"
	"github.com/repomind/repomind/services/analysis/depgraph"
	"github.com/repomind/repomind/services/analysis/tree"
)

// Flag values shared across subcommands.
var (
	configPath string
	debug      bool
	unitName   string
)

func main() {
	root := &cobra.Command{
		Use:   "repomind",
		Short: "Analyze source repositories into diagrammable interaction data",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config overlay")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	seqCmd := &cobra.Command{
		Use:   "sequence <file>",
		Short: "Assemble the interaction model for one source file or function",
		Args:  cobra.ExactArgs(1),
		RunE:  runSequenceCommand,
	}
	seqCmd.Flags().StringVar(&unitName, "unit", "", "Function to analyze (default: whole file)")

	depsCmd := &cobra.Command{
		Use:   "deps <dir>",
		Short: "Build the repository dependency graph with cycle detection",
		Args:  cobra.ExactArgs(1),
		RunE:  runDepsCommand,
	}

	treeCmd := &cobra.Command{
		Use:   "tree <dir>",
		Short: "Aggregate the repository file tree with rolled-up statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runTreeCommand,
	}

	root.AddCommand(seqCmd, depsCmd, treeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAnalyzer() (*analysis.Analyzer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return analysis.NewAnalyzer(cfg)
}

func runSequenceCommand(cmd *cobra.Command, args []string) error {
	a, err := newAnalyzer()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	model, err := a.SequenceModel(cmd.Context(), content, args[0], unitName)
	if err != nil {
		return err
	}
	return emitJSON(model)
}

func runDepsCommand(cmd *cobra.Command, args []string) error {
	a, err := newAnalyzer()
	if err != nil {
		return err
	}

	sources, err := loadSources(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	slog.Debug("loaded repository sources", "files", len(sources))

	graph, err := a.DependencyGraph(cmd.Context(), sources)
	if err != nil && !errors.Is(err, depgraph.ErrIncomplete) {
		return err
	}
	return emitJSON(graph)
}

func runTreeCommand(cmd *cobra.Command, args []string) error {
	a, err := newAnalyzer()
	if err != nil {
		return err
	}

	root, err := a.FileTree(cmd.Context(), args[0], filepath.Base(args[0]))
	if err != nil {
		return err
	}
	return emitJSON(root)
}

// loadSources reads every supported source file under root into memory,
// keyed by repository-relative slash path.
func loadSources(ctx context.Context, root string) (map[string][]byte, error) {
	entries, err := tree.Scan(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	sources := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		switch tree.ClassifyPath(e.Path) {
		case tree.TypePython, tree.TypeJavaScript, tree.TypeTypeScript:
		default:
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil {
			slog.Warn("skipping unreadable source", "file", e.Path, "error", err)
			continue
		}
		sources[e.Path] = content
	}
	return sources, nil
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
