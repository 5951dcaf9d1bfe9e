// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopLargestFiles bounds the largest-files list carried on directory stats.
const TopLargestFiles = 10

// Entry is one row of the flat listing the aggregator consumes: a file or
// directory with its repository-relative path.
type Entry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// FileRef is one entry of the largest-files ranking.
type FileRef struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Stats are the rolled-up statistics for one directory subtree.
//
// Description:
//
//	Computed once per directory in post-order from its children; never
//	stored redundantly on both a node and its descendants' leaves, and
//	never double-counted across siblings.
//
// Thread Safety: Immutable after Aggregate returns.
type Stats struct {
	TotalFiles       int              `json:"total_files"`
	TotalSize        int64            `json:"total_size"`
	FilesByType      map[FileType]int `json:"files_by_type"`
	FilesByExtension map[string]int   `json:"files_by_extension"`
	LargestFiles     []FileRef        `json:"largest_files"`
}

// TreeNode is one file or directory in the aggregated hierarchy.
//
// Description:
//
//	Files carry Extension, Size and FileType; directories own an ordered
//	child list (directories first, then files, each alphabetical) and
//	expose Stats aggregated from all descendants.
//
// Thread Safety: Immutable after Aggregate returns.
type TreeNode struct {
	// ID is a per-build unique identifier.
	ID string `json:"id"`

	Name string `json:"name"`
	Path string `json:"path"`

	// Type is "file" or "directory".
	Type string `json:"type"`

	// Extension is the file extension including the dot, files only.
	Extension string `json:"extension,omitempty"`

	// Size is the file size in bytes, files only.
	Size int64 `json:"size,omitempty"`

	// FileType is the coarse content category, files only.
	FileType FileType `json:"file_type,omitempty"`

	Children []*TreeNode `json:"children,omitempty"`

	// Stats are the rolled-up subtree statistics, directories only.
	Stats *Stats `json:"stats,omitempty"`
}

// Node types.
const (
	NodeFile      = "file"
	NodeDirectory = "directory"
)

// AggregateOption configures an Aggregate call.
type AggregateOption func(*aggregateConfig)

type aggregateConfig struct {
	excludeDirs map[string]bool
}

// WithExcludeDirs skips entries under directories with any of the given
// base names, anywhere in the hierarchy.
func WithExcludeDirs(names ...string) AggregateOption {
	return func(c *aggregateConfig) {
		for _, n := range names {
			c.excludeDirs[n] = true
		}
	}
}

// Aggregate builds the rooted hierarchy from a flat listing.
//
// Description:
//
//	Intermediate directories missing from the listing are synthesized so
//	every file hangs off a full directory chain. Statistics are computed
//	in one post-order pass: each directory folds its children's stats
//	exactly once, so nothing is double-counted across siblings.
//
// Inputs:
//   - ctx: Tracing only; aggregation never blocks.
//   - rootName: Name for the synthetic root node (typically the repo name).
//   - entries: Flat (path, type, size) rows. Order is irrelevant.
//
// Outputs:
//   - *TreeNode: The root directory node. Never nil.
//
// Thread Safety: Safe for concurrent use; all state is call-local.
func Aggregate(ctx context.Context, rootName string, entries []Entry, opts ...AggregateOption) *TreeNode {
	ctx, span := startAggregateSpan(ctx, rootName, len(entries))
	defer span.End()

	start := time.Now()

	cfg := &aggregateConfig{excludeDirs: make(map[string]bool)}
	for _, opt := range opts {
		opt(cfg)
	}

	root := &TreeNode{
		ID:   uuid.NewString(),
		Name: rootName,
		Path: ".",
		Type: NodeDirectory,
	}
	dirs := map[string]*TreeNode{".": root}

	for _, e := range entries {
		p := path.Clean(e.Path)
		if p == "." || p == "/" || excluded(cfg, p, e.IsDir) {
			continue
		}
		if e.IsDir {
			ensureDir(dirs, cfg, p)
			continue
		}
		parent := ensureDir(dirs, cfg, path.Dir(p))
		if parent == nil {
			continue
		}
		parent.Children = append(parent.Children, &TreeNode{
			ID:        uuid.NewString(),
			Name:      path.Base(p),
			Path:      p,
			Type:      NodeFile,
			Extension: strings.ToLower(path.Ext(p)),
			Size:      e.Size,
			FileType:  ClassifyPath(p),
		})
	}

	sortTree(root)
	rollUp(root)

	setAggregateSpanResult(span, root.Stats.TotalFiles, root.Stats.TotalSize)
	recordAggregateMetrics(ctx, time.Since(start), root.Stats.TotalFiles)

	return root
}

// excluded reports whether any directory segment of p names an excluded
// directory. A file's own base name is never matched against the list.
func excluded(cfg *aggregateConfig, p string, isDir bool) bool {
	segs := strings.Split(p, "/")
	if !isDir {
		segs = segs[:len(segs)-1]
	}
	for _, s := range segs {
		if cfg.excludeDirs[s] {
			return true
		}
	}
	return false
}

// ensureDir returns the directory node for p, synthesizing the chain of
// ancestors as needed. Returns nil when the chain crosses an excluded
// directory.
func ensureDir(dirs map[string]*TreeNode, cfg *aggregateConfig, p string) *TreeNode {
	p = path.Clean(p)
	if d, ok := dirs[p]; ok {
		return d
	}
	if cfg.excludeDirs[path.Base(p)] {
		return nil
	}
	parent := ensureDir(dirs, cfg, path.Dir(p))
	if parent == nil {
		return nil
	}
	d := &TreeNode{
		ID:   uuid.NewString(),
		Name: path.Base(p),
		Path: p,
		Type: NodeDirectory,
	}
	parent.Children = append(parent.Children, d)
	dirs[p] = d
	return d
}

// sortTree orders every child list: directories first, then files, each
// alphabetical by name.
func sortTree(n *TreeNode) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == NodeDirectory
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Type == NodeDirectory {
			sortTree(c)
		}
	}
}

// rollUp computes directory stats post-order: leaves contribute once to
// their parent, parents fold child stats exactly once.
func rollUp(n *TreeNode) *Stats {
	st := &Stats{
		FilesByType:      make(map[FileType]int),
		FilesByExtension: make(map[string]int),
	}
	for _, c := range n.Children {
		if c.Type == NodeDirectory {
			cs := rollUp(c)
			st.TotalFiles += cs.TotalFiles
			st.TotalSize += cs.TotalSize
			for t, v := range cs.FilesByType {
				st.FilesByType[t] += v
			}
			for e, v := range cs.FilesByExtension {
				st.FilesByExtension[e] += v
			}
			st.LargestFiles = append(st.LargestFiles, cs.LargestFiles...)
			continue
		}
		st.TotalFiles++
		st.TotalSize += c.Size
		st.FilesByType[c.FileType]++
		ext := c.Extension
		if ext == "" {
			ext = "(none)"
		}
		st.FilesByExtension[ext]++
		st.LargestFiles = append(st.LargestFiles, FileRef{Path: c.Path, Size: c.Size})
	}

	sort.Slice(st.LargestFiles, func(i, j int) bool {
		if st.LargestFiles[i].Size != st.LargestFiles[j].Size {
			return st.LargestFiles[i].Size > st.LargestFiles[j].Size
		}
		return st.LargestFiles[i].Path < st.LargestFiles[j].Path
	})
	if len(st.LargestFiles) > TopLargestFiles {
		st.LargestFiles = st.LargestFiles[:TopLargestFiles]
	}

	n.Stats = st
	return st
}
