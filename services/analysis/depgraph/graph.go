// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package depgraph assembles per-file import declarations into a
// repository-wide dependency graph with cycle detection. Imports that
// resolve to a file in the repository become internal edges between file
// nodes; everything else becomes an external edge with no target node.
package depgraph

import (
	"path"
	"strings"

	"github.com/repomind/repomind/services/analysis/diag"
)

// Edge types.
const (
	EdgeInternal = "internal"
	EdgeExternal = "external"
)

// Node is one repository file participating in at least one edge.
//
// Thread Safety: Immutable after Build.
type Node struct {
	// ID is the repository-relative file path (also the dedup key).
	ID string `json:"id"`

	// Name is the base file name.
	Name string `json:"name"`

	// Path is the repository-relative file path.
	Path string `json:"path"`

	// Type is the language tag derived from the file extension.
	Type string `json:"type"`
}

// Edge is one import relationship.
//
// Description:
//
//	Internal edges connect two file nodes. External edges keep the raw
//	imported path as Target and create no target node.
//
// Thread Safety: Immutable after Build.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Cycle is a closed walk of node ids: the first id repeats as the last.
type Cycle []string

// Graph is the assembled dependency graph for one repository snapshot.
//
// Description:
//
//	Nodes sort by id and edges by (source, target, type) at Build, so
//	output is reproducible across runs regardless of the order concurrent
//	contributions arrived in. Incomplete marks a graph
//	whose build was abandoned before every file was merged; such a graph
//	is a best-effort partial, never a silently truncated final result.
//
// Thread Safety: Immutable snapshot once returned by Build.
type Graph struct {
	Nodes  []Node  `json:"nodes"`
	Edges  []Edge  `json:"edges"`
	Cycles []Cycle `json:"cycles"`

	// Incomplete marks an abandoned build.
	Incomplete bool `json:"incomplete,omitempty"`

	// Diagnostics holds contained per-file and merge faults.
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// InternalEdges returns only the edges between repository files.
func (g *Graph) InternalEdges() []Edge {
	out := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Type == EdgeInternal {
			out = append(out, e)
		}
	}
	return out
}

// nodeType maps a file extension to the node's language tag.
func nodeType(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".py", ".pyi":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	default:
		return "unknown"
	}
}
