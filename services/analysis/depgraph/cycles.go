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

import "sort"

// detectCycles runs Tarjan's strongly-connected-components algorithm over
// the internal-edge subgraph.
//
// Description:
//
//	Every SCC of size greater than one, plus every self-loop, is reported
//	as one Cycle: the member ids in discovery order with the first id
//	repeated as the last, closing the walk. Nodes are visited in slice
//	order, so unchanged input always yields the same cycle list.
//
// The implementation is iterative; import chains in large repositories
// can exceed the goroutine stack a recursive version would need.
func detectCycles(g *Graph) []Cycle {
	adj := make(map[string][]string, len(g.Nodes))
	selfLoop := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Type != EdgeInternal {
			continue
		}
		if e.Source == e.Target {
			selfLoop[e.Source] = true
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	for _, targets := range adj {
		sort.Strings(targets)
	}

	const unvisited = -1
	index := make(map[string]int, len(g.Nodes))
	lowlink := make(map[string]int, len(g.Nodes))
	onStack := make(map[string]bool, len(g.Nodes))
	var stack []string
	next := 0

	type frame struct {
		node string
		edge int // next adjacency index to explore
	}

	cycles := make([]Cycle, 0)

	visit := func(root string) {
		frames := []frame{{node: root}}
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			targets := adj[f.node]

			if f.edge < len(targets) {
				w := targets[f.edge]
				f.edge++
				if _, seen := index[w]; !seen {
					index[w] = next
					lowlink[w] = next
					next++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w})
				} else if onStack[w] && index[w] < lowlink[f.node] {
					lowlink[f.node] = index[w]
				}
				continue
			}

			// Node finished: pop its SCC when it is a root.
			v := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 && lowlink[v] < lowlink[frames[len(frames)-1].node] {
				lowlink[frames[len(frames)-1].node] = lowlink[v]
			}
			if lowlink[v] != index[v] {
				continue
			}

			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				sort.Slice(scc, func(i, j int) bool { return index[scc[i]] < index[scc[j]] })
				cycles = append(cycles, Cycle(append(scc, scc[0])))
			}
		}
	}

	for _, n := range g.Nodes {
		if _, seen := index[n.ID]; !seen {
			visit(n.ID)
		}
	}

	for _, n := range g.Nodes {
		if selfLoop[n.ID] {
			cycles = append(cycles, Cycle{n.ID, n.ID})
		}
	}

	return cycles
}
