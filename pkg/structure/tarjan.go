package structure

import (
	"sort"

	"github.com/sanonone/cardgraph/pkg/graph"
)

// TarjanResult holds the cut vertices and bridges of an undirected graph.
type TarjanResult struct {
	CutVertices []string        `json:"cut_vertices"`
	Bridges     []graph.EdgeRef `json:"bridges"`
}

// dfsFrame replaces one level of the recursive DFS.
type dfsFrame struct {
	node       int
	parentEdge int // edge index used to enter node, -1 for a root
	next       int // next arc to examine
	children   int // DFS children, only meaningful for roots
}

// Tarjan finds articulation points and bridges in a single DFS pass per
// connected component, using an explicit stack so depth is bounded by memory
// rather than the goroutine stack.
//
// The edge used to reach a node is skipped by index, not by endpoint, so a
// pair joined by parallel edges is never reported as a bridge.
func Tarjan(ids []string, edges []graph.Edge) TarjanResult {
	adj := graph.NewAdjacency(ids, edges, nil)
	n := adj.Len()

	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	cut := make([]bool, n)
	bridgeSet := make(map[graph.EdgeRef]bool)

	timer := 0
	var stack []dfsFrame
	for root := 0; root < n; root++ {
		if disc[root] != -1 {
			continue
		}
		disc[root], low[root] = timer, timer
		timer++
		stack = append(stack[:0], dfsFrame{node: root, parentEdge: -1})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj.Arcs[top.node]) {
				arc := adj.Arcs[top.node][top.next]
				top.next++
				if arc.Edge == top.parentEdge {
					continue
				}
				if disc[arc.To] == -1 {
					disc[arc.To], low[arc.To] = timer, timer
					timer++
					top.children++
					stack = append(stack, dfsFrame{node: arc.To, parentEdge: arc.Edge})
				} else if disc[arc.To] < low[top.node] {
					low[top.node] = disc[arc.To]
				}
				continue
			}

			done := *top
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				if done.children > 1 {
					cut[done.node] = true
				}
				break
			}
			parent := &stack[len(stack)-1]
			if low[done.node] < low[parent.node] {
				low[parent.node] = low[done.node]
			}
			if low[done.node] > disc[parent.node] {
				bridgeSet[edges[done.parentEdge].Ref()] = true
			}
			if parent.parentEdge != -1 && low[done.node] >= disc[parent.node] {
				cut[parent.node] = true
			}
		}
	}

	res := TarjanResult{
		CutVertices: []string{},
		Bridges:     make([]graph.EdgeRef, 0, len(bridgeSet)),
	}
	for i, isCut := range cut {
		if isCut {
			res.CutVertices = append(res.CutVertices, ids[i])
		}
	}
	sort.Strings(res.CutVertices)
	for r := range bridgeSet {
		res.Bridges = append(res.Bridges, r)
	}
	graph.SortRefs(res.Bridges)
	return res
}

// ArticulationPoints returns the sorted ids whose removal disconnects their
// component.
func ArticulationPoints(ids []string, edges []graph.Edge) []string {
	return Tarjan(ids, edges).CutVertices
}

// Bridges returns the edges whose removal disconnects their endpoints.
func Bridges(ids []string, edges []graph.Edge) []graph.EdgeRef {
	return Tarjan(ids, edges).Bridges
}
