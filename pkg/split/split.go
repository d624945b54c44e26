// Package split partitions a graph into two sides around a selected bridge or
// cut vertex, for drill-down views.
package split

import (
	"fmt"
	"sort"

	"github.com/sanonone/cardgraph/pkg/graph"
)

// Kind tells what the split was computed around.
type Kind string

const (
	KindBridge    Kind = "bridge"
	KindCutVertex Kind = "cut_vertex"
)

// Split is the two-sided view. Pivot is set for cut-vertex splits and Bridge
// for bridge splits. Dropped counts nodes left out of a cut-vertex split
// because they belong to a third or smaller component.
type Split struct {
	Kind    Kind           `json:"kind"`
	Bridge  *graph.EdgeRef `json:"bridge,omitempty"`
	Pivot   string         `json:"pivot,omitempty"`
	SideA   []string       `json:"side_a"`
	SideB   []string       `json:"side_b"`
	Dropped int            `json:"dropped"`
}

// ByBridge removes the edge ref (every parallel copy of it) and returns the
// nodes reachable from ref.A as side A and all other nodes as side B. If the
// edge is not a bridge side B holds only nodes outside A's component.
func ByBridge(ids []string, edges []graph.Edge, ref graph.EdgeRef) (Split, error) {
	ref = graph.NewEdgeRef(ref.A, ref.B)
	found := false
	for _, e := range edges {
		if e.Ref() == ref {
			found = true
			break
		}
	}
	if !found {
		return Split{}, fmt.Errorf("split on %s-%s: %w", ref.A, ref.B, graph.ErrUnknownEdge)
	}

	adj := graph.NewAdjacency(ids, edges, func(e graph.Edge) bool { return e.Ref() == ref })
	start, ok := adj.Index[ref.A]
	if !ok {
		return Split{}, fmt.Errorf("split on %s-%s: %w", ref.A, ref.B, graph.ErrUnknownNode)
	}
	visited := make([]bool, adj.Len())
	sideA := idsOf(adj, adj.BFS(start, visited))

	sideB := make([]string, 0, adj.Len()-len(sideA))
	for i, seen := range visited {
		if !seen {
			sideB = append(sideB, adj.IDs[i])
		}
	}
	sort.Strings(sideA)
	sort.Strings(sideB)
	return Split{Kind: KindBridge, Bridge: &ref, SideA: sideA, SideB: sideB}, nil
}

// ByCutVertex removes p and its incident edges, grows a component from each of
// p's former neighbours and returns the two largest as sides A and B. Ties are
// broken by the smallest member id. Smaller components are dropped from the
// view. If p has a single neighbouring component side B is empty.
func ByCutVertex(ids []string, edges []graph.Edge, p string) (Split, error) {
	skip := func(e graph.Edge) bool { return e.Source == p || e.Target == p }
	full := graph.NewAdjacency(ids, edges, nil)
	pi, ok := full.Index[p]
	if !ok {
		return Split{}, fmt.Errorf("split on %s: %w", p, graph.ErrUnknownNode)
	}
	adj := graph.NewAdjacency(ids, edges, skip)

	visited := make([]bool, adj.Len())
	visited[pi] = true
	var comps [][]string
	for _, arc := range full.Arcs[pi] {
		if c := adj.BFS(arc.To, visited); len(c) > 0 {
			members := idsOf(adj, c)
			sort.Strings(members)
			comps = append(comps, members)
		}
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})

	s := Split{Kind: KindCutVertex, Pivot: p, SideA: []string{}, SideB: []string{}}
	if len(comps) > 0 {
		s.SideA = comps[0]
	}
	if len(comps) > 1 {
		s.SideB = comps[1]
	}
	for _, c := range comps[min(2, len(comps)):] {
		s.Dropped += len(c)
	}
	return s, nil
}

func idsOf(adj *graph.Adjacency, idx []int) []string {
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = adj.IDs[v]
	}
	return out
}
