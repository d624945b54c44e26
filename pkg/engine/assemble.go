package engine

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/cardgraph/pkg/graph"
)

// DegreeStats summarizes the unweighted degree distribution of a graph.
type DegreeStats struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Isolated int     `json:"isolated"`
	// ByKind counts edges per kind.
	ByKind map[graph.EdgeKind]int `json:"by_kind"`
}

// Assemble merges semantic edges with policy edges into a fresh Graph over
// cards, in card order. A pair linked by more than one producer becomes a
// single hybrid edge carrying the largest weight. Edges whose endpoints are
// not cards, and self-loops, are dropped.
func Assemble(cards []graph.Card, embeddings map[string][]float32, semantic []graph.Edge, extra ...[]graph.Edge) (graph.Graph, DegreeStats) {
	g := graph.Graph{Nodes: make([]graph.Node, len(cards))}
	known := make(map[string]bool, len(cards))
	for i, c := range cards {
		g.Nodes[i] = graph.Node{ID: c.ID, Embedding: embeddings[c.ID]}
		known[c.ID] = true
	}

	merged := make(map[graph.EdgeRef]graph.Edge, len(semantic))
	add := func(e graph.Edge) {
		if e.Source == e.Target || !known[e.Source] || !known[e.Target] {
			return
		}
		ref := e.Ref()
		e.Source, e.Target, e.IsBridge = ref.A, ref.B, false
		prev, ok := merged[ref]
		if !ok {
			merged[ref] = e
			return
		}
		if prev.Kind != e.Kind {
			prev.Kind = graph.KindHybrid
		}
		if e.Weight > prev.Weight {
			prev.Weight = e.Weight
		}
		merged[ref] = prev
	}
	for _, e := range semantic {
		add(e)
	}
	for _, list := range extra {
		for _, e := range list {
			add(e)
		}
	}

	g.Edges = make([]graph.Edge, 0, len(merged))
	for _, e := range merged {
		g.Edges = append(g.Edges, e)
	}
	graph.SortEdges(g.Edges)
	return g, degreeStats(g)
}

func degreeStats(g graph.Graph) DegreeStats {
	st := DegreeStats{ByKind: make(map[graph.EdgeKind]int)}
	if len(g.Nodes) == 0 {
		return st
	}
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}
	deg := make([]float64, len(g.Nodes))
	for _, e := range g.Edges {
		deg[index[e.Source]]++
		deg[index[e.Target]]++
		st.ByKind[e.Kind]++
	}
	st.Mean, st.StdDev = stat.PopMeanStdDev(deg, nil)
	st.Min, st.Max = floats.Min(deg), floats.Max(deg)
	for _, d := range deg {
		if d == 0 {
			st.Isolated++
		}
	}
	return st
}
