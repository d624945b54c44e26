package structure

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// EigenOptions bound the eigenvector-centrality power iteration.
type EigenOptions struct {
	MaxIter   int     `yaml:"max_iter" json:"max_iter"`
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
}

// DefaultEigenOptions is used for full rebuilds.
func DefaultEigenOptions() EigenOptions { return EigenOptions{MaxIter: 100, Tolerance: 1e-6} }

// InteractiveEigenOptions trades precision for latency on re-analysis of an
// already displayed graph.
func InteractiveEigenOptions() EigenOptions { return EigenOptions{MaxIter: 50, Tolerance: 1e-3} }

// DegreeCentrality is the weighted degree of each node divided by the largest
// weighted degree. A graph without edges scores zero everywhere.
func DegreeCentrality(ids []string, edges []graph.Edge) map[string]float64 {
	adj := graph.NewAdjacency(ids, edges, nil)
	deg := make([]float64, adj.Len())
	var top float64
	for i := range deg {
		deg[i] = adj.WeightedDegree(i)
		top = math.Max(top, deg[i])
	}
	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		if top > 0 {
			out[id] = deg[i] / top
		} else {
			out[id] = 0
		}
	}
	return out
}

// EigenvectorCentrality returns the L2-normalized principal eigenvector of the
// weighted adjacency matrix. It iterates x <- x + Ax, which has the same
// principal eigenvector as A but does not oscillate on bipartite graphs, and
// stops when no coordinate moves more than Tolerance. Isolated nodes score 0,
// as does every node of a graph without edges. Negative weights count as 0.
func EigenvectorCentrality(ids []string, edges []graph.Edge, opts EigenOptions, sched *coop.Scheduler) (map[string]float64, error) {
	if opts.MaxIter <= 0 {
		opts = DefaultEigenOptions()
	}
	adj := graph.NewAdjacency(ids, edges, func(e graph.Edge) bool { return !(e.Weight > 0) })
	n := adj.Len()
	out := make(map[string]float64, n)
	for _, id := range ids {
		out[id] = 0
	}

	active := 0
	for i := 0; i < n; i++ {
		if adj.Degree(i) > 0 {
			active++
		}
	}
	if active == 0 {
		return out, nil
	}

	x := make([]float64, n)
	for i := range x {
		if adj.Degree(i) > 0 {
			x[i] = 1 / math.Sqrt(float64(active))
		}
	}
	next := make([]float64, n)
	for iter := 0; iter < opts.MaxIter; iter++ {
		for i := range next {
			s := x[i]
			for _, arc := range adj.Arcs[i] {
				s += arc.Weight * x[arc.To]
			}
			next[i] = s
		}
		nrm := floats.Norm(next, 2)
		if nrm == 0 || math.IsNaN(nrm) || math.IsInf(nrm, 0) {
			break
		}
		floats.Scale(1/nrm, next)
		delta := floats.Distance(next, x, math.Inf(1))
		x, next = next, x
		if err := sched.Point(); err != nil {
			return nil, err
		}
		if delta < opts.Tolerance {
			break
		}
	}

	for i, id := range ids {
		out[id] = x[i]
	}
	return out, nil
}
