package threshold

import (
	"context"
	"math"
	"sort"

	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/floats"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// distinctWeights returns the distinct finite edge weights in ascending order.
func distinctWeights(edges []graph.Edge) []float64 {
	tree := btree.NewBTreeG[float64](func(a, b float64) bool { return a < b })
	for _, e := range edges {
		if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
			continue
		}
		tree.Set(e.Weight)
	}
	out := make([]float64, 0, tree.Len())
	tree.Scan(func(w float64) bool {
		out = append(out, w)
		return true
	})
	return out
}

// NonBacktracking binary-searches the distinct similarity values for the cutoff
// whose kept graph has a non-backtracking spectral radius closest, in log
// space, to TargetRho. The search stops early once that distance is within
// Tolerance.
//
// When the selected graph is too sparse (average degree below
// MinDegreeFactor * target) the result is replaced by whichever of two
// alternatives reaches a higher average degree: the top ceil(0.6*d*n/2) edges
// by similarity, or the percolation choice. Ties keep the top-similarity clamp.
func NonBacktracking(ctx context.Context, n int, edges []graph.Edge, opts Options, sched *coop.Scheduler) (Result, error) {
	opts = withDefaults(opts)
	p := opts.NonBacktracking
	target := opts.TargetAvgDegree
	n = effectiveNodeCount(n, edges)

	values := distinctWeights(edges)
	if len(values) == 0 {
		res := finalize(1, nil, n, ModeNonBacktracking)
		res.Events = []error{graph.ErrEmptyCandidateSet}
		return res, nil
	}

	logTarget := math.Log(p.TargetRho)
	var (
		bestTau  float64
		bestKept []graph.Edge
		bestRho  float64
		bestDist = math.Inf(1)
	)
	lo, hi := 0, len(values)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		tau := values[mid]
		kept := Keep(edges, tau)
		rho, err := SpectralRadius(kept, p.MaxIter, p.PowerTolerance, sched)
		if err != nil {
			return Result{}, err
		}
		dist := math.Abs(math.Log(math.Max(rho, 1e-12)) - logTarget)
		if dist < bestDist {
			bestDist, bestTau, bestKept, bestRho = dist, tau, kept, rho
		}
		if dist <= p.Tolerance {
			break
		}
		if rho > p.TargetRho {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	res := finalize(bestTau, bestKept, n, ModeNonBacktracking)
	res.Diagnostic.Rho = graph.Float(bestRho)
	if res.Diagnostic.AvgDeg >= p.MinDegreeFactor*target {
		return res, nil
	}

	clampTau, clampKept := topSimilarity(edges, int(math.Ceil(p.MinDegreeFactor*target*float64(n)/2)))
	alt := finalize(clampTau, clampKept, n, ModeNonBacktracking)
	perc, err := Percolation(ctx, n, edges, opts, sched)
	if err != nil {
		return Result{}, err
	}
	if perc.Diagnostic.AvgDeg > alt.Diagnostic.AvgDeg {
		alt = finalize(perc.Tau, perc.Kept, n, ModeNonBacktracking)
		alt.Diagnostic.GCCShare = perc.Diagnostic.GCCShare
	}
	if alt.Diagnostic.AvgDeg <= res.Diagnostic.AvgDeg {
		return res, nil
	}
	rho, err := SpectralRadius(alt.Kept, p.MaxIter, p.PowerTolerance, sched)
	if err != nil {
		return Result{}, err
	}
	alt.Diagnostic.Rho = graph.Float(rho)
	return alt, nil
}

// topSimilarity keeps every edge whose weight is at least the k-th largest
// weight. Equal weights at the boundary are all kept so the result is a
// plain cutoff.
func topSimilarity(edges []graph.Edge, k int) (float64, []graph.Edge) {
	w := sortedWeights(edges)
	if len(w) == 0 || k <= 0 {
		return 1, nil
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(w)))
	tau := w[min(k, len(w))-1]
	return tau, Keep(edges, tau)
}

// SpectralRadius estimates the spectral radius of the weighted
// non-backtracking operator of the undirected graph formed by edges. Each
// undirected edge contributes two directed edges; the operator maps u->v to
// every v->w with w != u, scaled by the product of both weights. Negative
// weights are treated as zero. A graph with no non-backtracking walk of
// length two (a forest of stars, say) has radius zero.
func SpectralRadius(edges []graph.Edge, maxIter int, tol float64, sched *coop.Scheduler) (float64, error) {
	idx := indexEdges(edges)
	type dirEdge struct {
		from, to int
		w        float64
	}
	dir := make([]dirEdge, 0, 2*len(edges))
	out := make([][]int, len(idx))
	for _, e := range edges {
		u, v := idx[e.Source], idx[e.Target]
		w := math.Max(0, e.Weight)
		if u == v || w == 0 {
			continue
		}
		out[u] = append(out[u], len(dir))
		dir = append(dir, dirEdge{u, v, w})
		out[v] = append(out[v], len(dir))
		dir = append(dir, dirEdge{v, u, w})
	}
	m := len(dir)
	if m == 0 {
		return 0, nil
	}

	x := make([]float64, m)
	for i := range x {
		x[i] = 1 / math.Sqrt(float64(m))
	}
	y := make([]float64, m)
	var rho float64
	for iter := 0; iter < maxIter; iter++ {
		for i := range y {
			y[i] = 0
		}
		for ei, e := range dir {
			if x[ei] == 0 {
				continue
			}
			for _, fi := range out[e.to] {
				f := dir[fi]
				if f.to == e.from {
					continue
				}
				y[fi] += e.w * f.w * x[ei]
			}
		}
		nrm := floats.Norm(y, 2)
		if nrm == 0 || math.IsNaN(nrm) || math.IsInf(nrm, 0) {
			if nrm == 0 {
				return 0, nil
			}
			return rho, nil
		}
		prev := rho
		rho = nrm
		floats.Scale(1/nrm, y)
		x, y = y, x
		if err := sched.Point(); err != nil {
			return 0, err
		}
		if iter > 0 && math.Abs(rho-prev) < tol*math.Max(1, prev) {
			break
		}
	}
	return rho, nil
}
