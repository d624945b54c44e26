package threshold

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// Algebraic picks, among the min, max and interior quantile cutoffs, the one
// maximizing lambda2 - 0.8*|avg-d|/d - 0.5*max(0, avg-3), where lambda2 is the
// algebraic connectivity of the normalized Laplacian of the kept graph.
// Cutoffs that keep no edge are skipped; if none keeps anything the 70th
// percentile similarity is used.
func Algebraic(ctx context.Context, n int, edges []graph.Edge, opts Options, sched *coop.Scheduler) (Result, error) {
	opts = withDefaults(opts)
	p := opts.Algebraic
	target := opts.TargetAvgDegree
	n = effectiveNodeCount(n, edges)

	sorted := sortedWeights(edges)
	taus := Candidates(sorted, p.Quantiles)

	var (
		found     bool
		bestTau   float64
		bestKept  []graph.Edge
		bestL2    float64
		bestScore = math.Inf(-1)
		events    []error
	)
	for _, tau := range taus {
		kept := Keep(edges, tau)
		if len(kept) == 0 {
			continue
		}
		l2, unstable, err := Lambda2(kept, p.MaxIter, p.Tolerance, sched)
		if err != nil {
			return Result{}, err
		}
		if unstable {
			events = append(events, graph.ErrNumericInstability)
		}
		avg := graph.AvgDegree(len(kept), n)
		score := l2 - p.DegreeWeight*math.Abs(avg-target)/target - p.DensePenalty*math.Max(0, avg-p.DenseDegree)
		if score > bestScore {
			found = true
			bestScore, bestTau, bestKept, bestL2 = score, tau, kept, l2
		}
	}

	if !found {
		tau := quantile(sorted, p.FallbackQuantile)
		res := finalize(tau, Keep(edges, tau), n, ModeAlgebraic)
		res.Events = append(events, graph.ErrEmptyCandidateSet)
		return res, nil
	}
	res := finalize(bestTau, bestKept, n, ModeAlgebraic)
	res.Diagnostic.Lambda2 = graph.Float(bestL2)
	res.Events = events
	return res, nil
}

// Lambda2 estimates the second-smallest eigenvalue of the normalized Laplacian
// of the graph formed by edges, restricted to nodes with positive degree.
//
// It runs power iteration on (I+B)/2, B = D^-1/2 A D^-1/2, starting from a
// deterministic ramp and deflating against the dominant eigenvector
// sqrt(deg)/||sqrt(deg)|| after every multiply. Iteration stops when the
// largest coordinate change is below tol or after maxIter sweeps, and
// lambda2 = 1 - x'Bx. Negative weights are treated as zero.
//
// unstable reports that a NaN/Inf appeared and the estimate fell back to the
// last finite iterate.
func Lambda2(edges []graph.Edge, maxIter int, tol float64, sched *coop.Scheduler) (l2 float64, unstable bool, err error) {
	idx := indexEdges(edges)
	m := len(idx)
	if m < 2 {
		return 0, false, nil
	}

	type arc struct {
		to int
		w  float64
	}
	arcs := make([][]arc, m)
	deg := make([]float64, m)
	for _, e := range edges {
		u, v := idx[e.Source], idx[e.Target]
		w := math.Max(0, e.Weight)
		if u == v || w == 0 {
			continue
		}
		arcs[u] = append(arcs[u], arc{v, w})
		arcs[v] = append(arcs[v], arc{u, w})
		deg[u] += w
		deg[v] += w
	}

	invSqrt := make([]float64, m)
	v1 := make([]float64, m)
	for i, d := range deg {
		if d > 0 {
			invSqrt[i] = 1 / math.Sqrt(d)
			v1[i] = math.Sqrt(d)
		}
	}
	if nrm := floats.Norm(v1, 2); nrm > 0 {
		floats.Scale(1/nrm, v1)
	}

	// applyB writes B*x into out.
	applyB := func(x, out []float64) {
		for i := range out {
			var s float64
			for _, a := range arcs[i] {
				s += a.w * invSqrt[a.to] * x[a.to]
			}
			out[i] = s * invSqrt[i]
		}
	}
	deflate := func(x []float64) {
		floats.AddScaled(x, -floats.Dot(x, v1), v1)
	}
	rayleigh := func(x []float64) float64 {
		bx := make([]float64, m)
		applyB(x, bx)
		return floats.Dot(x, bx)
	}

	// A ramp rather than the uniform vector: on symmetric graphs the uniform
	// vector can miss the Fiedler direction entirely.
	x := make([]float64, m)
	for i := range x {
		x[i] = 1 + float64(i)/float64(m)
	}
	deflate(x)
	if nrm := floats.Norm(x, 2); nrm > 0 {
		floats.Scale(1/nrm, x)
	} else {
		return 0, false, nil
	}

	y := make([]float64, m)
	for iter := 0; iter < maxIter; iter++ {
		applyB(x, y)
		floats.Add(y, x)
		floats.Scale(0.5, y)
		deflate(y)

		nrm := floats.Norm(y, 2)
		if math.IsNaN(nrm) || math.IsInf(nrm, 0) {
			unstable = true
			break
		}
		if nrm < 1e-15 {
			// x lies in the eigenspace of B at -1; its Rayleigh quotient is exact.
			break
		}
		floats.Scale(1/nrm, y)

		var delta float64
		for i := range y {
			delta = math.Max(delta, math.Abs(y[i]-x[i]))
		}
		x, y = y, x
		if err := sched.Point(); err != nil {
			return 0, unstable, err
		}
		if delta < tol {
			break
		}
	}

	mu2 := rayleigh(x)
	if math.IsNaN(mu2) || math.IsInf(mu2, 0) {
		return 0, true, nil
	}
	return math.Min(2, math.Max(0, 1-mu2)), unstable, nil
}
