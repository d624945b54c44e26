package threshold

import (
	"context"
	"math"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/unionfind"
)

// percolationStats is what one union-find pass learns about a cutoff.
type percolationStats struct {
	kept       []graph.Edge
	avgDeg     float64
	gccShare   float64
	isolateFrn float64
}

func percolationPass(n int, edges []graph.Edge, idx map[string]int, tau float64) percolationStats {
	kept := Keep(edges, tau)
	uf := unionfind.New(len(idx))
	for _, e := range kept {
		uf.Union(idx[e.Source], idx[e.Target])
	}
	// Nodes that never appear in a candidate edge are isolates at every cutoff.
	isolates := uf.Singletons() + (n - len(idx))
	gcc := uf.MaxSize()
	if gcc == 0 && n > 0 {
		gcc = 1
	}
	st := percolationStats{kept: kept, avgDeg: graph.AvgDegree(len(kept), n)}
	if n > 0 {
		st.gccShare = float64(gcc) / float64(n)
		st.isolateFrn = float64(isolates) / float64(n)
	}
	return st
}

// score implements 2*(1-|gcc-0.6|/0.6) + (1-|avg-d|/d) - 3*isolates - max(0, avg-3)
// with the constants taken from w.
func (w PercolationWeights) score(st percolationStats, target float64) float64 {
	gccScore := 1 - math.Abs(st.gccShare-w.GCCTarget)/w.GCCTarget
	degScore := 1 - math.Abs(st.avgDeg-target)/target
	dense := math.Max(0, st.avgDeg-w.DenseDegree)
	return w.GCCWeight*gccScore + w.DegreeWeight*degScore - w.IsolatePenalty*st.isolateFrn - w.DensePenalty*dense
}

// Percolation scores the min, max and interior quantiles of the similarity
// distribution by giant-component share, fit to the target degree and isolate
// fraction. Candidates whose average degree falls outside
// [MinDegreeFactor, MaxDegreeFactor] * target are rejected before scoring.
// Candidates are visited in ascending order and a later one must score
// strictly higher to win, so ties keep the lowest cutoff.
//
// If every candidate is rejected the one whose average degree is closest to
// the target is returned.
func Percolation(ctx context.Context, n int, edges []graph.Edge, opts Options, sched *coop.Scheduler) (Result, error) {
	opts = withDefaults(opts)
	w := opts.Percolation
	target := opts.TargetAvgDegree
	n = effectiveNodeCount(n, edges)

	taus := Candidates(sortedWeights(edges), w.Quantiles)
	if len(taus) == 0 {
		res := finalize(1, nil, n, ModePercolation)
		res.Events = []error{graph.ErrEmptyCandidateSet}
		return res, nil
	}
	idx := indexEdges(edges)

	var (
		best      *percolationStats
		bestTau   float64
		bestScore = math.Inf(-1)

		closest     *percolationStats
		closestTau  float64
		closestDist = math.Inf(1)
	)
	lo, hi := w.MinDegreeFactor*target, w.MaxDegreeFactor*target
	for _, tau := range taus {
		st := percolationPass(n, edges, idx, tau)
		if err := sched.Tick(len(edges)); err != nil {
			return Result{}, err
		}
		if d := math.Abs(st.avgDeg - target); d < closestDist {
			closestDist, closest, closestTau = d, &st, tau
		}
		if st.avgDeg < lo || st.avgDeg > hi {
			continue
		}
		if s := w.score(st, target); s > bestScore {
			bestScore, best, bestTau = s, &st, tau
		}
	}
	if best == nil {
		best, bestTau = closest, closestTau
	}

	res := finalize(bestTau, best.kept, n, ModePercolation)
	res.Diagnostic.GCCShare = graph.Float(best.gccShare)
	return res, nil
}
