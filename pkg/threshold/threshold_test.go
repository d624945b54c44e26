package threshold

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

func edge(a, b string, w float64) graph.Edge {
	r := graph.NewEdgeRef(a, b)
	return graph.Edge{Source: r.A, Target: r.B, Weight: w, Kind: graph.KindSemantic}
}

// barbell is two 0.9-similarity triangles joined by a weaker 0.5 bridge.
func barbell() []graph.Edge {
	return []graph.Edge{
		edge("a", "b", 0.9), edge("b", "c", 0.9), edge("a", "c", 0.9),
		edge("d", "e", 0.9), edge("e", "f", 0.9), edge("d", "f", 0.9),
		edge("c", "d", 0.5),
	}
}

func complete(n int, w float64) []graph.Edge {
	var out []graph.Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j), w))
		}
	}
	return out
}

func randomEdges(seed int64, n, m int) []graph.Edge {
	r := rand.New(rand.NewSource(seed))
	seen := make(map[graph.EdgeRef]bool)
	var out []graph.Edge
	for len(out) < m {
		i, j := r.Intn(n), r.Intn(n)
		if i == j {
			continue
		}
		e := edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j), math.Round(r.Float64()*100)/100)
		if seen[e.Ref()] {
			continue
		}
		seen[e.Ref()] = true
		out = append(out, e)
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePercolation, m)

	m, err = ParseMode("nb")
	require.NoError(t, err)
	assert.Equal(t, ModeNonBacktracking, m)

	_, err = ParseMode("spectral")
	assert.Error(t, err)
}

func TestClampTarget(t *testing.T) {
	assert.Equal(t, 0.5, ClampTarget(0.1))
	assert.Equal(t, 4.0, ClampTarget(9))
	assert.Equal(t, 1.4, ClampTarget(1.4))
	assert.Equal(t, 0.5, ClampTarget(math.NaN()))
}

func TestCandidatesAscendingDistinct(t *testing.T) {
	w := sortedWeights(randomEdges(3, 20, 60))
	c := Candidates(w, 24)
	require.NotEmpty(t, c)
	assert.Equal(t, w[0], c[0])
	assert.Equal(t, w[len(w)-1], c[len(c)-1])
	assert.True(t, sort.Float64sAreSorted(c))
	for i := 1; i < len(c); i++ {
		assert.NotEqual(t, c[i-1], c[i])
	}
	assert.LessOrEqual(t, len(c), 26)

	assert.Equal(t, []float64{0.7}, Candidates([]float64{0.7, 0.7, 0.7}, 24))
	assert.Nil(t, Candidates(nil, 24))
}

func TestKeepIsMonotone(t *testing.T) {
	edges := randomEdges(7, 25, 80)
	prev := len(edges) + 1
	for _, tau := range Candidates(sortedWeights(edges), 24) {
		kept := Keep(edges, tau)
		assert.LessOrEqual(t, len(kept), prev)
		for _, e := range kept {
			assert.GreaterOrEqual(t, e.Weight, tau)
		}
		prev = len(kept)
	}
}

func TestSelectNoEdges(t *testing.T) {
	for _, mode := range []Mode{ModePercolation, ModeAlgebraic, ModeNonBacktracking} {
		t.Run(string(mode), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Mode = mode
			res, err := Select(context.Background(), 5, nil, opts, nil)
			require.NoError(t, err)
			assert.Equal(t, 1.0, res.Tau)
			assert.Empty(t, res.Kept)
			assert.Contains(t, res.Events, graph.ErrEmptyCandidateSet)
		})
	}
}

func TestSelectSingleEdge(t *testing.T) {
	for _, mode := range []Mode{ModePercolation, ModeAlgebraic, ModeNonBacktracking} {
		t.Run(string(mode), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Mode = mode
			res, err := Select(context.Background(), 2, []graph.Edge{edge("a", "b", 0.42)}, opts, nil)
			require.NoError(t, err)
			assert.Equal(t, 0.42, res.Tau)
			assert.Len(t, res.Kept, 1)
		})
	}
}

func TestPercolationDropsWeakBridge(t *testing.T) {
	res, err := Percolation(context.Background(), 6, barbell(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Tau)
	assert.Len(t, res.Kept, 6)
	require.NotNil(t, res.Diagnostic.GCCShare)
	assert.InDelta(t, 0.5, *res.Diagnostic.GCCShare, 1e-12)
	assert.InDelta(t, 2.0, res.Diagnostic.AvgDeg, 1e-12)
}

func TestPercolationIsDeterministic(t *testing.T) {
	edges := randomEdges(11, 30, 90)
	a, err := Percolation(context.Background(), 30, edges, DefaultOptions(), nil)
	require.NoError(t, err)
	b, err := Percolation(context.Background(), 30, edges, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Tau, b.Tau)
	assert.Equal(t, a.Kept, b.Kept)
}

func TestNonBacktrackingKeepsBarbell(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = ModeNonBacktracking
	res, err := Select(context.Background(), 6, barbell(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeNonBacktracking, res.Mode)
	assert.Equal(t, 0.5, res.Tau)
	assert.Len(t, res.Kept, 7)
	require.NotNil(t, res.Diagnostic.Rho)
	assert.Greater(t, *res.Diagnostic.Rho, 0.8)
	assert.Less(t, *res.Diagnostic.Rho, 1.05)
}

func TestAlgebraicReportsLambda2(t *testing.T) {
	opts := DefaultOptions()
	opts.Mode = ModeAlgebraic
	res, err := Select(context.Background(), 6, barbell(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAlgebraic, res.Mode)
	assert.NotEmpty(t, res.Kept)
	require.NotNil(t, res.Diagnostic.Lambda2)
	assert.GreaterOrEqual(t, *res.Diagnostic.Lambda2, 0.0)
}

func TestLambda2KnownGraphs(t *testing.T) {
	// Path of three nodes: normalized Laplacian spectrum {0, 1, 2}.
	l2, unstable, err := Lambda2([]graph.Edge{edge("a", "b", 1), edge("b", "c", 1)}, 120, 1e-9, nil)
	require.NoError(t, err)
	assert.False(t, unstable)
	assert.InDelta(t, 1.0, l2, 1e-6)

	// K4 is regular, so the uniform start vector is deflated away entirely.
	l2, _, err = Lambda2(complete(4, 1), 120, 1e-9, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, l2, 1e-6)

	// Disconnected graphs have lambda2 = 0.
	l2, _, err = Lambda2([]graph.Edge{edge("a", "b", 1), edge("c", "d", 1)}, 120, 1e-9, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, l2, 1e-6)
}

// normalizedLaplacianLambda2 computes the reference value with a dense
// symmetric eigensolver.
func normalizedLaplacianLambda2(t *testing.T, edges []graph.Edge) float64 {
	idx := indexEdges(edges)
	n := len(idx)
	a := mat.NewSymDense(n, nil)
	deg := make([]float64, n)
	for _, e := range edges {
		u, v := idx[e.Source], idx[e.Target]
		a.SetSym(u, v, a.At(u, v)+e.Weight)
		deg[u] += e.Weight
		deg[v] += e.Weight
	}
	l := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := -a.At(i, j) / math.Sqrt(deg[i]*deg[j])
			if i == j {
				v = 1
			}
			l.SetSym(i, j, v)
		}
	}
	var es mat.EigenSym
	require.True(t, es.Factorize(l, false))
	vals := es.Values(nil)
	sort.Float64s(vals)
	return vals[1]
}

func TestLambda2MatchesEigenSolver(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for trial := 0; trial < 5; trial++ {
		const n = 9
		var edges []graph.Edge
		for i := 0; i < n; i++ {
			edges = append(edges, edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", (i+1)%n), 0.3+0.7*r.Float64()))
		}
		for k := 0; k < 4; k++ {
			i, j := r.Intn(n), r.Intn(n)
			if i == j || (i+1)%n == j || (j+1)%n == i {
				continue
			}
			edges = append(edges, edge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", j), 0.3+0.7*r.Float64()))
		}

		want := normalizedLaplacianLambda2(t, edges)
		got, unstable, err := Lambda2(edges, 20000, 1e-12, nil)
		require.NoError(t, err)
		assert.False(t, unstable)
		assert.InDelta(t, want, got, 1e-4, "trial %d", trial)
	}
}

func TestSpectralRadius(t *testing.T) {
	triangle := []graph.Edge{edge("a", "b", 1), edge("b", "c", 1), edge("a", "c", 1)}
	rho, err := SpectralRadius(triangle, 200, 1e-9, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rho, 1e-9)

	weighted := []graph.Edge{edge("a", "b", 0.9), edge("b", "c", 0.9), edge("a", "c", 0.9)}
	rho, err = SpectralRadius(weighted, 200, 1e-9, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.81, rho, 1e-9)

	// d-regular graphs have rho = d-1.
	rho, err = SpectralRadius(complete(4, 1), 200, 1e-9, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rho, 1e-9)

	// Trees have no closed non-backtracking walk.
	rho, err = SpectralRadius([]graph.Edge{edge("a", "b", 1), edge("b", "c", 1), edge("b", "d", 1)}, 200, 1e-9, nil)
	require.NoError(t, err)
	assert.Zero(t, rho)
}

func TestSelectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched := coop.New(ctx, nil, 1)
	for _, mode := range []Mode{ModePercolation, ModeAlgebraic, ModeNonBacktracking} {
		opts := DefaultOptions()
		opts.Mode = mode
		_, err := Select(ctx, 6, barbell(), opts, sched)
		assert.ErrorIs(t, err, context.Canceled, string(mode))
	}
}

// weightedPath is a-b-c-d-e with similarities falling from 0.9 to 0.6.
func weightedPath() []graph.Edge {
	return []graph.Edge{
		edge("a", "b", 0.9), edge("b", "c", 0.8), edge("c", "d", 0.7), edge("d", "e", 0.6),
	}
}

// sparsestWins scores a cutoff by -avgDegree only, so the highest admissible
// cutoff wins.
func sparsestWins(minFactor, maxFactor float64) PercolationWeights {
	return PercolationWeights{
		Quantiles:       24,
		GCCTarget:       0.6,
		DenseDegree:     0,
		DensePenalty:    1,
		MinDegreeFactor: minFactor,
		MaxDegreeFactor: maxFactor,
	}
}

func TestPercolationRejectsOutOfRangeDegree(t *testing.T) {
	opts := DefaultOptions()

	// Unbounded, the single 0.9 edge (avg 0.4) is the sparsest choice.
	opts.Percolation = sparsestWins(0, 100)
	res, err := Percolation(context.Background(), 5, weightedPath(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Tau)
	assert.Len(t, res.Kept, 1)

	// With [0.4, 2.5] * 1.4 = [0.56, 3.5] it is rejected and 0.8 wins.
	opts.Percolation = sparsestWins(0.4, 2.5)
	res, err = Percolation(context.Background(), 5, weightedPath(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Tau)
	assert.Len(t, res.Kept, 2)
	assert.Equal(t, ModePercolation, res.Mode)
	assert.Empty(t, res.Events)
}

func TestPercolationFallsBackToClosestDegree(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetAvgDegree = 1.3
	opts.Percolation = sparsestWins(10, 20)

	// Average degrees are 1.6, 1.2, 0.8 and 0.4; 1.2 is closest to 1.3.
	res, err := Percolation(context.Background(), 5, weightedPath(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.7, res.Tau)
	assert.Len(t, res.Kept, 3)
	assert.InDelta(t, 1.2, res.Diagnostic.AvgDeg, 1e-12)
}

func TestPercolationTiesKeepLowestCutoff(t *testing.T) {
	opts := DefaultOptions()
	opts.Percolation = PercolationWeights{Quantiles: 24, GCCTarget: 0.6, MaxDegreeFactor: 100}

	res, err := Percolation(context.Background(), 5, weightedPath(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.6, res.Tau)
	assert.Len(t, res.Kept, 4)
}

func TestSelectEscalatesDegenerateThreshold(t *testing.T) {
	// Two strong disjoint pairs joined by weaker links: the sparsest cutoff
	// keeps 2 edges, below min(n-1, 3).
	edges := []graph.Edge{
		edge("a", "b", 0.9), edge("c", "d", 0.9), edge("b", "c", 0.8), edge("d", "e", 0.7),
	}
	opts := DefaultOptions()
	opts.Percolation = sparsestWins(0, 100)

	res, err := Select(context.Background(), 5, edges, opts, nil)
	require.NoError(t, err)
	// Algebraic connectivity prefers the path a-b-c-d (lambda2 0.8/1.7) to
	// the disconnected pairs (lambda2 0).
	assert.Equal(t, ModeAlgebraic, res.Mode)
	assert.Equal(t, 0.8, res.Tau)
	assert.Len(t, res.Kept, 3)
	assert.Contains(t, res.Events, graph.ErrDegenerateThreshold)
	require.NotNil(t, res.Diagnostic.Lambda2)
	assert.InDelta(t, 0.8/1.7, *res.Diagnostic.Lambda2, 1e-3)
}

func TestSelectKeepsDegenerateResultWhenAlgebraicIsNoBetter(t *testing.T) {
	edges := []graph.Edge{edge("x", "y", 0.9), edge("y", "z", 0.5)}

	// Both cutoffs fall below 0.56; 0.5 (avg 0.4) is closest to the target.
	// Algebraic would keep the single 0.9 edge, which is not an improvement.
	res, err := Select(context.Background(), 10, edges, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModePercolation, res.Mode)
	assert.Equal(t, 0.5, res.Tau)
	assert.Len(t, res.Kept, 2)
	assert.Equal(t, []error{graph.ErrDegenerateThreshold}, res.Events)
}

func TestAlgebraicFallsBackToPercentile(t *testing.T) {
	edges := []graph.Edge{
		edge("a", "b", 0.1), edge("b", "c", 0.2), edge("c", "d", 0.3), edge("d", "e", 0.4), edge("e", "f", 0.5),
	}
	opts := DefaultOptions()
	// A NaN weight makes every candidate score incomparable.
	opts.Algebraic.DegreeWeight = math.NaN()

	res, err := Algebraic(context.Background(), 6, edges, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAlgebraic, res.Mode)
	assert.Equal(t, 0.4, res.Tau, "70th percentile of 5 weights")
	assert.Len(t, res.Kept, 2)
	assert.Nil(t, res.Diagnostic.Lambda2)
	assert.Contains(t, res.Events, graph.ErrEmptyCandidateSet)

	// No finite weight at all.
	nan := []graph.Edge{edge("a", "b", math.NaN()), edge("b", "c", math.NaN())}
	res, err = Algebraic(context.Background(), 3, nan, DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Tau)
	assert.Empty(t, res.Kept)
	assert.Contains(t, res.Events, graph.ErrEmptyCandidateSet)
}

// sparseCritical is a K4 at 0.72 (rho = 2*0.72^2, just under 1.05), a lone
// 0.95 pair and a 12-node path whose weights fall from 0.20 to 0.10. Trees
// add nothing to the non-backtracking radius.
func sparseCritical() []graph.Edge {
	edges := []graph.Edge{edge("p", "q", 0.95)}
	k4 := []string{"k0", "k1", "k2", "k3"}
	for i := range k4 {
		for j := i + 1; j < len(k4); j++ {
			edges = append(edges, edge(k4[i], k4[j], 0.72))
		}
	}
	for i := 0; i < 11; i++ {
		w := math.Round((0.20-0.01*float64(i))*100) / 100
		edges = append(edges, edge(fmt.Sprintf("t%02d", i), fmt.Sprintf("t%02d", i+1), w))
	}
	return edges
}

func TestNonBacktrackingOverridePrefersPercolation(t *testing.T) {
	// The search stops at 0.16 (12 edges, avg 0.8 over 30 nodes), below
	// 0.6*1.4. The clamp keeps 13 edges; percolation keeps all 18.
	res, err := NonBacktracking(context.Background(), 30, sparseCritical(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, ModeNonBacktracking, res.Mode)
	assert.Equal(t, 0.10, res.Tau)
	assert.Len(t, res.Kept, 18)
	assert.InDelta(t, 1.2, res.Diagnostic.AvgDeg, 1e-12)
	require.NotNil(t, res.Diagnostic.GCCShare)
	assert.InDelta(t, 0.4, *res.Diagnostic.GCCShare, 1e-12)
	require.NotNil(t, res.Diagnostic.Rho)
	assert.InDelta(t, 2*0.72*0.72, *res.Diagnostic.Rho, 5e-3)
}

func TestNonBacktrackingOverrideClampsToTopSimilarity(t *testing.T) {
	opts := DefaultOptions()
	// Percolation may now only keep 9 edges (avg 0.6), fewer than the clamp.
	opts.Percolation.MaxDegreeFactor = 0.45

	res, err := NonBacktracking(context.Background(), 30, sparseCritical(), opts, nil)
	require.NoError(t, err)
	// ceil(0.6*1.4*30/2) = 13 strongest edges: 0.95, six 0.72, 0.20 .. 0.15.
	assert.Equal(t, 0.15, res.Tau)
	assert.Len(t, res.Kept, 13)
	assert.Nil(t, res.Diagnostic.GCCShare)
	require.NotNil(t, res.Diagnostic.Rho)
	assert.InDelta(t, 2*0.72*0.72, *res.Diagnostic.Rho, 5e-3)
}

func TestTopSimilarity(t *testing.T) {
	tau, kept := topSimilarity(sparseCritical(), 3)
	assert.Equal(t, 0.72, tau, "ties at the boundary are all kept")
	assert.Len(t, kept, 7)

	tau, kept = topSimilarity(nil, 3)
	assert.Equal(t, 1.0, tau)
	assert.Empty(t, kept)
}
