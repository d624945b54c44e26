// Package threshold chooses the similarity cutoff tau applied to the candidate
// edge list before sparsification.
//
// Three interchangeable strategies share one skeleton: draw a handful of
// candidate cutoffs from the similarity distribution, score the graph each
// cutoff would keep, and return the best one. They differ in the score:
//
//   - percolation: giant-component share, degree fit and isolate penalty;
//   - algebraic: algebraic connectivity lambda2 of the normalized Laplacian;
//   - non-backtracking: spectral radius of the non-backtracking operator,
//     searched for the value closest to a criticality target.
//
// Every strategy returns a usable result on degenerate input (zero or one
// candidate edge). Only cancellation is reported as an error.
package threshold

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// Mode selects a strategy.
type Mode string

const (
	ModePercolation     Mode = "percolation"
	ModeAlgebraic       Mode = "algebraic"
	ModeNonBacktracking Mode = "non-backtracking"
)

// ParseMode validates a mode name. The empty string selects percolation.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePercolation:
		return ModePercolation, nil
	case ModeAlgebraic:
		return ModeAlgebraic, nil
	case ModeNonBacktracking, "nonbacktracking", "nb":
		return ModeNonBacktracking, nil
	}
	return "", fmt.Errorf("threshold mode '%s' not supported", s)
}

// Target average degree bounds accepted from callers.
const (
	MinTargetAvgDegree = 0.5
	MaxTargetAvgDegree = 4.0
)

// ClampTarget clamps d to [MinTargetAvgDegree, MaxTargetAvgDegree].
func ClampTarget(d float64) float64 {
	if math.IsNaN(d) {
		return MinTargetAvgDegree
	}
	return math.Min(MaxTargetAvgDegree, math.Max(MinTargetAvgDegree, d))
}

// PercolationWeights are the scoring constants of the percolation heuristic.
// They are tunable defaults, not correctness constraints.
type PercolationWeights struct {
	Quantiles       int     `yaml:"quantiles" json:"quantiles"`
	GCCTarget       float64 `yaml:"gcc_target" json:"gcc_target"`
	GCCWeight       float64 `yaml:"gcc_weight" json:"gcc_weight"`
	DegreeWeight    float64 `yaml:"degree_weight" json:"degree_weight"`
	IsolatePenalty  float64 `yaml:"isolate_penalty" json:"isolate_penalty"`
	DenseDegree     float64 `yaml:"dense_degree" json:"dense_degree"`
	DensePenalty    float64 `yaml:"dense_penalty" json:"dense_penalty"`
	MinDegreeFactor float64 `yaml:"min_degree_factor" json:"min_degree_factor"`
	MaxDegreeFactor float64 `yaml:"max_degree_factor" json:"max_degree_factor"`
}

// AlgebraicParams configure the algebraic-connectivity strategy.
type AlgebraicParams struct {
	Quantiles        int     `yaml:"quantiles" json:"quantiles"`
	MaxIter          int     `yaml:"max_iter" json:"max_iter"`
	Tolerance        float64 `yaml:"tolerance" json:"tolerance"`
	DegreeWeight     float64 `yaml:"degree_weight" json:"degree_weight"`
	DenseDegree      float64 `yaml:"dense_degree" json:"dense_degree"`
	DensePenalty     float64 `yaml:"dense_penalty" json:"dense_penalty"`
	FallbackQuantile float64 `yaml:"fallback_quantile" json:"fallback_quantile"`
}

// NonBacktrackingParams configure the criticality search.
type NonBacktrackingParams struct {
	TargetRho       float64 `yaml:"target_rho" json:"target_rho"`
	Tolerance       float64 `yaml:"tolerance" json:"tolerance"`
	MaxIter         int     `yaml:"max_iter" json:"max_iter"`
	PowerTolerance  float64 `yaml:"power_tolerance" json:"power_tolerance"`
	MinDegreeFactor float64 `yaml:"min_degree_factor" json:"min_degree_factor"`
}

// Options configures Select.
type Options struct {
	Mode            Mode
	TargetAvgDegree float64
	Percolation     PercolationWeights
	Algebraic       AlgebraicParams
	NonBacktracking NonBacktrackingParams
	Logger          *slog.Logger
}

// DefaultOptions returns the documented defaults.
//
// Defaults:
//   - Mode: percolation, target average degree 1.4
//   - percolation: 24 quantiles, score 2*gcc + deg - 3*isolates - max(0, avg-3),
//     candidates outside [0.4, 2.5] * target rejected
//   - algebraic: 15 quantiles, 120 iterations, tolerance 1e-5, 70th percentile fallback
//   - non-backtracking: target rho 1.05 (log tolerance 0.02), 200 iterations
func DefaultOptions() Options {
	return Options{
		Mode:            ModePercolation,
		TargetAvgDegree: 1.4,
		Percolation: PercolationWeights{
			Quantiles:       24,
			GCCTarget:       0.6,
			GCCWeight:       2,
			DegreeWeight:    1,
			IsolatePenalty:  3,
			DenseDegree:     3,
			DensePenalty:    1,
			MinDegreeFactor: 0.4,
			MaxDegreeFactor: 2.5,
		},
		Algebraic: AlgebraicParams{
			Quantiles:        15,
			MaxIter:          120,
			Tolerance:        1e-5,
			DegreeWeight:     0.8,
			DenseDegree:      3,
			DensePenalty:     0.5,
			FallbackQuantile: 0.7,
		},
		NonBacktracking: NonBacktrackingParams{
			TargetRho:       1.05,
			Tolerance:       0.02,
			MaxIter:         200,
			PowerTolerance:  1e-4,
			MinDegreeFactor: 0.6,
		},
	}
}

// Result is the chosen cutoff and the edges it keeps.
type Result struct {
	Tau        float64           `json:"tau"`
	Kept       []graph.Edge      `json:"kept"`
	Diagnostic graph.Diagnostics `json:"diagnostic"`
	// Mode is the strategy that produced the result; it differs from the
	// requested one when a degenerate result was escalated.
	Mode   Mode    `json:"mode"`
	Events []error `json:"-"`
}

// Select runs the configured strategy over the candidate edges of a graph with
// nodeCount nodes.
func Select(ctx context.Context, nodeCount int, edges []graph.Edge, opts Options, sched *coop.Scheduler) (Result, error) {
	opts = withDefaults(opts)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := effectiveNodeCount(nodeCount, edges)

	if len(edges) == 0 {
		return Result{
			Tau:        1,
			Diagnostic: graph.Diagnostics{Tau: 1},
			Mode:       opts.Mode,
			Events:     []error{graph.ErrEmptyCandidateSet},
		}, nil
	}

	var (
		res Result
		err error
	)
	switch opts.Mode {
	case ModeAlgebraic:
		res, err = Algebraic(ctx, n, edges, opts, sched)
	case ModeNonBacktracking:
		res, err = NonBacktracking(ctx, n, edges, opts, sched)
	default:
		res, err = Percolation(ctx, n, edges, opts, sched)
	}
	if err != nil {
		return Result{}, err
	}

	if floor := min(n-1, 3); len(res.Kept) < floor && res.Mode != ModeAlgebraic {
		logger.Debug("degenerate threshold, escalating to algebraic connectivity",
			"mode", res.Mode, "kept", len(res.Kept), "floor", floor)
		res.Events = append(res.Events, graph.ErrDegenerateThreshold)
		alt, err := Algebraic(ctx, n, edges, opts, sched)
		if err != nil {
			return Result{}, err
		}
		if len(alt.Kept) > len(res.Kept) {
			alt.Events = append(res.Events, alt.Events...)
			res = alt
		}
	}
	return res, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = def.Mode
	}
	if opts.TargetAvgDegree == 0 {
		opts.TargetAvgDegree = def.TargetAvgDegree
	}
	opts.TargetAvgDegree = ClampTarget(opts.TargetAvgDegree)
	if opts.Percolation.Quantiles <= 0 {
		opts.Percolation = def.Percolation
	}
	if opts.Algebraic.Quantiles <= 0 {
		opts.Algebraic = def.Algebraic
	}
	if opts.NonBacktracking.TargetRho <= 0 {
		opts.NonBacktracking = def.NonBacktracking
	}
	return opts
}

// effectiveNodeCount guards against callers passing fewer nodes than the edges
// reference.
func effectiveNodeCount(n int, edges []graph.Edge) int {
	seen := make(map[string]struct{}, 2*len(edges))
	for _, e := range edges {
		seen[e.Source] = struct{}{}
		seen[e.Target] = struct{}{}
	}
	return max(n, len(seen))
}

// Keep returns the edges with weight >= tau, in input order. Raising tau never
// keeps more edges.
func Keep(edges []graph.Edge, tau float64) []graph.Edge {
	kept := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Weight >= tau {
			kept = append(kept, e)
		}
	}
	return kept
}

// sortedWeights returns the finite edge weights in ascending order.
func sortedWeights(edges []graph.Edge) []float64 {
	w := make([]float64, 0, len(edges))
	for _, e := range edges {
		if !math.IsNaN(e.Weight) && !math.IsInf(e.Weight, 0) {
			w = append(w, e.Weight)
		}
	}
	sort.Float64s(w)
	return w
}

// Candidates returns the global minimum, q interior empirical quantiles and the
// global maximum of the ascending slice sorted, without consecutive duplicates.
func Candidates(sorted []float64, q int) []float64 {
	if len(sorted) == 0 {
		return nil
	}
	out := make([]float64, 0, q+2)
	push := func(v float64) {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	push(sorted[0])
	for i := 1; i <= q; i++ {
		push(stat.Quantile(float64(i)/float64(q+1), stat.Empirical, sorted, nil))
	}
	push(sorted[len(sorted)-1])
	return out
}

// quantile returns the empirical p-quantile of an ascending slice.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 1
	}
	return stat.Quantile(math.Min(1, math.Max(0, p)), stat.Empirical, sorted, nil)
}

// indexEdges maps endpoint ids to dense indices in first-seen order.
func indexEdges(edges []graph.Edge) map[string]int {
	idx := make(map[string]int, 2*len(edges))
	for _, e := range edges {
		if _, ok := idx[e.Source]; !ok {
			idx[e.Source] = len(idx)
		}
		if _, ok := idx[e.Target]; !ok {
			idx[e.Target] = len(idx)
		}
	}
	return idx
}

func finalize(tau float64, kept []graph.Edge, n int, mode Mode) Result {
	return Result{
		Tau:        tau,
		Kept:       kept,
		Mode:       mode,
		Diagnostic: graph.Diagnostics{Tau: tau, AvgDeg: graph.AvgDegree(len(kept), n)},
	}
}
