// Package engine runs the card graph pipeline end to end.
//
// A rebuild is a pure function of its inputs: candidate similarity edges,
// threshold selection, light-join sparsification, assembly with metadata
// links and structural analysis. The Engine holds configuration only, so one
// Engine may serve concurrent rebuilds.
//
// Basic usage:
//
//	eng := engine.New(engine.DefaultOptions())
//	res, err := eng.Build(ctx, cards, embeddings)
//	if err != nil {
//	    return err
//	}
//	render(res.Graph, res.Context.Diagnostics)
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/metrics"
	"github.com/sanonone/cardgraph/pkg/similarity"
	"github.com/sanonone/cardgraph/pkg/sparsify"
	"github.com/sanonone/cardgraph/pkg/split"
	"github.com/sanonone/cardgraph/pkg/structure"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

// Options configures an Engine.
type Options struct {
	// TargetAvgDegree is the preferred average degree, shared by threshold
	// selection and, unless Sparsify sets its own, the light-join budget.
	// Clamped to [0.5, 4].
	TargetAvgDegree float64

	Similarity similarity.Options
	Threshold  threshold.Options
	Sparsify   sparsify.Options
	// SkipLightJoin passes the thresholded edges through unchanged.
	SkipLightJoin bool
	// Policies add non-semantic edges during assembly.
	Policies  []LinkPolicy
	Structure structure.Options

	// Yield is called every YieldEvery work units and at every power
	// iteration sweep. Cancellation of the rebuild context is checked at
	// the same points.
	Yield      func()
	YieldEvery int

	Logger *slog.Logger
}

// DefaultOptions returns a configuration suitable for decks of a few thousand
// cards.
//
// Defaults:
//   - TargetAvgDegree: 1.4
//   - Similarity: top 40 neighbours, float32
//   - Threshold: percolation
//   - Sparsify: light join with maxDegree 7, maxDegreeIntra 5, 2 bridges per node, 0.65 joined fraction
//   - Policies: shared tags (Jaccard, 5 per card) and same source URL
//   - Structure: eigenvector centrality, 100 iterations, 1e-6
//   - YieldEvery: 1000 work units
func DefaultOptions() Options {
	sp := sparsify.DefaultOptions()
	sp.TargetAvgDegree = 0 // follows TargetAvgDegree
	return Options{
		TargetAvgDegree: 1.4,
		Similarity:      similarity.DefaultOptions(),
		Threshold:       threshold.DefaultOptions(),
		Sparsify:        sp,
		Policies: []LinkPolicy{
			SharedTagPolicy{MinShared: 1, MaxGroup: 200, MaxPerNode: 5},
			SameSourcePolicy{Weight: 0.5},
		},
		Structure:  structure.DefaultOptions(),
		YieldEvery: coop.DefaultEvery,
	}
}

// Engine runs rebuilds with a fixed configuration.
type Engine struct {
	opts   Options
	sim    *similarity.Computer
	logger *slog.Logger
}

// New creates an Engine. The target degree is clamped and propagated to the
// threshold and sparsify stages.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TargetAvgDegree == 0 {
		opts.TargetAvgDegree = DefaultOptions().TargetAvgDegree
	}
	opts.TargetAvgDegree = threshold.ClampTarget(opts.TargetAvgDegree)
	opts.Threshold.TargetAvgDegree = opts.TargetAvgDegree
	if opts.Sparsify.TargetAvgDegree == 0 {
		opts.Sparsify.TargetAvgDegree = opts.TargetAvgDegree
	}
	if opts.Threshold.Logger == nil {
		opts.Threshold.Logger = logger
	}
	if opts.Similarity.Logger == nil {
		opts.Similarity.Logger = logger
	}
	if opts.Structure.Eigen.MaxIter == 0 {
		opts.Structure.Eigen = structure.DefaultEigenOptions()
	}
	return &Engine{
		opts:   opts,
		sim:    similarity.NewComputer(opts.Similarity),
		logger: logger,
	}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// Result is the output of a rebuild.
type Result struct {
	// Graph carries the annotations: IsBridge on edges and IsCutVertex,
	// CompID and Centrality on nodes.
	Graph       graph.Graph       `json:"graph"`
	Annotations graph.Annotations `json:"annotations"`
	Context     *AnalysisContext  `json:"context"`
}

// Build runs the full pipeline. The only errors are malformed input
// (graph.ErrDuplicateID, graph.ErrEmptyID) and cancellation of ctx; every other
// problem degrades the result and is recorded in Result.Context.Events.
func (e *Engine) Build(ctx context.Context, cards []graph.Card, embeddings map[string][]float32) (*Result, error) {
	start := time.Now()
	res, err := e.build(ctx, cards, embeddings)
	mode := string(e.opts.Threshold.Mode)
	if mode == "" {
		mode = string(threshold.ModePercolation)
	}
	metrics.RebuildDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.RebuildsTotal.WithLabelValues("ok").Inc()
		e.observe(res)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		metrics.RebuildsTotal.WithLabelValues("canceled").Inc()
		e.logger.Debug("rebuild canceled", "cards", len(cards), "elapsed", time.Since(start))
	default:
		metrics.RebuildsTotal.WithLabelValues("failed").Inc()
	}
	return res, err
}

func (e *Engine) build(ctx context.Context, cards []graph.Card, embeddings map[string][]float32) (*Result, error) {
	ids := make([]string, len(cards))
	seen := make(map[string]bool, len(cards))
	for i, c := range cards {
		if c.ID == "" {
			return nil, fmt.Errorf("card %d: %w", i, graph.ErrEmptyID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: %s", graph.ErrDuplicateID, c.ID)
		}
		seen[c.ID] = true
		ids[i] = c.ID
	}

	sched := coop.New(ctx, e.opts.Yield, e.opts.YieldEvery)
	ac := &AnalysisContext{}

	cand, err := e.sim.Compute(ctx, cards, embeddings, sched)
	if err != nil {
		return nil, err
	}
	ac.Similarity = SimilarityInfo{Method: cand.Method, Candidates: len(cand.Edges), Covered: cand.Covered}
	ac.record(StageSimilarity, cand.Events...)

	sel, err := threshold.Select(ctx, len(cards), cand.Edges, e.opts.Threshold, sched)
	if err != nil {
		return nil, err
	}
	ac.Diagnostics = sel.Diagnostic
	ac.Threshold = ThresholdInfo{Requested: e.opts.Threshold.Mode, Used: sel.Mode, Kept: len(sel.Kept)}
	if ac.Threshold.Requested == "" {
		ac.Threshold.Requested = threshold.ModePercolation
	}
	ac.record(StageThreshold, sel.Events...)

	semantic := sel.Kept
	if !e.opts.SkipLightJoin {
		lj := sparsify.LightJoin(ids, sel.Kept, e.opts.Sparsify)
		semantic = lj.Kept
		ac.Sparsify = SparsifyInfo{
			Enabled:   true,
			Kept:      len(lj.Kept),
			Bridges:   lj.Bridges,
			AvgDegree: lj.AvgDegree,
			Rejected:  lj.Rejected,
		}
	} else {
		ac.Sparsify = SparsifyInfo{Kept: len(semantic), AvgDegree: graph.AvgDegree(len(semantic), len(ids))}
	}
	if err := sched.Tick(len(semantic)); err != nil {
		return nil, err
	}

	extra := make([][]graph.Edge, 0, len(e.opts.Policies))
	for _, p := range e.opts.Policies {
		extra = append(extra, p.Links(cards))
	}
	g, stats := Assemble(cards, embeddings, semantic, extra...)
	ac.Stats = stats

	ann, err := structure.AnalyzeWith(g, e.opts.Structure, sched)
	if err != nil {
		return nil, err
	}

	for _, ev := range ac.Events {
		e.logger.Warn("rebuild degraded", "stage", ev.Stage, "reason", ev.Reason, "error", ev.Message)
	}
	e.logger.Info("graph rebuilt",
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"method", cand.Method,
		"mode", sel.Mode,
		"tau", sel.Tau,
		"avg_degree", stats.Mean,
		"yields", sched.Yields,
	)
	return &Result{Graph: ann.Apply(g), Annotations: ann, Context: ac}, nil
}

func (e *Engine) observe(res *Result) {
	metrics.ThresholdTau.Set(res.Context.Diagnostics.Tau)
	metrics.GraphNodes.Set(float64(len(res.Graph.Nodes)))
	for _, k := range []graph.EdgeKind{graph.KindSemantic, graph.KindTag, graph.KindSource, graph.KindHybrid} {
		metrics.GraphEdges.WithLabelValues(string(k)).Set(float64(res.Context.Stats.ByKind[k]))
	}
	for _, ev := range res.Context.Events {
		metrics.DegradationsTotal.WithLabelValues(ev.Stage, ev.Reason).Inc()
	}
}

// Analyze re-runs structural analysis on a graph built elsewhere and returns
// the annotated copy.
func (e *Engine) Analyze(ctx context.Context, g graph.Graph, opts structure.Options) (graph.Graph, graph.Annotations, error) {
	if opts.Yield == nil {
		opts.Yield, opts.YieldEvery = e.opts.Yield, e.opts.YieldEvery
	}
	ann, err := structure.Analyze(ctx, g, opts)
	if err != nil {
		return graph.Graph{}, graph.Annotations{}, err
	}
	return ann.Apply(g), ann, nil
}

// ErrEmptySelection is returned by Split when neither a bridge nor a vertex is
// selected.
var ErrEmptySelection = errors.New("selection needs a bridge or a vertex")

// Split partitions g around the selected bridge or cut vertex.
func Split(g graph.Graph, sel Selection) (split.Split, error) {
	ids := g.NodeIDs()
	switch {
	case sel.Bridge != nil:
		return split.ByBridge(ids, g.Edges, *sel.Bridge)
	case sel.Vertex != "":
		return split.ByCutVertex(ids, g.Edges, sel.Vertex)
	}
	return split.Split{}, ErrEmptySelection
}

// SplitOn computes the split for sel on the rebuilt graph and records both in
// the analysis context.
func (r *Result) SplitOn(sel Selection) (split.Split, error) {
	s, err := Split(r.Graph, sel)
	if err != nil {
		return split.Split{}, err
	}
	r.Context.Selection = &sel
	r.Context.Split = &s
	return s, nil
}
