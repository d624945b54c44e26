// Package structure computes the structural annotations of a card graph:
// articulation points, bridges, connected components and node centrality.
//
// Everything here is a pure function of a node id list and an edge list, so a
// caller can re-run the analysis on a graph assembled elsewhere.
package structure

import (
	"context"
	"fmt"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// CentralityKind selects the per-node centrality score.
type CentralityKind string

const (
	CentralityEigenvector CentralityKind = "eigenvector"
	CentralityDegree      CentralityKind = "degree"
)

// ParseCentrality validates a centrality name. Empty selects eigenvector.
func ParseCentrality(s string) (CentralityKind, error) {
	switch CentralityKind(s) {
	case "", CentralityEigenvector:
		return CentralityEigenvector, nil
	case CentralityDegree:
		return CentralityDegree, nil
	}
	return "", fmt.Errorf("centrality '%s' not supported", s)
}

// Options configure Analyze.
type Options struct {
	// IgnoreBridges numbers components as if bridges were absent.
	IgnoreBridges bool           `yaml:"ignore_bridges" json:"ignore_bridges"`
	Centrality    CentralityKind `yaml:"centrality" json:"centrality"`
	Eigen         EigenOptions   `yaml:"eigen" json:"eigen"`

	// Yield is called every YieldEvery work units and once per power
	// iteration sweep.
	Yield      func() `yaml:"-" json:"-"`
	YieldEvery int    `yaml:"-" json:"-"`
}

// DefaultOptions returns eigenvector centrality with the full-rebuild
// iteration bounds, components counted with bridges present.
func DefaultOptions() Options {
	return Options{Centrality: CentralityEigenvector, Eigen: DefaultEigenOptions()}
}

// Analyze computes cut vertices, bridges, component ids and centrality for g.
// It returns early with ctx.Err() if ctx is cancelled at a yield point.
func Analyze(ctx context.Context, g graph.Graph, opts Options) (graph.Annotations, error) {
	return AnalyzeWith(g, opts, coop.New(ctx, opts.Yield, opts.YieldEvery))
}

// AnalyzeWith is Analyze with a scheduler shared with earlier stages.
func AnalyzeWith(g graph.Graph, opts Options, sched *coop.Scheduler) (graph.Annotations, error) {
	ids := g.NodeIDs()

	tr := Tarjan(ids, g.Edges)
	if err := sched.Tick(len(ids) + len(g.Edges)); err != nil {
		return graph.Annotations{}, err
	}
	bridges := make(map[graph.EdgeRef]bool, len(tr.Bridges))
	for _, r := range tr.Bridges {
		bridges[r] = true
	}
	cut := make(map[string]bool, len(tr.CutVertices))
	for _, id := range tr.CutVertices {
		cut[id] = true
	}

	marked := make([]graph.Edge, len(g.Edges))
	for i, e := range g.Edges {
		e.IsBridge = bridges[e.Ref()]
		marked[i] = e
	}
	labels, _ := Components(ids, marked, opts.IgnoreBridges)

	var (
		cent map[string]float64
		err  error
	)
	switch opts.Centrality {
	case CentralityDegree:
		cent = DegreeCentrality(ids, g.Edges)
	default:
		cent, err = EigenvectorCentrality(ids, g.Edges, opts.Eigen, sched)
		if err != nil {
			return graph.Annotations{}, err
		}
	}

	ann := graph.Annotations{
		Nodes:   make(map[string]graph.NodeAnnotation, len(ids)),
		Bridges: bridges,
	}
	for i, id := range ids {
		ann.Nodes[id] = graph.NodeAnnotation{
			IsCutVertex: cut[id],
			CompID:      labels[i],
			Centrality:  cent[id],
		}
	}
	return ann, nil
}
