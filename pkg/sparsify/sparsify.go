// Package sparsify prunes a thresholded edge set with component-aware degree
// caps. It favours edges that connect different clusters over edges that only
// densify a cluster, and it stops any single component from absorbing most of
// the graph.
package sparsify

import (
	"math"
	"sort"

	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/unionfind"
)

// Options configure LightJoin.
type Options struct {
	// TargetAvgDegree sets the intra-component edge budget round(d*n/2).
	TargetAvgDegree float64 `yaml:"target_avg_degree" json:"target_avg_degree"`
	// MaxDegree caps the degree of either endpoint of a bridge edge.
	MaxDegree int `yaml:"max_degree" json:"max_degree"`
	// MaxDegreeIntra caps the degree of either endpoint of an intra edge.
	MaxDegreeIntra int `yaml:"max_degree_intra" json:"max_degree_intra"`
	// MaxBridgesPerNode caps the bridge edges incident to one node.
	MaxBridgesPerNode int `yaml:"max_bridges_per_node" json:"max_bridges_per_node"`
	// MaxJoinedFraction caps the size of a component formed by a bridge at
	// ceil(f*n) nodes. Clamped to [0.3, 0.95].
	MaxJoinedFraction float64 `yaml:"max_joined_fraction" json:"max_joined_fraction"`
}

// Joined fraction bounds.
const (
	MinJoinedFraction = 0.3
	MaxJoinedFraction = 0.95
)

// DefaultOptions returns d=1.4, maxDegree 7, maxDegreeIntra 5, 2 bridges per
// node and a 0.65 joined fraction.
func DefaultOptions() Options {
	return Options{
		TargetAvgDegree:   1.4,
		MaxDegree:         7,
		MaxDegreeIntra:    5,
		MaxBridgesPerNode: 2,
		MaxJoinedFraction: 0.65,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TargetAvgDegree <= 0 {
		o.TargetAvgDegree = def.TargetAvgDegree
	}
	if o.MaxDegree <= 0 {
		o.MaxDegree = def.MaxDegree
	}
	if o.MaxDegreeIntra <= 0 {
		o.MaxDegreeIntra = def.MaxDegreeIntra
	}
	if o.MaxBridgesPerNode <= 0 {
		o.MaxBridgesPerNode = def.MaxBridgesPerNode
	}
	if o.MaxJoinedFraction == 0 || math.IsNaN(o.MaxJoinedFraction) {
		o.MaxJoinedFraction = def.MaxJoinedFraction
	}
	o.MaxJoinedFraction = ClampJoinedFraction(o.MaxJoinedFraction)
	return o
}

// ClampJoinedFraction clamps f to [MinJoinedFraction, MaxJoinedFraction].
func ClampJoinedFraction(f float64) float64 {
	return math.Min(MaxJoinedFraction, math.Max(MinJoinedFraction, f))
}

// Rejection reasons, counted in Result.Rejected.
const (
	RejectBudget        = "intra_budget"
	RejectIntraDegree   = "intra_degree"
	RejectBridgeDegree  = "bridge_degree"
	RejectBridgeCount   = "bridge_count"
	RejectComponentSize = "component_size"
	RejectUnknownNode   = "unknown_node"
)

// Result is the sparsified edge set.
type Result struct {
	Kept      []graph.Edge   `json:"kept"`
	AvgDegree float64        `json:"avg_degree"`
	Bridges   int            `json:"bridges"`
	Rejected  map[string]int `json:"rejected,omitempty"`
}

// LightJoin visits edges by descending weight and keeps each one unless a cap
// applies:
//
//   - an intra edge (endpoints already connected) is rejected once
//     round(TargetAvgDegree*n/2) edges are kept, or when either endpoint has
//     degree >= MaxDegreeIntra;
//   - a bridge edge is rejected when either endpoint has degree >= MaxDegree
//     or already MaxBridgesPerNode bridges, or when the merged component would
//     exceed ceil(MaxJoinedFraction*n) nodes.
//
// Bridges stay allowed after the budget is spent. Equal weights are visited
// in (Source, Target) order so the result does not depend on input order.
// Kept edges are returned in visit order.
func LightJoin(nodeIDs []string, edges []graph.Edge, opts Options) Result {
	opts = opts.withDefaults()
	n := len(nodeIDs)
	res := Result{Rejected: make(map[string]int)}
	if n == 0 || len(edges) == 0 {
		return res
	}

	index := make(map[string]int, n)
	for i, id := range nodeIDs {
		index[id] = i
	}

	ordered := append([]graph.Edge(nil), edges...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Weight != ordered[j].Weight {
			return ordered[i].Weight > ordered[j].Weight
		}
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		return ordered[i].Target < ordered[j].Target
	})

	budget := int(math.Round(opts.TargetAvgDegree * float64(n) / 2))
	maxComp := int(math.Ceil(opts.MaxJoinedFraction * float64(n)))

	uf := unionfind.New(n)
	deg := make([]int, n)
	bridges := make([]int, n)
	kept := make([]graph.Edge, 0, min(len(ordered), budget+n))

	for _, e := range ordered {
		u, okU := index[e.Source]
		v, okV := index[e.Target]
		if !okU || !okV || u == v {
			res.Rejected[RejectUnknownNode]++
			continue
		}

		if uf.Same(u, v) {
			switch {
			case len(kept) >= budget:
				res.Rejected[RejectBudget]++
				continue
			case deg[u] >= opts.MaxDegreeIntra || deg[v] >= opts.MaxDegreeIntra:
				res.Rejected[RejectIntraDegree]++
				continue
			}
		} else {
			switch {
			case deg[u] >= opts.MaxDegree || deg[v] >= opts.MaxDegree:
				res.Rejected[RejectBridgeDegree]++
				continue
			case bridges[u] >= opts.MaxBridgesPerNode || bridges[v] >= opts.MaxBridgesPerNode:
				res.Rejected[RejectBridgeCount]++
				continue
			case uf.MergedSize(u, v) > maxComp:
				res.Rejected[RejectComponentSize]++
				continue
			}
			bridges[u]++
			bridges[v]++
			res.Bridges++
			uf.Union(u, v)
		}

		deg[u]++
		deg[v]++
		kept = append(kept, e)
	}

	res.Kept = kept
	res.AvgDegree = graph.AvgDegree(len(kept), n)
	return res
}
