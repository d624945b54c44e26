// Package graph defines the data model shared by every stage of the card graph
// pipeline: cards, nodes, undirected weighted edges and the structural
// annotations produced by analysis.
//
// All values are plain data. Stages never mutate a Graph in place; each one
// returns a fresh edge list or annotation set.
package graph

import (
	"encoding/json"
	"sort"
)

// Card is a flashcard as supplied by the host. Only ID is required.
type Card struct {
	ID        string   `json:"id"`
	Front     string   `json:"front,omitempty"`
	Back      string   `json:"back,omitempty"`
	Context   string   `json:"context,omitempty"`
	Notes     string   `json:"notes,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	UpdatedAt int64    `json:"updated_at,omitempty"`
}

// Text concatenates the textual fields used by the TF-IDF fallback.
func (c Card) Text() string {
	parts := make([]byte, 0, len(c.Front)+len(c.Back)+len(c.Context)+len(c.Notes)+16)
	for _, s := range []string{c.Front, c.Back, c.Context, c.Notes} {
		if s == "" {
			continue
		}
		parts = append(parts, s...)
		parts = append(parts, ' ')
	}
	for _, t := range c.Tags {
		parts = append(parts, t...)
		parts = append(parts, ' ')
	}
	return string(parts)
}

// Node is a vertex of the card graph. Embedding is borrowed from the caller
// and is never modified.
type Node struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"-"`

	IsCutVertex bool    `json:"is_cut_vertex"`
	CompID      int     `json:"comp_id"`
	Centrality  float64 `json:"centrality"`
}

// EdgeKind tells which policy produced an edge.
type EdgeKind string

const (
	KindSemantic EdgeKind = "semantic"
	KindTag      EdgeKind = "tag"
	KindSource   EdgeKind = "source"
	KindHybrid   EdgeKind = "hybrid"
)

// Edge is an undirected weighted edge. (Source, Target) is an unordered pair;
// producers in this module always store Source < Target.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Weight   float64  `json:"weight"`
	Kind     EdgeKind `json:"kind"`
	IsBridge bool     `json:"is_bridge"`
}

// Ref returns the canonical unordered key of the edge.
func (e Edge) Ref() EdgeRef { return NewEdgeRef(e.Source, e.Target) }

// EdgeRef identifies an undirected edge by plain ids, with A <= B.
type EdgeRef struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewEdgeRef orders the endpoints so that equal pairs compare equal.
func NewEdgeRef(u, v string) EdgeRef {
	if v < u {
		u, v = v, u
	}
	return EdgeRef{A: u, B: v}
}

// Graph is the assembled output handed to a renderer.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeIDs returns the node ids in node order.
func (g Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// NodeAnnotation is the per-node result of a structural analysis pass.
type NodeAnnotation struct {
	IsCutVertex bool    `json:"is_cut_vertex"`
	CompID      int     `json:"comp_id"`
	Centrality  float64 `json:"centrality"`
}

// Annotations is transient view state recomputed on every analysis pass.
type Annotations struct {
	Nodes   map[string]NodeAnnotation `json:"nodes"`
	Bridges map[EdgeRef]bool          `json:"-"`
}

// Apply copies the annotations onto a new Graph value. The input is untouched.
func (a Annotations) Apply(g Graph) Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		ann := a.Nodes[n.ID]
		n.IsCutVertex = ann.IsCutVertex
		n.CompID = ann.CompID
		n.Centrality = ann.Centrality
		out.Nodes[i] = n
	}
	for i, e := range g.Edges {
		e.IsBridge = a.Bridges[e.Ref()]
		out.Edges[i] = e
	}
	return out
}

type annotationsJSON struct {
	Nodes   map[string]NodeAnnotation `json:"nodes"`
	Bridges []EdgeRef                 `json:"bridges"`
}

// MarshalJSON encodes the bridge set as a sorted list of pairs.
func (a Annotations) MarshalJSON() ([]byte, error) {
	out := annotationsJSON{Nodes: a.Nodes, Bridges: a.BridgeList()}
	return json.Marshal(out)
}

func (a *Annotations) UnmarshalJSON(data []byte) error {
	var in annotationsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Nodes = in.Nodes
	a.Bridges = make(map[EdgeRef]bool, len(in.Bridges))
	for _, r := range in.Bridges {
		a.Bridges[NewEdgeRef(r.A, r.B)] = true
	}
	return nil
}

// BridgeList returns the bridges ordered by (A, B).
func (a Annotations) BridgeList() []EdgeRef {
	out := make([]EdgeRef, 0, len(a.Bridges))
	for r, ok := range a.Bridges {
		if ok {
			out = append(out, r)
		}
	}
	SortRefs(out)
	return out
}

// SortRefs orders refs by (A, B).
func SortRefs(refs []EdgeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].A != refs[j].A {
			return refs[i].A < refs[j].A
		}
		return refs[i].B < refs[j].B
	})
}

// Diagnostics are the numbers shown in the UI legend. Optional values are nil
// when the selected strategy does not compute them.
type Diagnostics struct {
	Tau      float64  `json:"tau"`
	AvgDeg   float64  `json:"avg_deg"`
	GCCShare *float64 `json:"gcc_share,omitempty"`
	Lambda2  *float64 `json:"lambda2,omitempty"`
	Rho      *float64 `json:"rho,omitempty"`
}

// Float returns a pointer to v, for the optional Diagnostics fields.
func Float(v float64) *float64 { return &v }

// SortEdges orders edges by (Source, Target) so outputs are reproducible.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}

// AvgDegree returns 2|E|/n, or 0 for an empty node set.
func AvgDegree(edgeCount, nodeCount int) float64 {
	if nodeCount == 0 {
		return 0
	}
	return 2 * float64(edgeCount) / float64(nodeCount)
}
