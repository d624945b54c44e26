package server

import (
	"github.com/sanonone/cardgraph/pkg/engine"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// BuildRequest is the body of POST /graph/build and POST /graph/rebuild.
// Mode and TargetAvgDegree override the server configuration for this
// request only. Embeddings need not be unit length; they are normalized
// before the build.
type BuildRequest struct {
	Cards           []graph.Card         `json:"cards"`
	Embeddings      map[string][]float32 `json:"embeddings,omitempty"`
	Mode            string               `json:"mode,omitempty"`
	TargetAvgDegree float64              `json:"target_avg_degree,omitempty"`
}

// RebuildResponse is returned by POST /graph/rebuild.
type RebuildResponse struct {
	TaskID string `json:"task_id"`
}

// AnalyzeRequest re-runs structural analysis on a caller-supplied graph.
type AnalyzeRequest struct {
	Graph         graph.Graph `json:"graph"`
	Centrality    string      `json:"centrality,omitempty"`
	IgnoreBridges bool        `json:"ignore_bridges,omitempty"`
}

// AnalyzeResponse carries the annotated graph.
type AnalyzeResponse struct {
	Graph       graph.Graph       `json:"graph"`
	Annotations graph.Annotations `json:"annotations"`
}

// SplitRequest selects a bridge or a cut vertex. When Graph is omitted the
// latest rebuilt graph is used.
type SplitRequest struct {
	Graph     *graph.Graph     `json:"graph,omitempty"`
	Selection engine.Selection `json:"selection"`
}
