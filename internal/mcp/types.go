package mcp

import (
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/split"
)

// --- Tool Arguments ---

type BuildGraphArgs struct {
	CardsPath       string               `json:"cards_path,omitempty" jsonschema:"Path to a JSON array of cards"`
	EmbeddingsPath  string               `json:"embeddings_path,omitempty" jsonschema:"Path to a JSON object mapping card id to embedding"`
	Cards           []graph.Card         `json:"cards,omitempty" jsonschema:"Inline cards, used when cards_path is empty"`
	Embeddings      map[string][]float32 `json:"embeddings,omitempty" jsonschema:"Inline embeddings, used when embeddings_path is empty"`
	Mode            string               `json:"mode,omitempty" jsonschema:"Threshold mode: percolation, algebraic or non-backtracking"`
	TargetAvgDegree float64              `json:"target_avg_degree,omitempty" jsonschema:"Preferred average degree, clamped to [0.5, 4]"`
}

type BuildGraphResult struct {
	Nodes       int      `json:"nodes"`
	Edges       int      `json:"edges"`
	Method      string   `json:"method"`
	Mode        string   `json:"mode"`
	Tau         float64  `json:"tau"`
	AvgDegree   float64  `json:"avg_degree"`
	Bridges     int      `json:"bridges"`
	CutVertices int      `json:"cut_vertices"`
	Components  int      `json:"components"`
	Warnings    []string `json:"warnings,omitempty"`
}

type StructureArgs struct {
	Centrality    string `json:"centrality,omitempty" jsonschema:"eigenvector (default) or degree"`
	IgnoreBridges bool   `json:"ignore_bridges,omitempty" jsonschema:"Number components as if bridges were removed"`
	Top           int    `json:"top,omitempty" jsonschema:"How many central cards to list (default 10)"`
}

type CentralCard struct {
	ID         string  `json:"id"`
	Centrality float64 `json:"centrality"`
}

type StructureResult struct {
	Bridges        []graph.EdgeRef `json:"bridges"`
	CutVertices    []string        `json:"cut_vertices"`
	ComponentSizes []int           `json:"component_sizes"`
	Central        []CentralCard   `json:"central"`
}

type SplitArgs struct {
	BridgeA string `json:"bridge_a,omitempty" jsonschema:"First endpoint of the bridge to split on"`
	BridgeB string `json:"bridge_b,omitempty" jsonschema:"Second endpoint of the bridge to split on"`
	Vertex  string `json:"vertex,omitempty" jsonschema:"Cut vertex to split on"`
}

type SplitResult struct {
	Kind    split.Kind `json:"kind"`
	Bridge  string     `json:"bridge,omitempty"`
	Pivot   string     `json:"pivot,omitempty"`
	SideA   []string   `json:"side_a"`
	SideB   []string   `json:"side_b"`
	Dropped int        `json:"dropped"`
}
