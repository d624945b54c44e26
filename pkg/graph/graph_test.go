package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEdgeRefIsCanonical(t *testing.T) {
	assert.Equal(t, NewEdgeRef("a", "b"), NewEdgeRef("b", "a"))
	assert.Equal(t, EdgeRef{A: "a", B: "b"}, Edge{Source: "b", Target: "a"}.Ref())
}

func TestAdjacencySkipsBadEdges(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b", Weight: 0.5},
		{Source: "a", Target: "b", Weight: 0.25},
		{Source: "a", Target: "a", Weight: 1},
		{Source: "a", Target: "zz", Weight: 1},
		{Source: "b", Target: "c", Weight: 1, IsBridge: true},
	}
	adj := NewAdjacency([]string{"a", "b", "c"}, edges, func(e Edge) bool { return e.IsBridge })
	assert.Equal(t, 3, adj.Len())
	assert.Equal(t, 2, adj.Degree(0), "parallel edges are kept")
	assert.Equal(t, 0, adj.Degree(2))
	assert.InDelta(t, 0.75, adj.WeightedDegree(1), 1e-12)

	visited := make([]bool, 3)
	assert.Equal(t, []int{0, 1}, adj.BFS(0, visited))
	assert.Nil(t, adj.BFS(1, visited))
	assert.Equal(t, []int{2}, adj.BFS(2, visited))
}

func TestAnnotationsApplyDoesNotMutate(t *testing.T) {
	g := Graph{
		Nodes: []Node{{ID: "a"}, {ID: "b"}},
		Edges: []Edge{{Source: "a", Target: "b", Weight: 1}},
	}
	ann := Annotations{
		Nodes:   map[string]NodeAnnotation{"a": {IsCutVertex: true, CompID: 0, Centrality: 1}},
		Bridges: map[EdgeRef]bool{NewEdgeRef("a", "b"): true},
	}
	out := ann.Apply(g)
	assert.True(t, out.Nodes[0].IsCutVertex)
	assert.True(t, out.Edges[0].IsBridge)
	assert.False(t, g.Nodes[0].IsCutVertex)
	assert.False(t, g.Edges[0].IsBridge)
}

func TestAnnotationsJSON(t *testing.T) {
	ann := Annotations{
		Nodes: map[string]NodeAnnotation{"a": {CompID: 1}},
		Bridges: map[EdgeRef]bool{
			NewEdgeRef("c", "d"): true,
			NewEdgeRef("a", "b"): true,
		},
	}
	data, err := json.Marshal(ann)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":{"a":{"is_cut_vertex":false,"comp_id":1,"centrality":0}},"bridges":[{"a":"a","b":"b"},{"a":"c","b":"d"}]}`, string(data))

	var back Annotations
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ann, back)
}

func TestCardText(t *testing.T) {
	c := Card{ID: "1", Front: "mitochondria", Back: "powerhouse", Tags: []string{"bio"}}
	assert.Equal(t, "mitochondria powerhouse bio ", c.Text())
}

func TestAvgDegree(t *testing.T) {
	assert.Zero(t, AvgDegree(3, 0))
	assert.Equal(t, 1.5, AvgDegree(3, 4))
}
