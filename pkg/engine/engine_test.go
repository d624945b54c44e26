package engine

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/cardgraph/pkg/distance"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/similarity"
	"github.com/sanonone/cardgraph/pkg/structure"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

// barbellProvider stands in for a host-owned neighbour index: two triangles at
// similarity 0.9 joined by C-D at 0.5.
func barbellProvider() similarity.KNNProvider {
	return similarity.KNNProviderFunc(func(_ context.Context, _ map[string][]float32, ids []string, _ int) (similarity.KNNResult, error) {
		pos := make(map[string]int, len(ids))
		for i, id := range ids {
			pos[id] = i
		}
		link := func(a, b string, sim float64) (int, similarity.Neighbor) {
			return pos[a], similarity.Neighbor{Sim: sim, Index: pos[b]}
		}
		knn := make([][]similarity.Neighbor, len(ids))
		for _, p := range [][3]any{
			{"A", "B", 0.9}, {"A", "C", 0.9}, {"B", "C", 0.9},
			{"D", "E", 0.9}, {"D", "F", 0.9}, {"E", "F", 0.9},
			{"C", "D", 0.5},
		} {
			i, nb := link(p[0].(string), p[1].(string), p[2].(float64))
			knn[i] = append(knn[i], nb)
		}
		return similarity.KNNResult{IDs: ids, KNN: knn}, nil
	})
}

func barbellInput() ([]graph.Card, map[string][]float32) {
	var cards []graph.Card
	emb := make(map[string][]float32)
	for i, id := range []string{"A", "B", "C", "D", "E", "F"} {
		cards = append(cards, graph.Card{ID: id})
		v := make([]float32, 6)
		v[i] = 1
		emb[id] = v
	}
	return cards, emb
}

func randomInput(seed int64, n, dim int) ([]graph.Card, map[string][]float32) {
	r := rand.New(rand.NewSource(seed))
	tags := []string{"bio", "chem", "phys", "math"}
	cards := make([]graph.Card, n)
	emb := make(map[string][]float32, n)
	for i := range cards {
		id := fmt.Sprintf("c%03d", i)
		cards[i] = graph.Card{
			ID:        id,
			Tags:      []string{tags[r.Intn(len(tags))]},
			SourceURL: fmt.Sprintf("https://example.org/%d", r.Intn(n/4+1)),
		}
		v := make([]float32, dim)
		for k := range v {
			v[k] = float32(r.NormFloat64())
		}
		emb[id] = distance.Normalize(v)
	}
	return cards, emb
}

func TestBuildBarbellScenario(t *testing.T) {
	cards, emb := barbellInput()
	opts := DefaultOptions()
	opts.Similarity.Provider = barbellProvider()
	opts.Threshold.Mode = threshold.ModeNonBacktracking
	opts.SkipLightJoin = true
	opts.Policies = nil

	res, err := New(opts).Build(context.Background(), cards, emb)
	require.NoError(t, err)

	ac := res.Context
	assert.Equal(t, similarity.MethodKNN, ac.Similarity.Method)
	assert.Equal(t, 0.5, ac.Diagnostics.Tau)
	require.NotNil(t, ac.Diagnostics.Rho)
	require.Len(t, res.Graph.Edges, 7)

	assert.Equal(t, []graph.EdgeRef{{A: "C", B: "D"}}, res.Annotations.BridgeList())
	var cut []string
	for _, n := range res.Graph.Nodes {
		if n.IsCutVertex {
			cut = append(cut, n.ID)
		}
	}
	assert.Equal(t, []string{"C", "D"}, cut)
	for _, e := range res.Graph.Edges {
		assert.Equal(t, e.Ref() == graph.NewEdgeRef("C", "D"), e.IsBridge)
	}

	labels, count := structure.Components(res.Graph.NodeIDs(), res.Graph.Edges, true)
	assert.Equal(t, 2, count)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)

	s, err := res.SplitOn(Selection{Bridge: &graph.EdgeRef{A: "C", B: "D"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, s.SideA)
	assert.Equal(t, []string{"D", "E", "F"}, s.SideB)
	assert.Equal(t, &s, ac.Split)
	require.NotNil(t, ac.Selection)
}

func TestBuildBarbellDefaultsDropWeakBridge(t *testing.T) {
	cards, emb := barbellInput()
	opts := DefaultOptions()
	opts.Similarity.Provider = barbellProvider()

	res, err := New(opts).Build(context.Background(), cards, emb)
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Context.Diagnostics.Tau)
	assert.True(t, res.Context.Sparsify.Enabled)
	for _, e := range res.Graph.Edges {
		assert.NotEqual(t, graph.NewEdgeRef("C", "D"), e.Ref())
	}
	assert.Len(t, res.Graph.Nodes, 6)
}

func TestBuildIsIdempotent(t *testing.T) {
	cards, emb := randomInput(3, 80, 24)
	for _, mode := range []threshold.Mode{threshold.ModePercolation, threshold.ModeAlgebraic, threshold.ModeNonBacktracking} {
		t.Run(string(mode), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Threshold.Mode = mode
			eng := New(opts)

			a, err := eng.Build(context.Background(), cards, emb)
			require.NoError(t, err)
			b, err := eng.Build(context.Background(), cards, emb)
			require.NoError(t, err)
			assert.Equal(t, a.Graph, b.Graph)
			assert.Equal(t, a.Annotations, b.Annotations)
			assert.Equal(t, a.Context.Diagnostics, b.Context.Diagnostics)
			assert.Len(t, a.Graph.Nodes, 80)
		})
	}
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	cards := []graph.Card{{ID: "a"}, {ID: "b"}, {ID: "a"}}
	_, err := New(DefaultOptions()).Build(context.Background(), cards, nil)
	assert.ErrorIs(t, err, graph.ErrDuplicateID)

	_, err = New(DefaultOptions()).Build(context.Background(), []graph.Card{{ID: ""}}, nil)
	assert.Error(t, err)
}

func TestBuildCancelled(t *testing.T) {
	cards, emb := randomInput(5, 60, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultOptions()).Build(ctx, cards, emb)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildYields(t *testing.T) {
	cards, emb := randomInput(9, 60, 8)
	yields := 0
	opts := DefaultOptions()
	opts.Yield = func() { yields++ }
	_, err := New(opts).Build(context.Background(), cards, emb)
	require.NoError(t, err)
	assert.Greater(t, yields, 0)
}

func TestBuildWithoutEmbeddingsUsesText(t *testing.T) {
	cards := []graph.Card{
		{ID: "1", Front: "mitochondria produce ATP", Back: "cellular respiration"},
		{ID: "2", Front: "ATP synthase in mitochondria", Back: "oxidative phosphorylation"},
		{ID: "3", Front: "Treaty of Westphalia", Back: "1648 peace"},
		{ID: "4", Front: "Westphalia peace treaty ended", Back: "thirty years war"},
	}
	res, err := New(DefaultOptions()).Build(context.Background(), cards, nil)
	require.NoError(t, err)
	assert.Equal(t, similarity.MethodTFIDF, res.Context.Similarity.Method)
	assert.True(t, res.Context.Has(graph.ErrNoEmbeddings))
	assert.Len(t, res.Graph.Nodes, 4)
}

func TestBuildEmptyDeck(t *testing.T) {
	res, err := New(DefaultOptions()).Build(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Graph.Nodes)
	assert.Empty(t, res.Graph.Edges)
	assert.True(t, res.Context.Has(graph.ErrEmptyCandidateSet))
}

func TestNewClampsTarget(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetAvgDegree = 12
	eng := New(opts)
	assert.Equal(t, 4.0, eng.Options().TargetAvgDegree)
	assert.Equal(t, 4.0, eng.Options().Threshold.TargetAvgDegree)
	assert.Equal(t, 4.0, eng.Options().Sparsify.TargetAvgDegree)

	assert.Zero(t, DefaultOptions().Sparsify.TargetAvgDegree)
	assert.Equal(t, 1.4, New(DefaultOptions()).Options().Sparsify.TargetAvgDegree)

	// An explicit light-join target is kept.
	opts = DefaultOptions()
	opts.TargetAvgDegree = 3
	opts.Sparsify.TargetAvgDegree = 2
	eng = New(opts)
	assert.Equal(t, 3.0, eng.Options().Threshold.TargetAvgDegree)
	assert.Equal(t, 2.0, eng.Options().Sparsify.TargetAvgDegree)
}

func TestTargetDegreeRaisesLightJoinBudget(t *testing.T) {
	cards, emb := randomInput(5, 40, 16)
	build := func(target float64) *Result {
		opts := DefaultOptions()
		opts.TargetAvgDegree = target
		opts.Policies = nil
		res, err := New(opts).Build(context.Background(), cards, emb)
		require.NoError(t, err)
		return res
	}
	low, high := build(1.4), build(4)
	// The intra-component budget is round(target*n/2).
	assert.LessOrEqual(t, low.Context.Sparsify.Kept, 28+low.Context.Sparsify.Bridges)
	assert.Greater(t, high.Context.Sparsify.Kept, low.Context.Sparsify.Kept)
}

func TestEngineAnalyze(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []graph.Edge{{Source: "a", Target: "b", Weight: 1}, {Source: "b", Target: "c", Weight: 1}},
	}
	out, ann, err := New(DefaultOptions()).Analyze(context.Background(), g, structure.Options{Centrality: structure.CentralityDegree})
	require.NoError(t, err)
	assert.True(t, out.Nodes[1].IsCutVertex)
	assert.Equal(t, 1.0, ann.Nodes["b"].Centrality)
	assert.Len(t, ann.Bridges, 2)

	_, err = Split(out, Selection{Vertex: "b"})
	require.NoError(t, err)
	_, err = Split(out, Selection{})
	assert.Error(t, err)
}
