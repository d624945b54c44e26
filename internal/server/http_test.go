package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/cardgraph/pkg/engine"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/split"
)

const testToken = "test-secret-token"

func newTestServer(t *testing.T, token string) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := engine.DefaultOptions()
	opts.Logger = logger
	s := NewServer(engine.New(opts), Options{AuthToken: token, Logger: logger})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.taskManager.CancelAll()
	})
	return s, ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func deck() BuildRequest {
	req := BuildRequest{Embeddings: make(map[string][]float32)}
	for i, id := range []string{"A", "B", "C", "D", "E", "F"} {
		req.Cards = append(req.Cards, graph.Card{ID: id, Front: "card " + id})
		v := []float32{0, 0, 0}
		v[i/2] = 1
		req.Embeddings[id] = v
	}
	return req
}

func barbellGraph() graph.Graph {
	g := graph.Graph{}
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		g.Nodes = append(g.Nodes, graph.Node{ID: id})
	}
	for _, p := range [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}, {"C", "D"}, {"D", "E"}, {"D", "F"}, {"E", "F"}} {
		g.Edges = append(g.Edges, graph.Edge{Source: p[0], Target: p[1], Weight: 0.9, Kind: graph.KindSemantic})
	}
	return g
}

func TestHealthzAndMetricsArePublic(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	resp, err := http.Get(ts.URL + "/graph")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/graph", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Authorized but nothing built yet.
	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/graph", nil, nil))
}

func TestNoTokenDisablesAuth(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/graph")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildSync(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	var res engine.Result
	status := do(t, ts, http.MethodPost, "/graph/build", deck(), &res)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, res.Graph.Nodes, 6)
	require.NotNil(t, res.Context)
	assert.Equal(t, "percolation", string(res.Context.Threshold.Requested))

	req := deck()
	req.Mode = "non-backtracking"
	res = engine.Result{}
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/graph/build", req, &res))
	assert.Equal(t, "non-backtracking", string(res.Context.Threshold.Requested))
}

func TestBuildNormalizesEmbeddings(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	req := BuildRequest{
		Cards: []graph.Card{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Embeddings: map[string][]float32{
			"A": {2, 0},
			"B": {4, 0},
			"C": {0, 3},
		},
	}
	var res engine.Result
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/graph/build", req, &res))
	require.NotEmpty(t, res.Graph.Edges)

	found := false
	for _, e := range res.Graph.Edges {
		assert.LessOrEqual(t, e.Weight, 1+1e-6, "%s-%s", e.Source, e.Target)
		if e.Ref() == graph.NewEdgeRef("A", "B") {
			found = true
			assert.InDelta(t, 1.0, e.Weight, 1e-6)
		}
	}
	assert.True(t, found, "A-B must survive as the strongest pair")
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	req := deck()
	req.Cards = append(req.Cards, graph.Card{ID: "A"})
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPost, "/graph/build", req, nil))

	req = deck()
	req.Mode = "spectral"
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPost, "/graph/build", req, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPost, "/graph/build", BuildRequest{}, nil))

	httpReq, _ := http.NewRequest(http.MethodPost, ts.URL+"/graph/build", bytes.NewBufferString("{not json"))
	httpReq.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := ts.Client().Do(httpReq)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRebuildAsync(t *testing.T) {
	s, ts := newTestServer(t, testToken)

	var accepted RebuildResponse
	require.Equal(t, http.StatusAccepted, do(t, ts, http.MethodPost, "/graph/rebuild", deck(), &accepted))
	require.NotEmpty(t, accepted.TaskID)
	s.taskManager.Wait()

	var task TaskView
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/tasks/"+accepted.TaskID, nil, &task))
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.NotNil(t, task.FinishedAt)

	var res engine.Result
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/graph", nil, &res))
	assert.Len(t, res.Graph.Nodes, 6)

	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/tasks/missing", nil, nil))
}

func TestAnalyzeEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testToken)

	var out AnalyzeResponse
	status := do(t, ts, http.MethodPost, "/graph/analyze", AnalyzeRequest{Graph: barbellGraph(), Centrality: "degree"}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []graph.EdgeRef{{A: "C", B: "D"}}, out.Annotations.BridgeList())
	for _, n := range out.Graph.Nodes {
		assert.Equal(t, n.ID == "C" || n.ID == "D", n.IsCutVertex, n.ID)
	}

	assert.Equal(t, http.StatusBadRequest,
		do(t, ts, http.MethodPost, "/graph/analyze", AnalyzeRequest{Graph: barbellGraph(), Centrality: "pagerank"}, nil))
}

func TestSplitEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testToken)
	g := barbellGraph()

	var sp split.Split
	ref := graph.NewEdgeRef("D", "C")
	status := do(t, ts, http.MethodPost, "/graph/split", SplitRequest{Graph: &g, Selection: engine.Selection{Bridge: &ref}}, &sp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, split.KindBridge, sp.Kind)
	assert.Equal(t, []string{"A", "B", "C"}, sp.SideA)
	assert.Equal(t, []string{"D", "E", "F"}, sp.SideB)

	sp = split.Split{}
	status = do(t, ts, http.MethodPost, "/graph/split", SplitRequest{Graph: &g, Selection: engine.Selection{Vertex: "C"}}, &sp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "C", sp.Pivot)

	assert.Equal(t, http.StatusNotFound,
		do(t, ts, http.MethodPost, "/graph/split", SplitRequest{Graph: &g, Selection: engine.Selection{Vertex: "Z"}}, nil))
	assert.Equal(t, http.StatusBadRequest,
		do(t, ts, http.MethodPost, "/graph/split", SplitRequest{Graph: &g}, nil))
	// No graph supplied and none built.
	assert.Equal(t, http.StatusNotFound,
		do(t, ts, http.MethodPost, "/graph/split", SplitRequest{Selection: engine.Selection{Vertex: "C"}}, nil))
}

func TestSetLatestKeepsNewest(t *testing.T) {
	s, _ := newTestServer(t, testToken)
	newer := &engine.Result{}
	older := &engine.Result{}
	s.setLatest(2, newer)
	s.setLatest(1, older)
	assert.Same(t, newer, s.getLatest())
}
