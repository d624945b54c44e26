// Package similarity produces the candidate semantic edge list of a card set.
//
// Three paths are supported, tried in this order:
//  1. a pluggable approximate-neighbor provider (KNNProvider), when configured;
//  2. brute-force top-K over unit embeddings (dot product = cosine);
//  3. brute-force top-K over sparse TF-IDF vectors, when no card has an embedding.
//
// A provider that fails, panics or returns nothing falls back to brute force.
// Cards without a vector contribute no edges but are never dropped by callers.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/distance"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// Method reports which path produced the candidate edges.
type Method string

const (
	MethodKNN        Method = "knn"
	MethodBruteForce Method = "brute_force"
	MethodTFIDF      Method = "tfidf"
	MethodNone       Method = "none"
)

// KNNResult is the answer of an approximate-neighbor provider: for each id in
// IDs, a list of (similarity, index into IDs) pairs.
type KNNResult struct {
	IDs []string     `json:"ids"`
	KNN [][]Neighbor `json:"knn"`
}

// KNNProvider computes approximate k-nearest neighbors. It is owned by the
// host; this package only consumes it.
type KNNProvider interface {
	Neighbors(ctx context.Context, embeddings map[string][]float32, ids []string, k int) (KNNResult, error)
}

// KNNProviderFunc adapts a function to KNNProvider.
type KNNProviderFunc func(ctx context.Context, embeddings map[string][]float32, ids []string, k int) (KNNResult, error)

// Neighbors implements KNNProvider.
func (f KNNProviderFunc) Neighbors(ctx context.Context, embeddings map[string][]float32, ids []string, k int) (KNNResult, error) {
	return f(ctx, embeddings, ids, k)
}

// Options configures a Computer.
type Options struct {
	// TopK is the number of neighbors kept per node. Default 40.
	TopK int
	// Precision selects the vector representation used by brute force.
	Precision distance.PrecisionType
	// Provider, when set, is preferred over brute force.
	Provider KNNProvider
	// Language picks the stop-word list of the TF-IDF path.
	Language string
	Logger   *slog.Logger
}

// DefaultOptions returns TopK 40, float32 precision, English text analysis.
func DefaultOptions() Options {
	return Options{
		TopK:      40,
		Precision: distance.Float32,
		Language:  "english",
	}
}

// Result is the candidate edge list plus what happened while building it.
type Result struct {
	Edges []graph.Edge `json:"edges"`
	// Method is the path that produced Edges.
	Method Method `json:"method"`
	// Covered is the number of cards that had a usable vector.
	Covered int `json:"covered"`
	// Events lists non-fatal degradations (graph.ErrNoEmbeddings, graph.ErrEmptyCandidateSet).
	Events []error `json:"-"`
}

// Computer builds candidate edges. It holds no state between calls.
type Computer struct {
	opts   Options
	logger *slog.Logger
}

// NewComputer creates a Computer, filling zero options with defaults.
func NewComputer(opts Options) *Computer {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Precision == "" {
		opts.Precision = def.Precision
	}
	if opts.Language == "" {
		opts.Language = def.Language
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Computer{opts: opts, logger: logger}
}

// Compute returns the candidate semantic edges for cards. Embeddings are looked
// up by card id; they are assumed to be unit length. Only cancellation of ctx
// (observed through sched) is returned as an error.
func (c *Computer) Compute(ctx context.Context, cards []graph.Card, embeddings map[string][]float32, sched *coop.Scheduler) (Result, error) {
	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		if len(embeddings[card.ID]) > 0 {
			ids = append(ids, card.ID)
		}
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		c.logger.Debug("no embeddings, using TF-IDF similarity", "cards", len(cards))
		res, err := c.tfidf(cards, sched)
		if err != nil {
			return Result{}, err
		}
		res.Events = append([]error{graph.ErrNoEmbeddings}, res.Events...)
		return res, nil
	}

	var events []error
	if c.opts.Provider != nil {
		edges, err := c.fromProvider(ctx, embeddings, ids)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			c.logger.Warn("knn provider failed, falling back to brute force", "error", err)
			events = append(events, fmt.Errorf("%w: %v", graph.ErrEmptyCandidateSet, err))
		case len(edges) == 0:
			c.logger.Warn("knn provider returned no edges, falling back to brute force", "nodes", len(ids))
			events = append(events, graph.ErrEmptyCandidateSet)
		default:
			return Result{Edges: edges, Method: MethodKNN, Covered: len(ids)}, nil
		}
	}

	sim, err := c.denseSimilarity(ids, embeddings)
	if err != nil {
		return Result{}, err
	}
	edges, err := BruteForce(ids, c.opts.TopK, sim, sched)
	if err != nil {
		return Result{}, err
	}
	if len(edges) == 0 {
		events = append(events, graph.ErrEmptyCandidateSet)
	}
	return Result{Edges: edges, Method: MethodBruteForce, Covered: len(ids), Events: events}, nil
}

// fromProvider calls the external provider, turning panics into errors.
func (c *Computer) fromProvider(ctx context.Context, embeddings map[string][]float32, ids []string) (edges []graph.Edge, err error) {
	defer func() {
		if r := recover(); r != nil {
			edges, err = nil, fmt.Errorf("knn provider panic: %v", r)
		}
	}()
	res, err := c.opts.Provider.Neighbors(ctx, embeddings, ids, c.opts.TopK)
	if err != nil {
		return nil, err
	}
	return EdgesFromKNN(res, ids, c.opts.TopK), nil
}

// EdgesFromKNN converts neighbor lists into deduplicated undirected edges.
// When res.IDs is empty the lists are interpreted against fallbackIDs.
func EdgesFromKNN(res KNNResult, fallbackIDs []string, k int) []graph.Edge {
	ids := res.IDs
	if len(ids) == 0 {
		ids = fallbackIDs
	}
	best := make(map[graph.EdgeRef]float64)
	for i, list := range res.KNN {
		if i >= len(ids) {
			break
		}
		if k > 0 && len(list) > k {
			list = list[:k]
		}
		for _, nb := range list {
			if nb.Index < 0 || nb.Index >= len(ids) || nb.Index == i || !finite(nb.Sim) {
				continue
			}
			ref := graph.NewEdgeRef(ids[i], ids[nb.Index])
			if ref.A == ref.B {
				continue
			}
			if cur, ok := best[ref]; !ok || nb.Sim > cur {
				best[ref] = nb.Sim
			}
		}
	}
	return edgesFromMap(best)
}

// denseSimilarity prepares the pairwise similarity function over ids.
func (c *Computer) denseSimilarity(ids []string, embeddings map[string][]float32) (func(i, j int) (float64, bool), error) {
	switch c.opts.Precision {
	case distance.Float16:
		half := make([][]uint16, len(ids))
		for i, id := range ids {
			half[i] = distance.ToFloat16(embeddings[id])
		}
		dot := distance.GetFloat16Func()
		return func(i, j int) (float64, bool) {
			s, err := dot(half[i], half[j])
			return s, err == nil && finite(s)
		}, nil
	case distance.Float32, "":
		vecs := make([][]float32, len(ids))
		for i, id := range ids {
			vecs[i] = embeddings[id]
		}
		dot := distance.GetFloat32Func()
		return func(i, j int) (float64, bool) {
			s, err := dot(vecs[i], vecs[j])
			return s, err == nil && finite(s)
		}, nil
	}
	return nil, fmt.Errorf("precision '%s' not supported", c.opts.Precision)
}

// BruteForce scores every pair of ids with sim, keeps the k best neighbors of
// each node and returns each selected unordered pair once, as an edge with
// Source < Target. Pairs for which sim reports false are skipped. The
// scheduler is ticked once per pair.
func BruteForce(ids []string, k int, sim func(i, j int) (float64, bool), sched *coop.Scheduler) ([]graph.Edge, error) {
	n := len(ids)
	heaps := make([]*topK, n)
	for i := range heaps {
		heaps[i] = newTopK(k)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if s, ok := sim(i, j); ok {
				heaps[i].Offer(Neighbor{Sim: s, Index: j})
				heaps[j].Offer(Neighbor{Sim: s, Index: i})
			}
			if err := sched.Tick(1); err != nil {
				return nil, err
			}
		}
	}

	best := make(map[graph.EdgeRef]float64)
	for i, h := range heaps {
		for _, nb := range h.items {
			best[graph.NewEdgeRef(ids[i], ids[nb.Index])] = nb.Sim
		}
	}
	return edgesFromMap(best), nil
}

func edgesFromMap(best map[graph.EdgeRef]float64) []graph.Edge {
	edges := make([]graph.Edge, 0, len(best))
	for ref, s := range best {
		edges = append(edges, graph.Edge{Source: ref.A, Target: ref.B, Weight: s, Kind: graph.KindSemantic})
	}
	graph.SortEdges(edges)
	return edges
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
