package similarity

import (
	"math"
	"sort"

	"github.com/sanonone/cardgraph/pkg/coop"
	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/textanalyzer"
)

// term is one non-zero coordinate of a sparse vector.
type term struct {
	id     int
	weight float64
}

// sparseVector is sorted by term id.
type sparseVector []term

// dot is a merge join over two sorted sparse vectors.
func (a sparseVector) dot(b sparseVector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].id == b[j].id:
			s += a[i].weight * b[j].weight
			i++
			j++
		case a[i].id < b[j].id:
			i++
		default:
			j++
		}
	}
	return s
}

// tfidfVectors builds L2-normalized TF-IDF vectors for texts. Texts without any
// index term get an empty vector. Smoothed idf: ln((1+N)/(1+df)) + 1.
func tfidfVectors(texts []string, analyzer textanalyzer.Analyzer) []sparseVector {
	vocab := make(map[string]int)
	counts := make([]map[int]int, len(texts))
	df := make(map[int]int)

	for i, text := range texts {
		counts[i] = make(map[int]int)
		for _, tok := range analyzer.Analyze(text) {
			id, ok := vocab[tok]
			if !ok {
				id = len(vocab)
				vocab[tok] = id
			}
			if counts[i][id] == 0 {
				df[id]++
			}
			counts[i][id]++
		}
	}

	n := float64(len(texts))
	vecs := make([]sparseVector, len(texts))
	for i, tc := range counts {
		total := 0
		for _, c := range tc {
			total += c
		}
		if total == 0 {
			continue
		}
		v := make(sparseVector, 0, len(tc))
		var norm float64
		for id, c := range tc {
			w := float64(c) / float64(total) * (math.Log((1+n)/(1+float64(df[id]))) + 1)
			v = append(v, term{id: id, weight: w})
			norm += w * w
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			continue
		}
		for k := range v {
			v[k].weight /= norm
		}
		sort.Slice(v, func(a, b int) bool { return v[a].id < v[b].id })
		vecs[i] = v
	}
	return vecs
}

// tfidf is the no-embedding path: cosine over sparse TF-IDF vectors of the
// card text. Cards with no index terms contribute no edges.
func (c *Computer) tfidf(cards []graph.Card, sched *coop.Scheduler) (Result, error) {
	sorted := make([]graph.Card, len(cards))
	copy(sorted, cards)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	texts := make([]string, len(sorted))
	for i, card := range sorted {
		texts[i] = card.Text()
	}
	all := tfidfVectors(texts, textanalyzer.NewAnalyzer(c.opts.Language))

	ids := make([]string, 0, len(sorted))
	vecs := make([]sparseVector, 0, len(sorted))
	for i, v := range all {
		if len(v) == 0 {
			continue
		}
		ids = append(ids, sorted[i].ID)
		vecs = append(vecs, v)
	}
	if len(ids) == 0 {
		return Result{Method: MethodNone, Events: []error{graph.ErrEmptyCandidateSet}}, nil
	}

	edges, err := BruteForce(ids, c.opts.TopK, func(i, j int) (float64, bool) {
		s := vecs[i].dot(vecs[j])
		// Disjoint vocabularies are not a similarity signal.
		return s, s > 0
	}, sched)
	if err != nil {
		return Result{}, err
	}
	res := Result{Edges: edges, Method: MethodTFIDF, Covered: len(ids)}
	if len(edges) == 0 {
		res.Events = []error{graph.ErrEmptyCandidateSet}
	}
	return res, nil
}
