package engine

import (
	"errors"

	"github.com/sanonone/cardgraph/pkg/graph"
	"github.com/sanonone/cardgraph/pkg/similarity"
	"github.com/sanonone/cardgraph/pkg/split"
	"github.com/sanonone/cardgraph/pkg/threshold"
)

// Stage names used in events and metrics.
const (
	StageSimilarity = "similarity"
	StageThreshold  = "threshold"
)

// Event is a non-fatal degradation recorded during a rebuild.
type Event struct {
	Stage string `json:"stage"`
	// Reason is the short name of the sentinel error (see graph.Err*).
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// reasonOf maps an error to a stable metric label.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, graph.ErrNoEmbeddings):
		return "no_embeddings"
	case errors.Is(err, graph.ErrEmptyCandidateSet):
		return "empty_candidate_set"
	case errors.Is(err, graph.ErrDegenerateThreshold):
		return "degenerate_threshold"
	case errors.Is(err, graph.ErrNumericInstability):
		return "numeric_instability"
	}
	return "other"
}

// SimilarityInfo describes the candidate edge stage.
type SimilarityInfo struct {
	Method     similarity.Method `json:"method"`
	Candidates int               `json:"candidates"`
	Covered    int               `json:"covered"`
}

// ThresholdInfo describes the cutoff stage.
type ThresholdInfo struct {
	Requested threshold.Mode `json:"requested"`
	Used      threshold.Mode `json:"used"`
	Kept      int            `json:"kept"`
}

// SparsifyInfo describes the light-join stage.
type SparsifyInfo struct {
	Enabled   bool           `json:"enabled"`
	Kept      int            `json:"kept"`
	Bridges   int            `json:"bridges"`
	AvgDegree float64        `json:"avg_degree"`
	Rejected  map[string]int `json:"rejected,omitempty"`
}

// Selection is the element a split is computed around: either a bridge or a
// cut vertex.
type Selection struct {
	Bridge *graph.EdgeRef `json:"bridge,omitempty"`
	Vertex string         `json:"vertex,omitempty"`
}

// AnalysisContext carries everything a rebuild learned besides the graph
// itself. It is created per rebuild and returned to the caller; nothing is
// kept between rebuilds.
type AnalysisContext struct {
	Diagnostics graph.Diagnostics `json:"diagnostics"`
	Similarity  SimilarityInfo    `json:"similarity"`
	Threshold   ThresholdInfo     `json:"threshold"`
	Sparsify    SparsifyInfo      `json:"sparsify"`
	Stats       DegreeStats       `json:"stats"`
	Events      []Event           `json:"events"`

	Selection *Selection   `json:"selection,omitempty"`
	Split     *split.Split `json:"split,omitempty"`
}

func (ac *AnalysisContext) record(stage string, errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		ac.Events = append(ac.Events, Event{Stage: stage, Reason: reasonOf(err), Message: err.Error(), Err: err})
	}
}

// Has reports whether an event matching target was recorded.
func (ac *AnalysisContext) Has(target error) bool {
	for _, ev := range ac.Events {
		if errors.Is(ev.Err, target) {
			return true
		}
	}
	return false
}
