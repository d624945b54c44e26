package graph

import "errors"

// Degradation causes. None of them aborts a rebuild: they are recorded in the
// analysis context so callers can see why a result is thinner than expected.
var (
	// ErrNoEmbeddings means no card carried a vector; the TF-IDF path was used.
	ErrNoEmbeddings = errors.New("no embeddings available")
	// ErrEmptyCandidateSet means the similarity stage produced no candidate edge,
	// or an external neighbor provider failed or returned nothing.
	ErrEmptyCandidateSet = errors.New("empty candidate edge set")
	// ErrDegenerateThreshold means the chosen cutoff kept fewer than min(n-1, 3) edges.
	ErrDegenerateThreshold = errors.New("degenerate threshold")
	// ErrNumericInstability means a power iteration produced NaN or Inf and was reset.
	ErrNumericInstability = errors.New("numeric instability in power iteration")
	// ErrDuplicateID is returned when two cards share the same id.
	ErrDuplicateID = errors.New("duplicate card id")
	// ErrEmptyID is returned when a card has no id.
	ErrEmptyID = errors.New("empty card id")
	// ErrUnknownEdge is returned by split queries on an edge that is not in the graph.
	ErrUnknownEdge = errors.New("edge not in graph")
	// ErrUnknownNode is returned by split queries on a node that is not in the graph.
	ErrUnknownNode = errors.New("node not in graph")
)
