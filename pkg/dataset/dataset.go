// Package dataset reads card decks and embedding files from disk.
//
// Cards are a JSON array of objects with the graph.Card fields. Embeddings are
// a JSON object mapping card id to a vector. Vectors are normalized to unit
// length on load; zero and non-finite vectors are dropped so those cards fall
// back to having no embedding.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sanonone/cardgraph/pkg/distance"
	"github.com/sanonone/cardgraph/pkg/graph"
)

// ReadCards decodes a JSON card array.
func ReadCards(r io.Reader) ([]graph.Card, error) {
	var cards []graph.Card
	if err := json.NewDecoder(r).Decode(&cards); err != nil {
		return nil, fmt.Errorf("decoding cards: %w", err)
	}
	return cards, nil
}

// ReadEmbeddings decodes a JSON id -> vector object and normalizes every
// vector. Only the most common dimension is kept (ties go to the larger);
// vectors of any other dimension are dropped.
func ReadEmbeddings(r io.Reader) (map[string][]float32, error) {
	var raw map[string][]float32
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	return Normalize(raw), nil
}

// Normalize returns unit-length copies of the usable vectors in raw. When
// dimensions disagree the most common one wins (ties go to the larger) and
// the other vectors are dropped.
func Normalize(raw map[string][]float32) map[string][]float32 {
	units := make(map[string][]float32, len(raw))
	dims := make(map[int]int)
	for id, v := range raw {
		if u := distance.Normalize(v); u != nil {
			units[id] = u
			dims[len(u)]++
		}
	}
	dim, best := 0, 0
	for d, n := range dims {
		if n > best || (n == best && d > dim) {
			dim, best = d, n
		}
	}

	out := make(map[string][]float32, len(units))
	for id, u := range units {
		if len(u) == dim {
			out[id] = u
		}
	}
	if dropped := len(raw) - len(out); dropped > 0 {
		slog.Warn("dropped unusable embeddings", "dropped", dropped, "kept", len(out), "dim", dim)
	}
	return out
}

// LoadCards reads a card file.
func LoadCards(path string) ([]graph.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cards file: %w", err)
	}
	defer f.Close()
	return ReadCards(f)
}

// LoadEmbeddings reads an embeddings file. An empty path yields no embeddings.
func LoadEmbeddings(path string) (map[string][]float32, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer f.Close()
	return ReadEmbeddings(f)
}
