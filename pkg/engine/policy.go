package engine

import (
	"sort"
	"strings"

	"github.com/sanonone/cardgraph/pkg/graph"
)

// LinkPolicy produces non-semantic edges from card metadata.
type LinkPolicy interface {
	Name() string
	Links(cards []graph.Card) []graph.Edge
}

// SharedTagPolicy links cards that share at least MinShared tags. The edge
// weight is the Jaccard index of the two tag sets. Tags carried by more than
// MaxGroup cards are ignored as too generic, and each card keeps at most
// MaxPerNode tag edges, strongest first.
type SharedTagPolicy struct {
	MinShared  int `yaml:"min_shared" json:"min_shared"`
	MaxGroup   int `yaml:"max_group" json:"max_group"`
	MaxPerNode int `yaml:"max_per_node" json:"max_per_node"`
}

func (SharedTagPolicy) Name() string { return string(graph.KindTag) }

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (p SharedTagPolicy) Links(cards []graph.Card) []graph.Edge {
	minShared := max(p.MinShared, 1)
	maxGroup := p.MaxGroup
	if maxGroup <= 0 {
		maxGroup = 200
	}
	maxPerNode := p.MaxPerNode
	if maxPerNode <= 0 {
		maxPerNode = 5
	}

	tagsOf := make(map[string][]string, len(cards))
	members := make(map[string][]string)
	for _, c := range cards {
		tags := normalizeTags(c.Tags)
		tagsOf[c.ID] = tags
		for _, t := range tags {
			members[t] = append(members[t], c.ID)
		}
	}

	shared := make(map[graph.EdgeRef]int)
	for _, ids := range members {
		if len(ids) < 2 || len(ids) > maxGroup {
			continue
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				if ids[i] != ids[j] {
					shared[graph.NewEdgeRef(ids[i], ids[j])]++
				}
			}
		}
	}

	var candidates []graph.Edge
	for ref, n := range shared {
		if n < minShared {
			continue
		}
		union := len(tagsOf[ref.A]) + len(tagsOf[ref.B]) - n
		candidates = append(candidates, graph.Edge{
			Source: ref.A,
			Target: ref.B,
			Weight: float64(n) / float64(union),
			Kind:   graph.KindTag,
		})
	}
	return capPerNode(candidates, maxPerNode)
}

// SameSourcePolicy chains cards that cite the same source URL, in id order,
// with a fixed weight.
type SameSourcePolicy struct {
	Weight float64 `yaml:"weight" json:"weight"`
}

func (SameSourcePolicy) Name() string { return string(graph.KindSource) }

func (p SameSourcePolicy) Links(cards []graph.Card) []graph.Edge {
	w := p.Weight
	if w <= 0 {
		w = 0.5
	}
	bySource := make(map[string][]string)
	for _, c := range cards {
		if u := strings.TrimSpace(c.SourceURL); u != "" {
			bySource[u] = append(bySource[u], c.ID)
		}
	}
	var out []graph.Edge
	for _, ids := range bySource {
		sort.Strings(ids)
		for i := 1; i < len(ids); i++ {
			if ids[i] == ids[i-1] {
				continue
			}
			out = append(out, graph.Edge{Source: ids[i-1], Target: ids[i], Weight: w, Kind: graph.KindSource})
		}
	}
	graph.SortEdges(out)
	return out
}

// capPerNode accepts edges strongest first while both endpoints are under cap.
func capPerNode(edges []graph.Edge, limit int) []graph.Edge {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	count := make(map[string]int)
	out := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if count[e.Source] >= limit || count[e.Target] >= limit {
			continue
		}
		count[e.Source]++
		count[e.Target]++
		out = append(out, e)
	}
	graph.SortEdges(out)
	return out
}
