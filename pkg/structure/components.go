package structure

import (
	"sort"

	"github.com/sanonone/cardgraph/pkg/graph"
)

// Components labels every id with a component number. Components are numbered
// from 0 in order of their first member in ids. With ignoreBridges set, edges
// flagged IsBridge are treated as absent, which splits the graph into the
// softer clusters used for dimming.
func Components(ids []string, edges []graph.Edge, ignoreBridges bool) (labels []int, count int) {
	var skip func(graph.Edge) bool
	if ignoreBridges {
		skip = func(e graph.Edge) bool { return e.IsBridge }
	}
	adj := graph.NewAdjacency(ids, edges, skip)

	labels = make([]int, adj.Len())
	visited := make([]bool, adj.Len())
	for i := range labels {
		if visited[i] {
			continue
		}
		for _, v := range adj.BFS(i, visited) {
			labels[v] = count
		}
		count++
	}
	return labels, count
}

// ComponentMembers groups ids by component label, largest component first and
// ties by first member.
func ComponentMembers(ids []string, labels []int, count int) [][]string {
	groups := make([][]string, count)
	for i, l := range labels {
		groups[l] = append(groups[l], ids[i])
	}
	sortBySizeDesc(groups)
	return groups
}

func sortBySizeDesc(groups [][]string) {
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i]) > len(groups[j]) })
}
