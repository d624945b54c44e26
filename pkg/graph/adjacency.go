package graph

// Arc is one direction of an undirected edge inside an Adjacency.
type Arc struct {
	To     int
	Weight float64
	Edge   int // index into the edge slice the adjacency was built from
}

// Adjacency is a dense, index-based view of a node set and an edge list.
// Algorithms work on indices; ids are only used at the boundaries.
type Adjacency struct {
	IDs   []string
	Index map[string]int
	Arcs  [][]Arc
}

// NewAdjacency builds the adjacency of edges over ids. Edges whose endpoints are
// unknown, self-loops and edges rejected by skip (when non-nil) are ignored.
// Parallel edges are kept as separate arcs.
func NewAdjacency(ids []string, edges []Edge, skip func(Edge) bool) *Adjacency {
	adj := &Adjacency{
		IDs:   ids,
		Index: make(map[string]int, len(ids)),
		Arcs:  make([][]Arc, len(ids)),
	}
	for i, id := range ids {
		adj.Index[id] = i
	}
	for k, e := range edges {
		if skip != nil && skip(e) {
			continue
		}
		u, okU := adj.Index[e.Source]
		v, okV := adj.Index[e.Target]
		if !okU || !okV || u == v {
			continue
		}
		adj.Arcs[u] = append(adj.Arcs[u], Arc{To: v, Weight: e.Weight, Edge: k})
		adj.Arcs[v] = append(adj.Arcs[v], Arc{To: u, Weight: e.Weight, Edge: k})
	}
	return adj
}

// Len returns the number of nodes.
func (a *Adjacency) Len() int { return len(a.IDs) }

// Degree returns the number of arcs leaving node i.
func (a *Adjacency) Degree(i int) int { return len(a.Arcs[i]) }

// WeightedDegree returns the sum of incident edge weights of node i.
func (a *Adjacency) WeightedDegree(i int) float64 {
	var s float64
	for _, arc := range a.Arcs[i] {
		s += arc.Weight
	}
	return s
}

// BFS visits every node reachable from start and returns them in visit order.
// visited is shared so callers can grow several components without revisiting.
func (a *Adjacency) BFS(start int, visited []bool) []int {
	if visited[start] {
		return nil
	}
	visited[start] = true
	order := []int{start}
	for head := 0; head < len(order); head++ {
		for _, arc := range a.Arcs[order[head]] {
			if !visited[arc.To] {
				visited[arc.To] = true
				order = append(order, arc.To)
			}
		}
	}
	return order
}
