// Package unionfind provides a disjoint-set forest over dense integer ids,
// with iterative path compression and union by size.
package unionfind

// UnionFind tracks a partition of {0..n-1}. It is not safe for concurrent use.
type UnionFind struct {
	parent []int
	size   []int
	count  int
	max    int
}

// New creates n singleton sets.
func New(n int) *UnionFind {
	u := &UnionFind{
		parent: make([]int, n),
		size:   make([]int, n),
		count:  n,
	}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	if n > 0 {
		u.max = 1
	}
	return u
}

// Find returns the representative of x.
func (u *UnionFind) Find(x int) int {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Second pass: point every node on the path straight at the root.
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

// Same reports whether a and b are in the same set.
func (u *UnionFind) Same(a, b int) bool { return u.Find(a) == u.Find(b) }

// Union merges the sets of a and b. It returns false if they were already joined.
func (u *UnionFind) Union(a, b int) bool {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return false
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
	if u.size[ra] > u.max {
		u.max = u.size[ra]
	}
	u.count--
	return true
}

// Size returns the size of the set containing x.
func (u *UnionFind) Size(x int) int { return u.size[u.Find(x)] }

// MergedSize returns the size the union of a's and b's sets would have.
func (u *UnionFind) MergedSize(a, b int) int {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return u.size[ra]
	}
	return u.size[ra] + u.size[rb]
}

// Count returns the number of disjoint sets.
func (u *UnionFind) Count() int { return u.count }

// MaxSize returns the size of the largest set.
func (u *UnionFind) MaxSize() int { return u.max }

// Singletons returns how many elements are alone in their set.
func (u *UnionFind) Singletons() int {
	n := 0
	for i := range u.parent {
		if u.size[u.Find(i)] == 1 {
			n++
		}
	}
	return n
}
