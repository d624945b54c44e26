package similarity

import "container/heap"

// Neighbor is one entry of a k-nearest-neighbor list: a similarity score and
// the index of the neighbor in the id list the list refers to.
type Neighbor struct {
	Sim   float64 `json:"sim"`
	Index int     `json:"index"`
}

// worseThan orders neighbors from worst to best: lower similarity first, and on
// equal similarity the higher index is considered worse so ties resolve the
// same way on every run.
func worseThan(a, b Neighbor) bool {
	if a.Sim != b.Sim {
		return a.Sim < b.Sim
	}
	return a.Index > b.Index
}

// topK is a min-heap of neighbors bounded to k entries. The root is the worst
// of the best neighbors found so far, making it cheap to replace when a more
// similar one shows up.
type topK struct {
	k     int
	items []Neighbor
}

func (h *topK) Len() int           { return len(h.items) }
func (h *topK) Less(i, j int) bool { return worseThan(h.items[i], h.items[j]) }
func (h *topK) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topK) Push(x any)         { h.items = append(h.items, x.(Neighbor)) }
func (h *topK) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

func newTopK(k int) *topK {
	h := &topK{k: k, items: make([]Neighbor, 0, k)}
	heap.Init(h)
	return h
}

// Offer inserts nb if it is among the k best seen so far.
func (h *topK) Offer(nb Neighbor) {
	if h.k <= 0 {
		return
	}
	if len(h.items) < h.k {
		heap.Push(h, nb)
		return
	}
	if worseThan(h.items[0], nb) {
		h.items[0] = nb
		heap.Fix(h, 0)
	}
}
