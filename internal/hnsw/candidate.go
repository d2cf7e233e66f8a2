package hnsw

import "container/heap"

// Candidate is one scored point during graph traversal: ID is the internal
// dense node-array index, not the public vector id.
type Candidate struct {
	ID       uint32
	Distance float32
}

// MinHeap pops the closest candidate first; used to drive the traversal
// frontier (smallest distance explored next).
type MinHeap []*Candidate

func (h MinHeap) Len() int { return len(h) }
func (h MinHeap) Less(i, j int) bool {
	if h[i].Distance == h[j].Distance {
		return h[i].ID < h[j].ID
	}
	return h[i].Distance < h[j].Distance
}
func (h MinHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *MinHeap) Push(x interface{}) { *h = append(*h, x.(*Candidate)) }
func (h *MinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MaxHeap pops the farthest candidate first; used to bound the result set
// to its ef/ k nearest members by evicting the worst entry.
type MaxHeap []*Candidate

func (h MaxHeap) Len() int { return len(h) }
func (h MaxHeap) Less(i, j int) bool {
	if h[i].Distance == h[j].Distance {
		return h[i].ID > h[j].ID
	}
	return h[i].Distance > h[j].Distance
}
func (h MaxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *MaxHeap) Push(x interface{}) { *h = append(*h, x.(*Candidate)) }
func (h *MaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newMinHeap() *MinHeap {
	h := &MinHeap{}
	heap.Init(h)
	return h
}

func newMaxHeap() *MaxHeap {
	h := &MaxHeap{}
	heap.Init(h)
	return h
}

// sortedAscending drains a MinHeap-ordered slice of candidates into a
// distance-ascending slice without mutating the heap the caller passed.
func sortedAscending(candidates []*Candidate) []*Candidate {
	h := make(MinHeap, len(candidates))
	copy(h, candidates)
	heap.Init(&h)
	out := make([]*Candidate, 0, len(h))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(*Candidate))
	}
	return out
}
