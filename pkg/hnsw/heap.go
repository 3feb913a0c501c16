// pkg/hnsw/heap.go
package hnsw

import "container/heap"

// candidate pairs a node with its distance from the active query, the
// common element of every heap primitive in this file.
type candidate struct {
	id   NodeID
	dist float32
}

// binHeap is a container/heap-backed slice; isMax flips comparison
// direction so the same machinery backs both the beam search's min-heap
// frontier and its max-heap result set (spec.md §4.3), the way
// straga-Mimir_lite's hnswDistHeap does for its single in-memory index.
type binHeap struct {
	items []candidate
	isMax bool
}

func (h *binHeap) Len() int { return len(h.items) }
func (h *binHeap) Less(i, j int) bool {
	if h.isMax {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}
func (h *binHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *binHeap) Push(x any)    { h.items = append(h.items, x.(candidate)) }
func (h *binHeap) Pop() any {
	old := h.items
	n := len(old)
	last := old[n-1]
	h.items = old[:n-1]
	return last
}

// frontierHeap is the min-heap of unvisited candidates in search_level.
type frontierHeap struct{ h binHeap }

func newFrontierHeap() *frontierHeap { return &frontierHeap{h: binHeap{isMax: false}} }
func (f *frontierHeap) Push(c candidate) { heap.Push(&f.h, c) }
func (f *frontierHeap) Pop() candidate    { return heap.Pop(&f.h).(candidate) }
func (f *frontierHeap) Len() int         { return f.h.Len() }

// topKHeap is the bounded max-heap of best-so-far results in
// search_level: its top is the current worst accepted candidate, popped
// when the heap grows past ef (spec.md §4.3 step 3).
type topKHeap struct{ h binHeap }

func newTopKHeap() *topKHeap { return &topKHeap{h: binHeap{isMax: true}} }
func (t *topKHeap) Push(c candidate) { heap.Push(&t.h, c) }
func (t *topKHeap) Pop() candidate    { return heap.Pop(&t.h).(candidate) }
func (t *topKHeap) Len() int         { return t.h.Len() }
func (t *topKHeap) Top() candidate    { return t.h.items[0] }

// items returns a copy of the heap's contents, unordered beyond the heap
// invariant; used once search_level finishes to hand candidates to
// neighbor selection.
func (t *topKHeap) items() []candidate {
	out := make([]candidate, len(t.h.items))
	copy(out, t.h.items)
	return out
}

// pairNode is one node of the pairing heap backing the query scan's
// result queue (spec.md §2/§4.8 name a pairing heap specifically, distinct
// from the binary max/min heaps search_level uses). None of the retrieved
// example repos implement a pairing heap; this is written directly from
// the classic two-pass-merge algorithm, not adapted from any one source.
type pairNode struct {
	val         candidate
	child, next *pairNode
}

// resultQueue is a min-by-distance pairing heap: the scan's First call
// creates it and drains search_level's results into it (spec.md §4.8
// step 4), and each scan Next call extracts
// the current minimum.
type resultQueue struct {
	root *pairNode
	n    int
}

func (q *resultQueue) Len() int { return q.n }

func (q *resultQueue) Push(c candidate) {
	q.root = merge(q.root, &pairNode{val: c})
	q.n++
}

// Pop removes and returns the minimum-distance candidate.
func (q *resultQueue) Pop() (candidate, bool) {
	if q.root == nil {
		return candidate{}, false
	}
	min := q.root.val
	q.root = mergePairs(q.root.child)
	q.n--
	return min, true
}

func merge(a, b *pairNode) *pairNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.val.dist < a.val.dist {
		a, b = b, a
	}
	b.next = a.child
	a.child = b
	return a
}

// mergePairs does the standard two-pass pairwise merge of a pairing
// heap's sibling list after removing the root.
func mergePairs(first *pairNode) *pairNode {
	if first == nil || first.next == nil {
		return first
	}
	a := first
	b := first.next
	rest := b.next
	a.next = nil
	b.next = nil
	return merge(merge(a, b), mergePairs(rest))
}
