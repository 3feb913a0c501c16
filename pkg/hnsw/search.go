// pkg/hnsw/search.go
package hnsw

import "math"

// greedySearch implements spec.md §4.3's greedy descent: from ep, repeatedly
// move to the out-neighbor closest to q, stopping after hops steps or once
// no neighbor improves on the current node. It returns the next pointer of
// the best node found at this level (the corresponding node one level
// down), or ep's own next if no improvement ever happened.
func (idx *Index) greedySearch(level, hops int, q []float32, ep NodeID, kernel Kernel) (NodeID, error) {
	dims := idx.metaDims()
	maxM := idx.maxMForLevel(level)

	cur := ep
	curTuple, err := idx.getTuple(cur, dims, maxM)
	if err != nil {
		return invalidNodeID, err
	}
	curDist := kernel(q, curTuple.vector, curTuple.bias)

	for h := 0; h < hops; h++ {
		best := cur
		bestDist := curDist
		var bestTuple *tuple

		for _, nb := range curTuple.liveNeighbors() {
			nt, err := idx.getTuple(nb.ID, dims, maxM)
			if err != nil {
				return invalidNodeID, err
			}
			d := kernel(q, nt.vector, nt.bias)
			if d < bestDist {
				bestDist = d
				best = nb.ID
				bestTuple = nt
			}
		}

		if best == cur {
			break // no improvement: stop, return cur's own next below
		}
		cur = best
		curDist = bestDist
		curTuple = bestTuple
	}

	return curTuple.next, nil
}

// descendToLevel implements the shared upper-level descent step of
// spec.md §4.3/§4.4: starting from fromLevel's bucket entry point,
// greedily descend one level at a time down to (but not including)
// toLevel, returning the resulting entry point to seed a search at
// toLevel. Returns invalidNodeID untouched if no populated level
// between fromLevel and toLevel exists.
func (idx *Index) descendToLevel(fromLevel, toLevel int, q []float32, kernel Kernel) (NodeID, error) {
	start := invalidNodeID
	for l := fromLevel; l > toLevel; l-- {
		b, ok, err := idx.getBucket(l)
		if err != nil {
			return invalidNodeID, err
		}
		if !ok || b.ntuples == 0 {
			continue
		}
		if !start.Valid() {
			start = b.entryPoint
		}
		start, err = idx.greedySearch(l, int(b.ntuples), q, start, kernel)
		if err != nil {
			return invalidNodeID, err
		}
	}
	return start, nil
}

// searchLevel implements spec.md §4.3's beam search at one level: it
// returns a max-heap of size <= ef holding the best nodes found, and the
// new entry point (the overall-closest node's next pointer) for descent
// to the level below.
func (idx *Index) searchLevel(level, ef int, q []float32, ep NodeID, kernel Kernel) (*topKHeap, NodeID, error) {
	dims := idx.metaDims()
	maxM := idx.maxMForLevel(level)

	epTuple, err := idx.getTuple(ep, dims, maxM)
	if err != nil {
		return nil, invalidNodeID, err
	}
	epDist := kernel(q, epTuple.vector, epTuple.bias)

	visited := map[NodeID]bool{ep: true}
	frontier := newFrontierHeap()
	topK := newTopKHeap()

	frontier.Push(candidate{ep, epDist})
	if !epTuple.deleted {
		topK.Push(candidate{ep, epDist})
	}

	best, bestDist := ep, epDist

	lowerBound := func() float32 {
		if topK.Len() == 0 {
			return float32(math.Inf(1))
		}
		return topK.Top().dist
	}
	bound := lowerBound()

	for frontier.Len() > 0 {
		c := frontier.Pop()
		if c.dist > bound {
			break
		}

		ct, err := idx.getTuple(c.id, dims, maxM)
		if err != nil {
			return nil, invalidNodeID, err
		}

		for _, nb := range ct.liveNeighbors() {
			if visited[nb.ID] {
				continue
			}
			visited[nb.ID] = true

			nt, err := idx.getTuple(nb.ID, dims, maxM)
			if err != nil {
				return nil, invalidNodeID, err
			}
			d := kernel(q, nt.vector, nt.bias)
			if d < bestDist {
				bestDist = d
				best = nb.ID
			}

			if topK.Len() < ef || d < bound {
				frontier.Push(candidate{nb.ID, d})
				if !nt.deleted {
					topK.Push(candidate{nb.ID, d})
					if topK.Len() > ef {
						topK.Pop()
					}
					bound = lowerBound()
				}
			}
		}
	}

	bestTuple, err := idx.getTuple(best, dims, maxM)
	if err != nil {
		return nil, invalidNodeID, err
	}
	return topK, bestTuple.next, nil
}

func (idx *Index) metaDims() int {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.dims
}

func (idx *Index) maxMForLevel(level int) int {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.maxMFor(level)
}

func (idx *Index) kernel() Kernel {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return kernelFor(idx.meta.distKind)
}

func (idx *Index) distKind() DistanceKind {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.distKind
}
