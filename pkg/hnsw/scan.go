// pkg/hnsw/scan.go
package hnsw

// ScanKey is the operator payload a caller supplies to open a scan
// (spec.md §6.4): the query vector, a distance threshold, and the
// number of results wanted.
type ScanKey struct {
	Query     []float32
	Threshold float32
	TopK      int
}

// Scan is the explicit state object spec.md §9 calls for: it holds the
// query, the beam search's resulting candidates, and a drained result
// queue, and is driven step by step via First/Next (spec.md §4.8's
// "coroutine-style scan protocol").
type Scan struct {
	idx *Index
	key ScanKey

	results   *resultQueue
	done      bool
	nReturned int
}

// OpenScan allocates a new scan over idx, mirroring the teacher's
// SearchKNN entry point but split into the First/Next steps spec.md's
// scan protocol specifies.
func OpenScan(idx *Index, key ScanKey) *Scan {
	return &Scan{idx: idx, key: key}
}

// First implements spec.md §4.8's rescan: validate dimensionality, walk
// from the top level down to level 0 via greedy descent, run a beam
// search at level 0, and drain the resulting candidates into the
// ascending-distance result queue.
func (s *Scan) First() error {
	s.done = false
	s.nReturned = 0
	s.results = &resultQueue{}

	idx := s.idx
	dims := idx.metaDims()
	if len(s.key.Query) != dims {
		return newErr(DimMismatch, "scan query dimension mismatch", nil)
	}

	idx.metaMu.RLock()
	maxLevel := idx.meta.maxLevel
	idx.metaMu.RUnlock()

	if maxLevel < 0 {
		s.done = true
		return nil
	}

	kernel := idx.kernel()

	ef := s.key.TopK
	if sef := idx.efSearch(); sef > ef {
		ef = sef
	}
	if ef < 1 {
		ef = 1
	}

	start := invalidNodeID
	for l := int(maxLevel); l >= 1; l-- {
		b, ok, err := idx.getBucket(l)
		if err != nil {
			return err
		}
		if !ok || b.ntuples == 0 {
			continue
		}
		if !start.Valid() {
			start = b.entryPoint
		}
		start, err = idx.greedySearch(l, int(b.ntuples), s.key.Query, start, kernel)
		if err != nil {
			return err
		}
	}

	if !start.Valid() {
		b, ok, err := idx.getBucket(0)
		if err != nil {
			return err
		}
		if !ok || b.ntuples == 0 {
			s.done = true
			return nil
		}
		start = b.entryPoint
	}

	topK, _, err := idx.searchLevel(0, ef, s.key.Query, start, kernel)
	if err != nil {
		return err
	}

	for topK.Len() > 0 {
		c := topK.Pop()
		if s.key.Threshold > 0 && c.dist > s.key.Threshold {
			continue
		}
		s.results.Push(c)
	}
	return nil
}

// Next pops the closest remaining candidate and returns its heapPtr, per
// spec.md §4.8: "Each next call pops the result min, returns its heapPtr
// to the caller, and signals end-of-scan when the heap empties." Deleted
// tuples never entered the result queue (search_level excludes them from
// topK while still traversing through them), so every pop here is live.
func (s *Scan) Next() (heapPtr uint64, ok bool, err error) {
	if s.done || s.results == nil {
		return 0, false, nil
	}
	if s.key.TopK > 0 && s.returned() >= s.key.TopK {
		s.done = true
		return 0, false, nil
	}

	c, hasNext := s.results.Pop()
	if !hasNext {
		s.done = true
		return 0, false, nil
	}

	dims := s.idx.metaDims()
	maxM := s.idx.maxMForLevel(0)
	t, err := s.idx.getTuple(c.id, dims, maxM)
	if err != nil {
		return 0, false, err
	}
	s.nReturned++
	return t.heapPtr, true, nil
}

func (s *Scan) returned() int { return s.nReturned }
