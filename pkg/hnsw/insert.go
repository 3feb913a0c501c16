// pkg/hnsw/insert.go
package hnsw

import (
	"math/rand"
)

// randomU returns a uniform sample in (0, 1], never exactly 0 (which
// would make -ln(u) diverge) per spec.md §3's level formula.
func randomU() float32 {
	u := rand.Float32()
	if u == 0 {
		u = 1e-7
	}
	return u
}

// Insert adds one record to the index, running the full insert path of
// spec.md §4.4 at every level 0..L with edges. heapPtr is the opaque
// reference to the owning source row; bias only matters for the Linear
// distance kind.
func (idx *Index) Insert(heapPtr uint64, vec []float32, bias float32, opOpts OperationalOptions) (NodeID, error) {
	return idx.insert(heapPtr, vec, bias, opOpts, false)
}

// insertNoEdges is phase A of the two-phase parallel build (spec.md
// §4.6): it places the tuple at every level 0..L and links tuple.next
// chains, but builds no edges anywhere, matching _hnsw_insert_data in
// the source (hninsert.c), which only ever writes placement and next
// links. Edges for every level are computed afterward, over the
// complete node set, by Builder.buildGraph.
func (idx *Index) insertNoEdges(heapPtr uint64, vec []float32, bias float32, opOpts OperationalOptions) (NodeID, error) {
	return idx.insert(heapPtr, vec, bias, opOpts, true)
}

func (idx *Index) insert(heapPtr uint64, vec []float32, bias float32, opOpts OperationalOptions, noEdges bool) (NodeID, error) {
	dims := idx.metaDims()
	if len(vec) != dims {
		return invalidNodeID, newErr(DimMismatch, "insert vector dimension mismatch", nil)
	}

	idx.metaMu.RLock()
	m := idx.meta.m
	idx.metaMu.RUnlock()

	level := randomLevel(m, randomU())

	idx.metaMu.Lock()
	lc := idx.meta.maxLevel
	if int32(level) > lc {
		idx.meta.maxLevel = int32(level)
		idx.meta.dirty = true
	}
	idx.metaMu.Unlock()

	kernel := idx.kernel()
	forceSimple := opOpts.LinkNearest

	// Upper-level descent (spec.md §4.4 step 3): walk from the current
	// top level down to one above the new node's level. Phase A
	// (noEdges) never uses this to connect anything, so it skips the
	// descent entirely, matching _hnsw_insert_data's placement-only pass.
	start := invalidNodeID
	if !noEdges && lc >= 0 {
		var err error
		start, err = idx.descendToLevel(int(lc), level, vec, kernel)
		if err != nil {
			return invalidNodeID, err
		}
	}

	tuples := make([]*tuple, level+1)
	nodeIDs := make([]NodeID, level+1)

	for l := level; l >= 0; l-- {
		maxM := idx.maxMForLevel(l)

		b, ok, err := idx.getBucket(l)
		if err != nil {
			return invalidNodeID, err
		}
		wasEmpty := !ok || b.ntuples == 0
		if !ok {
			b, err = idx.allocateBucket(l, dims)
			if err != nil {
				return invalidNodeID, err
			}
		}
		// No level above seeded the search (the new node's level is at or
		// above the old maxLevel): start from this level's entry point.
		if !noEdges && !start.Valid() && !wasEmpty {
			start = b.entryPoint
		}

		t := newTuple(invalidNodeID, heapPtr, l, maxM, dims, idx.nextTupleOrdinal(), bias, vec)

		nodeID, err := idx.writeTupleToChain(b, dims, maxM, t)
		if err != nil {
			return invalidNodeID, err
		}
		t.self = nodeID
		b.ntuples++
		if wasEmpty {
			b.entryPoint = nodeID
		}
		if err := idx.putBucket(b); err != nil {
			return invalidNodeID, err
		}

		tuples[l] = t
		nodeIDs[l] = nodeID

		if start.Valid() && !noEdges {
			ef := idx.efConstruction()
			topK, newEp, err := idx.searchLevel(l, ef, vec, start, kernel)
			if err != nil {
				return invalidNodeID, err
			}
			if err := idx.bidirectionConnect(l, nodeID, t, topK.items(), kernel, dims, maxM, forceSimple); err != nil {
				return invalidNodeID, err
			}
			start = newEp
		}
	}

	// Level linking (spec.md §4.5): tuple_l.next := nodeId_{l-1}.
	for l := 0; l <= level; l++ {
		if l > 0 {
			tuples[l].next = nodeIDs[l-1]
		} else {
			tuples[l].next = invalidNodeID
		}
		if err := idx.putTuple(tuples[l]); err != nil {
			return invalidNodeID, err
		}
	}

	return nodeIDs[0], nil
}

// writeTupleToChain places t on the bucket's current write-head overflow
// page, allocating a new page if it lacks room (spec.md §4.1), and
// returns the tuple's new NodeID. b is updated in place (pages/firstFree/
// firstFull) but not persisted here; the caller persists it.
func (idx *Index) writeTupleToChain(b *bucket, dims, maxM int, t *tuple) (NodeID, error) {
	tupleSz := tupleSize(dims, maxM)
	capacity := overflowCapacity(PageSize, tupleSz)
	if capacity == 0 {
		return invalidNodeID, newErr(PageAddFailed, "tuple too large for page", nil)
	}

	if b.firstFree == 0 {
		pg, err := idx.pg.Allocate()
		if err != nil {
			return invalidNodeID, err
		}
		blk := pg.PageNo()
		hdr := &overflowHeader{level: int16(b.level)}
		hdr.encode(pg.Data())
		pg.SetType(overflowPageType())
		idx.pg.Release(pg)

		b.firstFull = blk
		b.firstFree = blk
		b.pages++
	}

	pg, err := idx.pg.Get(b.firstFree)
	if err != nil {
		return invalidNodeID, err
	}
	hdr, err := decodeOverflowHeader(pg.Data())
	if err != nil {
		idx.pg.Release(pg)
		return invalidNodeID, err
	}

	if int(hdr.maxOff) >= capacity {
		// Current write head is full: allocate and chain a new page.
		idx.pg.Release(pg)

		newPg, err := idx.pg.Allocate()
		if err != nil {
			return invalidNodeID, err
		}
		newBlk := newPg.PageNo()
		newHdr := &overflowHeader{level: int16(b.level), prevBlk: b.firstFree}
		newHdr.encode(newPg.Data())
		newPg.SetType(overflowPageType())
		idx.pg.Release(newPg)

		oldPg, err := idx.pg.Get(b.firstFree)
		if err != nil {
			return invalidNodeID, err
		}
		oldHdr, err := decodeOverflowHeader(oldPg.Data())
		if err != nil {
			idx.pg.Release(oldPg)
			return invalidNodeID, err
		}
		oldHdr.nextBlk = newBlk
		oldHdr.encode(oldPg.Data())
		oldPg.SetDirty(true)
		idx.pg.Release(oldPg)

		b.firstFree = newBlk
		b.pages++

		pg, err = idx.pg.Get(newBlk)
		if err != nil {
			return invalidNodeID, err
		}
		hdr, err = decodeOverflowHeader(pg.Data())
		if err != nil {
			idx.pg.Release(pg)
			return invalidNodeID, err
		}
	}

	slot := int(hdr.maxOff)
	nodeID := newNodeID(pg.PageNo(), uint32(slot))
	t.self = nodeID
	t.encode(pg.Data(), slot)

	hdr.maxOff++
	hdr.encode(pg.Data())
	pg.SetDirty(true)
	idx.pg.Release(pg)

	return nodeID, nil
}

// bidirectionConnect implements spec.md §4.4 step e: select neighbors for
// the new tuple from the candidate set, write them into its array, and
// append or re-select each chosen neighbor's back-edge.
func (idx *Index) bidirectionConnect(level int, newID NodeID, newT *tuple, cands []candidate, kernel Kernel, dims, maxM int, forceSimple bool) error {
	winners, err := idx.selectNeighbors(cands, maxM, kernel, dims, maxM, forceSimple)
	if err != nil {
		return err
	}
	for _, w := range winners {
		if w.ID == newID {
			return newErr(SelfLink, "candidate selection produced a self link", nil)
		}
	}
	newT.setNeighbors(winners)
	if err := idx.putTuple(newT); err != nil {
		return err
	}

	for _, w := range winners {
		if err := idx.addBackEdge(level, w.ID, newID, w.Dist, kernel, dims, maxM, forceSimple); err != nil {
			return err
		}
	}
	return nil
}

// addBackEdge appends (or, if the neighbor is already at capacity,
// re-selects) neighborID's edge to newID, serialized on neighborID's
// tuple spinlock.
func (idx *Index) addBackEdge(level int, neighborID, newID NodeID, dist float32, kernel Kernel, dims, maxM int, forceSimple bool) error {
	if neighborID == newID {
		return newErr(SelfLink, "back-edge target equals new node", nil)
	}

	lock := idx.tupleLock(neighborID)
	lock.Lock()
	defer lock.Unlock()

	nt, err := idx.getTuple(neighborID, dims, maxM)
	if err != nil {
		return err
	}
	if int(nt.level) != level {
		return newErr(LevelMismatch, "back-edge target at different level", nil)
	}

	if nt.outDegree < nt.maxM {
		nt.insertNeighborSorted(NeighborEdge{ID: newID, Dist: dist})
		nt.inDegree++ // advisory, non-atomic by design (spec.md §9)
	} else {
		combined := make([]candidate, 0, nt.outDegree+1)
		for _, e := range nt.liveNeighbors() {
			combined = append(combined, candidate{id: e.ID, dist: e.Dist})
		}
		combined = append(combined, candidate{id: newID, dist: dist})
		winners, err := idx.selectNeighbors(combined, int(nt.maxM), kernel, dims, maxM, forceSimple)
		if err != nil {
			return err
		}
		nt.setNeighbors(winners)
	}
	return idx.putTuple(nt)
}

func (idx *Index) efConstruction() int {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.efConstruction
}

func (idx *Index) efSearch() int {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.efSearch
}
