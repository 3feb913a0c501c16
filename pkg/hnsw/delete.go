// pkg/hnsw/delete.go
package hnsw

// DeleteResult summarizes one bulk-delete pass over the index (spec.md
// §4.9), reported back to the host's VACUUM driver.
type DeleteResult struct {
	TuplesDeleted int
	PagesFreed    int
}

// BulkDelete visits every overflow page at every level and marks
// tuple.deleted = true for every live tuple whose heapPtr is reported
// "should delete" by isDeleted (spec.md §4.9's callback from the host's
// VACUUM driver). Neighbor arrays are never rewritten: visibility is
// enforced purely at query time by search_level's existing exclusion of
// deleted tuples from the result heap. A page that becomes wholly
// tombstoned is flagged so Vacuum can reclaim it.
func (idx *Index) BulkDelete(isDeleted func(heapPtr uint64) bool) (DeleteResult, error) {
	var result DeleteResult

	idx.metaMu.RLock()
	levelBlk := idx.meta.levelBlk
	idx.metaMu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		if levelBlk[level] == 0 {
			continue
		}
		b, ok, err := idx.getBucket(level)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}

		liveRemaining := false
		blk := b.firstFull
		for blk != 0 {
			pg, err := idx.pg.Get(blk)
			if err != nil {
				return result, err
			}
			hdr, err := decodeOverflowHeader(pg.Data())
			if err != nil {
				idx.pg.Release(pg)
				return result, err
			}

			dims := b.dims
			maxM := idx.maxMForLevel(level)
			pageLive := false
			changed := false
			for slot := 0; slot < int(hdr.maxOff); slot++ {
				t, err := decodeTuple(pg.Data(), slot, dims, maxM)
				if err != nil {
					idx.pg.Release(pg)
					return result, err
				}
				if t.deleted {
					continue
				}
				if isDeleted(t.heapPtr) {
					t.deleted = true
					t.encode(pg.Data(), slot)
					changed = true
					result.TuplesDeleted++
				} else {
					pageLive = true
				}
			}

			if !pageLive {
				hdr.flags |= flagWholeDeleted
				hdr.encode(pg.Data())
				changed = true
			} else {
				liveRemaining = true
			}

			if changed {
				pg.SetDirty(true)
			}
			next := hdr.nextBlk
			idx.pg.Release(pg)
			blk = next
		}

		if !liveRemaining {
			b.entryPoint = invalidNodeID
			b.ntuples = 0
		}
		if err := idx.putBucket(b); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Vacuum reclaims every wholly-tombstoned overflow page back to the
// host's free-space map (spec.md §4.9), and recomputes each bucket's
// live ntuples count (SPEC_FULL.md §C). Neighbor arrays pointing at
// reclaimed pages are left as-is: a dangling neighbor is only ever
// followed during a frontier walk, never added to a result heap, so a
// stale edge degrades beam width, not correctness, until the next
// insert overwrites it.
func (idx *Index) Vacuum() (DeleteResult, error) {
	var result DeleteResult

	idx.metaMu.RLock()
	levelBlk := idx.meta.levelBlk
	idx.metaMu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		if levelBlk[level] == 0 {
			continue
		}
		b, ok, err := idx.getBucket(level)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}

		dims := b.dims
		maxM := idx.maxMForLevel(level)

		var liveTuples uint64
		blk := b.firstFull
		var prevLiveBlk uint32
		for blk != 0 {
			pg, err := idx.pg.Get(blk)
			if err != nil {
				return result, err
			}
			hdr, err := decodeOverflowHeader(pg.Data())
			if err != nil {
				idx.pg.Release(pg)
				return result, err
			}
			next := hdr.nextBlk

			if hdr.wholeDeleted() {
				idx.pg.Release(pg)
				if err := idx.unlinkOverflowPage(b, prevLiveBlk, blk, next); err != nil {
					return result, err
				}
				if err := idx.pg.Free(blk); err != nil {
					return result, err
				}
				b.pages--
				result.PagesFreed++
				blk = next
				continue
			}

			for slot := 0; slot < int(hdr.maxOff); slot++ {
				t, err := decodeTuple(pg.Data(), slot, dims, maxM)
				if err != nil {
					idx.pg.Release(pg)
					return result, err
				}
				if !t.deleted {
					liveTuples++
				}
			}
			idx.pg.Release(pg)
			prevLiveBlk = blk
			blk = next
		}

		b.ntuples = liveTuples
		if liveTuples == 0 {
			b.entryPoint = invalidNodeID
		}
		if err := idx.putBucket(b); err != nil {
			return result, err
		}
	}

	return result, nil
}

// unlinkOverflowPage removes blk from its level's doubly-linked overflow
// chain (spec.md §4.1), relinking prevLiveBlk (0 if blk was the chain
// head) to next and fixing next's back-pointer, then updates the
// bucket's firstFull/firstFree if either named the reclaimed page.
func (idx *Index) unlinkOverflowPage(b *bucket, prevLiveBlk, blk, next uint32) error {
	if prevLiveBlk != 0 {
		pg, err := idx.pg.Get(prevLiveBlk)
		if err != nil {
			return err
		}
		hdr, err := decodeOverflowHeader(pg.Data())
		if err != nil {
			idx.pg.Release(pg)
			return err
		}
		hdr.nextBlk = next
		hdr.encode(pg.Data())
		pg.SetDirty(true)
		idx.pg.Release(pg)
	} else {
		b.firstFull = next
	}

	if next != 0 {
		pg, err := idx.pg.Get(next)
		if err != nil {
			return err
		}
		hdr, err := decodeOverflowHeader(pg.Data())
		if err != nil {
			idx.pg.Release(pg)
			return err
		}
		hdr.prevBlk = prevLiveBlk
		hdr.encode(pg.Data())
		pg.SetDirty(true)
		idx.pg.Release(pg)
	}

	if b.firstFree == blk {
		b.firstFree = prevLiveBlk
	}
	return nil
}
