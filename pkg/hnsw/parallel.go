// pkg/hnsw/parallel.go
package hnsw

import (
	"context"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// l0Control is the shared control block of spec.md §4.7: a mutex-guarded
// work-stealing cursor over the level-0 overflow-page chain, plus the
// entry point workers descend from. In the source this lives in shared
// memory across worker processes; here every worker is a goroutine
// inside the same process, so a plain mutex and struct suffice.
type l0Control struct {
	mu sync.Mutex

	nextBlk   uint32
	doneCount int

	l1Entry   NodeID
	l1NTuples int
}

// claim implements the worker loop's claim step: "acquire mutex; if
// blkno == invalid: release, exit; myBlk := blkno; blkno :=
// page(myBlk).nextBlk; done := doneCount; doneCount += 1; release
// mutex". Reading the claimed page's header to find the next block
// happens under the same lock, matching the pseudocode.
func (c *l0Control) claim(idx *Index) (blk uint32, done int, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nextBlk == 0 {
		return 0, 0, false, nil
	}
	myBlk := c.nextBlk

	pg, err := idx.pg.Get(myBlk)
	if err != nil {
		return 0, 0, false, err
	}
	hdr, err := decodeOverflowHeader(pg.Data())
	idx.pg.Release(pg)
	if err != nil {
		return 0, 0, false, err
	}

	c.nextBlk = hdr.nextBlk
	done = c.doneCount
	c.doneCount++
	return myBlk, done, true, nil
}

// parallelL0Build is spec.md §4.7's parallel L0 finalizer: it shards the
// level-0 overflow-page chain (already populated with edge-less tuples
// by phase A's insertNoEdges) across a worker pool of opOpts.IndexParallel
// goroutines, computing and writing each tuple's level-0 edges via the
// same search_level + bidirection_connect machinery the sequential
// insert path uses.
func (idx *Index) parallelL0Build(ctx context.Context, bkt *bucket, opOpts OperationalOptions) error {
	workers := opOpts.IndexParallel
	if workers <= 0 {
		workers = 1
	}

	idx.metaMu.RLock()
	maxLevel := idx.meta.maxLevel
	idx.metaMu.RUnlock()

	ctrl := &l0Control{nextBlk: bkt.firstFull, l1Entry: bkt.entryPoint}
	if maxLevel >= 1 {
		b1, ok, err := idx.getBucket(1)
		if err != nil {
			return err
		}
		if ok && b1.ntuples > 0 {
			ctrl.l1Entry = b1.entryPoint
			ctrl.l1NTuples = int(b1.ntuples)
		}
	}

	dims := idx.metaDims()
	maxM := idx.maxMForLevel(0)
	ef := idx.efConstruction()
	kernel := idx.kernel()
	forceSimple := opOpts.LinkNearest

	var bar *progressbar.ProgressBar
	if bkt.pages > 0 {
		bar = progressbar.Default(int64(bkt.pages), "hnsw l0 build")
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return newErr(DuringInterrupt, "parallel L0 build cancelled", err)
				}

				blk, done, ok, err := ctrl.claim(idx)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}

				if err := idx.finalizeL0Page(blk, dims, maxM, ef, maxLevel, ctrl.l1Entry, ctrl.l1NTuples, kernel, forceSimple); err != nil {
					return err
				}

				if bar != nil {
					_ = bar.Add(1)
				}
				if (done+1)%100 == 0 {
					idx.log.Info("parallel L0 build progress", "pages", done+1, "total", bkt.pages)
				}
			}
		})
	}
	return g.Wait()
}

// finalizeL0Page runs spec.md §4.7's per-tuple worker body over every
// live tuple on overflow page blk: greedy-descend from the level-1 entry
// point (or, if the index has no level above 0, the level-0 bucket's own
// entry point) to seed a level-0 beam search, then bidirectionally
// connect the tuple's edges.
func (idx *Index) finalizeL0Page(blk uint32, dims, maxM, ef int, maxLevel int32, l1Entry NodeID, l1NTuples int, kernel Kernel, forceSimple bool) error {
	pg, err := idx.pg.Get(blk)
	if err != nil {
		return err
	}
	hdr, err := decodeOverflowHeader(pg.Data())
	if err != nil {
		idx.pg.Release(pg)
		return err
	}
	maxOff := int(hdr.maxOff)
	idx.pg.Release(pg)

	for slot := 0; slot < maxOff; slot++ {
		pg, err := idx.pg.Get(blk)
		if err != nil {
			return err
		}
		t, err := decodeTuple(pg.Data(), slot, dims, maxM)
		idx.pg.Release(pg)
		if err != nil {
			return err
		}
		if t.deleted {
			continue
		}

		ep := l1Entry
		if maxLevel >= 1 && l1Entry.Valid() {
			ep, err = idx.greedySearch(1, l1NTuples, t.vector, l1Entry, kernel)
			if err != nil {
				return err
			}
		}
		if !ep.Valid() {
			continue // single-node index: nothing to connect to yet
		}

		cands, _, err := idx.searchLevel(0, ef, t.vector, ep, kernel)
		if err != nil {
			return err
		}
		// Unlike a fresh sequential insert, t already exists at every level
		// phase A built, so its own upper-level node can legitimately be the
		// closest match to its own vector and surface itself as a level-0
		// candidate; drop it before connecting to preserve the no-self-loop
		// invariant (spec.md §8 property 4).
		items := cands.items()
		filtered := items[:0]
		for _, c := range items {
			if c.id != t.self {
				filtered = append(filtered, c)
			}
		}
		if err := idx.bidirectionConnect(0, t.self, t, filtered, kernel, dims, maxM, forceSimple); err != nil {
			return err
		}
	}
	return nil
}
