// pkg/hnsw/index.go
package hnsw

import (
	"sync"
	"sync/atomic"

	"hnswdb/pkg/hnswlog"
	"hnswdb/pkg/pager"
)

// metaBlock is the fixed host page holding the index's meta record. Host
// page 0 is reserved for the pager's own file header (magic, page size,
// freelist head — see pkg/pager/pager.go's writeHeader), so the index's
// own "block 0" of spec.md §3 is relocated to host page 1. This also
// keeps NodeID's "block 0 is never a tuple" invariant intact: host page 0
// never holds index data of any kind.
const metaBlock uint32 = 1

// Index is a disk-resident HNSW index over fixed-dimensional float32
// vectors, backed by a host pager (spec.md's "paged buffer interface").
type Index struct {
	pg *pager.Pager

	metaMu sync.RWMutex
	meta   *meta

	opOpts OperationalOptions

	locks sync.Map // NodeID -> *spinlock, guards neighbor-array mutation

	tupleOrdinal atomic.Uint32 // source for tuple.id, spec.md §6.1

	log hnswlog.Logger
}

// nextTupleOrdinal returns a monotonically increasing id shared by every
// level's tuple record written for one inserted row.
func (idx *Index) nextTupleOrdinal() uint32 {
	return idx.tupleOrdinal.Add(1)
}

// Create initializes a new index file at path with the given creation
// options.
func Create(path string, opts CreateOptions) (*Index, error) {
	kind, err := opts.validate()
	if err != nil {
		return nil, err
	}

	pg, err := pager.Open(path, pager.Options{PageSize: PageSize})
	if err != nil {
		return nil, err
	}

	idx := &Index{pg: pg, log: hnswlog.New(nil, "hnsw.index")}

	// Ensure host page 1 (our meta block) exists.
	for pg.PageCount() <= metaBlock {
		if _, err := pg.Allocate(); err != nil {
			pg.Close()
			return nil, err
		}
	}

	m := &meta{
		dims:           opts.Dims,
		m:              opts.M,
		m0:             opts.M * 2,
		efConstruction: opts.EfConstruction,
		efSearch:       opts.EfSearch,
		distKind:       kind,
		maxLevel:       -1,
	}
	idx.meta = m
	if err := idx.flushMeta(); err != nil {
		pg.Close()
		return nil, err
	}

	idx.log.Info("index created", "path", path, "dims", opts.Dims, "m", opts.M, "algorithm", kind.String())
	return idx, nil
}

// Open opens an existing index file, validating the meta magic/sentinel.
func Open(path string) (*Index, error) {
	pg, err := pager.Open(path, pager.Options{PageSize: PageSize})
	if err != nil {
		return nil, err
	}

	idx := &Index{pg: pg, log: hnswlog.New(nil, "hnsw.index")}
	if err := idx.loadMeta(); err != nil {
		pg.Close()
		return nil, err
	}
	return idx, nil
}

// Close flushes the meta record if dirty and closes the host pager.
func (idx *Index) Close() error {
	idx.metaMu.Lock()
	dirty := idx.meta != nil && idx.meta.dirty
	idx.metaMu.Unlock()
	if dirty {
		if err := idx.flushMeta(); err != nil {
			return err
		}
	}
	return idx.pg.Close()
}

// Sync flushes the meta record (if dirty) and the host pager.
func (idx *Index) Sync() error {
	idx.metaMu.Lock()
	dirty := idx.meta.dirty
	idx.metaMu.Unlock()
	if dirty {
		if err := idx.flushMeta(); err != nil {
			return err
		}
	}
	return idx.pg.Sync()
}

// Dims returns the index's fixed dimensionality.
func (idx *Index) Dims() int {
	idx.metaMu.RLock()
	defer idx.metaMu.RUnlock()
	return idx.meta.dims
}

// PageTypeCounts reports how many cache-resident host pages carry each
// HNSW page type (meta/bucket/overflow/freelist/unknown), for the host's
// stats reporting.
func (idx *Index) PageTypeCounts() map[pager.PageType]int {
	return idx.pg.PageTypeCounts()
}

// FreePageCount reports how many host pages Vacuum has reclaimed onto the
// freelist and are available for reuse by the next overflow-page
// allocation, without growing the file.
func (idx *Index) FreePageCount() uint32 {
	return idx.pg.FreePageCount()
}

func (idx *Index) loadMeta() error {
	pg, err := idx.pg.Get(metaBlock)
	if err != nil {
		return err
	}
	defer idx.pg.Release(pg)

	m, err := decodeMeta(pg.Data())
	if err != nil {
		return err
	}
	idx.metaMu.Lock()
	idx.meta = m
	idx.metaMu.Unlock()
	return nil
}

// flushMeta writes the meta record. Per spec.md §9's first Open Question,
// a maxLevel change only sets meta.dirty; the record is written by Create,
// by Close/Sync when meta.dirty is set, and once at the end of each build
// driver (BuildSequential/BuildParallel).
func (idx *Index) flushMeta() error {
	pg, err := idx.pg.Get(metaBlock)
	if err != nil {
		return err
	}
	defer idx.pg.Release(pg)

	idx.metaMu.Lock()
	idx.meta.encode(pg.Data())
	idx.meta.dirty = false
	idx.metaMu.Unlock()

	pg.SetType(metaPageType())
	pg.SetDirty(true)
	return nil
}

// tupleLock returns (creating if needed) the runtime spinlock guarding
// id's neighbor array.
func (idx *Index) tupleLock(id NodeID) *spinlock {
	v, _ := idx.locks.LoadOrStore(id, &spinlock{})
	return v.(*spinlock)
}

// getBucket loads the bucket record for level l, or (nil, false, nil) if
// the level has never been allocated.
func (idx *Index) getBucket(level int) (*bucket, bool, error) {
	idx.metaMu.RLock()
	blk := idx.meta.levelBlk[level]
	idx.metaMu.RUnlock()
	if blk == 0 {
		return nil, false, nil
	}
	pg, err := idx.pg.Get(blk)
	if err != nil {
		return nil, false, err
	}
	defer idx.pg.Release(pg)
	b, err := decodeBucket(pg.Data())
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// putBucket writes b back to its page.
func (idx *Index) putBucket(b *bucket) error {
	idx.metaMu.RLock()
	blk := idx.meta.levelBlk[b.level]
	idx.metaMu.RUnlock()
	pg, err := idx.pg.Get(blk)
	if err != nil {
		return err
	}
	defer idx.pg.Release(pg)
	b.encode(pg.Data())
	pg.SetType(bucketPageType())
	pg.SetDirty(true)
	return nil
}

// allocateBucket creates the head bucket page for a level that has never
// been written to, registering its block in meta.levelBlk.
func (idx *Index) allocateBucket(level, dims int) (*bucket, error) {
	pg, err := idx.pg.Allocate()
	if err != nil {
		return nil, err
	}
	blk := pg.PageNo()
	pg.SetType(bucketPageType())
	idx.pg.Release(pg)

	idx.metaMu.Lock()
	idx.meta.levelBlk[level] = blk
	idx.metaMu.Unlock()

	b := &bucket{level: level, dims: dims, entryPoint: invalidNodeID}
	if err := idx.putBucket(b); err != nil {
		return nil, err
	}
	return b, nil
}

// getTuple reads the tuple record at id, given the dims/maxM needed to
// decode it (both derivable from the index meta and the tuple's level).
func (idx *Index) getTuple(id NodeID, dims, maxM int) (*tuple, error) {
	pg, err := idx.pg.Get(id.Block())
	if err != nil {
		return nil, err
	}
	defer idx.pg.Release(pg)
	return decodeTuple(pg.Data(), int(id.Slot()), dims, maxM)
}

// putTuple writes t back to its own page (t.self), marking it dirty.
func (idx *Index) putTuple(t *tuple) error {
	pg, err := idx.pg.Get(t.self.Block())
	if err != nil {
		return err
	}
	defer idx.pg.Release(pg)
	t.encode(pg.Data(), int(t.self.Slot()))
	pg.SetDirty(true)
	return nil
}
