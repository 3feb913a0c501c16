// pkg/hnsw/build.go
package hnsw

import (
	"context"

	"hnswdb/pkg/hnswlog"
)

// Row is one source record the build driver consumes: an opaque
// reference back to the owning store plus its fixed-dimensional vector
// and distance bias.
type Row struct {
	HeapPtr uint64
	Vector  []float32
	Bias    float32
}

// Builder drives bulk construction of an index from a stream of rows,
// in either of spec.md §4.6's two modes.
type Builder struct {
	idx *Index
	log hnswlog.Logger
}

// NewBuilder wraps idx for bulk loading.
func NewBuilder(idx *Index) *Builder {
	return &Builder{idx: idx, log: hnswlog.New(nil, "hnsw.build")}
}

// BuildSequential runs every row through the full insert path (spec.md
// §4.6's sequential mode), flushing the meta record at the end.
func (b *Builder) BuildSequential(ctx context.Context, rows []Row, opOpts OperationalOptions) error {
	if err := opOpts.validate(); err != nil {
		return err
	}
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return newErr(DuringInterrupt, "build cancelled", err)
		}
		if _, err := b.idx.Insert(r.HeapPtr, r.Vector, r.Bias, opOpts); err != nil {
			return err
		}
		if (i+1)%1000 == 0 {
			b.log.Info("sequential build progress", "rows", i+1, "total", len(rows))
		}
	}
	return b.idx.flushMeta()
}

// BuildParallel runs spec.md §4.6's two-phase parallel mode: phase A
// (insertNoEdges) places every row at every level 0..L it draws,
// linking tuple.next chains but building no edges anywhere, matching
// _hnsw_insert_data in the source (hninsert.c:399-538). Phase B
// (buildGraph) then computes edges for levels >= 1 against the
// complete, fully-populated node set, the way build_graph does
// (hninsert.c:630-721), before handing L0 to the parallel worker pool
// of §4.7.
func (b *Builder) BuildParallel(ctx context.Context, rows []Row, opOpts OperationalOptions) error {
	if err := opOpts.validate(); err != nil {
		return err
	}
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return newErr(DuringInterrupt, "build cancelled", err)
		}
		if _, err := b.idx.insertNoEdges(r.HeapPtr, r.Vector, r.Bias, opOpts); err != nil {
			return err
		}
		if (i+1)%1000 == 0 {
			b.log.Info("phase A progress", "rows", i+1, "total", len(rows))
		}
	}

	if err := b.buildGraph(ctx, opOpts); err != nil {
		return err
	}
	return b.idx.flushMeta()
}

// buildGraph is spec.md §4.6's phase B. It walks every level from the
// index's current top down to 1 (skipping L0, which the parallel
// workers handle separately) and, for each live tuple in that level's
// overflow-page chain in placement order, greedily descends from the
// levels above (already rebuilt, since this loop runs top-down) to
// find a seed, then runs the same search_level + bidirection_connect
// machinery spec.md §4.4 uses for a fresh insert. Each level's edges
// therefore see every tuple ever placed at that level, not just the
// ones phase A had already written when it ran, matching build_graph's
// semantics in the source.
func (b *Builder) buildGraph(ctx context.Context, opOpts OperationalOptions) error {
	idx := b.idx

	idx.metaMu.RLock()
	maxLevel := idx.meta.maxLevel
	idx.metaMu.RUnlock()

	kernel := idx.kernel()
	forceSimple := opOpts.LinkNearest
	ef := idx.efConstruction()

	for l := int(maxLevel); l >= 1; l-- {
		if err := ctx.Err(); err != nil {
			return newErr(DuringInterrupt, "build cancelled", err)
		}

		bkt, ok, err := idx.getBucket(l)
		if err != nil {
			return err
		}
		if !ok || bkt.ntuples == 0 {
			continue
		}
		if err := idx.buildLevelEdges(l, int(maxLevel), bkt, ef, kernel, forceSimple); err != nil {
			return err
		}
		b.log.Info("phase B level built", "level", l, "tuples", bkt.ntuples)
	}

	l0, ok, err := idx.getBucket(0)
	if err != nil {
		return err
	}
	if !ok || l0.ntuples == 0 {
		return nil
	}
	return idx.parallelL0Build(ctx, l0, opOpts)
}

// buildLevelEdges computes edges for every live tuple in bkt (level l),
// walking its overflow-page chain in placement order so later tuples
// can connect to edges built earlier in the same pass, exactly as a
// run of sequential inserts confined to this one level would. A
// tuple's seed comes from descending the already-rebuilt levels above
// l; the level's own first-ever tuple (bkt.entryPoint) anchors the
// in-level search once no level above contributes one.
func (idx *Index) buildLevelEdges(l, maxLevel int, bkt *bucket, ef int, kernel Kernel, forceSimple bool) error {
	dims := bkt.dims
	maxM := idx.maxMForLevel(l)

	blk := bkt.firstFull
	for blk != 0 {
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
		next := hdr.nextBlk
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

			start, err := idx.descendToLevel(maxLevel, l, t.vector, kernel)
			if err != nil {
				return err
			}
			if !start.Valid() {
				start = bkt.entryPoint
			}
			if !start.Valid() {
				continue
			}

			cands, _, err := idx.searchLevel(l, ef, t.vector, start, kernel)
			if err != nil {
				return err
			}
			items := cands.items()
			filtered := items[:0]
			for _, c := range items {
				if c.id != t.self {
					filtered = append(filtered, c)
				}
			}
			if err := idx.bidirectionConnect(l, t.self, t, filtered, kernel, dims, maxM, forceSimple); err != nil {
				return err
			}
		}

		blk = next
	}
	return nil
}
