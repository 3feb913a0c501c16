// pkg/hnsw/index_test.go
package hnsw

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts CreateOptions) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hnsw")
	idx, err := Create(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func queryTopK(t *testing.T, idx *Index, q []float32, topK int) []uint64 {
	t.Helper()
	scan := OpenScan(idx, ScanKey{Query: q, TopK: topK})
	require.NoError(t, scan.First())
	var out []uint64
	for {
		hp, ok, err := scan.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, hp)
	}
	return out
}

// TestScnA is spec.md §8 Scn-A: four corner vectors of a unit square,
// querying near one corner should return that corner first, then one of
// its two equidistant neighbors, never the opposite corner.
func TestScnA(t *testing.T) {
	opts := CreateOptions{Dims: 4, M: 4, EfConstruction: 8, EfSearch: 8, Algorithm: "l2"}
	idx := newTestIndex(t, opts)

	vectors := map[uint64][]float32{
		1: {0, 0, 0, 0},
		2: {1, 0, 0, 0},
		3: {0, 1, 0, 0},
		4: {1, 1, 0, 0},
	}
	for hp, v := range vectors {
		_, err := idx.Insert(hp, v, 1, OperationalOptions{})
		require.NoError(t, err)
	}

	results := queryTopK(t, idx, []float32{0.1, 0.1, 0, 0}, 2)
	require.Len(t, results, 2)
	require.Equal(t, uint64(1), results[0])
	require.Contains(t, []uint64{2, 3}, results[1])
	require.NotContains(t, results, uint64(4))
}

// TestScnB is spec.md §8 Scn-B: after tombstoning the nearest vector to a
// query, the scan must skip it and return the next-closest live vector.
func TestScnB(t *testing.T) {
	opts := CreateOptions{Dims: 4, M: 4, EfConstruction: 8, EfSearch: 8, Algorithm: "l2"}
	idx := newTestIndex(t, opts)

	vectors := map[uint64][]float32{
		1: {0, 0, 0, 0},
		2: {1, 0, 0, 0},
		3: {0, 1, 0, 0},
		4: {1, 1, 0, 0},
		5: {5, 5, 5, 5},
	}
	for hp, v := range vectors {
		_, err := idx.Insert(hp, v, 1, OperationalOptions{})
		require.NoError(t, err)
	}

	result, err := idx.BulkDelete(func(hp uint64) bool { return hp == 5 })
	require.NoError(t, err)
	require.Equal(t, 1, result.TuplesDeleted)

	results := queryTopK(t, idx, []float32{5, 5, 5, 5}, 1)
	require.Equal(t, []uint64{4}, results)
}

// TestScnF is spec.md §8 Scn-F: after inserting N tuples, closing and
// reopening the index, a topk=N query must reach every inserted tuple.
func TestScnF(t *testing.T) {
	opts := CreateOptions{Dims: 8, M: 8, EfConstruction: 16, EfSearch: 16, Algorithm: "l2"}
	path := filepath.Join(t.TempDir(), "reopen.hnsw")
	idx, err := Create(path, opts)
	require.NoError(t, err)

	const n = 200
	want := map[uint64]bool{}
	for i := 0; i < n; i++ {
		v := make([]float32, 8)
		for d := range v {
			v[d] = float32(i*8+d) * 0.01
		}
		hp := uint64(i + 1)
		_, err := idx.Insert(hp, v, 1, OperationalOptions{})
		require.NoError(t, err)
		want[hp] = true
	}
	require.NoError(t, idx.Close())

	idx2, err := Open(path)
	require.NoError(t, err)
	defer idx2.Close()

	got := queryTopK(t, idx2, make([]float32, 8), n)
	require.Len(t, got, n)
	seen := map[uint64]bool{}
	for _, hp := range got {
		require.True(t, want[hp], "unexpected heapPtr %d", hp)
		seen[hp] = true
	}
	require.Len(t, seen, n)
}

// TestDegreeAndSelfLoopInvariants exercises spec.md §8 properties 3 and 4
// over a modestly sized random build.
func TestDegreeAndSelfLoopInvariants(t *testing.T) {
	opts := CreateOptions{Dims: 16, M: 8, EfConstruction: 32, EfSearch: 16, Algorithm: "l2"}
	idx := newTestIndex(t, opts)

	for i := 0; i < 300; i++ {
		v := make([]float32, 16)
		for d := range v {
			v[d] = float32((i*31+d*7)%97) / 97.0
		}
		_, err := idx.Insert(uint64(i+1), v, 1, OperationalOptions{})
		require.NoError(t, err)
	}

	idx.metaMu.RLock()
	levelBlk := idx.meta.levelBlk
	idx.metaMu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		if levelBlk[level] == 0 {
			continue
		}
		b, ok, err := idx.getBucket(level)
		require.NoError(t, err)
		require.True(t, ok)

		maxM := idx.maxMForLevel(level)
		blk := b.firstFull
		for blk != 0 {
			pg, err := idx.pg.Get(blk)
			require.NoError(t, err)
			hdr, err := decodeOverflowHeader(pg.Data())
			require.NoError(t, err)
			require.EqualValues(t, level, hdr.level)

			for slot := 0; slot < int(hdr.maxOff); slot++ {
				tp, err := decodeTuple(pg.Data(), slot, b.dims, maxM)
				require.NoError(t, err)
				require.LessOrEqual(t, int(tp.outDegree), maxM)
				for _, nb := range tp.liveNeighbors() {
					require.NotEqual(t, tp.self, nb.ID)
				}
			}
			next := hdr.nextBlk
			idx.pg.Release(pg)
			blk = next
		}
	}
}

// TestBuildParallel is spec.md §8 Scn-C in miniature: a parallel two-phase
// build must produce a graph every inserted row can be retrieved from.
func TestBuildParallel(t *testing.T) {
	opts := CreateOptions{Dims: 12, M: 8, EfConstruction: 24, EfSearch: 24, Algorithm: "l2"}
	idx := newTestIndex(t, opts)

	const n = 500
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 12)
		for d := range v {
			v[d] = float32((i*13+d*5)%211) / 211.0
		}
		rows[i] = Row{HeapPtr: uint64(i + 1), Vector: v, Bias: 1}
	}

	b := NewBuilder(idx)
	err := b.BuildParallel(context.Background(), rows, OperationalOptions{IndexParallel: 4})
	require.NoError(t, err)

	got := queryTopK(t, idx, rows[0].Vector, n)
	require.Len(t, got, n)
}

// TestVacuumReclaimsWholePages checks spec.md §4.9: after deleting every
// tuple on a level, Vacuum frees its overflow pages and drops ntuples to 0.
func TestVacuumReclaimsWholePages(t *testing.T) {
	opts := CreateOptions{Dims: 4, M: 4, EfConstruction: 8, EfSearch: 8, Algorithm: "l2"}
	idx := newTestIndex(t, opts)

	for i := 0; i < 20; i++ {
		v := []float32{float32(i), 0, 0, 0}
		_, err := idx.Insert(uint64(i+1), v, 1, OperationalOptions{})
		require.NoError(t, err)
	}

	_, err := idx.BulkDelete(func(hp uint64) bool { return true })
	require.NoError(t, err)

	result, err := idx.Vacuum()
	require.NoError(t, err)
	require.Greater(t, result.PagesFreed, 0)

	b, ok, err := idx.getBucket(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), b.ntuples)
}
