// pkg/hnsw/tuple.go
package hnsw

import (
	"encoding/binary"
	"math"

	"hnswdb/pkg/types"
)

// NeighborEdge is one entry of a tuple's inline neighbor array: the
// neighbor's node id and its distance from this tuple, per spec.md §3's
// "inline neighbor array of size maxM, each entry (nodeId, distance)".
type NeighborEdge struct {
	ID   NodeID
	Dist float32
}

// tuple is one node at one level (spec.md §3/§6.1). Live neighbor entries
// occupy neighbors[0:outDegree], kept sorted by distance descending
// (spec.md §4.5).
type tuple struct {
	self NodeID // (block, slot) this tuple occupies; not itself persisted

	heapPtr        uint64
	level          int32
	maxM           uint32
	dims           uint32
	outDegree      uint32
	inDegree       uint32
	offsetOutLinks uint32
	id             uint32
	bias           float32
	sizeTuple      uint64
	deleted        bool
	next           NodeID

	vector    []float32
	neighbors []NeighborEdge // len == maxM, first outDegree live
}

// tupleHeaderSize is the fixed-field prefix before the inline vector, per
// spec.md §6.1's tuple record layout.
const tupleHeaderSize = 65

// tupleSize returns the fixed on-disk size of a tuple record for a given
// dimensionality and maxM (M above level 0, M0 at level 0).
func tupleSize(dims, maxM int) int {
	return tupleHeaderSize + dims*4 + maxM*12
}

func newTuple(self NodeID, heapPtr uint64, level, maxM, dims int, id uint32, bias float32, vec []float32) *tuple {
	t := &tuple{
		self:           self,
		heapPtr:        heapPtr,
		level:          int32(level),
		maxM:           uint32(maxM),
		dims:           uint32(dims),
		offsetOutLinks: uint32(tupleHeaderSize + dims*4),
		id:             id,
		bias:           bias,
		next:           invalidNodeID,
		vector:         vec,
		neighbors:      make([]NeighborEdge, maxM),
	}
	t.sizeTuple = uint64(tupleSize(dims, maxM))
	return t
}

func (t *tuple) encode(page []byte, slot int) {
	sz := tupleSize(int(t.dims), int(t.maxM))
	b := page[slotOffset(slot, sz) : slotOffset(slot, sz)+sz]

	binary.LittleEndian.PutUint64(b[0:8], t.heapPtr)
	binary.LittleEndian.PutUint32(b[8:12], uint32(t.level))
	binary.LittleEndian.PutUint32(b[12:16], t.maxM)
	binary.LittleEndian.PutUint32(b[16:20], t.dims)
	binary.LittleEndian.PutUint32(b[20:24], t.outDegree)
	binary.LittleEndian.PutUint32(b[24:28], t.inDegree)
	binary.LittleEndian.PutUint32(b[28:32], t.offsetOutLinks)
	binary.LittleEndian.PutUint32(b[32:36], t.id)
	binary.LittleEndian.PutUint32(b[36:40], math.Float32bits(t.bias))
	binary.LittleEndian.PutUint64(b[40:48], t.sizeTuple)
	if t.deleted {
		b[48] = 1
	} else {
		b[48] = 0
	}
	binary.LittleEndian.PutUint64(b[49:57], uint64(t.next))
	binary.LittleEndian.PutUint64(b[57:65], uint64(t.self))

	types.EncodeInto(b[tupleHeaderSize:tupleHeaderSize+int(t.dims)*4], t.vector)

	nOff := tupleHeaderSize + int(t.dims)*4
	for i, nb := range t.neighbors {
		e := b[nOff+i*12 : nOff+i*12+12]
		binary.LittleEndian.PutUint64(e[0:8], uint64(nb.ID))
		binary.LittleEndian.PutUint32(e[8:12], math.Float32bits(nb.Dist))
	}
}

// decodeTuple reads the tuple at the given slot, whose size is determined
// by dims/maxM (the caller knows these from the owning bucket's level).
func decodeTuple(page []byte, slot, dims, maxM int) (*tuple, error) {
	sz := tupleSize(dims, maxM)
	off := slotOffset(slot, sz)
	if off+sz > len(page) {
		return nil, newErr(PageAddFailed, "tuple slot out of page bounds", nil)
	}
	b := page[off : off+sz]

	t := &tuple{
		heapPtr:        binary.LittleEndian.Uint64(b[0:8]),
		level:          int32(binary.LittleEndian.Uint32(b[8:12])),
		maxM:           binary.LittleEndian.Uint32(b[12:16]),
		dims:           binary.LittleEndian.Uint32(b[16:20]),
		outDegree:      binary.LittleEndian.Uint32(b[20:24]),
		inDegree:       binary.LittleEndian.Uint32(b[24:28]),
		offsetOutLinks: binary.LittleEndian.Uint32(b[28:32]),
		id:             binary.LittleEndian.Uint32(b[32:36]),
		bias:           math.Float32frombits(binary.LittleEndian.Uint32(b[36:40])),
		sizeTuple:      binary.LittleEndian.Uint64(b[40:48]),
		deleted:        b[48] != 0,
		next:           NodeID(binary.LittleEndian.Uint64(b[49:57])),
		self:           NodeID(binary.LittleEndian.Uint64(b[57:65])),
	}
	if t.outDegree > t.maxM {
		return nil, newErr(BadDegree, "outDegree exceeds maxM", nil)
	}

	t.vector = make([]float32, t.dims)
	types.DecodeInto(t.vector, b[tupleHeaderSize:tupleHeaderSize+int(t.dims)*4])

	nOff := tupleHeaderSize + int(t.dims)*4
	t.neighbors = make([]NeighborEdge, t.maxM)
	for i := range t.neighbors {
		e := b[nOff+i*12 : nOff+i*12+12]
		t.neighbors[i] = NeighborEdge{
			ID:   NodeID(binary.LittleEndian.Uint64(e[0:8])),
			Dist: math.Float32frombits(binary.LittleEndian.Uint32(e[8:12])),
		}
	}
	return t, nil
}

// liveNeighbors returns the live prefix of the neighbor array.
func (t *tuple) liveNeighbors() []NeighborEdge {
	return t.neighbors[:t.outDegree]
}

// insertNeighborSorted inserts e into the live neighbor set, keeping it
// sorted by distance descending (spec.md §4.5), growing outDegree by one.
// Caller must ensure outDegree < maxM.
func (t *tuple) insertNeighborSorted(e NeighborEdge) {
	live := t.neighbors[:t.outDegree]
	i := 0
	for i < len(live) && live[i].Dist > e.Dist {
		i++
	}
	t.neighbors[t.outDegree] = NeighborEdge{} // extend
	copy(t.neighbors[i+1:t.outDegree+1], t.neighbors[i:t.outDegree])
	t.neighbors[i] = e
	t.outDegree++
}

// setNeighbors overwrites the live neighbor set with winners, sorted
// descending by distance (spec.md §4.5), used when re-running selection
// against a node that was already at capacity.
func (t *tuple) setNeighbors(winners []NeighborEdge) {
	for i := range winners {
		j := i
		for j > 0 && winners[j-1].Dist < winners[j].Dist {
			winners[j-1], winners[j] = winners[j], winners[j-1]
			j--
		}
	}
	copy(t.neighbors, winners)
	t.outDegree = uint32(len(winners))
}
