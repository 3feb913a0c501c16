// pkg/hnsw/bucket.go
package hnsw

import (
	"encoding/binary"

	"hnswdb/pkg/pager"
)

// bucket is the decoded HnswBucketData for one level (spec.md §3),
// stored in the page named by meta.levelBlk[level].
//
// On-disk layout, little-endian:
//
//	0:  level      int32
//	4:  dims       uint32
//	8:  ntuples    uint64
//	16: pages      uint32
//	20: firstFree  uint32 (current write-head overflow page)
//	24: firstFull  uint32 (head of the level's overflow-page chain)
//	28: entryPoint uint64 (NodeID)
//	36: pageID sentinel uint16
type bucket struct {
	level      int
	dims       int
	ntuples    uint64
	pages      uint32
	firstFree  uint32
	firstFull  uint32
	entryPoint NodeID
}

const bucketSize = 38

func (b *bucket) encode(page []byte) {
	binary.LittleEndian.PutUint32(page[0:4], uint32(int32(b.level)))
	binary.LittleEndian.PutUint32(page[4:8], uint32(b.dims))
	binary.LittleEndian.PutUint64(page[8:16], b.ntuples)
	binary.LittleEndian.PutUint32(page[16:20], b.pages)
	binary.LittleEndian.PutUint32(page[20:24], b.firstFree)
	binary.LittleEndian.PutUint32(page[24:28], b.firstFull)
	binary.LittleEndian.PutUint64(page[28:36], uint64(b.entryPoint))
	binary.LittleEndian.PutUint16(page[36:38], PageID)
}

func decodeBucket(page []byte) (*bucket, error) {
	if binary.LittleEndian.Uint16(page[36:38]) != PageID {
		return nil, newErr(Corruption, "bucket page sentinel mismatch", nil)
	}
	return &bucket{
		level:      int(int32(binary.LittleEndian.Uint32(page[0:4]))),
		dims:       int(binary.LittleEndian.Uint32(page[4:8])),
		ntuples:    binary.LittleEndian.Uint64(page[8:16]),
		pages:      binary.LittleEndian.Uint32(page[16:20]),
		firstFree:  binary.LittleEndian.Uint32(page[20:24]),
		firstFull:  binary.LittleEndian.Uint32(page[24:28]),
		entryPoint: NodeID(binary.LittleEndian.Uint64(page[28:36])),
	}, nil
}

func bucketPageType() pager.PageType { return pager.PageTypeHNSWBucket }
