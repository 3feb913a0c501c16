// pkg/hnsw/meta.go
package hnsw

import (
	"encoding/binary"

	"hnswdb/pkg/pager"
)

// meta is the in-memory decoded form of the HnswMetaPageData on host page
// metaBlock (1)
// (spec.md §3/§6.1). The on-disk layout is fixed-width and little-endian:
//
//	0:  magic       uint32
//	4:  version     uint32
//	8:  dims        uint32
//	12: m           uint32
//	16: m0          uint32
//	20: efConstruct uint32
//	24: efSearch    uint32
//	28: distKind    uint8
//	29: linkNearest uint8 (bool)
//	32: maxLevel    int32  (-1 == empty)
//	36: levelBlk[MaxLevel] uint32 each
//	36+4*MaxLevel: pageID sentinel uint16
type meta struct {
	dims           int
	m              int
	m0             int
	efConstruction int
	efSearch       int
	distKind       DistanceKind
	linkNearest    bool
	maxLevel       int32
	levelBlk       [MaxLevel]uint32

	dirty bool // set only when maxLevel changes; see DESIGN.md Open Question 1
}

const metaLevelBlkOffset = 36
const metaSize = metaLevelBlkOffset + 4*MaxLevel + 2

func (md *meta) encode(page []byte) {
	binary.LittleEndian.PutUint32(page[0:4], Magic)
	binary.LittleEndian.PutUint32(page[4:8], Version)
	binary.LittleEndian.PutUint32(page[8:12], uint32(md.dims))
	binary.LittleEndian.PutUint32(page[12:16], uint32(md.m))
	binary.LittleEndian.PutUint32(page[16:20], uint32(md.m0))
	binary.LittleEndian.PutUint32(page[20:24], uint32(md.efConstruction))
	binary.LittleEndian.PutUint32(page[24:28], uint32(md.efSearch))
	page[28] = byte(md.distKind)
	if md.linkNearest {
		page[29] = 1
	} else {
		page[29] = 0
	}
	binary.LittleEndian.PutUint32(page[32:36], uint32(md.maxLevel))
	for i := 0; i < MaxLevel; i++ {
		off := metaLevelBlkOffset + i*4
		binary.LittleEndian.PutUint32(page[off:off+4], md.levelBlk[i])
	}
	binary.LittleEndian.PutUint16(page[metaSize-2:metaSize], PageID)
}

func decodeMeta(page []byte) (*meta, error) {
	if binary.LittleEndian.Uint32(page[0:4]) != Magic {
		return nil, newErr(NotAnIndex, "meta magic mismatch", nil)
	}
	if binary.LittleEndian.Uint16(page[metaSize-2:metaSize]) != PageID {
		return nil, newErr(Corruption, "meta page sentinel mismatch", nil)
	}
	md := &meta{
		dims:           int(binary.LittleEndian.Uint32(page[8:12])),
		m:              int(binary.LittleEndian.Uint32(page[12:16])),
		m0:             int(binary.LittleEndian.Uint32(page[16:20])),
		efConstruction: int(binary.LittleEndian.Uint32(page[20:24])),
		efSearch:       int(binary.LittleEndian.Uint32(page[24:28])),
		distKind:       DistanceKind(page[28]),
		linkNearest:    page[29] != 0,
		maxLevel:       int32(binary.LittleEndian.Uint32(page[32:36])),
	}
	for i := 0; i < MaxLevel; i++ {
		off := metaLevelBlkOffset + i*4
		md.levelBlk[i] = binary.LittleEndian.Uint32(page[off : off+4])
	}
	return md, nil
}

// maxMFor returns maxM for level l: m0 (=2m) at level 0, m above it,
// per spec.md §8 property 3.
func (md *meta) maxMFor(level int) int {
	if level == 0 {
		return md.m0
	}
	return md.m
}

func metaPageType() pager.PageType { return pager.PageTypeHNSWMeta }
