// pkg/hnsw/overflow.go
package hnsw

import (
	"encoding/binary"

	"hnswdb/pkg/pager"
)

// overflowHeader is the opaque per-page header spec.md §6.1 places at the
// tail of every overflow page: "(prevBlk, nextBlk, level:i16, maxOff:u16,
// flags:u16, pageId:0xFF84)". Tuple records are packed sequentially from
// offset 0 up to maxOff slots.
type overflowHeader struct {
	prevBlk uint32
	nextBlk uint32
	level   int16
	maxOff  uint16 // number of slots currently in use
	flags   uint16
}

const overflowHeaderSize = 4 + 4 + 2 + 2 + 2 + 2 // + pageID sentinel

const (
	flagNone        uint16 = 0
	flagWholeDeleted uint16 = 1 << 0
)

func overflowHeaderOffset(pageSize int) int { return pageSize - overflowHeaderSize }

func (h *overflowHeader) encode(page []byte) {
	off := overflowHeaderOffset(len(page))
	binary.LittleEndian.PutUint32(page[off:], h.prevBlk)
	binary.LittleEndian.PutUint32(page[off+4:], h.nextBlk)
	binary.LittleEndian.PutUint16(page[off+8:], uint16(h.level))
	binary.LittleEndian.PutUint16(page[off+10:], h.maxOff)
	binary.LittleEndian.PutUint16(page[off+12:], h.flags)
	binary.LittleEndian.PutUint16(page[off+14:], PageID)
}

func decodeOverflowHeader(page []byte) (*overflowHeader, error) {
	off := overflowHeaderOffset(len(page))
	if binary.LittleEndian.Uint16(page[off+14:]) != PageID {
		return nil, newErr(Corruption, "overflow page sentinel mismatch", nil)
	}
	return &overflowHeader{
		prevBlk: binary.LittleEndian.Uint32(page[off:]),
		nextBlk: binary.LittleEndian.Uint32(page[off+4:]),
		level:   int16(binary.LittleEndian.Uint16(page[off+8:])),
		maxOff:  binary.LittleEndian.Uint16(page[off+10:]),
		flags:   binary.LittleEndian.Uint16(page[off+12:]),
	}, nil
}

func (h *overflowHeader) wholeDeleted() bool { return h.flags&flagWholeDeleted != 0 }

// overflowCapacity returns how many tuple slots of the given size fit in
// one overflow page, reserving the trailing opaque header.
func overflowCapacity(pageSize, tupleSz int) int {
	usable := pageSize - overflowHeaderSize
	if tupleSz <= 0 {
		return 0
	}
	return usable / tupleSz
}

// slotOffset returns the byte offset of tuple slot i within a page.
func slotOffset(slot int, tupleSz int) int { return slot * tupleSz }

func overflowPageType() pager.PageType { return pager.PageTypeHNSWOverflow }
