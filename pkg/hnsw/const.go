// pkg/hnsw/const.go
package hnsw

// Storage layout constants, spec.md §6.1.
const (
	// MaxLevel bounds the number of levels a node can occupy: [0, MaxLevel).
	MaxLevel = 8

	// Magic identifies a valid meta page (HNSW_MAGIC).
	Magic uint32 = 0xDBAC9527

	// PageID is the trailing sentinel every meta/bucket/overflow page
	// carries (HNSW_PAGE_ID), checked on read per SPEC_FULL.md §C.
	PageID uint16 = 0xFF84

	// PageSize is the fixed page size the index uses, independent of the
	// host pager's own default.
	PageSize = 32 * 1024

	// Version is this module's on-disk format version.
	Version uint32 = 1
)
