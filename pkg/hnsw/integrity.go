// pkg/hnsw/integrity.go
package hnsw

import (
	"fmt"

	"hnswdb/pkg/pager"
)

// IntegrityError reports one structural defect found by CheckIntegrity or
// CheckPage. Type names the kind of check that failed ("bucket",
// "overflow", "degree", "page"); Level and Block identify where, when
// applicable.
type IntegrityError struct {
	Type    string
	Level   int
	Block   uint32
	Message string
}

func (e IntegrityError) String() string {
	location := ""
	if e.Level >= 0 {
		location = fmt.Sprintf("level %d", e.Level)
	}
	if e.Block != 0 {
		if location != "" {
			location += ", "
		}
		location += fmt.Sprintf("block %d", e.Block)
	}
	if location != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, location, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e IntegrityError) Error() string { return e.String() }

// CheckIntegrity walks every populated level's overflow-page chain and
// checks the structural invariants spec.md §8 promises: every tuple's
// out-degree stays within maxM for its level, neighbor ids never
// self-loop, and the chain's prev/next links agree with each other.
// Page-level corruption (checksum mismatch, torn writes) is checked
// separately via CheckPage/CheckAllPages, following the same
// CorruptionChecker wrapping the teacher's database-level integrity
// check used for B-tree corruption.
func (idx *Index) CheckIntegrity() []IntegrityError {
	var errs []IntegrityError

	idx.metaMu.RLock()
	levelBlk := idx.meta.levelBlk
	idx.metaMu.RUnlock()

	for level := 0; level < MaxLevel; level++ {
		if levelBlk[level] == 0 {
			continue
		}
		b, ok, err := idx.getBucket(level)
		if err != nil {
			errs = append(errs, IntegrityError{Type: "bucket", Level: level, Block: levelBlk[level], Message: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		errs = append(errs, idx.checkOverflowChain(level, b)...)
	}

	if pageErrs := idx.CheckAllPages(); len(pageErrs) > 0 {
		errs = append(errs, pageErrs...)
	}

	return errs
}

// checkOverflowChain walks b's overflow-page chain in placement order,
// validating each live tuple's degree bound and neighbor self-loop
// invariant, and that consecutive pages' prevBlk/nextBlk links agree.
func (idx *Index) checkOverflowChain(level int, b *bucket) []IntegrityError {
	var errs []IntegrityError

	dims := b.dims
	maxM := idx.maxMForLevel(level)

	prev := uint32(0)
	blk := b.firstFull
	seen := make(map[uint32]bool)

	for blk != 0 {
		if seen[blk] {
			errs = append(errs, IntegrityError{Type: "overflow", Level: level, Block: blk, Message: "cycle detected in overflow chain"})
			break
		}
		seen[blk] = true

		pg, err := idx.pg.Get(blk)
		if err != nil {
			errs = append(errs, IntegrityError{Type: "overflow", Level: level, Block: blk, Message: err.Error()})
			break
		}
		hdr, err := decodeOverflowHeader(pg.Data())
		if err != nil {
			idx.pg.Release(pg)
			errs = append(errs, IntegrityError{Type: "overflow", Level: level, Block: blk, Message: err.Error()})
			break
		}
		if hdr.prevBlk != prev {
			errs = append(errs, IntegrityError{
				Type: "overflow", Level: level, Block: blk,
				Message: fmt.Sprintf("prevBlk %d does not match predecessor %d", hdr.prevBlk, prev),
			})
		}

		for slot := 0; slot < int(hdr.maxOff); slot++ {
			t, err := decodeTuple(pg.Data(), slot, dims, maxM)
			if err != nil {
				errs = append(errs, IntegrityError{Type: "overflow", Level: level, Block: blk, Message: err.Error()})
				continue
			}
			if t.deleted {
				continue
			}
			if t.outDegree > t.maxM {
				errs = append(errs, IntegrityError{
					Type: "degree", Level: level, Block: blk,
					Message: fmt.Sprintf("tuple %v has out-degree %d exceeding maxM %d", t.self, t.outDegree, t.maxM),
				})
			}
			for _, e := range t.liveNeighbors() {
				if e.ID == t.self {
					errs = append(errs, IntegrityError{
						Type: "degree", Level: level, Block: blk,
						Message: fmt.Sprintf("tuple %v has a self-loop neighbor", t.self),
					})
				}
			}
		}

		next := hdr.nextBlk
		idx.pg.Release(pg)
		prev = blk
		blk = next
	}

	return errs
}

// CheckAllPages scans every host page for checksum and torn-write
// corruption, wrapping pkg/pager's CorruptionChecker the way the teacher's
// database-level integrity check does for its own page scan.
func (idx *Index) CheckAllPages() []IntegrityError {
	checker := pager.NewCorruptionChecker(idx.pg)
	corruptionErrors := checker.CheckAllPages()

	errs := make([]IntegrityError, 0, len(corruptionErrors))
	for _, corrErr := range corruptionErrors {
		errs = append(errs, IntegrityError{Type: "page", Level: -1, Block: corrErr.PageNo, Message: corrErr.Error()})
	}
	return errs
}

// CheckPage checks a single host page for corruption, returning nil if
// none was found.
func (idx *Index) CheckPage(pageNo uint32) *IntegrityError {
	checker := pager.NewCorruptionChecker(idx.pg)
	corrErr := checker.CheckPage(pageNo)
	if corrErr == nil {
		return nil
	}
	return &IntegrityError{Type: "page", Level: -1, Block: corrErr.PageNo, Message: corrErr.Error()}
}
