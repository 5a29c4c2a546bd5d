package cellcache

// scanner.go implements CellCacheScanner, grounded on CellCacheScanner.{h,cc}:
// a forward iterator bounded by [start_row, end_row] that only ever surfaces
// entries passing the admission rule (DELETE_ROW is always admitted;
// otherwise the entry's column family must be set in the scan's family
// mask).

import (
	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/cellmap"
	"github.com/hypertable-go/rangestore/internal/key"
)

// Scanner is a forward-only cursor over a Cache, bounded by a row range and
// a column-family admission mask. It holds a shared handle to the Cache it
// was created from; the Cache must outlive every Scanner created from it.
type Scanner struct {
	cache      *Cache
	end        cellmap.Iterator
	cur        cellmap.Iterator
	familyMask [256]bool

	eos      bool
	curKey   key.SerializedKey
	curValue []byte
}

func newScanner(c *Cache, startRow, endRow []byte, familyMask [256]bool) *Scanner {
	c.lock()
	defer c.unlock()

	s := &Scanner{
		cache:      c,
		end:        c.cells.LowerBound(key.RowUpperBound(endRow)),
		cur:        c.cells.LowerBound(key.RowLowerBound(startRow)),
		familyMask: familyMask,
	}
	s.advanceToAdmittedLocked()
	return s
}

// admits reports whether the entry at it passes the scanner's admission
// rule: a row-scope tombstone is always surfaced; otherwise the entry's
// column family must be set in the mask.
func (s *Scanner) admits(it cellmap.Iterator) (key.Key, bool) {
	dk, err := it.Key().Decode()
	if err != nil {
		s.cache.logger.Warn("cellcache: malformed key during scan, skipping", zap.Error(err))
		return key.Key{}, false
	}
	if dk.Flag == key.FlagDeleteRow || s.familyMask[dk.ColumnFamily] {
		return dk, true
	}
	return key.Key{}, false
}

// advanceToAdmittedLocked must be called with the cache's lock held (or the
// cache frozen). It walks s.cur forward until it reaches an admitted entry
// or s.end, setting s.eos in the latter case.
func (s *Scanner) advanceToAdmittedLocked() {
	for !s.cur.Equal(s.end) {
		if _, ok := s.admits(s.cur); ok {
			s.curKey = s.cur.Key()
			s.curValue = s.cur.Value()
			return
		}
		s.cur = s.cur.Next()
	}
	s.eos = true
}

// Get returns the current (key, value) pair. ok is false once the scanner
// has reached end of stream.
func (s *Scanner) Get() (k key.SerializedKey, value []byte, ok bool) {
	if s.eos {
		return key.SerializedKey{}, nil, false
	}
	return s.curKey, s.curValue, true
}

// Forward advances the scanner by one admitted entry. While the underlying
// cache is unfrozen this reacquires its mutex; once frozen, lock/unlock are
// no-ops and every concurrent Scanner walks the cache's skip list lock-free,
// since a frozen cache never mutates again.
func (s *Scanner) Forward() {
	if s.eos {
		return
	}
	s.cache.lock()
	defer s.cache.unlock()
	s.cur = s.cur.Next()
	s.advanceToAdmittedLocked()
}
