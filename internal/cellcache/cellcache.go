// Package cellcache implements the sorted, arena-backed write buffer at the
// core of a range: the CellCache and its companion CellCacheScanner.
//
// A Cache composes an arena.Arena and a cellmap.Map: every Add copies the
// caller's key and value into the arena and installs a (SerializedKey,
// offset) pair into the map. Once frozen, the cache never mutates again and
// its lock methods become no-ops, letting scanners created after the freeze
// run lock-free — freezing establishes a publication fence between the last
// write and every subsequent read.
//
// Grounded on CellCache.{h,cc} and CellCacheScanner.{h,cc}.
//
// © 2025 rangestore authors. MIT License.
package cellcache

import (
	"bytes"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/arena"
	"github.com/hypertable-go/rangestore/internal/cellmap"
	"github.com/hypertable-go/rangestore/internal/counter"
	"github.com/hypertable-go/rangestore/internal/key"
)

// Cache is a single range generation's in-memory write buffer.
type Cache struct {
	mu      sync.Mutex
	arena   *arena.Arena
	cells   *cellmap.Map
	frozen  atomic.Bool
	deletes uint32

	haveCounterDeletes bool

	logger  *zap.Logger
	metrics metricsSink
}

// New constructs an empty Cache. seed fixes the underlying skip list's level
// randomization; pass a stable value in tests, a real random seed in
// production (e.g. time.Now().UnixNano()).
func New(seed int64, opts ...Option) *Cache {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Cache{
		arena:   arena.New(cfg.arenaPageSize),
		cells:   cellmap.New(seed),
		logger:  cfg.logger,
		metrics: newMetricsSink(cfg.registry),
	}
}

// lock and unlock gate every mutating or reading method on c.frozen, read
// via atomic so a concurrent Freeze is never torn: frozen flips from false to
// true exactly once, and the atomic load here either sees the write-path's
// last mutation (and still takes c.mu) or sees the fully-frozen state (and
// skips the mutex entirely), never a half-applied freeze.
func (c *Cache) lock() {
	if !c.frozen.Load() {
		c.mu.Lock()
	}
}

func (c *Cache) unlock() {
	if !c.frozen.Load() {
		c.mu.Unlock()
	}
}

// Add copies key and value into the cache's arena and installs the entry. A
// collision (the exact serialized key already present) is counted and
// logged; the existing entry is kept, and the caller's value is silently
// discarded.
func (c *Cache) Add(k key.Key, value []byte) {
	c.lock()
	defer c.unlock()
	c.addLocked(k, value)
}

// addLocked requires the caller already holds the lock (or the cache is
// frozen, in which case it must never be called at all — see AddCounter's
// and Add's panics below).
func (c *Cache) addLocked(k key.Key, value []byte) {
	if c.frozen.Load() {
		panic("cellcache: add on a frozen cache")
	}
	rec, val, off := key.Encode(c.arena, k, value)
	if inserted := c.cells.Insert(rec, val, off); inserted {
		if k.Flag.IsDelete() {
			c.deletes++
		}
		c.metrics.incInsert()
	} else {
		c.metrics.incCollision()
		c.logger.Warn("cellcache: collision detected on key insert", zap.ByteString("row", k.Row))
	}
	c.metrics.setArenaBytes(c.arena.Used())
}

// AddCounter implements the counter-merge algorithm:
//
//  1. A reset value always falls through to a plain Add (it tombstones any
//     prior delta).
//  2. Once any counter-delete has been observed, or the incoming key isn't
//     INSERT-flagged, the fast path is permanently disabled for this cache
//     generation and every subsequent counter write is a plain Add.
//  3. Otherwise, lower_bound the incoming key; if the slot found shares the
//     incoming key's (row, column_family, column_qualifier) prefix and holds
//     a delta-tagged value, merge in place: advance its timestamp/revision
//     suffix and add the 64-bit bodies with wraparound.
//  4. Any mismatch along the way falls through to Add.
func (c *Cache) AddCounter(k key.Key, value []byte) {
	c.lock()
	defer c.unlock()

	if counter.IsReset(value) {
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}
	if c.haveCounterDeletes || k.Flag != key.FlagInsert {
		c.haveCounterDeletes = true
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}

	probe := key.EncodePayloadProbe(k)
	it := c.cells.LowerBound(probe)
	if !it.Valid() {
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}
	if !key.SamePrefix(it.Key(), k) {
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}
	existingValue := it.Value()
	if !counter.IsDelta(existingValue) {
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}

	newSuffix := key.EncodePayloadProbe(k)
	newSuffix = newSuffix[len(newSuffix)-16:]
	counter.SetTimestampRevisionSuffix(it.KeyPayload(), newSuffix)

	delta, err := counter.DecodeBody(value)
	if err != nil {
		c.logger.Warn("cellcache: malformed counter delta, falling back to add", zap.Error(err))
		c.metrics.incCounterFallback()
		c.addLocked(k, value)
		return
	}
	counter.AddBodyInPlace(existingValue, delta)
	c.metrics.incCounterMerge()
}

// GetSplitRows appends the row of the median entry to out, if the cache
// holds more than two entries.
func (c *Cache) GetSplitRows(out *[][]byte) {
	c.lock()
	defer c.unlock()
	if c.cells.Len() <= 2 {
		return
	}
	mid := c.cells.Len() / 2
	if sk, ok := c.cells.At(mid); ok {
		*out = append(*out, sk.Row())
	}
}

// GetRows appends every distinct row key present in the cache, in sorted
// order.
func (c *Cache) GetRows(out *[][]byte) {
	c.lock()
	defer c.unlock()
	var lastRow []byte
	for it := c.cells.Begin(); it.Valid(); it = it.Next() {
		row := it.Key().Row()
		if lastRow == nil || !bytes.Equal(row, lastRow) {
			*out = append(*out, row)
			lastRow = row
		}
	}
}

// CreateScanner returns a scanner holding a shared handle to this cache,
// restricted to [startRow, endRow] (inclusive both ends) and admitting only
// column families set in familyMask (plus any DELETE_ROW tombstone,
// unconditionally).
func (c *Cache) CreateScanner(startRow, endRow []byte, familyMask [256]bool) *Scanner {
	return newScanner(c, startRow, endRow, familyMask)
}

// Freeze disables locking: after Freeze returns, every write already in the
// map is durable and visible to lock-free scanners created from this point
// on. Freezing also permanently disables the counter-merge fast path: once
// frozen, AddCounter/Add must never be called again.
func (c *Cache) Freeze() {
	c.mu.Lock()
	c.haveCounterDeletes = true
	c.logger.Info("cellcache: frozen", zap.Int("entries", c.cells.Len()))
	c.mu.Unlock()
	c.frozen.Store(true)
	c.metrics.incFreeze()
}

// Unfreeze re-enables locking. Only used when a frozen generation is
// reclaimed back into service (not part of the normal compaction path).
func (c *Cache) Unfreeze() {
	c.mu.Lock()
	c.frozen.Store(false)
	c.mu.Unlock()
}

// Frozen reports whether the cache has been frozen.
func (c *Cache) Frozen() bool {
	c.lock()
	defer c.unlock()
	return c.frozen.Load()
}

// MemoryUsed returns the number of bytes the arena has handed out.
func (c *Cache) MemoryUsed() int64 {
	c.lock()
	defer c.unlock()
	return c.arena.Used()
}

// Size returns the number of distinct entries in the cache.
func (c *Cache) Size() int {
	c.lock()
	defer c.unlock()
	return c.cells.Len()
}

// CollisionCount returns the number of inserts rejected because the exact
// serialized key was already present.
func (c *Cache) CollisionCount() uint32 {
	c.lock()
	defer c.unlock()
	return c.cells.Collisions()
}

// DeleteCount returns the number of successfully inserted entries whose flag
// marks a tombstone (cell, column-family, or row grain).
func (c *Cache) DeleteCount() uint32 {
	c.lock()
	defer c.unlock()
	return c.deletes
}
