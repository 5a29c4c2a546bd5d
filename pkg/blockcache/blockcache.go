// Package blockcache caches decompressed CellStore data-block payloads,
// keyed by (file, block-offset), so that a probed row or a rescan does not
// pay for disk IO and decompression on every access.
//
// It uses a sharded CLOCK-Pro replacement policy backed by generation-ring
// arena allocation, with K/V fixed to BlockKey/[]byte instead of left
// generic. Fixing V to []byte lets values live directly in
// internal/clockpro.Entry.Value and be copied into an arena with
// arena.Dup — no unsafe.Pointer indirection is needed to get a concrete byte
// slice in and out of an arena.
//
// © 2025 rangestore authors. MIT License.
package blockcache

import (
	"context"
	"errors"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypertable-go/rangestore/internal/clockpro"
	"github.com/hypertable-go/rangestore/internal/genring"
)

// BlockKey identifies one data block within one CellStore file. Offset is
// the file position of the block's header, from cellstore.Reader.BlockOffset
// — stable across reopening the same file, unlike a block index alone would
// be if the file were ever rewritten.
type BlockKey struct {
	File   string
	Offset int64
}

// LoaderFunc produces the decompressed bytes for a block the cache does not
// currently hold, typically cellstore.Reader.ReadBlockRaw bound to one file.
type LoaderFunc func(ctx context.Context, key BlockKey) ([]byte, error)

type shard struct {
	mu sync.RWMutex

	idx     uint8
	metrics metricsSink

	index   map[uint64]*clockpro.Entry[BlockKey, []byte]
	clock   *clockpro.Clock[BlockKey, []byte]
	genRing *genring.Ring[BlockKey, []byte]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	seed maphash.Seed
}

func newShard(idx uint8, capBytes int64, ttl time.Duration, pageSize int, weightFn func([]byte) int, ejectCb func(BlockKey, []byte, clockpro.EvictionReason), metrics metricsSink) *shard {
	s := &shard{
		idx:     idx,
		metrics: metrics,
		index:   make(map[uint64]*clockpro.Entry[BlockKey, []byte], 1024),
		genRing: genring.New[BlockKey, []byte](capBytes, ttl, pageSize),
		seed:    maphash.MakeSeed(),
	}
	// CLOCK-Pro only evicts from inside put, so this runs under s.mu.
	s.clock = clockpro.NewClock[BlockKey, []byte](capBytes, weightFn, func(k BlockKey, v []byte, r clockpro.EvictionReason) {
		h := s.hash(k)
		if cur, ok := s.index[h]; ok && cur.Key == k {
			delete(s.index, h)
		}
		s.evictions.Add(1)
		s.metrics.incEvict(s.idx)
		if ejectCb != nil {
			ejectCb(k, v, r)
		}
	})
	return s
}

func (s *shard) hash(key BlockKey) uint64 {
	var h maphash.Hash
	h.SetSeed(s.seed)
	h.WriteString(key.File)
	var off [8]byte
	for i := range off {
		off[i] = byte(key.Offset >> (8 * i))
	}
	h.Write(off[:])
	return h.Sum64()
}

// get looks up key and marks the entry referenced for CLOCK-Pro. Entry.State
// is plain, unsynchronized memory shared with evictIfNeeded's mutations under
// s.mu, so the lookup and the SetReferenced write both happen under the same
// full lock rather than RLock — matching genring's documented assumption that
// the shard's mutex is the only synchronization CLOCK-Pro relies on.
func (s *shard) get(key BlockKey) ([]byte, bool) {
	h := s.hash(key)

	s.mu.Lock()
	ent, found := s.index[h]
	if !found || ent.Key != key {
		s.mu.Unlock()
		s.misses.Add(1)
		return nil, false
	}
	clockpro.SetReferenced(&ent.State)
	val := ent.Value
	s.mu.Unlock()

	s.hits.Add(1)
	return val, true
}

// put inserts or replaces a decompressed block. The bytes are copied into
// the shard's currently active generation's arena, so the cached payload
// never aliases the caller's buffer.
func (s *shard) put(key BlockKey, value []byte, weight int) {
	h := s.hash(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.genRing.Active()
	stored := gen.Arena().Dup(value)

	s.metrics.addArenaBytes(s.idx, int64(len(stored)))

	if old, ok := s.index[h]; ok && old.Key == key {
		old.Value = stored
		old.Weight = uint32(weight)
		old.GenID = gen.ID()
		return
	}

	ent := &clockpro.Entry[BlockKey, []byte]{
		Key:    key,
		Value:  stored,
		Weight: uint32(weight),
		GenID:  gen.ID(),
	}
	s.index[h] = ent
	s.clock.Insert(ent)

	if s.genRing.CheckRotationNeeded(int64(weight)) {
		s.rotate()
	}
}

func (s *shard) rotate() {
	dead := s.genRing.Rotate()
	s.metrics.incRotation(s.idx)
	s.metrics.setArenaBytes(s.idx, s.genRing.LiveBytes())
	if dead == nil {
		return
	}
	s.clock.GenerationEvicted(dead.ID())
	for h, ent := range s.index {
		if ent.GenID == dead.ID() {
			delete(s.index, h)
		}
	}
}

func (s *shard) delete(key BlockKey) {
	h := s.hash(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok := s.index[h]; ok && ent.Key == key {
		delete(s.index, h)
		s.clock.Remove(ent)
		s.evictions.Add(1)
	}
}

func (s *shard) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *shard) sizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, ent := range s.index {
		total += int64(ent.Weight)
	}
	return total
}

func (s *shard) statsSnapshot() (hits, misses, evict uint64) {
	return s.hits.Load(), s.misses.Load(), s.evictions.Load()
}

func (s *shard) close() {
	s.index = nil
	s.clock = nil
	s.genRing = nil
}

// Cache is a sharded, TTL- and capacity-bounded cache of decompressed
// CellStore block payloads.
type Cache struct {
	shards []*shard
	loaders *loaderGroup
	metrics metricsSink
}

// New constructs a Cache. capBytes is the total byte budget across all
// shards; shards must be a power of two.
func New(capBytes int64, ttl time.Duration, shards uint8, opts ...Option) (*Cache, error) {
	if capBytes <= 0 {
		return nil, errors.New("blockcache: capacity bytes must be > 0")
	}
	if ttl <= 0 {
		return nil, errors.New("blockcache: ttl must be > 0")
	}
	if shards == 0 || (shards&(shards-1)) != 0 {
		return nil, errors.New("blockcache: shards must be power-of-two and > 0")
	}

	cfg := defaultConfig(capBytes, ttl, shards)
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Cache{
		shards:  make([]*shard, shards),
		loaders: newLoaderGroup(),
		metrics: newMetricsSink(int(shards), cfg.registry),
	}
	perShard := capBytes / int64(shards)
	for i := range c.shards {
		c.shards[i] = newShard(uint8(i), perShard, ttl, cfg.pageSize, cfg.weightFn, cfg.ejectCb, c.metrics)
	}
	return c, nil
}

func (c *Cache) shardFor(key BlockKey) (*shard, uint8) {
	idx := c.shards[0].hash(key) % uint64(len(c.shards))
	return c.shards[idx], uint8(idx)
}

// Put stores a decompressed block directly, bypassing the loader path.
func (c *Cache) Put(key BlockKey, value []byte, weight int) {
	s, _ := c.shardFor(key)
	s.put(key, value, weight)
}

// GetOrLoad returns the cached payload for key, loading and caching it via
// load on a miss. Concurrent misses for the same key are coalesced: only
// one call to load runs, the rest share its result (see loader.go).
func (c *Cache) GetOrLoad(ctx context.Context, key BlockKey, load LoaderFunc) ([]byte, error) {
	s, shardIdx := c.shardFor(key)
	if val, ok := s.get(key); ok {
		c.metrics.incHit(shardIdx)
		return val, nil
	}
	c.metrics.incMiss(shardIdx)

	val, err, _ := c.loaders.load(ctx, key, load)
	if err != nil {
		return nil, err
	}
	s.put(key, val, len(val))
	return val, nil
}

// Delete evicts key if present.
func (c *Cache) Delete(key BlockKey) {
	s, shardIdx := c.shardFor(key)
	s.delete(key)
	c.metrics.incEvict(shardIdx)
}

// Len returns the approximate number of cached blocks.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// SizeBytes returns the approximate number of bytes held across all shards.
func (c *Cache) SizeBytes() int64 {
	var total int64
	for _, s := range c.shards {
		total += s.sizeBytes()
	}
	return total
}

// Stats sums per-shard hit/miss/eviction counters, recorded independently of
// the Prometheus sink so callers can inspect them without a registry.
type Stats struct {
	Hits, Misses, Evictions uint64
}

func (c *Cache) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		h, m, e := s.statsSnapshot()
		st.Hits += h
		st.Misses += m
		st.Evictions += e
	}
	return st
}

// Close releases the cache's shards. The Cache must not be used afterward.
func (c *Cache) Close() {
	for _, s := range c.shards {
		s.close()
	}
}
