// Package cellmap implements CellCache's ordered index: a sorted map from
// SerializedKey to a 32-bit offset locating the corresponding value inside
// the same arena allocation as the key.
//
// Implementation: a deterministic skip list, the same family of structure
// Pebble's arenaskl memtable index uses (see the reference pack's
// mem_table.go). Node *metadata* (forward pointers, cached payload slice)
// lives as ordinary Go heap objects managed by the GC; only the key and
// value *bytes* a node points at are arena-allocated, which is where the
// savings actually matter — node overhead is a small, fixed, bounded cost,
// unlike the variable-length cell payloads. Go offers no portable way to
// splice live pointer-containing structs into a raw byte slice the way the
// original C++ allocator does; see DESIGN.md.
//
// © 2025 rangestore authors. MIT License.
package cellmap

import (
	"bytes"
	"math/rand"

	"github.com/hypertable-go/rangestore/internal/key"
)

const maxLevel = 16
const levelProbability = 0.5

type node struct {
	key     key.SerializedKey
	payload []byte // cached key.payload(), compared against on every step
	value   []byte
	offset  uint32
	forward []*node
}

// Map is an ordered, arena-value index. It is not safe for concurrent
// mutation; the owning CellCache serializes writers via its own mutex.
type Map struct {
	head  *node
	level int
	size  int
	rnd   *rand.Rand

	collisions uint32
}

// New constructs an empty map. seed controls the skip list's level
// randomization and should be fixed in tests for reproducibility.
func New(seed int64) *Map {
	return &Map{
		head:  &node{forward: make([]*node, maxLevel)},
		level: 1,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

func (m *Map) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && m.rnd.Float64() < levelProbability {
		lvl++
	}
	return lvl
}

// search walks the skip list and fills update with, at each level, the last
// node strictly less than the target payload. It returns the first node
// whose payload is >= target (or nil at the end of the list).
func (m *Map) search(target []byte, update []*node) *node {
	cur := m.head
	for lvl := m.level - 1; lvl >= 0; lvl-- {
		for cur.forward[lvl] != nil && bytes.Compare(cur.forward[lvl].payload, target) < 0 {
			cur = cur.forward[lvl]
		}
		update[lvl] = cur
	}
	return cur.forward[0]
}

// Insert adds (k, offset). The map stores only one entry per exact
// serialized key: a collision (re-insert of an already-present key) is
// counted and the *existing* entry is kept. Returns true if k was newly
// inserted, false on collision.
func (m *Map) Insert(k key.SerializedKey, value []byte, offset uint32) bool {
	payload := k.Bytes()[headerLen(k.Bytes()):]
	var upd [maxLevel]*node
	next := m.search(payload, upd[:])
	if next != nil && bytes.Equal(next.payload, payload) {
		m.collisions++
		return false
	}

	lvl := m.randomLevel()
	if lvl > m.level {
		for i := m.level; i < lvl; i++ {
			upd[i] = m.head
		}
		m.level = lvl
	}

	n := &node{key: k, payload: payload, value: value, offset: offset, forward: make([]*node, lvl)}
	for i := 0; i < lvl; i++ {
		n.forward[i] = upd[i].forward[i]
		upd[i].forward[i] = n
	}
	m.size++
	return true
}

func headerLen(buf []byte) int {
	n := 0
	for n < len(buf) && buf[n]&0x80 != 0 {
		n++
	}
	return n + 1
}

// Get returns the offset stored for an exact serialized key match.
func (m *Map) Get(k key.SerializedKey) (uint32, bool) {
	payload := k.Bytes()[headerLen(k.Bytes()):]
	var upd [maxLevel]*node
	next := m.search(payload, upd[:])
	if next != nil && bytes.Equal(next.payload, payload) {
		return next.offset, true
	}
	return 0, false
}

// LowerBound returns an iterator positioned at the first entry whose
// payload is >= bound (a raw payload-comparable byte string, such as one
// produced by key.RowLowerBound/RowUpperBound or an existing key's own
// payload bytes).
func (m *Map) LowerBound(bound []byte) Iterator {
	var upd [maxLevel]*node
	n := m.search(bound, upd[:])
	return Iterator{cur: n}
}

// Begin returns an iterator at the first entry in the map.
func (m *Map) Begin() Iterator { return Iterator{cur: m.head.forward[0]} }

// Len returns the number of distinct keys stored.
func (m *Map) Len() int { return m.size }

// Collisions returns the number of inserts that were rejected because the
// exact serialized key was already present.
func (m *Map) Collisions() uint32 { return m.collisions }

// At returns the key of the entry at index i via a linear walk; used by
// CellCache.GetSplitRows, which already accepts O(n) cost.
func (m *Map) At(i int) (key.SerializedKey, bool) {
	it := m.Begin()
	for n := 0; it.Valid(); n++ {
		if n == i {
			return it.Key(), true
		}
		it = it.Next()
	}
	return key.SerializedKey{}, false
}

// Iterator is a forward-only cursor over the map.
type Iterator struct {
	cur *node
}

// Valid reports whether the cursor currently references an entry.
func (it Iterator) Valid() bool { return it.cur != nil }

// Key returns the current entry's serialized key.
func (it Iterator) Key() key.SerializedKey { return it.cur.key }

// Offset returns the current entry's value offset.
func (it Iterator) Offset() uint32 { return it.cur.offset }

// Value returns the current entry's value bytes. The returned slice is
// mutable: the counter merge fast path overwrites it in place.
func (it Iterator) Value() []byte { return it.cur.value }

// KeyPayload returns the mutable payload bytes (i.e. the key record after
// its varint length header) of the current entry, letting the counter merge
// fast path overwrite the trailing timestamp/revision suffix in place
// without disturbing the map's ordering invariants (the prefix that
// determines order is left untouched).
func (it Iterator) KeyPayload() []byte { return it.cur.payload }

// Next returns the iterator advanced by one entry.
func (it Iterator) Next() Iterator {
	if it.cur == nil {
		return it
	}
	return Iterator{cur: it.cur.forward[0]}
}

// Equal reports whether two iterators reference the same node (both nil,
// i.e. end-of-list, counts as equal).
func (it Iterator) Equal(other Iterator) bool { return it.cur == other.cur }
