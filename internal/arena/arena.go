// Package arena implements the bump-pointer page allocator that backs a
// single CellCache generation. It owns every byte of every key and value
// copied into that cache; the whole allocation is released in one shot when
// the owning cache is dropped, which is why CellCache never has to free a
// single object.
//
// Concurrency
// -----------
// Arena is *not* thread-safe by itself: callers serialize access via the
// owning container's lock (CellCache.lock/unlock), the same pattern
// pkg/blockcache's shard mutex uses around its own arena-backed entries.
//
// © 2025 rangestore authors. MIT License.
package arena

import "fmt"

// DefaultPageSize is used when a caller does not specify one explicitly.
const DefaultPageSize = 64 << 10 // 64 KiB

// page is one link in the arena's page chain. used/cap delimit the live
// region; bytes beyond used are unwritten.
type page struct {
	buf  []byte
	used int
	next *page
}

func newPage(size int) *page {
	return &page{buf: make([]byte, size)}
}

func (p *page) remaining() int { return len(p.buf) - p.used }

func (p *page) bump(n int) []byte {
	b := p.buf[p.used : p.used+n]
	p.used += n
	return b
}

// Arena is a chain of pages. New pages are allocated on demand; allocations
// larger than pageSize get a dedicated page spliced in *after* the current
// page, so that subsequent small allocations keep using the current page's
// remaining space instead of wasting it.
type Arena struct {
	pageSize int
	head     *page // first page ever allocated (kept so Reset can rewind to it)
	cur      *page // page we are bumping into
	used     int64 // total bytes handed out across the whole chain
}

// New constructs an empty arena with the given default page size. A
// pageSize <= 0 selects DefaultPageSize.
func New(pageSize int) *Arena {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	first := newPage(pageSize)
	return &Arena{pageSize: pageSize, head: first, cur: first}
}

// Alloc returns n fresh, zeroed bytes owned by the arena. The returned slice
// is valid until the arena is dropped; it must never be retained past that
// point.
//
// Out-of-memory (make([]byte, n) panicking) is intentionally left to panic
// the goroutine rather than returning an error: every caller of Alloc holds
// a partially constructed invariant (a key being assembled, a map insert in
// flight) that cannot be sanely unwound.
func (a *Arena) Alloc(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("arena: negative allocation size %d", n))
	}
	if n == 0 {
		return nil
	}

	if n <= a.cur.remaining() {
		a.used += int64(n)
		return a.cur.bump(n)
	}

	if n > a.pageSize {
		// Oversized allocation: give it a private page, splice it in right
		// after the current page so the current page's leftover space is
		// still available to the next small allocation.
		dedicated := newPage(n)
		dedicated.next = a.cur.next
		a.cur.next = dedicated
		a.used += int64(n)
		return dedicated.bump(n)
	}

	fresh := newPage(a.pageSize)
	a.cur.next = fresh
	a.cur = fresh
	a.used += int64(n)
	return a.cur.bump(n)
}

// Dup copies buf into the arena and returns the new, arena-owned slice.
func (a *Arena) Dup(buf []byte) []byte {
	dst := a.Alloc(len(buf))
	copy(dst, buf)
	return dst
}

// Used returns the number of bytes handed out by Alloc/Dup so far. This is
// the figure CellCache.memory_used() reports.
func (a *Arena) Used() int64 { return a.used }

// Reset releases every page but the first and rewinds it to empty, without
// allocating a new chain. Used by tests; CellCache itself never calls this —
// a frozen cache's arena is simply dropped and replaced wholesale.
func (a *Arena) Reset() {
	a.head.used = 0
	a.head.next = nil
	a.cur = a.head
	a.used = 0
}
