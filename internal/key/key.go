// Package key implements the logical cell key tuple and its serialized,
// order-preserving on-disk/in-arena representation.
//
// SerializedKey layout
// --------------------
// A serialized key is a self-describing byte record built so that ordinary
// bytes.Compare (memcmp) on the *payload* - the part after the leading
// varint length header - yields exactly the cell ordering this store
// requires: row ascending, column family ascending, column qualifier
// ascending, flag (deletes before inserts), timestamp descending, revision
// descending.
//
//	[varint payload length]
//	[row bytes][0x00]
//	[column family byte]
//	[column qualifier bytes][0x00]
//	[flag byte]
//	[8 bytes: ~timestamp, sign-flipped, big-endian]
//	[8 bytes: ~revision,  sign-flipped, big-endian]
//
// Row and column qualifier are NUL-terminated rather than length-prefixed:
// a NUL byte sorts below every other byte value, so a short string that is a
// prefix of a longer one still compares correctly ("ab" < "abc"), which a
// naive numeric length prefix would get wrong. The leading varint is there
// purely so a reader walking serialized arena bytes (a CellStore block's key
// decompressor) can skip whole records without parsing their content.
//
// © 2025 rangestore authors. MIT License.
package key

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hypertable-go/rangestore/internal/arena"
)

// Flag identifies the kind of mutation a cell represents. Numeric values are
// chosen so that delete variants sort before FLAG_INSERT when two keys are
// otherwise identical up through the flag byte.
type Flag uint8

const (
	FlagDeleteRow           Flag = 0
	FlagDeleteColumnFamily  Flag = 1
	FlagDeleteCell          Flag = 2
	FlagInsert              Flag = 255
)

func (f Flag) String() string {
	switch f {
	case FlagDeleteRow:
		return "DELETE_ROW"
	case FlagDeleteColumnFamily:
		return "DELETE_COLUMN_FAMILY"
	case FlagDeleteCell:
		return "DELETE_CELL"
	case FlagInsert:
		return "INSERT"
	default:
		return fmt.Sprintf("Flag(%d)", uint8(f))
	}
}

// IsDelete reports whether f marks a tombstone of any grain.
func (f Flag) IsDelete() bool { return f != FlagInsert }

// Key is the logical, unserialized cell key tuple.
type Key struct {
	Row             []byte
	ColumnFamily    uint8
	ColumnQualifier []byte
	Flag            Flag
	Timestamp       int64 // nanoseconds
	Revision        int64
}

// SerializedKey is a read-only view into arena-owned bytes. The zero value
// is not a valid key.
type SerializedKey struct {
	buf []byte // full record, including the varint length header
}

// FromBytes wraps an existing serialized record (e.g. one freshly decoded
// from a CellStore block) without copying.
func FromBytes(buf []byte) SerializedKey { return SerializedKey{buf: buf} }

// Bytes returns the full record, header included — the representation
// CellMap stores and compares.
func (k SerializedKey) Bytes() []byte { return k.buf }

// Valid reports whether the view actually wraps a record.
func (k SerializedKey) Valid() bool { return len(k.buf) > 0 }

// payload returns the bytes after the leading varint length header.
func (k SerializedKey) payload() []byte {
	_, n := binary.Uvarint(k.buf)
	return k.buf[n:]
}

// Len returns the total byte length of the record, header included.
func (k SerializedKey) Len() int { return len(k.buf) }

// Encode serializes key and value into a as one contiguous allocation:
//
//	[SerializedKey record][value bytes]
//
// so the value lies at a fixed offset past the end of the key record inside
// the same arena allocation. It returns the key view (capacity-limited to
// exactly the key record, so writing through it can never clobber the
// adjacent value), the value view, and offset — the distance from the start
// of the allocation to the start of value, kept so CellMap's (SerializedKey,
// offset) entry shape matches even though Go callers can simply use the
// returned value slice directly.
func Encode(a *arena.Arena, k Key, value []byte) (rec SerializedKey, val []byte, offset uint32) {
	payloadLen := len(k.Row) + 1 + 1 + len(k.ColumnQualifier) + 1 + 1 + 8 + 8
	header := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(header, uint64(payloadLen))
	keyLen := n + payloadLen

	total := a.Alloc(keyLen + len(value))
	copy(total, header[:n])

	p := total[n:]
	off := 0
	off += copy(p[off:], k.Row)
	p[off] = 0x00
	off++
	p[off] = k.ColumnFamily
	off++
	off += copy(p[off:], k.ColumnQualifier)
	p[off] = 0x00
	off++
	p[off] = byte(k.Flag)
	off++
	binary.BigEndian.PutUint64(p[off:], orderPreservingDescending(k.Timestamp))
	off += 8
	binary.BigEndian.PutUint64(p[off:], orderPreservingDescending(k.Revision))
	off += 8

	copy(total[keyLen:], value)

	return SerializedKey{buf: total[:keyLen:keyLen]}, total[keyLen : keyLen+len(value) : keyLen+len(value)], uint32(keyLen)
}

// EncodePayloadProbe builds the same payload bytes Encode would produce,
// into a plain heap slice rather than an arena allocation. Used to search
// the map (lower_bound) for a candidate key before deciding whether it can
// be merged into an existing entry, so failed merge attempts never consume
// arena space.
func EncodePayloadProbe(k Key) []byte {
	payloadLen := len(k.Row) + 1 + 1 + len(k.ColumnQualifier) + 1 + 1 + 8 + 8
	p := make([]byte, payloadLen)
	off := 0
	off += copy(p[off:], k.Row)
	p[off] = 0x00
	off++
	p[off] = k.ColumnFamily
	off++
	off += copy(p[off:], k.ColumnQualifier)
	p[off] = 0x00
	off++
	p[off] = byte(k.Flag)
	off++
	binary.BigEndian.PutUint64(p[off:], orderPreservingDescending(k.Timestamp))
	off += 8
	binary.BigEndian.PutUint64(p[off:], orderPreservingDescending(k.Revision))
	off += 8
	return p
}

// orderPreservingDescending maps a signed 64-bit value to an unsigned one
// such that ordinary ascending uint64 (and thus big-endian byte) order
// matches *descending* signed order: larger v encodes to a smaller u.
func orderPreservingDescending(v int64) uint64 {
	u := uint64(v) ^ (1 << 63) // flip sign bit: ascending order-preserving unsigned
	return ^u                  // complement: now descending
}

func orderPreservingDescendingDecode(u uint64) int64 {
	return int64((^u) ^ (1 << 63))
}

// Decode parses the logical tuple back out of a serialized record. The
// returned Row/ColumnQualifier slices alias arena memory; callers that need
// to retain them past the record's lifetime must copy.
func (k SerializedKey) Decode() (Key, error) {
	if !k.Valid() {
		return Key{}, fmt.Errorf("key: cannot decode empty serialized key")
	}
	return DecodePayload(k.payload())
}

// DecodePayload parses a Key out of raw payload bytes — the same bytes
// EncodePayloadProbe produces and the part of a SerializedKey record after
// its varint length header. Used directly by stores (e.g. internal/metastore)
// that key a persistent index by payload bytes without ever materializing
// the varint-prefixed record form.
func DecodePayload(p []byte) (Key, error) {
	rowEnd := bytes.IndexByte(p, 0x00)
	if rowEnd < 0 {
		return Key{}, fmt.Errorf("key: malformed record: no row terminator")
	}
	row := p[:rowEnd]
	p = p[rowEnd+1:]

	if len(p) < 1 {
		return Key{}, fmt.Errorf("key: malformed record: truncated after row")
	}
	cf := p[0]
	p = p[1:]

	cqEnd := bytes.IndexByte(p, 0x00)
	if cqEnd < 0 {
		return Key{}, fmt.Errorf("key: malformed record: no qualifier terminator")
	}
	cq := p[:cqEnd]
	p = p[cqEnd+1:]

	if len(p) != 1+8+8 {
		return Key{}, fmt.Errorf("key: malformed record: wrong trailer length %d", len(p))
	}
	flag := Flag(p[0])
	ts := orderPreservingDescendingDecode(binary.BigEndian.Uint64(p[1:9]))
	rev := orderPreservingDescendingDecode(binary.BigEndian.Uint64(p[9:17]))

	return Key{
		Row:             row,
		ColumnFamily:    cf,
		ColumnQualifier: cq,
		Flag:            flag,
		Timestamp:       ts,
		Revision:        rev,
	}, nil
}

// Row returns the row portion of the serialized key without a full Decode.
func (k SerializedKey) Row() []byte {
	p := k.payload()
	if end := bytes.IndexByte(p, 0x00); end >= 0 {
		return p[:end]
	}
	return nil
}

// RowPrefixLen returns the length, in payload bytes, of [row][0x00][cf],
// the portion shared by every key with identical row and column family.
func RowPrefixLen(row []byte) int { return len(row) + 1 + 1 }

// SamePrefix reports whether existing's (row, column_family, column
// qualifier) coordinate matches k's exactly — the prefix test the counter
// merge fast path uses to decide whether an existing lower_bound match is
// actually the same counter coordinate.
func SamePrefix(existing SerializedKey, k Key) bool {
	dk, err := existing.Decode()
	if err != nil {
		return false
	}
	return bytes.Equal(dk.Row, k.Row) &&
		dk.ColumnFamily == k.ColumnFamily &&
		bytes.Equal(dk.ColumnQualifier, k.ColumnQualifier)
}

// Compare orders two serialized keys by comparing their payloads (i.e.
// ignoring the leading varint length header, which carries no ordering
// information of its own).
func Compare(a, b SerializedKey) int {
	return bytes.Compare(a.payload(), b.payload())
}

// RowLowerBound returns a synthetic payload-comparable key that sorts at or
// below every real key whose row equals row, and above every key whose row
// is lexicographically smaller. It is the bound CellCacheScanner uses for
// start_row.
func RowLowerBound(row []byte) []byte {
	b := make([]byte, len(row)+1)
	copy(b, row)
	b[len(row)] = 0x00
	return b
}

// RowUpperBound returns a synthetic payload-comparable key that sorts
// strictly above every real key whose row equals row, and at or below any
// key belonging to a lexicographically larger row. Used as the exclusive
// bound one past end_row so that CellCacheScanner can treat end_row as
// inclusive using only a single lower_bound lookup.
func RowUpperBound(row []byte) []byte {
	b := make([]byte, len(row)+1)
	copy(b, row)
	b[len(row)] = 0x01
	return b
}

// ComparePayload compares a raw synthetic bound (as produced by
// RowLowerBound/RowUpperBound) against a serialized key's payload.
func ComparePayload(bound []byte, k SerializedKey) int {
	return bytes.Compare(bound, k.payload())
}
