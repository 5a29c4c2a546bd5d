// Package counter implements the bit-exact counter value encoding and the
// merge arithmetic CellCache's counter fast path needs.
//
// © 2025 rangestore authors. MIT License.
package counter

import (
	"encoding/binary"
	"fmt"
)

const (
	tagDelta = 0x08
	tagReset = 0x09
	resetTail = '='
)

// DeltaLen and ResetLen are the exact wire lengths of the two tagged forms.
const (
	DeltaLen = 9
	ResetLen = 10
)

// EncodeDelta returns the 9-byte delta encoding: [0x08][i64 big-endian].
func EncodeDelta(v int64) []byte {
	buf := make([]byte, DeltaLen)
	buf[0] = tagDelta
	binary.BigEndian.PutUint64(buf[1:], uint64(v))
	return buf
}

// EncodeReset returns the 10-byte reset encoding: [0x09][i64 big-endian]['='].
func EncodeReset(v int64) []byte {
	buf := make([]byte, ResetLen)
	buf[0] = tagReset
	binary.BigEndian.PutUint64(buf[1:9], uint64(v))
	buf[9] = resetTail
	return buf
}

// IsReset reports whether value is a reset-tagged counter payload.
func IsReset(value []byte) bool {
	return len(value) >= 1 && value[0] == tagReset
}

// IsDelta reports whether value is a delta-tagged counter payload of
// exactly the expected length.
func IsDelta(value []byte) bool {
	return len(value) == DeltaLen && value[0] == tagDelta
}

// DecodeBody reads the 8-byte signed body following a delta or reset tag
// byte.
func DecodeBody(value []byte) (int64, error) {
	if len(value) < 9 {
		return 0, fmt.Errorf("counter: value too short (%d bytes)", len(value))
	}
	return int64(binary.BigEndian.Uint64(value[1:9])), nil
}

// AddBodyInPlace adds delta to the 8-byte body stored at value[1:9],
// wrapping on 64-bit overflow exactly like the C++ source this is grounded
// on (plain two's-complement addition, no overflow check).
func AddBodyInPlace(value []byte, delta int64) {
	cur := int64(binary.BigEndian.Uint64(value[1:9]))
	binary.BigEndian.PutUint64(value[1:9], uint64(cur+delta))
}

// SetTimestampRevisionSuffix overwrites the last 16 bytes of a serialized
// key's payload (the timestamp/revision trailer) with newSuffix, used by the
// counter merge fast path to advance the stored key's ordering fields
// in place without reinserting into the map.
func SetTimestampRevisionSuffix(keyPayload []byte, newSuffix []byte) {
	if len(newSuffix) != 16 {
		panic("counter: timestamp/revision suffix must be 16 bytes")
	}
	copy(keyPayload[len(keyPayload)-16:], newSuffix)
}
