package cellstore

// record.go frames one (SerializedKey, value) pair inside a data block.
// The key brings its own varint length header (internal/key.SerializedKey);
// the value does not, so it gets the same treatment here, mirroring
// KeyDecompressorNone's "read one record at a time by length prefix,
// advance the pointer by that length" contract applied uniformly to both
// halves of the pair.

import (
	"encoding/binary"
	"fmt"

	"github.com/hypertable-go/rangestore/internal/key"
)

// appendRecord appends one on-disk record — k's full serialized bytes
// (header included) followed by value's own varint-length-prefixed bytes —
// to dst, returning the grown slice.
func appendRecord(dst []byte, k key.SerializedKey, value []byte) []byte {
	dst = append(dst, k.Bytes()...)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	dst = append(dst, lenBuf[:n]...)
	dst = append(dst, value...)
	return dst
}

// recordLen returns the total on-disk size of appendRecord's output for the
// same (k, value) pair, without allocating.
func recordLen(k key.SerializedKey, value []byte) int {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(value)))
	return k.Len() + n + len(value)
}

// parseKeyAt parses just a serialized key out of buf — used to walk the
// variable-width index block, which holds only keys (one per data block,
// its last key), no values.
func parseKeyAt(buf []byte) (k key.SerializedKey, consumed int, err error) {
	payloadLen, headerLen := binary.Uvarint(buf)
	if headerLen <= 0 {
		return key.SerializedKey{}, 0, fmt.Errorf("cellstore: malformed key length header")
	}
	keyLen := headerLen + int(payloadLen)
	if keyLen > len(buf) {
		return key.SerializedKey{}, 0, fmt.Errorf("cellstore: truncated key")
	}
	return key.FromBytes(buf[:keyLen]), keyLen, nil
}

// readRecord parses one record out of buf, returning the key (a view into
// buf), the value (also a view into buf), and the number of bytes consumed.
func readRecord(buf []byte) (k key.SerializedKey, value []byte, consumed int, err error) {
	keyPayloadLen, headerLen := binary.Uvarint(buf)
	if headerLen <= 0 {
		return key.SerializedKey{}, nil, 0, fmt.Errorf("cellstore: malformed key length header")
	}
	keyLen := headerLen + int(keyPayloadLen)
	if keyLen > len(buf) {
		return key.SerializedKey{}, nil, 0, fmt.Errorf("cellstore: truncated key record")
	}
	k = key.FromBytes(buf[:keyLen])

	rest := buf[keyLen:]
	valueLen, n := binary.Uvarint(rest)
	if n <= 0 {
		return key.SerializedKey{}, nil, 0, fmt.Errorf("cellstore: malformed value length header")
	}
	valueStart := keyLen + n
	valueEnd := valueStart + int(valueLen)
	if valueEnd > len(buf) {
		return key.SerializedKey{}, nil, 0, fmt.Errorf("cellstore: truncated value record")
	}
	return k, buf[valueStart:valueEnd], valueEnd, nil
}
