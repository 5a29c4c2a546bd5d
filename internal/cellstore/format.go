// Package cellstore implements the bit-exact on-disk CellStore file format:
// a sequence of data blocks, a fixed-width index block, a variable-width
// index block, and a trailer.
//
// Grounded on CellStore.cc (the three block magics), KeyDecompressorNone.cc
// (the identity key decompressor: read one SerializedKey at a time by its
// own length prefix, advance the pointer by that length — exactly
// key.SerializedKey's own varint-length-header framing, reused here
// unchanged) and FillScanBlock.{h,cc} (packing (key, value) pairs into a
// fixed-size buffer for streaming, ported in scanblock.go).
//
// A cell's value has no such built-in length prefix (internal/key only
// frames the key), so each on-disk record adds one: a value is stored as
// its own varint length followed by its bytes, the same convention
// Hypertable's ByteString type applies uniformly to both keys and values.
//
// The trailer layout itself (field order, fixed size) is not grounded on any
// reference source — no trailer source file exists in the reference
// material, which only fixes the three block magics and the block sequence,
// not trailer bytes. TrailerSize and the field layout below are this
// package's own bit-exact contract: fixed size, no version negotiation,
// suitable for a trailer a reader can always locate by seeking TrailerSize
// bytes back from EOF.
//
// © 2025 rangestore authors. MIT License.
package cellstore

import (
	"encoding/binary"
	"fmt"
)

// MagicLen is the fixed width of every block's leading ASCII tag.
const MagicLen = 10

var (
	dataBlockMagic   = [MagicLen]byte{'D', 'a', 't', 'a', '-', '-', '-', '-', '-', '-'}
	idxFixBlockMagic = [MagicLen]byte{'I', 'd', 'x', 'F', 'i', 'x', '-', '-', '-', '-'}
	idxVarBlockMagic = [MagicLen]byte{'I', 'd', 'x', 'V', 'a', 'r', '-', '-', '-', '-'}
)

// blockHeaderLen is magic + a big-endian uint32 payload length.
const blockHeaderLen = MagicLen + 4

func writeBlockHeader(dst []byte, magic [MagicLen]byte, payloadLen int) {
	copy(dst, magic[:])
	binary.BigEndian.PutUint32(dst[MagicLen:], uint32(payloadLen))
}

func readBlockHeader(src []byte, want [MagicLen]byte) (payloadLen int, err error) {
	if len(src) < blockHeaderLen {
		return 0, fmt.Errorf("cellstore: truncated block header")
	}
	if string(src[:MagicLen]) != string(want[:]) {
		return 0, fmt.Errorf("cellstore: bad block magic %q, want %q", src[:MagicLen], want[:])
	}
	return int(binary.BigEndian.Uint32(src[MagicLen:blockHeaderLen])), nil
}

// fixedIndexEntryLen is one IdxFix record: the byte offset and length of one
// data block, letting a reader seek directly to block i without having
// scanned every block before it.
const fixedIndexEntryLen = 8 + 4

type fixedIndexEntry struct {
	offset int64
	length uint32
}

func putFixedIndexEntry(dst []byte, e fixedIndexEntry) {
	binary.BigEndian.PutUint64(dst[0:8], uint64(e.offset))
	binary.BigEndian.PutUint32(dst[8:12], e.length)
}

func getFixedIndexEntry(src []byte) fixedIndexEntry {
	return fixedIndexEntry{
		offset: int64(binary.BigEndian.Uint64(src[0:8])),
		length: binary.BigEndian.Uint32(src[8:12]),
	}
}

// trailerMagic identifies a well-formed trailer when a reader seeks to the
// last TrailerSize bytes of a file.
var trailerMagic = [8]byte{'C', 'e', 'l', 'l', 'T', 'r', 'l', '1'}

// TrailerSize is the fixed, bit-exact size of the trailer block.
const TrailerSize = 8 + 8 + 4 + 8 + 4 + 4 + 8 + 2 + 2

type trailer struct {
	idxFixOffset int64
	idxFixLength uint32
	idxVarOffset int64
	idxVarLength uint32
	blockCount   uint32
	cellCount    uint64
	version      uint16
	flags        uint16
}

const trailerVersion = 1

func encodeTrailer(t trailer) []byte {
	buf := make([]byte, TrailerSize)
	off := 0
	copy(buf[off:], trailerMagic[:])
	off += len(trailerMagic)
	binary.BigEndian.PutUint64(buf[off:], uint64(t.idxFixOffset))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], t.idxFixLength)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(t.idxVarOffset))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], t.idxVarLength)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], t.blockCount)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], t.cellCount)
	off += 8
	binary.BigEndian.PutUint16(buf[off:], trailerVersion)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], t.flags)
	off += 2
	return buf
}

func decodeTrailer(buf []byte) (trailer, error) {
	if len(buf) != TrailerSize {
		return trailer{}, fmt.Errorf("cellstore: trailer has wrong size %d, want %d", len(buf), TrailerSize)
	}
	off := 0
	if string(buf[off:off+len(trailerMagic)]) != string(trailerMagic[:]) {
		return trailer{}, fmt.Errorf("cellstore: bad trailer magic")
	}
	off += len(trailerMagic)
	var t trailer
	t.idxFixOffset = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	t.idxFixLength = binary.BigEndian.Uint32(buf[off:])
	off += 4
	t.idxVarOffset = int64(binary.BigEndian.Uint64(buf[off:]))
	off += 8
	t.idxVarLength = binary.BigEndian.Uint32(buf[off:])
	off += 4
	t.blockCount = binary.BigEndian.Uint32(buf[off:])
	off += 4
	t.cellCount = binary.BigEndian.Uint64(buf[off:])
	off += 8
	t.version = binary.BigEndian.Uint16(buf[off:])
	off += 2
	if t.version != trailerVersion {
		return trailer{}, fmt.Errorf("cellstore: unsupported trailer version %d", t.version)
	}
	t.flags = binary.BigEndian.Uint16(buf[off:])
	return t, nil
}
