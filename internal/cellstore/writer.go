package cellstore

// writer.go produces a CellStore file: a run of data blocks each holding
// appendRecord-framed (key, value) pairs up to a target size, followed by
// the fixed and variable index blocks and the trailer, grounded on
// CellStore.cc's three block magics and block sequence.

import (
	"fmt"
	"io"

	"github.com/hypertable-go/rangestore/internal/key"
)

// Writer streams cells, already in sorted (ascending) order, into a
// CellStore file. The caller is responsible for ordering — typically by
// draining a frozen cellcache.Scanner in order.
type Writer struct {
	w             io.Writer
	targetBlockSize int
	offset        int64

	block []byte

	fixedIndex []fixedIndexEntry
	lastKeys   [][]byte // one copy of the last key's full serialized record per finished block

	cellCount uint64
	lastWritten key.SerializedKey
}

// NewWriter constructs a Writer that flushes a data block once its buffered
// size reaches targetBlockSize (a target, not a hard cap: one record is
// always allowed to complete past the threshold rather than being split).
func NewWriter(w io.Writer, targetBlockSize int) *Writer {
	if targetBlockSize <= 0 {
		targetBlockSize = 64 << 10
	}
	return &Writer{w: w, targetBlockSize: targetBlockSize}
}

// Add appends one cell. Keys must arrive in non-decreasing payload order
// (the same order CellCache's map already stores them in); Add returns an
// error if this invariant is violated.
func (cw *Writer) Add(k key.SerializedKey, value []byte) error {
	if cw.lastWritten.Valid() && key.Compare(cw.lastWritten, k) > 0 {
		return fmt.Errorf("cellstore: keys out of order")
	}
	cw.lastWritten = k

	cw.block = appendRecord(cw.block, k, value)
	cw.cellCount++

	if len(cw.block) >= cw.targetBlockSize {
		if err := cw.flushBlock(k); err != nil {
			return err
		}
	}
	return nil
}

func (cw *Writer) flushBlock(lastKey key.SerializedKey) error {
	if len(cw.block) == 0 {
		return nil
	}
	header := make([]byte, blockHeaderLen)
	writeBlockHeader(header, dataBlockMagic, len(cw.block))
	if _, err := cw.w.Write(header); err != nil {
		return err
	}
	if _, err := cw.w.Write(cw.block); err != nil {
		return err
	}

	cw.fixedIndex = append(cw.fixedIndex, fixedIndexEntry{offset: cw.offset, length: uint32(len(cw.block))})
	lastKeyCopy := append([]byte(nil), lastKey.Bytes()...)
	cw.lastKeys = append(cw.lastKeys, lastKeyCopy)

	cw.offset += int64(len(header) + len(cw.block))
	cw.block = cw.block[:0]
	return nil
}

// Close flushes any partial final block, writes the index blocks and
// trailer, and makes the file readable by Open. It does not close the
// underlying io.Writer.
func (cw *Writer) Close() error {
	if err := cw.flushBlock(cw.lastWritten); err != nil {
		return err
	}

	idxFixOffset := cw.offset
	idxFixPayload := make([]byte, fixedIndexEntryLen*len(cw.fixedIndex))
	for i, e := range cw.fixedIndex {
		putFixedIndexEntry(idxFixPayload[i*fixedIndexEntryLen:], e)
	}
	if err := cw.writeBlock(idxFixBlockMagic, idxFixPayload); err != nil {
		return err
	}

	idxVarOffset := cw.offset
	var idxVarPayload []byte
	for _, lk := range cw.lastKeys {
		idxVarPayload = append(idxVarPayload, lk...)
	}
	if err := cw.writeBlock(idxVarBlockMagic, idxVarPayload); err != nil {
		return err
	}

	t := trailer{
		idxFixOffset: idxFixOffset,
		idxFixLength: uint32(len(idxFixPayload)),
		idxVarOffset: idxVarOffset,
		idxVarLength: uint32(len(idxVarPayload)),
		blockCount:   uint32(len(cw.fixedIndex)),
		cellCount:    cw.cellCount,
	}
	_, err := cw.w.Write(encodeTrailer(t))
	return err
}

func (cw *Writer) writeBlock(magic [MagicLen]byte, payload []byte) error {
	header := make([]byte, blockHeaderLen)
	writeBlockHeader(header, magic, len(payload))
	if _, err := cw.w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := cw.w.Write(payload); err != nil {
			return err
		}
	}
	cw.offset += int64(len(header) + len(payload))
	return nil
}
