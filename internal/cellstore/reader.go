package cellstore

// reader.go opens a CellStore file produced by Writer: parses the trailer,
// loads both index blocks into memory, and can decode any data block or
// binary-search the variable index to find which block holds a given key.

import (
	"fmt"
	"io"

	"github.com/hypertable-go/rangestore/internal/key"
)

// Cell is one decoded (key, value) pair read back from a data block.
type Cell struct {
	Key   key.SerializedKey
	Value []byte
}

// Reader is a read-only view over a CellStore file. It holds both index
// blocks in memory (cheap: one entry per data block) and reads data blocks
// on demand via ReaderAt, exactly the access pattern pkg/blockcache
// decorates with a decompressed-block cache.
type Reader struct {
	ra io.ReaderAt

	trailer    trailer
	fixedIndex []fixedIndexEntry
	lastKeys   []key.SerializedKey
}

// Open parses the trailer and both index blocks of a CellStore file of the
// given total size.
func Open(ra io.ReaderAt, size int64) (*Reader, error) {
	if size < TrailerSize {
		return nil, fmt.Errorf("cellstore: file too small to hold a trailer")
	}
	trailerBuf := make([]byte, TrailerSize)
	if _, err := ra.ReadAt(trailerBuf, size-TrailerSize); err != nil {
		return nil, fmt.Errorf("cellstore: reading trailer: %w", err)
	}
	t, err := decodeTrailer(trailerBuf)
	if err != nil {
		return nil, err
	}

	fixedIndex, err := readFixedIndex(ra, t)
	if err != nil {
		return nil, err
	}
	lastKeys, err := readVarIndex(ra, t)
	if err != nil {
		return nil, err
	}
	if len(fixedIndex) != len(lastKeys) {
		return nil, fmt.Errorf("cellstore: index block count mismatch (%d fixed, %d variable)", len(fixedIndex), len(lastKeys))
	}

	return &Reader{ra: ra, trailer: t, fixedIndex: fixedIndex, lastKeys: lastKeys}, nil
}

func readFixedIndex(ra io.ReaderAt, t trailer) ([]fixedIndexEntry, error) {
	buf := make([]byte, blockHeaderLen+int(t.idxFixLength))
	if _, err := ra.ReadAt(buf, t.idxFixOffset); err != nil {
		return nil, fmt.Errorf("cellstore: reading fixed index block: %w", err)
	}
	payloadLen, err := readBlockHeader(buf, idxFixBlockMagic)
	if err != nil {
		return nil, err
	}
	payload := buf[blockHeaderLen : blockHeaderLen+payloadLen]
	if payloadLen%fixedIndexEntryLen != 0 {
		return nil, fmt.Errorf("cellstore: fixed index payload not a multiple of entry size")
	}
	n := payloadLen / fixedIndexEntryLen
	entries := make([]fixedIndexEntry, n)
	for i := range entries {
		entries[i] = getFixedIndexEntry(payload[i*fixedIndexEntryLen:])
	}
	return entries, nil
}

func readVarIndex(ra io.ReaderAt, t trailer) ([]key.SerializedKey, error) {
	buf := make([]byte, blockHeaderLen+int(t.idxVarLength))
	if _, err := ra.ReadAt(buf, t.idxVarOffset); err != nil {
		return nil, fmt.Errorf("cellstore: reading variable index block: %w", err)
	}
	payloadLen, err := readBlockHeader(buf, idxVarBlockMagic)
	if err != nil {
		return nil, err
	}
	payload := buf[blockHeaderLen : blockHeaderLen+payloadLen]

	var keys []key.SerializedKey
	for len(payload) > 0 {
		k, n, err := parseKeyAt(payload)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		payload = payload[n:]
	}
	return keys, nil
}

// BlockCount returns the number of data blocks in the file.
func (r *Reader) BlockCount() int { return len(r.fixedIndex) }

// CellCount returns the total number of cells recorded in the trailer.
func (r *Reader) CellCount() uint64 { return r.trailer.cellCount }

// FindBlock returns the index of the first data block whose last key is
// >= the given payload-comparable probe (e.g. key.EncodePayloadProbe or
// key.RowLowerBound output) — the block that may contain it, by the same
// reasoning cellmap.Map.LowerBound applies to an in-memory chain. Returns
// (-1, false) if probe sorts past every block.
func (r *Reader) FindBlock(probe []byte) (int, bool) {
	lo, hi := 0, len(r.lastKeys)
	for lo < hi {
		mid := (lo + hi) / 2
		if key.ComparePayload(probe, r.lastKeys[mid]) <= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == len(r.lastKeys) {
		return -1, false
	}
	return lo, true
}

// ReadBlock decodes data block i into its full sequence of cells. The
// returned Cell.Key/Value slices alias the returned buffer, not file-backed
// memory past this call.
func (r *Reader) ReadBlock(i int) ([]Cell, error) {
	payload, err := r.ReadBlockRaw(i)
	if err != nil {
		return nil, err
	}
	return DecodeBlockPayload(payload)
}

// BlockOffset returns the file offset of data block i's header, the key
// pkg/blockcache uses to identify a cached block independent of this
// *Reader instance (so the cache survives a file being reopened).
func (r *Reader) BlockOffset(i int) int64 { return r.fixedIndex[i].offset }

// ReadBlockRaw returns data block i's decompressed payload bytes, without
// parsing them into cells. This is the unit pkg/blockcache caches: one
// []byte per (file, block-offset), decoded into cells on every access by
// DecodeBlockPayload rather than re-read from disk.
func (r *Reader) ReadBlockRaw(i int) ([]byte, error) {
	if i < 0 || i >= len(r.fixedIndex) {
		return nil, fmt.Errorf("cellstore: block index %d out of range", i)
	}
	e := r.fixedIndex[i]
	buf := make([]byte, blockHeaderLen+int(e.length))
	if _, err := r.ra.ReadAt(buf, e.offset); err != nil {
		return nil, fmt.Errorf("cellstore: reading data block %d: %w", i, err)
	}
	payloadLen, err := readBlockHeader(buf, dataBlockMagic)
	if err != nil {
		return nil, err
	}
	return buf[blockHeaderLen : blockHeaderLen+payloadLen], nil
}

// DecodeBlockPayload parses a raw data block payload (as returned by
// ReadBlockRaw, cached or not) into its sequence of cells.
func DecodeBlockPayload(payload []byte) ([]Cell, error) {
	var cells []Cell
	for len(payload) > 0 {
		k, v, n, err := readRecord(payload)
		if err != nil {
			return nil, err
		}
		cells = append(cells, Cell{Key: k, Value: v})
		payload = payload[n:]
	}
	return cells, nil
}

// BlockIterator is a forward cursor over every cell in the file, reading
// blocks lazily one at a time — the access pattern a full compaction scan
// uses instead of ReadBlock's decode-everything-at-once convenience.
type BlockIterator struct {
	r        *Reader
	blockIdx int
	cells    []Cell
	pos      int
	err      error
}

// NewBlockIterator returns an iterator positioned at the file's first cell.
func (r *Reader) NewBlockIterator() *BlockIterator {
	it := &BlockIterator{r: r}
	it.loadBlock(0)
	return it
}

func (it *BlockIterator) loadBlock(idx int) {
	it.blockIdx = idx
	it.pos = 0
	it.cells = nil
	if idx >= it.r.BlockCount() {
		return
	}
	cells, err := it.r.ReadBlock(idx)
	if err != nil {
		it.err = err
		return
	}
	it.cells = cells
}

// Err returns the first error encountered while lazily decoding blocks, if
// any.
func (it *BlockIterator) Err() error { return it.err }

// Get returns the current (key, value) pair. ok is false once the iterator
// has been exhausted or hit an error.
func (it *BlockIterator) Get() (k key.SerializedKey, value []byte, ok bool) {
	if it.err != nil || it.pos >= len(it.cells) {
		return key.SerializedKey{}, nil, false
	}
	c := it.cells[it.pos]
	return c.Key, c.Value, true
}

// Forward advances by one cell, crossing into the next block on demand.
func (it *BlockIterator) Forward() {
	if it.err != nil {
		return
	}
	it.pos++
	if it.pos >= len(it.cells) && it.blockIdx+1 < it.r.BlockCount() {
		it.loadBlock(it.blockIdx + 1)
	}
}
