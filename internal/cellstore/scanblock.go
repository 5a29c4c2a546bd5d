package cellstore

// scanblock.go ports FillScanBlock.{h,cc}: pack as many (key, value) pairs
// as fit from a cell source into a caller-supplied fixed-size buffer, for
// streaming scan results (e.g. over internal/rsrpc) in bounded chunks
// instead of materializing an entire range scan in memory at once.

import "github.com/hypertable-go/rangestore/internal/key"

// CellSource is anything FillScanBlock can drain a fixed-size chunk from:
// cellcache.Scanner and cellstore.BlockIterator both already satisfy it.
type CellSource interface {
	Get() (k key.SerializedKey, value []byte, ok bool)
	Forward()
}

// FillScanBlock copies records (a serialized key immediately followed by
// its value's own varint-length-prefixed bytes — appendRecord's framing)
// from src into dst until the next record would not fit. It returns the
// number of bytes written and whether src still has more cells left to
// deliver after this call (mirroring the original's "did the scan stop
// because the buffer filled, not because the source was exhausted"
// signal, which callers use to decide whether to request another block).
func FillScanBlock(src CellSource, dst []byte) (n int, more bool) {
	pos := 0
	for {
		k, value, ok := src.Get()
		if !ok {
			return pos, false
		}
		need := recordLen(k, value)
		if pos+need > len(dst) {
			return pos, true
		}
		pos = len(appendRecord(dst[:pos], k, value))
		src.Forward()
	}
}
