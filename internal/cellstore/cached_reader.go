package cellstore

// cached_reader.go wires pkg/blockcache in front of a Reader: ReadBlock
// decompresses and parses a block from disk on every call, while
// CachedReader caches the decompressed (but not yet cell-parsed) bytes so a
// repeated probe of the same block, or a rescan while compaction runs
// concurrently, pays for disk IO only once per (file, block-offset).

import (
	"context"

	"github.com/hypertable-go/rangestore/pkg/blockcache"
)

// CachedReader decorates a Reader with a shared block cache.
type CachedReader struct {
	*Reader
	file  string
	cache *blockcache.Cache
}

// NewCachedReader wraps r so ReadBlockCached consults cache before touching
// the underlying ReaderAt. file identifies this Reader's underlying
// CellStore file within cache — typically its DFS path.
func NewCachedReader(r *Reader, file string, cache *blockcache.Cache) *CachedReader {
	return &CachedReader{Reader: r, file: file, cache: cache}
}

// ReadBlockCached decodes data block i into cells, serving the decompressed
// payload from the shared cache when present.
func (cr *CachedReader) ReadBlockCached(ctx context.Context, i int) ([]Cell, error) {
	key := blockcache.BlockKey{File: cr.file, Offset: cr.BlockOffset(i)}
	payload, err := cr.cache.GetOrLoad(ctx, key, func(ctx context.Context, _ blockcache.BlockKey) ([]byte, error) {
		return cr.ReadBlockRaw(i)
	})
	if err != nil {
		return nil, err
	}
	return DecodeBlockPayload(payload)
}
