package blockcache

// loader.go de-duplicates concurrent misses for the same block via
// x/sync/singleflight: when several scanners probe the same cold block at
// once, only one of them actually reads and decompresses it.

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

type loaderGroup struct {
	g singleflight.Group
}

func newLoaderGroup() *loaderGroup {
	return &loaderGroup{}
}

func (lg *loaderGroup) load(ctx context.Context, key BlockKey, fn LoaderFunc) ([]byte, error, bool) {
	k := key.File + "#" + strconv.FormatInt(key.Offset, 10)
	res, err, shared := lg.g.Do(k, func() (any, error) {
		return fn(ctx, key)
	})
	if ctx.Err() != nil {
		return nil, ctx.Err(), shared
	}
	if err != nil {
		return nil, err, shared
	}
	return res.([]byte), nil, shared
}
