// Package bench provides reproducible micro-benchmarks for pkg/blockcache.
// Run via: go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// We measure:
//  1. Put         - write-only workload, one block per key
//  2. GetOrLoad   - warmed-up read-only workload
//  3. GetParallel - highly concurrent reads (b.RunParallel)
//  4. MixedLoad   - 90% hits, 10% misses paying loader cost
//
// © 2025 rangestore authors. MIT License.
package bench

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/hypertable-go/rangestore/pkg/blockcache"
)

const (
	capBytes = 64 << 20 // 64 MiB total, split evenly across shards
	ttl      = time.Minute
	shards   = 16
	keys     = 1 << 16 // distinct (file, offset) pairs
	blockLen = 4096     // representative decompressed block size
)

func newTestCache() *blockcache.Cache {
	c, err := blockcache.New(capBytes, ttl, shards)
	if err != nil {
		panic(err)
	}
	return c
}

var ds = func() []blockcache.BlockKey {
	arr := make([]blockcache.BlockKey, keys)
	for i := range arr {
		arr[i] = blockcache.BlockKey{File: "bench.cellstore", Offset: int64(i * blockLen)}
	}
	return arr
}()

var payload = make([]byte, blockLen)

func BenchmarkPut(b *testing.B) {
	c := newTestCache()
	defer c.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(ds[i&(keys-1)], payload, blockLen)
	}
}

func BenchmarkGetOrLoad(b *testing.B) {
	c := newTestCache()
	defer c.Close()
	for _, k := range ds {
		c.Put(k, payload, blockLen)
	}
	load := func(ctx context.Context, key blockcache.BlockKey) ([]byte, error) { return payload, nil }
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.GetOrLoad(context.Background(), ds[i&(keys-1)], load); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetParallel(b *testing.B) {
	c := newTestCache()
	defer c.Close()
	for _, k := range ds {
		c.Put(k, payload, blockLen)
	}
	load := func(ctx context.Context, key blockcache.BlockKey) ([]byte, error) { return payload, nil }
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			c.GetOrLoad(context.Background(), ds[idx], load)
		}
	})
}

func BenchmarkMixedLoad(b *testing.B) {
	c := newTestCache()
	defer c.Close()
	for i, k := range ds {
		if i%10 != 0 { // 90% fill
			c.Put(k, payload, blockLen)
		}
	}
	var loaderCalls int
	load := func(ctx context.Context, key blockcache.BlockKey) ([]byte, error) {
		loaderCalls++
		return payload, nil
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.GetOrLoad(context.Background(), ds[i&(keys-1)], load)
	}
	b.ReportMetric(float64(loaderCalls)/float64(b.N)*100, "miss-%")
}
