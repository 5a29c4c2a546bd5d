package blockcache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetOrLoadCachesAfterFirstMiss(t *testing.T) {
	c, err := New(1<<20, time.Hour, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	calls := 0
	load := func(ctx context.Context, key BlockKey) ([]byte, error) {
		calls++
		return []byte("block-bytes"), nil
	}

	key := BlockKey{File: "f1", Offset: 128}
	v1, err := c.GetOrLoad(context.Background(), key, load)
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if string(v1) != "block-bytes" {
		t.Fatalf("got %q", v1)
	}
	if calls != 1 {
		t.Fatalf("expected 1 load call, got %d", calls)
	}

	v2, err := c.GetOrLoad(context.Background(), key, load)
	if err != nil {
		t.Fatalf("GetOrLoad (cached): %v", err)
	}
	if string(v2) != "block-bytes" {
		t.Fatalf("got %q", v2)
	}
	if calls != 1 {
		t.Fatalf("expected load not to run again on a cache hit, got %d calls", calls)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("Stats = %+v, want 1 hit, 1 miss", st)
	}
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	c, err := New(1<<20, time.Hour, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	wantErr := errors.New("disk read failed")
	_, err = c.GetOrLoad(context.Background(), BlockKey{File: "f1", Offset: 0}, func(ctx context.Context, key BlockKey) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrLoad error = %v, want %v", err, wantErr)
	}
	if c.Len() != 0 {
		t.Fatalf("failed load must not populate the cache, Len = %d", c.Len())
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c, err := New(1<<20, time.Hour, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	key := BlockKey{File: "f1", Offset: 64}
	c.Put(key, []byte("xyz"), 3)
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	c.Delete(key)
	if c.Len() != 0 {
		t.Fatalf("Len after Delete = %d, want 0", c.Len())
	}
}

func TestCapacityPressureEvictsColdBlocks(t *testing.T) {
	// Tiny capacity, single shard: inserting many distinct blocks must keep
	// the cache within budget instead of growing unbounded.
	c, err := New(256, time.Hour, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	payload := make([]byte, 64)
	for i := 0; i < 20; i++ {
		c.Put(BlockKey{File: "f1", Offset: int64(i * 100)}, payload, len(payload))
	}
	if c.Len() >= 20 {
		t.Fatalf("expected eviction to keep Len well under 20, got %d", c.Len())
	}
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	if _, err := New(0, time.Hour, 1); err == nil {
		t.Fatalf("expected error for capBytes <= 0")
	}
	if _, err := New(1024, 0, 1); err == nil {
		t.Fatalf("expected error for ttl <= 0")
	}
	if _, err := New(1024, time.Hour, 3); err == nil {
		t.Fatalf("expected error for non-power-of-two shards")
	}
}
