package mutator

import (
	"context"
	"sync"
	"testing"

	"github.com/hypertable-go/rangestore/internal/cellcache"
	"github.com/hypertable-go/rangestore/internal/key"
	"github.com/hypertable-go/rangestore/internal/rsrpc"
)

// fakeClient is a scripted rsrpc.Client: each call to Update pops the next
// scripted response off results (or err off errs), in order.
type fakeClient struct {
	mu      sync.Mutex
	results []rsrpc.UpdateResult
	errs    []error
	calls   [][]rsrpc.Mutation
	closed  bool
}

func (c *fakeClient) Update(ctx context.Context, spec rsrpc.RangeSpec, mutations []rsrpc.Mutation) (rsrpc.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, mutations)
	i := len(c.calls) - 1
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return rsrpc.UpdateResult{}, err
	}
	if i < len(c.results) {
		return c.results[i], nil
	}
	return rsrpc.UpdateResult{}, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func testSpec() rsrpc.RangeSpec {
	return rsrpc.RangeSpec{TableID: "t", StartRow: []byte("a"), EndRow: []byte("z")}
}

func testKey(row string) key.Key {
	return key.Key{Row: []byte(row), Flag: key.FlagInsert, Timestamp: 1, Revision: 1}
}

func TestFlushSendsNothingWhenBufferEmpty(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testSpec())
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no Update call, got %d", len(client.calls))
	}
}

func TestFlushMirrorsAcceptedCellsIntoLocalCache(t *testing.T) {
	client := &fakeClient{results: []rsrpc.UpdateResult{{}}}
	cache := cellcache.New(1)
	m := New(client, testSpec(), WithLocalCache(cache))

	m.Set(testKey("row1"), []byte("v1"))
	m.Set(testKey("row2"), []byte("v2"))
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := cache.Size(); got != 2 {
		t.Fatalf("local cache size = %d, want 2", got)
	}
	if m.NeedRetry() {
		t.Fatalf("expected no pending retry")
	}
}

// TestSchemaFailureThenRetryableTimeout covers a single flush where the
// range server rejects one cell outright (ErrSchema) and reports a second as
// transport-retryable, with the rest accepted. Retry must resend only the
// retryable cell and leave the schema failure alone.
func TestSchemaFailureThenRetryableTimeout(t *testing.T) {
	client := &fakeClient{
		results: []rsrpc.UpdateResult{
			{
				Failed:    []rsrpc.FailedMutation{{Index: 1, Code: rsrpc.ErrSchema}},
				Retryable: []int{2},
			},
			{}, // retry succeeds
		},
	}
	cache := cellcache.New(1)
	m := New(client, testSpec(), WithLocalCache(cache))

	m.Set(testKey("row0"), []byte("v0"))
	m.Set(testKey("row1"), []byte("v1"))
	m.Set(testKey("row2"), []byte("v2"))
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var failed []FailedCell
	m.GetFailed(&failed)
	if len(failed) != 1 || failed[0].Code != rsrpc.ErrSchema {
		t.Fatalf("failed = %+v, want one ErrSchema entry", failed)
	}
	if !m.NeedRetry() {
		t.Fatalf("expected a pending retry for the retryable cell")
	}
	if got := cache.Size(); got != 1 {
		t.Fatalf("local cache size = %d, want 1 (only row0 accepted so far)", got)
	}

	ok, err := m.Retry(context.Background(), 0)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !ok {
		t.Fatalf("Retry reported pending work remaining")
	}
	if m.NeedRetry() {
		t.Fatalf("expected no pending retry after successful resend")
	}
	if got := m.GetResendCount(); got != 1 {
		t.Fatalf("resend count = %d, want 1", got)
	}
	if got := cache.Size(); got != 2 {
		t.Fatalf("local cache size = %d, want 2 after retry mirrors row2", got)
	}

	failed = nil
	m.GetFailed(&failed)
	if len(failed) != 1 {
		t.Fatalf("failed list grew across Retry: %+v", failed)
	}
}

func TestTransportFailureKeepsWholeBatchPendingForRetry(t *testing.T) {
	client := &fakeClient{errs: []error{context.DeadlineExceeded}}
	m := New(client, testSpec())

	m.Set(testKey("row0"), []byte("v0"))
	m.Set(testKey("row1"), []byte("v1"))
	if err := m.Flush(context.Background()); err == nil {
		t.Fatalf("expected Flush to surface the transport error")
	}
	if !m.NeedRetry() {
		t.Fatalf("expected both cells pending retry")
	}
}

func TestRetryWithNothingPendingIsANoop(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testSpec())
	ok, err := m.Retry(context.Background(), 0)
	if err != nil || !ok {
		t.Fatalf("Retry() = %v, %v; want true, nil", ok, err)
	}
	if len(client.calls) != 0 {
		t.Fatalf("expected no Update call")
	}
}

func TestMemoryUsedCountsBufferedAndPendingRetry(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testSpec())
	m.Set(testKey("row0"), []byte("v0"))
	if got := m.MemoryUsed(); got == 0 {
		t.Fatalf("expected nonzero MemoryUsed with a buffered mutation")
	}
}

func TestStopIsSafeWithoutAnIntervalHandler(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testSpec())
	m.Stop() // must not panic
}

func TestFlushIntervalReflectsConfiguration(t *testing.T) {
	client := &fakeClient{}
	m := New(client, testSpec(), WithFlushInterval(5000))
	defer m.Stop()
	if got := m.FlushInterval(); got != 5000 {
		t.Fatalf("FlushInterval() = %d, want 5000", got)
	}
}
