// Package mutator implements SharedMutator: a thread-safe write funnel that
// batches mutations, flushes them over an rsrpc.Client, retries
// transport-level failures, and exposes a per-cell failure list for
// semantic rejections.
//
// Grounded on TableMutatorShared.{h,cc} (the locked wrapper and
// interval_flush contract) and TableMutatorIntervalHandler.{h,cc} (the
// Active/Stopped timer state machine, see interval.go).
//
// © 2025 rangestore authors. MIT License.
package mutator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/cellcache"
	"github.com/hypertable-go/rangestore/internal/key"
	"github.com/hypertable-go/rangestore/internal/rsrpc"
)

// FailedCell is one terminally rejected mutation, as returned by GetFailed.
type FailedCell struct {
	Mutation rsrpc.Mutation
	Code     rsrpc.ErrorCode
}

// SharedMutator is a thread-safe wrapper over a single-thread mutation
// buffer, safe to call concurrently from multiple goroutines (the "shared"
// in the name). Every public method except FlushInterval and Stop, which
// read only fields fixed at construction, takes the same lock, matching
// TableMutatorShared's single RecMutex.
type SharedMutator struct {
	mu sync.Mutex

	client rsrpc.Client
	spec   rsrpc.RangeSpec
	flags  Flags

	timeout       time.Duration
	flushInterval time.Duration
	lastFlush     time.Time

	buffered     []rsrpc.Mutation
	pendingRetry []rsrpc.Mutation
	failed       []FailedCell
	resendCount  uint64

	localCache *cellcache.Cache

	interval *intervalHandler

	logger  *zap.Logger
	metrics metricsSink
}

// New constructs a SharedMutator targeting spec. If flushIntervalMs (via
// WithFlushInterval) is nonzero, an interval handler starts immediately and
// must be stopped with Stop before the mutator is discarded.
func New(client rsrpc.Client, spec rsrpc.RangeSpec, opts ...Option) *SharedMutator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	m := &SharedMutator{
		client:        client,
		spec:          spec,
		flags:         cfg.flags,
		timeout:       time.Duration(cfg.timeoutMs) * time.Millisecond,
		flushInterval: time.Duration(cfg.flushIntervalMs) * time.Millisecond,
		lastFlush:     time.Now(),
		localCache:    cfg.localCache,
		logger:        cfg.logger,
		metrics:       newMetricsSink(cfg.registry),
	}
	if cfg.flushIntervalMs > 0 {
		m.interval = newIntervalHandler(m, m.flushInterval)
	}
	return m
}

// Set buffers a single mutation.
func (m *SharedMutator) Set(k key.Key, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = append(m.buffered, rsrpc.Mutation{Key: k, Value: value})
}

// SetDelete buffers a tombstone write; k's Flag should already be one of the
// DELETE_* variants.
func (m *SharedMutator) SetDelete(k key.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = append(m.buffered, rsrpc.Mutation{Key: k})
}

// SetCells buffers many mutations at once.
func (m *SharedMutator) SetCells(cells []rsrpc.Mutation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = append(m.buffered, cells...)
}

// Flush sends any buffered mutations and waits for the result, resetting the
// last-flush timestamp. Transport-level failures are kept for Retry;
// per-cell semantic errors land in the failed-mutations list.
func (m *SharedMutator) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(ctx)
}

func (m *SharedMutator) flushLocked(ctx context.Context) error {
	m.metrics.incFlush()
	m.lastFlush = time.Now()
	if len(m.buffered) == 0 {
		return nil
	}

	batch := m.buffered
	m.buffered = nil

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.client.Update(ctx, m.spec, batch)
	if err != nil {
		// Transport-level failure: the whole batch is retryable.
		m.pendingRetry = append(m.pendingRetry, batch...)
		return err
	}

	m.classifyResult(batch, result)
	return nil
}

// classifyResult partitions one Update call's batch into accepted (mirrored
// into the local cache), terminally failed (appended to the failed list),
// and retryable (appended to pendingRetry): schema and semantic errors are
// not retried, transport-level ones are.
func (m *SharedMutator) classifyResult(batch []rsrpc.Mutation, result rsrpc.UpdateResult) {
	failedIdx := make(map[int]rsrpc.ErrorCode, len(result.Failed))
	for _, f := range result.Failed {
		failedIdx[f.Index] = f.Code
	}
	retryIdx := make(map[int]bool, len(result.Retryable))
	for _, i := range result.Retryable {
		retryIdx[i] = true
	}

	for i, mut := range batch {
		if code, bad := failedIdx[i]; bad {
			m.failed = append(m.failed, FailedCell{Mutation: mut, Code: code})
			continue
		}
		if retryIdx[i] {
			m.pendingRetry = append(m.pendingRetry, mut)
			continue
		}
		if m.localCache != nil {
			m.localCache.Add(mut.Key, mut.Value)
		}
	}
	if len(result.Failed) > 0 {
		m.metrics.addFailed(len(result.Failed))
	}
}

// Retry resends mutations left over from a prior transport-level flush
// failure, honoring timeoutMs (falling back to the mutator's configured
// timeout when 0). It reports whether every pending cell was successfully
// resent.
func (m *SharedMutator) Retry(ctx context.Context, timeoutMs uint32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.incRetry()

	if len(m.pendingRetry) == 0 {
		return true, nil
	}

	timeout := m.timeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	batch := m.pendingRetry
	m.pendingRetry = nil

	result, err := m.client.Update(ctx, m.spec, batch)
	if err != nil {
		m.pendingRetry = append(m.pendingRetry, batch...)
		return false, err
	}

	m.classifyResult(batch, result)
	resent := len(batch) - len(result.Failed) - len(result.Retryable)
	m.resendCount += uint64(resent)
	m.metrics.addResend(resent)
	return len(m.pendingRetry) == 0, nil
}

// GetFailed appends every cell that terminally failed with a semantic error
// to out.
func (m *SharedMutator) GetFailed(out *[]FailedCell) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*out = append(*out, m.failed...)
}

// MemoryUsed returns the approximate byte size of buffered and
// pending-retry mutations.
func (m *SharedMutator) MemoryUsed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n uint64
	for _, mut := range m.buffered {
		n += mutationSize(mut)
	}
	for _, mut := range m.pendingRetry {
		n += mutationSize(mut)
	}
	return n
}

func mutationSize(mut rsrpc.Mutation) uint64 {
	return uint64(len(mut.Key.Row) + len(mut.Key.ColumnQualifier) + len(mut.Value) + 18)
}

// NeedRetry reports whether any mutation is waiting on a Retry call.
func (m *SharedMutator) NeedRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingRetry) > 0
}

// GetResendCount returns the cumulative number of cells successfully resent
// by Retry over this mutator's lifetime.
func (m *SharedMutator) GetResendCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resendCount
}

// FlushInterval returns the configured interval-flush period in
// milliseconds (0 if disabled).
func (m *SharedMutator) FlushInterval() uint32 {
	return uint32(m.flushInterval / time.Millisecond)
}

// intervalFlush flushes only if at least flush_interval_ms have elapsed
// since the last flush; called by the interval handler's timer, never
// directly by application code.
func (m *SharedMutator) intervalFlush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.lastFlush) >= m.flushInterval {
		if err := m.flushLocked(ctx); err != nil {
			m.logger.Warn("mutator: interval flush failed", zap.Error(err))
		}
	}
}

// Stop cancels the interval handler, if one is running. Idempotent; must
// precede discarding the mutator.
func (m *SharedMutator) Stop() {
	if m.interval != nil {
		m.interval.stop()
	}
}
