package mutator

// interval.go implements the interval-flush timer state machine, grounded on
// TableMutatorIntervalHandler.{h,cc}: a self-re-registering timer that posts
// a flush task to a worker pool (here, a single goroutine per firing) and
// stops cleanly and idempotently.
//
// The original's handle() reads its active flag without the handler's own
// mutex (only stop()/stopped() take it); this is mirrored with an
// atomic.Bool, which gives the same check-then-post race tolerance without
// inheriting a real data race.

import (
	"context"
	"sync/atomic"
	"time"
)

type intervalHandler struct {
	active   atomic.Bool
	mutator  *SharedMutator
	interval time.Duration
	timer    *time.Timer
}

func newIntervalHandler(m *SharedMutator, interval time.Duration) *intervalHandler {
	h := &intervalHandler{mutator: m, interval: interval}
	h.active.Store(true)
	h.selfRegister()
	return h
}

func (h *intervalHandler) selfRegister() {
	h.timer = time.AfterFunc(h.interval, h.handle)
}

// handle fires on each timer tick. If the handler is still active it posts
// an interval_flush task (here, runs it directly in a fresh goroutine,
// standing in for "enqueue on the application queue") and re-registers
// itself for the next tick. A Stopped handler drops the tick silently and
// never re-registers, ending the chain.
func (h *intervalHandler) handle() {
	if !h.active.Load() {
		return
	}
	go h.mutator.intervalFlush(context.Background())
	h.selfRegister()
}

// stop transitions Active -> Stopped. One-way and idempotent: calling it
// more than once, or after the handler already stopped itself, is safe.
func (h *intervalHandler) stop() {
	h.active.Store(false)
	if h.timer != nil {
		h.timer.Stop()
	}
}
