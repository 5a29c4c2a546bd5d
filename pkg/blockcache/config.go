package blockcache

// config.go defines blockcache's functional-options configuration object,
// fixed to BlockKey/[]byte types rather than left generic over arbitrary K/V.

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/clockpro"
)

// EjectReason re-exports the CLOCK-Pro eviction reason so callers never need
// to import internal/clockpro directly.
type EjectReason = clockpro.EvictionReason

// EjectCallback is invoked whenever a block is displaced by CLOCK-Pro under
// capacity pressure (not on TTL-driven generation rotation). It runs in the
// calling goroutine and must not block.
type EjectCallback func(key BlockKey, value []byte, reason EjectReason)

// Option configures a Cache at construction time.
type Option func(*config)

type config struct {
	registry *prometheus.Registry
	logger   *zap.Logger
	weightFn func([]byte) int
	ejectCb  EjectCallback
	pageSize int
}

func defaultWeightFn(v []byte) int {
	if len(v) == 0 {
		return 1
	}
	return len(v)
}

func defaultConfig(capBytes int64, ttl time.Duration, shards uint8) *config {
	return &config{
		weightFn: defaultWeightFn,
		logger:   zap.NewNop(),
		pageSize: 256 << 10, // one arena page comfortably holds several blocks
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithLogger plugs an external zap.Logger. The logger is kept in the
// configuration only: the cache does not log on any path, rotation included.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWeightFn overrides the default length-based weight calculation.
func WithWeightFn(fn func([]byte) int) Option {
	return func(c *config) {
		if fn != nil {
			c.weightFn = fn
		}
	}
}

// WithEjectCallback registers a function invoked on every CLOCK-Pro capacity
// eviction.
func WithEjectCallback(cb EjectCallback) Option {
	return func(c *config) { c.ejectCb = cb }
}

// WithArenaPageSize overrides the page size used for each generation's
// arena (see internal/arena.New). Useful when blocks are much larger or
// smaller than the 256KiB default.
func WithArenaPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}
