package mutator

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/cellcache"
)

type config struct {
	timeoutMs       uint32
	flushIntervalMs uint32
	flags           Flags
	localCache      *cellcache.Cache
	registry        *prometheus.Registry
	logger          *zap.Logger
}

func defaultConfig() *config {
	return &config{
		timeoutMs: 30_000,
		logger:    zap.NewNop(),
	}
}

// Option configures a SharedMutator at construction time.
type Option func(*config)

// WithTimeout sets the per-operation RPC deadline, in milliseconds.
func WithTimeout(ms uint32) Option { return func(c *config) { c.timeoutMs = ms } }

// WithFlushInterval sets the interval-flush period in milliseconds; 0 (the
// default) disables the interval handler entirely.
func WithFlushInterval(ms uint32) Option { return func(c *config) { c.flushIntervalMs = ms } }

// WithFlags sets the rangeserver client update command flags. The mutator
// stores them but does not pass them to rsrpc.Client.Update, whose
// signature carries no flags, so they do not change what is sent.
func WithFlags(f Flags) Option { return func(c *config) { c.flags = f } }

// WithLocalCache mirrors every accepted mutation into a local CellCache in
// addition to sending it over RPC, so a caller reading its own writes back
// through the same CellCache sees them immediately rather than waiting on
// the round trip.
func WithLocalCache(cache *cellcache.Cache) Option {
	return func(c *config) { c.localCache = cache }
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
