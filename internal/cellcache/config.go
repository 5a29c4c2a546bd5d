package cellcache

// config.go defines the functional options accepted by New, following the
// same Option[...] pattern used throughout this module: options capture
// pointers to external collaborators (registry, logger) and every field has
// a safe, metrics-free default.
//
// © 2025 rangestore authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/arena"
)

type config struct {
	arenaPageSize int
	registry      *prometheus.Registry
	logger        *zap.Logger
}

func defaultConfig() *config {
	return &config{
		arenaPageSize: arena.DefaultPageSize,
		logger:        zap.NewNop(),
	}
}

// Option configures a Cache at construction time.
type Option func(*config)

// WithArenaPageSize sets the default page size for the cache's arena.
// Oversized allocations still get a dedicated page regardless of this
// setting.
func WithArenaPageSize(n int) Option {
	return func(c *config) { c.arenaPageSize = n }
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithLogger plugs an external zap.Logger. The cache never logs on the hot
// insert/scan path; only collisions, malformed records, and freeze
// transitions are logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
