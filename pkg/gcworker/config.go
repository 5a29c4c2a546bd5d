package gcworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type config struct {
	registry *prometheus.Registry
	logger   *zap.Logger
}

func defaultConfig() *config {
	return &config{logger: zap.NewNop()}
}

// Option configures a Worker at construction time.
type Option func(*config)

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
