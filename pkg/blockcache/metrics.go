package blockcache

// metrics.go splits metricsSink into a no-op sink when the caller opts out
// (the default, so the hot path never pays for a metric update), and a
// Prometheus-backed sink under the "rangestore_blockcache" namespace when
// WithMetrics is used.

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incHit(shard uint8)
	incMiss(shard uint8)
	incEvict(shard uint8)
	incRotation(shard uint8)
	addArenaBytes(shard uint8, delta int64)
	setArenaBytes(shard uint8, value int64)
}

type noopMetrics struct{}

func (noopMetrics) incHit(uint8)               {}
func (noopMetrics) incMiss(uint8)               {}
func (noopMetrics) incEvict(uint8)              {}
func (noopMetrics) incRotation(uint8)           {}
func (noopMetrics) addArenaBytes(uint8, int64)  {}
func (noopMetrics) setArenaBytes(uint8, int64)  {}

type promMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	rotations *prometheus.CounterVec
	arena     *prometheus.GaugeVec

	arenaMirror []atomic.Int64
}

func newPromMetrics(shardCount int, reg *prometheus.Registry) *promMetrics {
	label := []string{"shard"}
	pm := &promMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangestore_blockcache", Name: "hits_total", Help: "Number of block cache hits.",
		}, label),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangestore_blockcache", Name: "misses_total", Help: "Number of block cache misses.",
		}, label),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangestore_blockcache", Name: "evictions_total", Help: "Number of blocks evicted by CLOCK-Pro or explicit Delete.",
		}, label),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rangestore_blockcache", Name: "arena_rotations_total", Help: "Number of generation rotations (TTL or capacity).",
		}, label),
		arena: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rangestore_blockcache", Name: "arena_bytes", Help: "Live bytes allocated in block cache arenas.",
		}, label),
		arenaMirror: make([]atomic.Int64, shardCount),
	}
	reg.MustRegister(pm.hits, pm.misses, pm.evictions, pm.rotations, pm.arena)
	return pm
}

func (m *promMetrics) incHit(shard uint8)    { m.hits.WithLabelValues(strconv.Itoa(int(shard))).Inc() }
func (m *promMetrics) incMiss(shard uint8)   { m.misses.WithLabelValues(strconv.Itoa(int(shard))).Inc() }
func (m *promMetrics) incEvict(shard uint8)  { m.evictions.WithLabelValues(strconv.Itoa(int(shard))).Inc() }
func (m *promMetrics) incRotation(shard uint8) {
	m.rotations.WithLabelValues(strconv.Itoa(int(shard))).Inc()
}
func (m *promMetrics) addArenaBytes(shard uint8, delta int64) {
	v := m.arenaMirror[shard].Add(delta)
	m.arena.WithLabelValues(strconv.Itoa(int(shard))).Set(float64(v))
}
func (m *promMetrics) setArenaBytes(shard uint8, value int64) {
	m.arenaMirror[shard].Store(value)
	m.arena.WithLabelValues(strconv.Itoa(int(shard))).Set(float64(value))
}

func newMetricsSink(shardCount int, reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(shardCount, reg)
}
