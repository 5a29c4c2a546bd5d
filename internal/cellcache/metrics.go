package cellcache

// metrics.go mirrors the ambient metrics pattern used across this module: a
// metricsSink interface with a no-op default and a Prometheus-backed
// implementation constructed only when the caller opts in via WithMetrics.
// The hot path (Add/AddCounter) never pays for a label lookup unless metrics
// are enabled.
//
// © 2025 rangestore authors. MIT License.

import "github.com/prometheus/client_golang/prometheus"

type metricsSink interface {
	incInsert()
	incCollision()
	incCounterMerge()
	incCounterFallback()
	incFreeze()
	setArenaBytes(v int64)
}

type noopMetrics struct{}

func (noopMetrics) incInsert()          {}
func (noopMetrics) incCollision()       {}
func (noopMetrics) incCounterMerge()    {}
func (noopMetrics) incCounterFallback() {}
func (noopMetrics) incFreeze()          {}
func (noopMetrics) setArenaBytes(int64) {}

type promMetrics struct {
	inserts          prometheus.Counter
	collisions       prometheus.Counter
	counterMerges    prometheus.Counter
	counterFallbacks prometheus.Counter
	freezes          prometheus.Counter
	arenaBytes       prometheus.Gauge
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "inserts_total",
			Help:      "Number of cells successfully installed into a CellCache.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "collisions_total",
			Help:      "Number of inserts rejected because the exact serialized key already existed.",
		}),
		counterMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "counter_merges_total",
			Help:      "Number of add_counter calls that merged into an existing delta in place.",
		}),
		counterFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "counter_fallbacks_total",
			Help:      "Number of add_counter calls that fell back to a plain add.",
		}),
		freezes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "freezes_total",
			Help:      "Number of freeze() calls.",
		}),
		arenaBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rangestore",
			Subsystem: "cellcache",
			Name:      "arena_bytes",
			Help:      "Live bytes allocated by this CellCache's arena.",
		}),
	}
	reg.MustRegister(pm.inserts, pm.collisions, pm.counterMerges, pm.counterFallbacks, pm.freezes, pm.arenaBytes)
	return pm
}

func (m *promMetrics) incInsert()             { m.inserts.Inc() }
func (m *promMetrics) incCollision()          { m.collisions.Inc() }
func (m *promMetrics) incCounterMerge()       { m.counterMerges.Inc() }
func (m *promMetrics) incCounterFallback()    { m.counterFallbacks.Inc() }
func (m *promMetrics) incFreeze()             { m.freezes.Inc() }
func (m *promMetrics) setArenaBytes(v int64)  { m.arenaBytes.Set(float64(v)) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
