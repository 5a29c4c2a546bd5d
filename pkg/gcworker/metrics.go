package gcworker

import "github.com/prometheus/client_golang/prometheus"

type metricsSink interface {
	incReaped()
	incReapFailed()
}

type noopMetrics struct{}

func (noopMetrics) incReaped()     {}
func (noopMetrics) incReapFailed() {}

type promMetrics struct {
	reaped     prometheus.Counter
	reapFailed prometheus.Counter
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "gcworker",
			Name: "files_reaped_total", Help: "Number of files removed from the DFS by a GC pass.",
		}),
		reapFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "gcworker",
			Name: "files_reap_failed_total", Help: "Number of DFS removals that failed during a GC pass.",
		}),
	}
	reg.MustRegister(pm.reaped, pm.reapFailed)
	return pm
}

func (m *promMetrics) incReaped()     { m.reaped.Inc() }
func (m *promMetrics) incReapFailed() { m.reapFailed.Inc() }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
