package mutator

import "github.com/prometheus/client_golang/prometheus"

type metricsSink interface {
	incFlush()
	incRetry()
	addResend(n int)
	addFailed(n int)
}

type noopMetrics struct{}

func (noopMetrics) incFlush()       {}
func (noopMetrics) incRetry()       {}
func (noopMetrics) addResend(int)   {}
func (noopMetrics) addFailed(int)   {}

type promMetrics struct {
	flushes prometheus.Counter
	retries prometheus.Counter
	resends prometheus.Counter
	failed  prometheus.Counter
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "mutator",
			Name: "flushes_total", Help: "Number of flush() calls.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "mutator",
			Name: "retries_total", Help: "Number of retry() calls.",
		}),
		resends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "mutator",
			Name: "resent_cells_total", Help: "Number of cells successfully resent by retry().",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rangestore", Subsystem: "mutator",
			Name: "failed_cells_total", Help: "Number of cells terminally rejected with a semantic error.",
		}),
	}
	reg.MustRegister(pm.flushes, pm.retries, pm.resends, pm.failed)
	return pm
}

func (m *promMetrics) incFlush()     { m.flushes.Inc() }
func (m *promMetrics) incRetry()     { m.retries.Inc() }
func (m *promMetrics) addResend(n int) { m.resends.Add(float64(n)) }
func (m *promMetrics) addFailed(n int) { m.failed.Add(float64(n)) }

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
