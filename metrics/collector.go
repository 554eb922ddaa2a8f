package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chargebridge"

var (
	totalDesc = prometheus.NewDesc(
		namespace+"_messages_total",
		"Messages received from charge points.",
		nil, nil)
	forwardedDesc = prometheus.NewDesc(
		namespace+"_messages_forwarded_total",
		"Messages re-signed and forwarded upstream.",
		nil, nil)
	blockedDesc = prometheus.NewDesc(
		namespace+"_messages_blocked_total",
		"Messages blocked by a security check.",
		nil, nil)
	violationsDesc = prometheus.NewDesc(
		namespace+"_violations_total",
		"Security violations by type.",
		[]string{"type"}, nil)
	latencyDesc = prometheus.NewDesc(
		namespace+"_forward_latency_seconds",
		"Forward round-trip latency.",
		nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalDesc
	ch <- forwardedDesc
	ch <- blockedDesc
	ch <- violationsDesc
	ch <- latencyDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.CounterValue, float64(m.total.Load()))
	ch <- prometheus.MustNewConstMetric(forwardedDesc, prometheus.CounterValue, float64(m.forwarded.Load()))
	ch <- prometheus.MustNewConstMetric(blockedDesc, prometheus.CounterValue, float64(m.blocked.Load()))

	ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(m.replay.Load()), "replay")
	ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(m.tamper.Load()), "tamper")
	ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(m.reorder.Load()), "reorder")
	ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(m.flood.Load()), "flood")
	ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(m.suppress.Load()), "suppress")

	count, sum, buckets := m.latency.histogramState()
	ch <- prometheus.MustNewConstHistogram(latencyDesc, count, sum, buckets)
}
