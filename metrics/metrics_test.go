package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddbit-project/chargebridge/log"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncTotal()
	m.IncTotal()
	m.IncForwarded()
	m.IncBlocked()
	m.IncReplay()
	m.IncTamper()
	m.IncReorder()
	m.IncFlood()
	m.IncSuppress()

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.Total)
	assert.Equal(t, uint64(1), s.Forwarded)
	assert.Equal(t, uint64(1), s.Blocked)
	assert.Equal(t, uint64(1), s.Replay)
	assert.Equal(t, uint64(1), s.Tamper)
	assert.Equal(t, uint64(1), s.Reorder)
	assert.Equal(t, uint64(1), s.Flood)
	assert.Equal(t, uint64(1), s.Suppress)
}

func TestSnapshotEmptyLatency(t *testing.T) {
	s := New().Snapshot()
	assert.Equal(t, uint64(0), s.LatencyCount)
	assert.Equal(t, float64(0), s.LatencyAvgMs)
	assert.Equal(t, float64(0), s.LatencyMaxMs)
}

func TestLatencyRollingStats(t *testing.T) {
	m := New()
	m.ObserveLatency(10 * time.Millisecond)
	m.ObserveLatency(20 * time.Millisecond)
	m.ObserveLatency(30 * time.Millisecond)

	s := m.Snapshot()
	assert.Equal(t, uint64(3), s.LatencyCount)
	assert.InDelta(t, 20.0, s.LatencyAvgMs, 0.01)
	assert.InDelta(t, 30.0, s.LatencyMaxMs, 0.01)
}

func TestLatencyWindowBounded(t *testing.T) {
	m := New()
	for i := 0; i < rollingWindowSize*2; i++ {
		m.ObserveLatency(time.Millisecond)
	}
	assert.Equal(t, rollingWindowSize, len(m.latency.samples))
	assert.Equal(t, uint64(rollingWindowSize*2), m.Snapshot().LatencyCount)
}

func TestCollector(t *testing.T) {
	m := New()
	m.IncTotal()
	m.IncTotal()
	m.IncTotal()
	m.IncForwarded()
	m.IncForwarded()
	m.IncBlocked()
	m.IncReplay()
	m.ObserveLatency(5 * time.Millisecond)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	assert.Equal(t, float64(3), byName["chargebridge_messages_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(2), byName["chargebridge_messages_forwarded_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(1), byName["chargebridge_messages_blocked_total"].GetMetric()[0].GetCounter().GetValue())

	violations := byName["chargebridge_violations_total"]
	require.NotNil(t, violations)
	byType := map[string]float64{}
	for _, metric := range violations.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "type" {
				byType[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), byType["replay"])
	assert.Equal(t, float64(0), byType["tamper"])

	hist := byName["chargebridge_forward_latency_seconds"]
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestReporterRateLimit(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := log.New("metrics-test").WithOutput(buf)

	m := New()
	m.IncTotal()

	now := time.Unix(1700000000, 0)
	r := NewReporter(m, logger, 30*time.Second)
	r.clock = func() time.Time { return now }

	r.MaybeReport()
	r.MaybeReport()
	assert.Equal(t, 1, strings.Count(buf.String(), "security counters"))

	now = now.Add(30 * time.Second)
	r.MaybeReport()
	assert.Equal(t, 2, strings.Count(buf.String(), "security counters"))

	// counters appear as structured fields
	line := buf.String()[strings.LastIndex(buf.String(), "{"):]
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, float64(1), entry["total"])
}
