package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("live", "GET", true)
	m.ObserveFallback()
	m.SetMockMode(true)
	m.ObserveBackup("manual", "success", time.Second)
	m.ObserveTick("idle")
	assert.Nil(t, m.Fallbacks())
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFallback()
	m.ObserveFallback()
	m.ObserveBackup("scheduled", "failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fallbacks()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackupRuns().WithLabelValues("scheduled", "failed")))

	n, err := testutil.GatherAndCount(reg, "haccp_live_fallbacks_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
