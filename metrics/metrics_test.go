package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BlockAccepted("peer", "appended")
	m.BlockAccepted("peer", "appended")
	m.ChainState(3, 1, 4)
	m.MiningAttempt("mined", 100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlocksAccepted.WithLabelValues("peer", "appended")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChainHeight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orphans))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PoolSize))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Hashes))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BlockAccepted("mined", "appended")
		m.BlockRejected()
		m.ChainState(1, 0, 0)
		m.Replaced()
		m.MiningAttempt("cancelled", 1)
		m.BroadcastFailed("AddBlock")
	})
}
