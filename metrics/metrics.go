// Package metrics exposes node counters to prometheus. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pow_ledger"

type Metrics struct {
	BlocksAccepted   *prometheus.CounterVec
	BlocksRejected   prometheus.Counter
	ChainHeight      prometheus.Gauge
	Orphans          prometheus.Gauge
	PoolSize         prometheus.Gauge
	ChainReplaced    prometheus.Counter
	MiningAttempts   *prometheus.CounterVec
	Hashes           prometheus.Counter
	BroadcastFailure *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_accepted_total",
			Help:      "Blocks handled by the chain manager, by origin and result.",
		}, []string{"origin", "result"}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_rejected_total",
			Help:      "Blocks discarded by validation.",
		}),
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_length",
			Help:      "Number of blocks in the canonical chain.",
		}),
		Orphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphan_blocks",
			Help:      "Blocks waiting for their parent.",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transaction_pool_size",
			Help:      "Pending transactions.",
		}),
		ChainReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_replaced_total",
			Help:      "Times a longer remote chain replaced the local one.",
		}),
		MiningAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mining_attempts_total",
			Help:      "Proof of work attempts by outcome.",
		}, []string{"outcome"}),
		Hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hashes_total",
			Help:      "Block digests computed by the miner.",
		}),
		BroadcastFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Gossip calls that failed, by endpoint.",
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BlocksAccepted, m.BlocksRejected, m.ChainHeight, m.Orphans, m.PoolSize,
			m.ChainReplaced, m.MiningAttempts, m.Hashes, m.BroadcastFailure,
		)
	}
	return m
}

func (m *Metrics) BlockAccepted(origin string, result string) {
	if m == nil {
		return
	}
	m.BlocksAccepted.WithLabelValues(origin, result).Inc()
}

func (m *Metrics) BlockRejected() {
	if m == nil {
		return
	}
	m.BlocksRejected.Inc()
}

// ChainState records the sizes of the state guarded by the chain manager.
func (m *Metrics) ChainState(length int, orphans int, pool int) {
	if m == nil {
		return
	}
	m.ChainHeight.Set(float64(length))
	m.Orphans.Set(float64(orphans))
	m.PoolSize.Set(float64(pool))
}

func (m *Metrics) Replaced() {
	if m == nil {
		return
	}
	m.ChainReplaced.Inc()
}

func (m *Metrics) MiningAttempt(outcome string, hashes int64) {
	if m == nil {
		return
	}
	m.MiningAttempts.WithLabelValues(outcome).Inc()
	m.Hashes.Add(float64(hashes))
}

func (m *Metrics) BroadcastFailed(endpoint string) {
	if m == nil {
		return
	}
	m.BroadcastFailure.WithLabelValues(endpoint).Inc()
}
