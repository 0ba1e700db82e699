// Package miner runs the proof of work loop of a full node.
package miner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/config"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/metrics"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/utils"
	"go.uber.org/zap"
)

// BlockSource hands out candidate blocks and takes back the results.
type BlockSource interface {
	// Drain the pool into a block on top of the tail, genesis on an empty chain.
	NewCandidateBlock(address string) model.Block
	HandleMinedBlock(block *model.Block) error
	// Give back transactions of a candidate that will never be mined.
	Requeue(txs []model.Transaction)
}

type State int32

const (
	IDLE State = iota
	MINING
)

func (s State) String() string {
	if s == MINING {
		return "mining"
	}
	return "idle"
}

type Stats struct {
	Hashes    int64
	Found     int64
	Cancelled int64
	Stale     int64
}

type Miner struct {
	source     BlockSource
	address    string
	difficulty int
	maxNonce   int64

	// Restart signal. Buffered so a signal sent between two attempts is not
	// lost, and never more than one pending.
	ctl     chan commands.Command
	running atomic.Bool
	state   atomic.Int32

	// Guards cancel and done.
	m      sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	hashes    atomic.Int64
	found     atomic.Int64
	cancelled atomic.Int64
	stale     atomic.Int64

	onMined func(block model.Block)
	metrics *metrics.Metrics
	log     *zap.Logger
}

type Option func(m *Miner)

// OnMined registers fn to run with every block the miner got accepted.
func OnMined(fn func(block model.Block)) Option {
	return func(m *Miner) { m.onMined = fn }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Miner) { m.metrics = mt }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Miner) { m.log = logger.Module(l, "miner") }
}

// NewMiner creates an idle miner paying rewards to address.
func NewMiner(source BlockSource, address string, c config.AppConfig, opts ...Option) *Miner {
	m := &Miner{
		source:     source,
		address:    address,
		difficulty: c.DIFFICULTY,
		maxNonce:   c.MAX_NONCE,
		ctl:        make(chan commands.Command, 1),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Miner) Address() string {
	return m.address
}

func (m *Miner) State() State {
	return State(m.state.Load())
}

func (m *Miner) IsRunning() bool {
	return m.running.Load()
}

func (m *Miner) Stats() Stats {
	return Stats{
		Hashes:    m.hashes.Load(),
		Found:     m.found.Load(),
		Cancelled: m.cancelled.Load(),
		Stale:     m.stale.Load(),
	}
}

// Start launches the mining loop. Returns false if it is already running.
func (m *Miner) Start(ctx context.Context) bool {
	if m.running.Swap(true) {
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.m.Lock()
	m.cancel = cancel
	m.done = done
	m.m.Unlock()

	m.log.Info("mining started", zap.String("address", m.address), zap.Int("difficulty", m.difficulty))
	go m.run(runCtx, done)
	return true
}

// Stop cancels the loop and waits for it to exit. The current candidate is
// abandoned and its transactions requeued.
func (m *Miner) Stop() {
	m.m.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.m.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.log.Info("mining stopped")
}

// Restart abandons the current candidate and starts over on the latest tail.
// Never blocks.
func (m *Miner) Restart() {
	select {
	case m.ctl <- commands.Command{Op: commands.RESTART}:
	default:
	}
}

// HandleCommand applies a mining console command.
func (m *Miner) HandleCommand(ctx context.Context, c commands.Command) {
	switch c.Op {
	case commands.START:
		if !m.Start(ctx) {
			m.log.Info("miner already running")
		}
	case commands.RESTART:
		m.Restart()
	case commands.STOP:
		m.Stop()
	}
}

func (m *Miner) drainSignal() {
	select {
	case <-m.ctl:
	default:
	}
}

func (m *Miner) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.running.Store(false)
	for {
		if ctx.Err() != nil {
			return
		}
		// Any pending restart is satisfied by building a fresh candidate.
		m.drainSignal()
		_, err := m.MineOne(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, model.ErrMiningInterrupted):
			m.log.Debug("tail changed, restarting")
		case errors.Is(err, model.ErrStaleBlock):
			m.log.Info("mined block went stale", zap.Error(err))
		default:
			m.log.Warn("mining attempt failed", zap.Error(err))
		}
	}
}

// MineOne builds one candidate and searches for its nonce. On success the
// block is handed to the source and returned. Any other outcome gives the
// candidate's transactions back to the source.
func (m *Miner) MineOne(ctx context.Context) (*model.Block, error) {
	candidate := m.source.NewCandidateBlock(m.address)
	m.state.Store(int32(MINING))
	defer m.state.Store(int32(IDLE))

	if candidate.IsGenesis() {
		// Genesis carries a fixed hash, no proof of work.
		if err := m.source.HandleMinedBlock(&candidate); err != nil {
			return nil, err
		}
		m.found.Add(1)
		m.mined(candidate, 0)
		return &candidate, nil
	}

	_, err := utils.Mine(ctx, &candidate, m.difficulty, m.maxNonce, m.ctl)
	if err != nil {
		m.hashes.Add(candidate.Nonce)
		m.cancelled.Add(1)
		m.metrics.MiningAttempt("cancelled", candidate.Nonce)
		m.source.Requeue(candidate.Transactions)
		return nil, err
	}
	hashes := candidate.Nonce + 1
	m.hashes.Add(hashes)

	if err := m.source.HandleMinedBlock(&candidate); err != nil {
		if errors.Is(err, model.ErrStaleBlock) {
			m.stale.Add(1)
			m.metrics.MiningAttempt("stale", hashes)
		} else {
			m.metrics.MiningAttempt("rejected", hashes)
		}
		return nil, err
	}
	m.found.Add(1)
	m.mined(candidate, hashes)
	return &candidate, nil
}

func (m *Miner) mined(block model.Block, hashes int64) {
	m.metrics.MiningAttempt("found", hashes)
	m.log.Info("block mined",
		zap.Int64("index", block.Index),
		zap.String("hash", block.Hash),
		zap.Int("txs", len(block.Transactions)-1))
	if m.onMined != nil {
		m.onMined(block)
	}
}
