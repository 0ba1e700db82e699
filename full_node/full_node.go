package full_node

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Luismorlan/pow_ledger/config"
	"github.com/Luismorlan/pow_ledger/logger"
	"github.com/Luismorlan/pow_ledger/metrics"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/utils"
	"github.com/jinzhu/copier"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

// Where a block handed to the chain manager comes from.
type Origin string

const (
	ORIGIN_MINED Origin = "mined"
	ORIGIN_PEER  Origin = "peer"
)

type AcceptResult int

const (
	// Block extended the chain.
	APPENDED AcceptResult = iota + 1
	// Block parent is not the tail, kept for later.
	ORPHANED
	// Block already in the chain or the orphan set.
	KNOWN
)

func (r AcceptResult) String() string {
	switch r {
	case APPENDED:
		return "appended"
	case ORPHANED:
		return "orphaned"
	case KNOWN:
		return "known"
	default:
		return "unknown"
	}
}

type ReconcileResult int

const (
	REPLACED ReconcileResult = iota + 1
	IGNORED
)

func (r ReconcileResult) String() string {
	if r == REPLACED {
		return "replaced"
	}
	return "ignored"
}

// ChainStore persists the chain and the orphan set.
type ChainStore interface {
	AppendBlock(block *model.Block) error
	ReplaceChain(chain []model.Block) error
	SaveOrphans(orphans []model.Block) error
}

// A full node should maintain the blockchain, and update the blockchain.
type FullNode struct {
	// The blockchain it needs to maintain, orphans included.
	blockchain model.Blockchain
	// Unspent outputs at the tail.
	ledger model.Ledger
	// Transaction pool it need to maintain. Incoming transaction are added to this pool.
	txPool model.TransactionPool
	// Blockchain config.
	config config.AppConfig
	// A single mutex for changing internal state. It guards blockchain, ledger,
	// txPool and tailListeners as one unit.
	m sync.RWMutex
	// A unique indentifier of this Fullnode, this doesn't impact consensus, only
	// used for easier implementation.
	uuid string
	// Called outside the lock whenever the tail moves.
	tailListeners []func(tail model.Block)

	store   ChainStore
	metrics *metrics.Metrics
	log     *zap.Logger
	// Set when a store write failed, the next write rewrites the whole chain.
	storeDirty bool
}

type Option func(f *FullNode)

func WithStore(s ChainStore) Option {
	return func(f *FullNode) { f.store = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FullNode) { f.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *FullNode) { f.log = logger.Module(l, "chain") }
}

// Create a brand new full node with an empty chain.
func NewFullNode(c config.AppConfig, opts ...Option) *FullNode {
	f := &FullNode{
		blockchain: model.NewBlockChain(),
		ledger:     model.NewLedger(),
		txPool:     model.NewTransactionPool(),
		config:     c,
		uuid:       uuid.NewV4().String(),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FullNode) GetUuid() string {
	return f.uuid
}

func (f *FullNode) Config() config.AppConfig {
	return f.config
}

// OnTailChange registers fn to run each time the tail block changes.
func (f *FullNode) OnTailChange(fn func(tail model.Block)) {
	f.m.Lock()
	defer f.m.Unlock()
	f.tailListeners = append(f.tailListeners, fn)
}

func deepCopy(to interface{}, from interface{}) {
	if err := copier.CopyWithOption(to, from, copier.Option{DeepCopy: true}); err != nil {
		// Plain data structs only, copier cannot fail on them.
		panic(fmt.Sprintf("deep copy: %v", err))
	}
}

func copyBlocks(blocks []model.Block) []model.Block {
	res := make([]model.Block, 0, len(blocks))
	deepCopy(&res, &blocks)
	return res
}

func copyBlock(block *model.Block) model.Block {
	var res model.Block
	deepCopy(&res, block)
	return res
}

// Restore installs a chain and an orphan set read back from storage.
func (f *FullNode) Restore(chain []model.Block, orphans []model.Block) error {
	if len(chain) > 0 {
		if err := utils.ValidateChain(chain, f.config.DIFFICULTY); err != nil {
			return err
		}
	}
	f.m.Lock()
	defer f.m.Unlock()
	f.blockchain.Chain = copyBlocks(chain)
	f.blockchain.Orphans = copyBlocks(orphans)
	f.ledger = utils.RebuildLedger(f.blockchain.Chain)
	f.recordStateLocked()
	return nil
}

// LoadChain installs a predefined chain on a node that has none yet.
func (f *FullNode) LoadChain(chain []model.Block) error {
	if err := utils.ValidateChain(chain, f.config.DIFFICULTY); err != nil {
		return err
	}
	f.m.Lock()
	if len(f.blockchain.Chain) > 0 {
		f.m.Unlock()
		return errors.New("blockchain already initialized")
	}
	f.blockchain.Chain = copyBlocks(chain)
	f.ledger = utils.RebuildLedger(f.blockchain.Chain)
	f.persistChainLocked()
	f.recordStateLocked()
	tail := copyBlock(f.blockchain.Tail())
	listeners := f.tailListeners
	f.m.Unlock()

	f.log.Info("loaded predefined chain", zap.Int("length", len(chain)))
	notify(listeners, tail)
	return nil
}

func notify(listeners []func(model.Block), tail model.Block) {
	for _, fn := range listeners {
		fn(tail)
	}
}

// Return a deep copy of the canonical chain.
func (f *FullNode) GetChain() []model.Block {
	f.m.RLock()
	defer f.m.RUnlock()
	return copyBlocks(f.blockchain.Chain)
}

// Return a deep copy of the orphan set.
func (f *FullNode) ListOrphans() []model.Block {
	f.m.RLock()
	defer f.m.RUnlock()
	return copyBlocks(f.blockchain.Orphans)
}

// Return a copy of the tail block, false on an empty chain.
func (f *FullNode) GetTail() (model.Block, bool) {
	f.m.RLock()
	defer f.m.RUnlock()
	tail := f.blockchain.Tail()
	if tail == nil {
		return model.Block{}, false
	}
	return copyBlock(tail), true
}

// Number of blocks in the chain.
func (f *FullNode) GetHeight() int {
	f.m.RLock()
	defer f.m.RUnlock()
	return len(f.blockchain.Chain)
}

func (f *FullNode) GetBalance(address string) float64 {
	f.m.RLock()
	defer f.m.RUnlock()
	return utils.Balance(&f.ledger, address)
}

// Return a deep copy of the ledger at tail.
func (f *FullNode) GetUnspent() map[string][]model.Output {
	f.m.RLock()
	defer f.m.RUnlock()
	l := model.NewLedger()
	deepCopy(&l, &f.ledger)
	return l.L
}

// Return a copy of the pending transactions.
func (f *FullNode) GetPool() []model.Transaction {
	f.m.RLock()
	defer f.m.RUnlock()
	res := make([]model.Transaction, 0, len(f.txPool.Txs))
	deepCopy(&res, &f.txPool.Txs)
	return res
}

// SelectInputs picks inputs for a transfer of amount from address, ignoring
// outputs that pending transactions already spend.
func (f *FullNode) SelectInputs(address string, amount float64) ([]model.Output, *model.Output, error) {
	f.m.RLock()
	defer f.m.RUnlock()
	return utils.SelectInputs(&f.ledger, address, amount, utils.ReservedOutputs(&f.txPool))
}

// SubmitTransaction verifies tx against the sender's public key and queues it
// for the next block. Rejected transactions are discarded.
func (f *FullNode) SubmitTransaction(tx *model.Transaction, publicKey []byte) error {
	if tx == nil {
		return fmt.Errorf("%w: transaction is nil", model.ErrMalformedRequest)
	}
	if tx.IsCoinbase() {
		return fmt.Errorf("%w: coinbase transactions cannot be submitted", model.ErrInvalidSignature)
	}
	if err := utils.VerifyTransactionSignature(tx, publicKey); err != nil {
		return err
	}

	f.m.Lock()
	defer f.m.Unlock()
	if utils.PoolContains(&f.txPool, tx.Id) {
		return fmt.Errorf("%w: existing transaction %s, will not process", model.ErrDoubleSpend, tx.Id)
	}
	if err := utils.ValidateSpend(tx, &f.ledger, &f.txPool); err != nil {
		return err
	}
	var pending model.Transaction
	deepCopy(&pending, tx)
	utils.AddToPool(&f.txPool, pending)
	f.recordStateLocked()
	f.log.Debug("transaction pooled", zap.String("tx", tx.Id), zap.String("sender", tx.Sender))
	return nil
}

// NewCandidateBlock drains the pool into an unmined block on top of the tail.
// On an empty chain it returns the genesis block, which needs no proof of
// work; the pool is left alone in that case.
func (f *FullNode) NewCandidateBlock(address string) model.Block {
	f.m.Lock()
	defer f.m.Unlock()
	tail := f.blockchain.Tail()
	if tail == nil {
		return utils.CreateGenesisBlock(address, f.config.COINBASE_REWARD, f.config.DIFFICULTY)
	}
	txs := utils.DrainPool(&f.txPool)
	f.recordStateLocked()
	return utils.CreateCandidateBlock(tail, txs, address, f.config.COINBASE_REWARD)
}

// Requeue returns transactions of an abandoned candidate to the pool, ahead
// of anything that arrived since. Transactions already in the chain or no
// longer spendable are dropped.
func (f *FullNode) Requeue(txs []model.Transaction) {
	f.m.Lock()
	defer f.m.Unlock()
	f.requeueLocked(txs)
}

func (f *FullNode) requeueLocked(txs []model.Transaction) {
	var requeued []model.Transaction
	for i := 0; i < len(txs); i++ {
		if !txs[i].IsCoinbase() && !utils.PoolContains(&f.txPool, txs[i].Id) {
			requeued = append(requeued, txs[i])
		}
	}
	if len(requeued) == 0 {
		return
	}
	f.txPool.Txs = append(requeued, f.txPool.Txs...)
	utils.PrunePool(&f.txPool, &f.ledger, utils.TransactionIds(f.blockchain.Chain))
	f.recordStateLocked()
}

// Handle the new block received.
// This function should:
// 1. Ignore blocks it already has.
// 2. Keep blocks whose parent is not the tail as orphans.
// 3. Validate the block against the tail and the ledger.
// 4. Append, apply to ledger, and attach any orphan that now fits.
// A block failing validation is discarded, never orphaned.
func (f *FullNode) HandleNewBlock(block *model.Block, origin Origin) (AcceptResult, error) {
	if block == nil {
		return 0, fmt.Errorf("%w: block is nil", model.ErrMalformedRequest)
	}
	f.m.Lock()
	before := f.blockchain.TailHash()
	res, err := f.acceptLocked(block, origin)
	after := f.blockchain.TailHash()
	var tail model.Block
	if after != before {
		tail = copyBlock(f.blockchain.Tail())
	}
	listeners := f.tailListeners
	f.m.Unlock()

	if err != nil {
		f.metrics.BlockRejected()
		f.log.Warn("block rejected", zap.String("hash", block.Hash), zap.String("origin", string(origin)), zap.Error(err))
		return 0, err
	}
	f.metrics.BlockAccepted(string(origin), res.String())
	f.log.Info("block handled",
		zap.Int64("index", block.Index),
		zap.String("hash", block.Hash),
		zap.String("origin", string(origin)),
		zap.Stringer("result", res))
	if after != before {
		notify(listeners, tail)
	}
	return res, nil
}

// HandleMinedBlock hands over a block found by the local miner.
func (f *FullNode) HandleMinedBlock(block *model.Block) error {
	_, err := f.HandleNewBlock(block, ORIGIN_MINED)
	return err
}

func (f *FullNode) acceptLocked(block *model.Block, origin Origin) (AcceptResult, error) {
	if f.isKnownLocked(block.Hash) {
		return KNOWN, nil
	}
	// A block mined on a tail that moved in the meantime would only become an
	// orphan nobody else builds on.
	if origin == ORIGIN_MINED && block.PrevHash != f.blockchain.TailHash() {
		f.requeueLocked(block.Transactions)
		return 0, fmt.Errorf("%w: parent %s is no longer the tail", model.ErrStaleBlock, block.PrevHash)
	}
	b := copyBlock(block)
	if b.PrevHash != f.blockchain.TailHash() {
		// Orphans are known by hash, a block must own its hash to claim one.
		if err := utils.ValidateBlockHash(&b, f.config.DIFFICULTY); err != nil {
			return 0, err
		}
		f.blockchain.Orphans = append(f.blockchain.Orphans, b)
		f.persistOrphansLocked()
		f.recordStateLocked()
		return ORPHANED, nil
	}
	if err := f.appendLocked(&b); err != nil {
		if origin == ORIGIN_MINED {
			f.requeueLocked(b.Transactions)
		}
		return 0, err
	}
	f.processOrphansLocked()
	return APPENDED, nil
}

func (f *FullNode) isKnownLocked(hash string) bool {
	for i := len(f.blockchain.Chain) - 1; i >= 0; i-- {
		if f.blockchain.Chain[i].Hash == hash {
			return true
		}
	}
	for i := 0; i < len(f.blockchain.Orphans); i++ {
		if f.blockchain.Orphans[i].Hash == hash {
			return true
		}
	}
	return false
}

// appendLocked validates block against the tail and the ledger, then extends
// the chain. Nothing changes when validation fails.
func (f *FullNode) appendLocked(block *model.Block) error {
	if err := utils.ValidateBlock(block, f.blockchain.Tail(), f.config.DIFFICULTY); err != nil {
		return err
	}
	if err := utils.ValidateTransactions(block, &f.ledger, f.config.COINBASE_REWARD); err != nil {
		return err
	}
	f.blockchain.Chain = append(f.blockchain.Chain, *block)
	utils.ApplyBlock(block, &f.ledger)
	utils.PrunePool(&f.txPool, &f.ledger, utils.TransactionIds([]model.Block{*block}))
	f.persistBlockLocked(block)
	f.recordStateLocked()
	return nil
}

// ProcessOrphans attaches every orphan that fits on the tail. It keeps
// sweeping until a pass attaches nothing, so a run of orphans drains in one
// call. Returns how many blocks were attached.
func (f *FullNode) ProcessOrphans() int {
	f.m.Lock()
	before := f.blockchain.TailHash()
	attached := f.processOrphansLocked()
	var tail model.Block
	if f.blockchain.TailHash() != before {
		tail = copyBlock(f.blockchain.Tail())
	}
	listeners := f.tailListeners
	f.m.Unlock()

	if attached > 0 {
		notify(listeners, tail)
	}
	return attached
}

func (f *FullNode) processOrphansLocked() int {
	attached := 0
	changed := false
	for {
		progress := false
		var remaining []model.Block
		for i := 0; i < len(f.blockchain.Orphans); i++ {
			orphan := f.blockchain.Orphans[i]
			if orphan.PrevHash != f.blockchain.TailHash() {
				remaining = append(remaining, orphan)
				continue
			}
			changed = true
			if err := f.appendLocked(&orphan); err != nil {
				// Its parent is the tail, so it can never become valid.
				f.log.Warn("invalid orphan dropped", zap.String("hash", orphan.Hash), zap.Error(err))
				continue
			}
			f.log.Info("orphan block attached", zap.Int64("index", orphan.Index), zap.String("hash", orphan.Hash))
			attached++
			progress = true
		}
		f.blockchain.Orphans = remaining
		if !progress {
			break
		}
	}
	if changed {
		f.persistOrphansLocked()
		f.recordStateLocked()
	}
	return attached
}

// ReconcileWithRemote adopts remote when it is strictly longer than the local
// chain, starts from the same genesis, and is valid. Local blocks past the
// fork point become orphans and their transactions go back to the pool.
func (f *FullNode) ReconcileWithRemote(remote []model.Block) (ReconcileResult, error) {
	f.m.Lock()
	res, err := f.reconcileLocked(remote)
	var tail model.Block
	if res == REPLACED {
		tail = copyBlock(f.blockchain.Tail())
	}
	listeners := f.tailListeners
	f.m.Unlock()

	if err != nil {
		f.log.Warn("remote chain rejected", zap.Int("length", len(remote)), zap.Error(err))
		return IGNORED, err
	}
	if res == REPLACED {
		f.metrics.Replaced()
		f.log.Info("chain replaced by longer remote chain", zap.Int("length", len(remote)))
		notify(listeners, tail)
	}
	return res, nil
}

func (f *FullNode) reconcileLocked(remote []model.Block) (ReconcileResult, error) {
	local := f.blockchain.Chain
	if len(remote) <= len(local) {
		return IGNORED, nil
	}
	if len(local) > 0 && !utils.HasCommonGenesis(local, remote) {
		return IGNORED, fmt.Errorf("%w: genesis blocks differ", model.ErrForeignChain)
	}
	if err := utils.ValidateChain(remote, f.config.DIFFICULTY); err != nil {
		return IGNORED, err
	}
	// Replay the content as well, the structural check says nothing about
	// spends.
	l := model.NewLedger()
	for i := 0; i < len(remote); i++ {
		if err := utils.ValidateTransactions(&remote[i], &l, f.config.COINBASE_REWARD); err != nil {
			return IGNORED, fmt.Errorf("%w: block %d: %v", model.ErrInvalidChain, i, err)
		}
		utils.ApplyBlock(&remote[i], &l)
	}

	common := utils.FindCommonIndex(local, remote)
	detached := local[common+1:]
	chain := copyBlocks(remote)
	inChain := make(map[string]bool, len(chain))
	for i := 0; i < len(chain); i++ {
		inChain[chain[i].Hash] = true
	}
	var orphans []model.Block
	for _, b := range append(f.blockchain.Orphans, detached...) {
		if !inChain[b.Hash] {
			orphans = append(orphans, b)
			inChain[b.Hash] = true
		}
	}

	var requeue []model.Transaction
	for i := 0; i < len(detached); i++ {
		requeue = append(requeue, detached[i].Transactions...)
	}

	f.blockchain.Chain = chain
	f.blockchain.Orphans = orphans
	f.ledger = l
	f.requeueLocked(requeue)
	utils.PrunePool(&f.txPool, &f.ledger, utils.TransactionIds(chain))
	f.persistChainLocked()
	f.processOrphansLocked()
	f.persistOrphansLocked()
	f.recordStateLocked()
	return REPLACED, nil
}

// persistBlockLocked stores the new tail. After a failed write the stored
// chain may have a gap, so the whole chain is written instead.
func (f *FullNode) persistBlockLocked(block *model.Block) {
	if f.store == nil {
		return
	}
	if f.storeDirty {
		f.persistChainLocked()
		return
	}
	if err := f.store.AppendBlock(block); err != nil {
		f.storeDirty = true
		f.log.Error("persist block", zap.Int64("index", block.Index), zap.Error(err))
	}
}

func (f *FullNode) persistChainLocked() {
	if f.store == nil {
		return
	}
	if err := f.store.ReplaceChain(f.blockchain.Chain); err != nil {
		f.storeDirty = true
		f.log.Error("persist chain", zap.Error(err))
		return
	}
	f.storeDirty = false
}

func (f *FullNode) persistOrphansLocked() {
	if f.store == nil {
		return
	}
	if err := f.store.SaveOrphans(f.blockchain.Orphans); err != nil {
		f.log.Error("persist orphans", zap.Error(err))
	}
}

func (f *FullNode) recordStateLocked() {
	f.metrics.ChainState(len(f.blockchain.Chain), len(f.blockchain.Orphans), len(f.txPool.Txs))
}
