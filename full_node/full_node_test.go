package full_node

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Luismorlan/pow_ledger/config"
	"github.com/Luismorlan/pow_ledger/miner"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/Luismorlan/pow_ledger/storage"
	"github.com/Luismorlan/pow_ledger/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const TEST_DIFFICULTY = 2

func testConfig() config.AppConfig {
	c := config.DefaultAppConfig()
	c.DIFFICULTY = TEST_DIFFICULTY
	return c
}

func newTestNode(t *testing.T, opts ...Option) *FullNode {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewFullNode(testConfig(), opts...)
}

// Start a chain on f whose genesis pays address.
func bootstrap(t *testing.T, f *FullNode, address string) model.Block {
	t.Helper()
	genesis := f.NewCandidateBlock(address)
	require.True(t, genesis.IsGenesis())
	require.NoError(t, f.HandleMinedBlock(&genesis))
	return genesis
}

func mineOn(t *testing.T, tail model.Block, txs []model.Transaction, address string) model.Block {
	t.Helper()
	b := utils.CreateCandidateBlock(&tail, txs, address, config.DEFAULT_COINBASE_REWARD)
	_, err := utils.Mine(context.Background(), &b, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)
	return b
}

// Mine n blocks on top of tail.
func mineChain(t *testing.T, tail model.Block, n int, address string) []model.Block {
	t.Helper()
	var blocks []model.Block
	for i := 0; i < n; i++ {
		tail = mineOn(t, tail, nil, address)
		blocks = append(blocks, tail)
	}
	return blocks
}

type account struct {
	sk      *btcec.PrivateKey
	pk      []byte
	address string
}

func newAccount(t *testing.T) account {
	t.Helper()
	sk, pk, err := utils.GenerateKeyPair()
	require.NoError(t, err)
	pkBytes := utils.PublicKeyToBytes(pk)
	return account{sk: sk, pk: pkBytes, address: utils.PublicKeyToAddress(pkBytes)}
}

func transfer(t *testing.T, f *FullNode, from account, to string, amount float64) *model.Transaction {
	t.Helper()
	inputs, change, err := f.SelectInputs(from.address, amount)
	require.NoError(t, err)
	tx, err := utils.CreatePendingTransaction(from.sk, inputs, change, to, amount)
	require.NoError(t, err)
	return tx
}

func hashes(blocks []model.Block) []string {
	var res []string
	for _, b := range blocks {
		res = append(res, b.Hash)
	}
	return res
}

func TestGenesisCreditsMiner(t *testing.T) {
	f := newTestNode(t)
	_, ok := f.GetTail()
	assert.False(t, ok)

	genesis := f.NewCandidateBlock("miner")
	assert.True(t, genesis.IsGenesis())
	require.Len(t, genesis.Transactions, 1)
	assert.True(t, genesis.Transactions[0].IsCoinbase())

	require.NoError(t, f.HandleMinedBlock(&genesis))
	assert.Equal(t, 1, f.GetHeight())
	assert.Equal(t, config.DEFAULT_COINBASE_REWARD, f.GetBalance("miner"))
}

func TestCompetingBlocks(t *testing.T) {
	a := newTestNode(t)
	genesis := bootstrap(t, a, "genesis")
	a1 := mineOn(t, genesis, nil, "a")
	b1 := mineOn(t, genesis, nil, "b")

	// B has not appended its own block yet, A's block fits the tail.
	b := newTestNode(t)
	res, err := b.HandleNewBlock(&genesis, ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, res)
	res, err = b.HandleNewBlock(&a1, ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, res)

	// C already appended its own block 1, A's competing block waits as orphan.
	c := newTestNode(t)
	_, err = c.HandleNewBlock(&genesis, ORIGIN_PEER)
	require.NoError(t, err)
	_, err = c.HandleNewBlock(&b1, ORIGIN_PEER)
	require.NoError(t, err)
	res, err = c.HandleNewBlock(&a1, ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, ORPHANED, res)
	assert.Equal(t, []string{genesis.Hash, b1.Hash}, hashes(c.GetChain()))
	assert.Equal(t, []string{a1.Hash}, hashes(c.ListOrphans()))
	assert.Equal(t, 0.0, c.GetBalance("a"))
}

func TestSelectInputsWithChange(t *testing.T) {
	cfg := testConfig()
	cfg.COINBASE_REWARD = 30
	f := NewFullNode(cfg)
	alice := newAccount(t)
	bootstrap(t, f, alice.address)

	inputs, change, err := f.SelectInputs(alice.address, 10)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, 30.0, inputs[0].Amount)
	require.NotNil(t, change)
	assert.Equal(t, 20.0, change.Amount)
	assert.Equal(t, alice.address, change.Address)

	_, _, err = f.SelectInputs(alice.address, 40)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestOrphanAttachedWhenParentArrives(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 2, "miner")

	res, err := f.HandleNewBlock(&blocks[1], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, ORPHANED, res)
	assert.Equal(t, 1, f.GetHeight())

	res, err = f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, res)
	assert.Equal(t, []string{genesis.Hash, blocks[0].Hash, blocks[1].Hash}, hashes(f.GetChain()))
	assert.Empty(t, f.ListOrphans())
	assert.Equal(t, 2*config.DEFAULT_COINBASE_REWARD, f.GetBalance("miner"))
}

// Orphans delivered newest first need one pass each; a single call drains
// all of them.
func TestProcessOrphansReachesFixedPoint(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 4, "miner")

	for i := 3; i >= 1; i-- {
		res, err := f.HandleNewBlock(&blocks[i], ORIGIN_PEER)
		require.NoError(t, err)
		assert.Equal(t, ORPHANED, res)
	}
	assert.Equal(t, 0, f.ProcessOrphans())
	assert.Len(t, f.ListOrphans(), 3)

	res, err := f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, res)
	assert.Equal(t, 5, f.GetHeight())
	assert.Empty(t, f.ListOrphans())
}

func TestProcessOrphansAfterRestore(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 3, "miner")

	require.NoError(t, f.Restore([]model.Block{genesis, blocks[0]}, []model.Block{blocks[2], blocks[1]}))
	assert.Equal(t, 2, f.ProcessOrphans())
	assert.Equal(t, 4, f.GetHeight())
	assert.Empty(t, f.ListOrphans())
}

func TestRedeliveryIsKnown(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 3, "miner")

	_, err := f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	_, err = f.HandleNewBlock(&blocks[2], ORIGIN_PEER)
	require.NoError(t, err)
	chain, orphans := f.GetChain(), f.ListOrphans()

	for _, b := range []model.Block{genesis, blocks[0], blocks[2]} {
		res, err := f.HandleNewBlock(&b, ORIGIN_PEER)
		require.NoError(t, err)
		assert.Equal(t, KNOWN, res)
	}
	assert.Equal(t, chain, f.GetChain())
	assert.Equal(t, orphans, f.ListOrphans())
}

func TestInvalidBlockDiscarded(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	good := mineOn(t, genesis, nil, "miner")

	tampered := good
	tampered.Nonce++
	_, err := f.HandleNewBlock(&tampered, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrInvalidBlock)

	greedy := utils.CreateCandidateBlock(&genesis, nil, "miner", 2*config.DEFAULT_COINBASE_REWARD)
	_, err = utils.Mine(context.Background(), &greedy, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)
	_, err = f.HandleNewBlock(&greedy, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrInvalidBlock)

	_, err = f.HandleNewBlock(nil, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)

	assert.Equal(t, 1, f.GetHeight())
	assert.Empty(t, f.ListOrphans())
	assert.Equal(t, 0.0, f.GetBalance("miner"))
}

func TestSubmitTransaction(t *testing.T) {
	f := newTestNode(t)
	alice, bob := newAccount(t), newAccount(t)
	bootstrap(t, f, alice.address)

	tx := transfer(t, f, alice, bob.address, 10)
	require.NoError(t, f.SubmitTransaction(tx, alice.pk))
	assert.Len(t, f.GetPool(), 1)

	assert.ErrorIs(t, f.SubmitTransaction(tx, alice.pk), model.ErrDoubleSpend)

	// The only output is reserved by the pending transaction.
	_, _, err := f.SelectInputs(alice.address, 5)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	l := model.Ledger{L: f.GetUnspent()}
	inputs, change, err := utils.SelectInputs(&l, alice.address, 5, nil)
	require.NoError(t, err)
	conflicting, err := utils.CreatePendingTransaction(alice.sk, inputs, change, bob.address, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, f.SubmitTransaction(conflicting, alice.pk), model.ErrDoubleSpend)

	assert.ErrorIs(t, f.SubmitTransaction(conflicting, bob.pk), model.ErrInvalidSignature)
	coinbase := utils.CreateCoinbaseTx(1, alice.address)
	assert.ErrorIs(t, f.SubmitTransaction(&coinbase, alice.pk), model.ErrInvalidSignature)
	assert.ErrorIs(t, f.SubmitTransaction(nil, alice.pk), model.ErrMalformedRequest)
	assert.Len(t, f.GetPool(), 1)

	candidate := f.NewCandidateBlock("miner")
	require.Len(t, candidate.Transactions, 2)
	assert.Empty(t, f.GetPool())
	_, err = utils.Mine(context.Background(), &candidate, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)
	require.NoError(t, f.HandleMinedBlock(&candidate))

	assert.Equal(t, 40.0, f.GetBalance(alice.address))
	assert.Equal(t, 10.0, f.GetBalance(bob.address))
	assert.Equal(t, config.DEFAULT_COINBASE_REWARD, f.GetBalance("miner"))
}

func TestPeerBlockEvictsPool(t *testing.T) {
	f := newTestNode(t)
	alice, bob := newAccount(t), newAccount(t)
	genesis := bootstrap(t, f, alice.address)

	tx := transfer(t, f, alice, bob.address, 10)
	require.NoError(t, f.SubmitTransaction(tx, alice.pk))

	b1 := mineOn(t, genesis, []model.Transaction{*tx}, "peer")
	_, err := f.HandleNewBlock(&b1, ORIGIN_PEER)
	require.NoError(t, err)
	assert.Empty(t, f.GetPool())
	assert.Equal(t, 10.0, f.GetBalance(bob.address))
}

func TestStaleMinedBlockRequeued(t *testing.T) {
	f := newTestNode(t)
	alice, bob := newAccount(t), newAccount(t)
	genesis := bootstrap(t, f, alice.address)

	tx := transfer(t, f, alice, bob.address, 10)
	require.NoError(t, f.SubmitTransaction(tx, alice.pk))
	candidate := f.NewCandidateBlock("miner")
	assert.Empty(t, f.GetPool())

	// A peer extends the chain while we search.
	p1 := mineOn(t, genesis, nil, "peer")
	_, err := f.HandleNewBlock(&p1, ORIGIN_PEER)
	require.NoError(t, err)

	_, err = utils.Mine(context.Background(), &candidate, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, f.HandleMinedBlock(&candidate), model.ErrStaleBlock)
	assert.Equal(t, 2, f.GetHeight())
	assert.Empty(t, f.ListOrphans())

	pool := f.GetPool()
	require.Len(t, pool, 1)
	assert.Equal(t, tx.Id, pool[0].Id)
}

func TestRequeueKeepsOrderAndDropsSpent(t *testing.T) {
	f := newTestNode(t)
	alice, bob := newAccount(t), newAccount(t)
	genesis := bootstrap(t, f, alice.address)
	funding := mineOn(t, genesis, nil, alice.address)
	_, err := f.HandleNewBlock(&funding, ORIGIN_PEER)
	require.NoError(t, err)

	first := transfer(t, f, alice, bob.address, 50)
	require.NoError(t, f.SubmitTransaction(first, alice.pk))
	drained := f.NewCandidateBlock("miner").Transactions

	// The pool is empty now, so reserve first's input by hand.
	l := model.Ledger{L: f.GetUnspent()}
	inputs, change, err := utils.SelectInputs(&l, alice.address, 50, map[string]bool{first.Inputs[0].Id: true})
	require.NoError(t, err)
	second, err := utils.CreatePendingTransaction(alice.sk, inputs, change, bob.address, 50)
	require.NoError(t, err)
	require.NoError(t, f.SubmitTransaction(second, alice.pk))
	f.Requeue(drained)
	pool := f.GetPool()
	require.Len(t, pool, 2)
	assert.Equal(t, first.Id, pool[0].Id)
	assert.Equal(t, second.Id, pool[1].Id)

	// Once first is in the chain, requeueing it again is a no-op.
	b := mineOn(t, funding, []model.Transaction{*first}, "peer")
	_, err = f.HandleNewBlock(&b, ORIGIN_PEER)
	require.NoError(t, err)
	f.Requeue([]model.Transaction{*first})
	pool = f.GetPool()
	require.Len(t, pool, 1)
	assert.Equal(t, second.Id, pool[0].Id)
}

func TestReconcileWithRemote(t *testing.T) {
	alice, bob := newAccount(t), newAccount(t)
	f := newTestNode(t)
	genesis := bootstrap(t, f, alice.address)

	tx := transfer(t, f, alice, bob.address, 10)
	local1 := mineOn(t, genesis, []model.Transaction{*tx}, "local")
	_, err := f.HandleNewBlock(&local1, ORIGIN_PEER)
	require.NoError(t, err)

	remote := append([]model.Block{genesis}, mineChain(t, genesis, 2, "remote")...)

	res, err := f.ReconcileWithRemote(remote[:2])
	require.NoError(t, err)
	assert.Equal(t, IGNORED, res)

	res, err = f.ReconcileWithRemote(remote)
	require.NoError(t, err)
	assert.Equal(t, REPLACED, res)
	assert.Equal(t, hashes(remote), hashes(f.GetChain()))
	assert.Equal(t, []string{local1.Hash}, hashes(f.ListOrphans()))
	assert.Equal(t, 0.0, f.GetBalance("local"))
	assert.Equal(t, 0.0, f.GetBalance(bob.address))
	assert.Equal(t, 2*config.DEFAULT_COINBASE_REWARD, f.GetBalance("remote"))
	// The detached transfer is still valid on the new chain.
	pool := f.GetPool()
	require.Len(t, pool, 1)
	assert.Equal(t, tx.Id, pool[0].Id)

	res, err = f.ReconcileWithRemote(remote)
	require.NoError(t, err)
	assert.Equal(t, IGNORED, res)
}

func TestReconcileRejectsBadChains(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	before := f.GetChain()

	other := newTestNode(t)
	foreignGenesis := bootstrap(t, other, "someone else")
	foreign := append([]model.Block{foreignGenesis}, mineChain(t, foreignGenesis, 2, "x")...)
	_, err := f.ReconcileWithRemote(foreign)
	assert.ErrorIs(t, err, model.ErrForeignChain)

	broken := append([]model.Block{genesis}, mineChain(t, genesis, 2, "x")...)
	broken[2].Nonce++
	_, err = f.ReconcileWithRemote(broken)
	assert.ErrorIs(t, err, model.ErrInvalidChain)

	// Well formed but mints too much.
	greedy := utils.CreateCandidateBlock(&genesis, nil, "x", 3*config.DEFAULT_COINBASE_REWARD)
	_, err = utils.Mine(context.Background(), &greedy, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)
	rich := []model.Block{genesis, greedy, mineOn(t, greedy, nil, "x")}
	_, err = f.ReconcileWithRemote(rich)
	assert.ErrorIs(t, err, model.ErrInvalidChain)

	assert.Equal(t, before, f.GetChain())
	assert.Equal(t, 0.0, f.GetBalance("x"))
}

func TestReconcileOnEmptyNode(t *testing.T) {
	src := newTestNode(t)
	genesis := bootstrap(t, src, "genesis")
	remote := append([]model.Block{genesis}, mineChain(t, genesis, 2, "miner")...)

	f := newTestNode(t)
	res, err := f.ReconcileWithRemote(remote)
	require.NoError(t, err)
	assert.Equal(t, REPLACED, res)
	assert.Equal(t, 3, f.GetHeight())
}

func TestTailListener(t *testing.T) {
	f := newTestNode(t)
	var tails []string
	f.OnTailChange(func(tail model.Block) { tails = append(tails, tail.Hash) })

	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 2, "miner")
	_, err := f.HandleNewBlock(&blocks[1], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, []string{genesis.Hash}, tails)

	_, err = f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, []string{genesis.Hash, blocks[1].Hash}, tails)
}

func TestReadsReturnCopies(t *testing.T) {
	f := newTestNode(t)
	bootstrap(t, f, "genesis")

	chain := f.GetChain()
	chain[0].Hash = "mutated"
	chain[0].Transactions[0].Outputs[0].Amount = 1000
	unspent := f.GetUnspent()
	unspent["genesis"][0].Amount = 1000

	assert.NotEqual(t, "mutated", f.GetChain()[0].Hash)
	assert.Equal(t, config.DEFAULT_COINBASE_REWARD, f.GetBalance("genesis"))
}

func TestPersistence(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	f := newTestNode(t, WithStore(store))
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 3, "miner")
	_, err = f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	_, err = f.HandleNewBlock(&blocks[2], ORIGIN_PEER)
	require.NoError(t, err)

	chain, orphans, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, hashes(f.GetChain()), hashes(chain))
	assert.Equal(t, []string{blocks[2].Hash}, hashes(orphans))

	restored := newTestNode(t)
	require.NoError(t, restored.Restore(chain, orphans))
	assert.Equal(t, f.GetBalance("miner"), restored.GetBalance("miner"))
	_, err = restored.HandleNewBlock(&blocks[1], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, 4, restored.GetHeight())
}

func TestLoadChain(t *testing.T) {
	src := newTestNode(t)
	genesis := bootstrap(t, src, "genesis")
	chain := append([]model.Block{genesis}, mineChain(t, genesis, 2, "miner")...)

	f := newTestNode(t)
	require.NoError(t, f.LoadChain(chain))
	assert.Equal(t, hashes(chain), hashes(f.GetChain()))
	assert.Error(t, f.LoadChain(chain))

	broken := append([]model.Block(nil), chain...)
	broken[1].Nonce++
	assert.ErrorIs(t, newTestNode(t).LoadChain(broken), model.ErrInvalidChain)
}

func TestConcurrentAccess(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 20, "miner")

	var wg sync.WaitGroup
	var stop atomic.Bool
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				chain := f.GetChain()
				balance := f.GetBalance("miner")
				assert.LessOrEqual(t, balance, float64(len(blocks))*config.DEFAULT_COINBASE_REWARD)
				assert.NotEmpty(t, chain)
				f.ListOrphans()
			}
		}()
	}
	// Deliver every block twice from two goroutines.
	var writers sync.WaitGroup
	for w := 0; w < 2; w++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for i := range blocks {
				_, err := f.HandleNewBlock(&blocks[i], ORIGIN_PEER)
				assert.NoError(t, err)
			}
		}()
	}
	writers.Wait()
	stop.Store(true)
	wg.Wait()

	assert.Equal(t, len(blocks)+1, f.GetHeight())
	assert.Empty(t, f.ListOrphans())
	assert.NoError(t, utils.ValidateChain(f.GetChain(), TEST_DIFFICULTY))
}

func TestMinerExtendsChain(t *testing.T) {
	cfg := testConfig()
	cfg.DIFFICULTY = 1
	f := NewFullNode(cfg, WithLogger(zaptest.NewLogger(t)))
	alice, bob := newAccount(t), newAccount(t)

	m := miner.NewMiner(f, alice.address, cfg)
	f.OnTailChange(func(model.Block) { m.Restart() })
	require.True(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool { return f.GetHeight() >= 2 }, 5*time.Second, time.Millisecond)
	tx := transfer(t, f, alice, bob.address, 5)
	require.NoError(t, f.SubmitTransaction(tx, alice.pk))
	require.Eventually(t, func() bool { return f.GetBalance(bob.address) == 5 }, 5*time.Second, time.Millisecond)

	m.Stop()
	assert.NoError(t, utils.ValidateChain(f.GetChain(), cfg.DIFFICULTY))
	assert.Equal(t, float64(f.GetHeight())*cfg.COINBASE_REWARD, f.GetBalance(alice.address)+f.GetBalance(bob.address))
}

func TestCoinbaseCannotDebitOthers(t *testing.T) {
	f := newTestNode(t)
	alice := newAccount(t)
	genesis := bootstrap(t, f, alice.address)

	b := utils.CreateCandidateBlock(&genesis, nil, "mallory", config.DEFAULT_COINBASE_REWARD)
	b.Transactions[0].Outputs = []model.Output{
		utils.NewOutput("mallory", config.DEFAULT_COINBASE_REWARD+40),
		utils.NewOutput(alice.address, -40),
	}
	_, err := utils.Mine(context.Background(), &b, TEST_DIFFICULTY, 0, nil)
	require.NoError(t, err)

	_, err = f.HandleNewBlock(&b, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrInvalidBlock)
	assert.Equal(t, 1, f.GetHeight())
	assert.Equal(t, config.DEFAULT_COINBASE_REWARD, f.GetBalance(alice.address))
	assert.Equal(t, 0.0, f.GetBalance("mallory"))
}

// A block carrying someone else's hash must not take that hash's orphan slot.
func TestForgedOrphanRejected(t *testing.T) {
	f := newTestNode(t)
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 2, "miner")

	forged := mineOn(t, blocks[0], nil, "mallory")
	forged.Hash = blocks[1].Hash
	_, err := f.HandleNewBlock(&forged, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrInvalidBlock)
	assert.Empty(t, f.ListOrphans())

	res, err := f.HandleNewBlock(&blocks[1], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, ORPHANED, res)
	res, err = f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, APPENDED, res)
	assert.Equal(t, []string{genesis.Hash, blocks[0].Hash, blocks[1].Hash}, hashes(f.GetChain()))
	assert.Empty(t, f.ListOrphans())
}

func TestOutputIdReuseRejected(t *testing.T) {
	f := newTestNode(t)
	alice, bob := newAccount(t), newAccount(t)
	genesis := bootstrap(t, f, alice.address)
	b1 := mineOn(t, genesis, nil, bob.address)
	_, err := f.HandleNewBlock(&b1, ORIGIN_PEER)
	require.NoError(t, err)
	bobLive := f.GetUnspent()[bob.address]
	require.Len(t, bobLive, 1)

	// Alice pays bob an output that copies the id of bob's live output.
	inputs, change, err := f.SelectInputs(alice.address, 1)
	require.NoError(t, err)
	outputs := []model.Output{{Id: bobLive[0].Id, Address: bob.address, Amount: 1}, *change}
	tx, err := utils.NewTransaction(alice.address, inputs, outputs)
	require.NoError(t, err)
	require.NoError(t, utils.SignTransaction(tx, alice.sk))

	assert.ErrorIs(t, f.SubmitTransaction(tx, alice.pk), model.ErrMalformedRequest)
	assert.Empty(t, f.GetPool())

	b2 := mineOn(t, b1, []model.Transaction{*tx}, "miner")
	_, err = f.HandleNewBlock(&b2, ORIGIN_PEER)
	assert.ErrorIs(t, err, model.ErrInvalidBlock)
	assert.Equal(t, bobLive, f.GetUnspent()[bob.address])
	assert.Equal(t, config.DEFAULT_COINBASE_REWARD, f.GetBalance(alice.address))
}

// Accepts writes except the ones it is told to fail.
type flakyStore struct {
	chain    []model.Block
	failNext bool
	replaced int
}

func (s *flakyStore) AppendBlock(block *model.Block) error {
	if s.failNext {
		s.failNext = false
		return errors.New("disk full")
	}
	s.chain = append(s.chain, *block)
	return nil
}

func (s *flakyStore) ReplaceChain(chain []model.Block) error {
	s.chain = append([]model.Block(nil), chain...)
	s.replaced++
	return nil
}

func (s *flakyStore) SaveOrphans([]model.Block) error {
	return nil
}

func TestStoreRecoversFromFailedWrite(t *testing.T) {
	store := &flakyStore{}
	f := newTestNode(t, WithStore(store))
	genesis := bootstrap(t, f, "genesis")
	blocks := mineChain(t, genesis, 3, "miner")

	store.failNext = true
	_, err := f.HandleNewBlock(&blocks[0], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Len(t, store.chain, 1)

	// The next write fills the gap.
	_, err = f.HandleNewBlock(&blocks[1], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, 1, store.replaced)
	assert.Equal(t, hashes(f.GetChain()), hashes(store.chain))
	assert.NoError(t, utils.ValidateChain(store.chain, TEST_DIFFICULTY))

	_, err = f.HandleNewBlock(&blocks[2], ORIGIN_PEER)
	require.NoError(t, err)
	assert.Equal(t, 1, store.replaced)
	assert.Equal(t, hashes(f.GetChain()), hashes(store.chain))
}
