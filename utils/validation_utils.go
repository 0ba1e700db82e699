package utils

import (
	"bytes"
	"fmt"

	"github.com/Luismorlan/pow_ledger/model"
)

func invalidBlock(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidBlock, fmt.Sprintf(format, args...))
}

func invalidChain(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidChain, fmt.Sprintf(format, args...))
}

// ValidateBlock checks a candidate against the current tail. With no tail the
// candidate must be the genesis block: zero previous hash, index 0, and the
// fixed genesis hash. Otherwise, in order: links to the tail, index follows the
// tail, hash meets difficulty, hash matches the fields, first transaction is
// the coinbase.
func ValidateBlock(candidate *model.Block, tail *model.Block, difficulty int) error {
	if tail == nil {
		if candidate.PrevHash != model.ZERO_HASH {
			return invalidBlock("genesis previous hash is not zero")
		}
		if candidate.Index != 0 {
			return invalidBlock("genesis index is %d", candidate.Index)
		}
		if candidate.Hash != GenesisHash(difficulty) {
			return invalidBlock("genesis hash %s is not the genesis constant", candidate.Hash)
		}
		return nil
	}

	if candidate.PrevHash != tail.Hash {
		return invalidBlock("previous hash %s does not match tail %s", candidate.PrevHash, tail.Hash)
	}
	if candidate.Index != tail.Index+1 {
		return invalidBlock("index %d does not follow tail index %d", candidate.Index, tail.Index)
	}
	if err := ValidateBlockHash(candidate, difficulty); err != nil {
		return err
	}
	if len(candidate.Transactions) == 0 || !candidate.Transactions[0].IsCoinbase() {
		return invalidBlock("first transaction is not a coinbase")
	}
	return nil
}

// ValidateBlockHash checks that a block carries its own hash, the only check
// possible before its parent is known. A genesis shaped block must carry the
// genesis constant, any other block the digest of its fields meeting
// difficulty.
func ValidateBlockHash(block *model.Block, difficulty int) error {
	if block.IsGenesis() {
		if block.Hash != GenesisHash(difficulty) {
			return invalidBlock("genesis hash %s is not the genesis constant", block.Hash)
		}
		return nil
	}
	if !HasLeadingZeros(block.Hash, difficulty) {
		return invalidBlock("hash %s does not meet difficulty %d", block.Hash, difficulty)
	}
	digest, err := ComputeBlockHash(block)
	if err != nil {
		return invalidBlock("cannot digest block: %v", err)
	}
	if digest != block.Hash {
		return invalidBlock("hash %s does not match block content", block.Hash)
	}
	return nil
}

// LiveOutputIds lists the id of every unspent output in the ledger.
func LiveOutputIds(l *model.Ledger) map[string]bool {
	ids := make(map[string]bool)
	for _, outputs := range l.L {
		for i := 0; i < len(outputs); i++ {
			ids[outputs[i].Id] = true
		}
	}
	return ids
}

// claimOutputIds checks new outputs and records their ids in taken. Ids must
// be fresh: not live in the ledger, not created earlier in the same block or
// pool. Amounts must not be negative.
func claimOutputIds(outputs []model.Output, taken map[string]bool) error {
	for i := 0; i < len(outputs); i++ {
		o := &outputs[i]
		if o.Amount < 0 {
			return fmt.Errorf("%w: negative output %s", model.ErrMalformedRequest, o.Id)
		}
		if o.Id == "" {
			return fmt.Errorf("%w: output without id", model.ErrMalformedRequest)
		}
		if taken[o.Id] {
			return fmt.Errorf("%w: output id %s already in use", model.ErrMalformedRequest, o.Id)
		}
		taken[o.Id] = true
	}
	return nil
}

// ValidateTransactions checks block content against the ledger at its parent.
// A block holds exactly one coinbase, first, minting exactly reward. Every
// other transaction keeps its id, spends unspent outputs of its sender at most
// once across the block, and does not create value. No output in the block is
// negative or reuses an id that is live or created earlier in the block.
func ValidateTransactions(block *model.Block, l *model.Ledger, reward float64) error {
	if len(block.Transactions) == 0 {
		return invalidBlock("block has no transactions")
	}
	cb := &block.Transactions[0]
	if !cb.IsCoinbase() || len(cb.Inputs) != 0 {
		return invalidBlock("malformed coinbase")
	}
	taken := LiveOutputIds(l)
	if err := claimOutputIds(cb.Outputs, taken); err != nil {
		return invalidBlock("coinbase: %v", err)
	}
	if SumOutputs(cb.Outputs) != reward {
		return invalidBlock("coinbase mints %v, reward is %v", SumOutputs(cb.Outputs), reward)
	}

	// Store all seen outputs to avoid double spending inside the block.
	spent := make(map[string]bool)
	for i := 1; i < len(block.Transactions); i++ {
		tx := &block.Transactions[i]
		if tx.IsCoinbase() {
			return invalidBlock("extra coinbase at position %d", i)
		}
		id, err := ComputeTransactionId(tx)
		if err != nil || id != tx.Id {
			return invalidBlock("transaction %s id does not match content", tx.Id)
		}
		if err := validateSpend(tx, l, spent, taken); err != nil {
			return invalidBlock("transaction %s: %v", tx.Id, err)
		}
	}
	return nil
}

// validateSpend checks inputs against the ledger and the outputs already
// claimed in spent, and output ids against taken. On success the inputs are
// marked spent and the output ids taken.
func validateSpend(tx *model.Transaction, l *model.Ledger, spent map[string]bool, taken map[string]bool) error {
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", model.ErrInsufficientFunds)
	}
	totalInput := 0.0
	for i := 0; i < len(tx.Inputs); i++ {
		input := &tx.Inputs[i]
		if input.Address != tx.Sender {
			return fmt.Errorf("%w: input %s not owned by sender", model.ErrInvalidSignature, input.Id)
		}
		output, ok := FindUnspent(l, input.Address, input.Id)
		if !ok || spent[input.Id] {
			return fmt.Errorf("%w: input %s", model.ErrDoubleSpend, input.Id)
		}
		if output.Amount != input.Amount {
			return fmt.Errorf("%w: input %s amount differs from ledger", model.ErrDoubleSpend, input.Id)
		}
		totalInput += output.Amount
	}
	if totalInput < SumOutputs(tx.Outputs) {
		return fmt.Errorf("%w: outputs exceed inputs", model.ErrInsufficientFunds)
	}
	// Look up only the ids this transaction creates, a rejected transaction
	// leaves taken alone.
	fresh := make(map[string]bool, len(tx.Outputs))
	for i := 0; i < len(tx.Outputs); i++ {
		if taken[tx.Outputs[i].Id] {
			fresh[tx.Outputs[i].Id] = true
		}
	}
	if err := claimOutputIds(tx.Outputs, fresh); err != nil {
		return err
	}
	for i := 0; i < len(tx.Inputs); i++ {
		spent[tx.Inputs[i].Id] = true
	}
	for i := 0; i < len(tx.Outputs); i++ {
		taken[tx.Outputs[i].Id] = true
	}
	return nil
}

// ValidateSpend checks a single pending transaction against the ledger and the
// other pending transactions: their inputs are reserved, their output ids are
// taken.
func ValidateSpend(tx *model.Transaction, l *model.Ledger, pool *model.TransactionPool) error {
	claimed := ReservedOutputs(pool)
	taken := LiveOutputIds(l)
	for id := range PendingOutputIds(pool) {
		taken[id] = true
	}
	return validateSpend(tx, l, claimed, taken)
}

// ValidateChain checks a whole chain without touching it. Genesis must carry
// the zero previous hash, index 0, nonce 0 and the fixed genesis hash; every
// later block must link to its predecessor, follow its index, match its own
// digest and meet difficulty.
func ValidateChain(chain []model.Block, difficulty int) error {
	if len(chain) == 0 {
		return invalidChain("chain is empty")
	}

	genesis := &chain[0]
	if genesis.PrevHash != model.ZERO_HASH {
		return invalidChain("genesis previous hash is not zero")
	}
	if genesis.Index != 0 || genesis.Nonce != 0 {
		return invalidChain("genesis must have index 0 and nonce 0")
	}
	if genesis.Hash != GenesisHash(difficulty) {
		return invalidChain("genesis hash does not match the genesis constant")
	}

	for i := 1; i < len(chain); i++ {
		current := &chain[i]
		previous := &chain[i-1]
		if current.PrevHash != previous.Hash {
			return invalidChain("block %d previous hash does not match", i)
		}
		if current.Index != previous.Index+1 {
			return invalidChain("block %d index %d is not contiguous", i, current.Index)
		}
		digest, err := ComputeBlockHash(current)
		if err != nil {
			return invalidChain("block %d cannot be digested: %v", i, err)
		}
		if digest != current.Hash || !HasLeadingZeros(digest, difficulty) {
			return invalidChain("block %d hash does not match or difficulty not met", i)
		}
	}
	return nil
}

// FindCommonIndex returns the last index where both chains hold the same hash,
// scanning from genesis and stopping at the first divergence. Chains are
// assumed never to re-converge. -1 means no common block.
func FindCommonIndex(a []model.Block, b []model.Block) int {
	common := -1
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i].Hash != b[i].Hash {
			break
		}
		common = i
	}
	return common
}

// HasCommonGenesis reports whether two chains start from the same genesis
// block: same index, hash, transactions and previous hash.
func HasCommonGenesis(a []model.Block, b []model.Block) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	ga, gb := &a[0], &b[0]
	if ga.Index != gb.Index || ga.Hash != gb.Hash || ga.PrevHash != gb.PrevHash {
		return false
	}
	ta, err := GetTransactionsBytes(ga.Transactions)
	if err != nil {
		return false
	}
	tb, err := GetTransactionsBytes(gb.Transactions)
	if err != nil {
		return false
	}
	return bytes.Equal(ta, tb)
}
