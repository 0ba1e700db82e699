package utils

import "github.com/Luismorlan/pow_ledger/model"

// AddToPool appends tx unless a transaction with the same id is pending.
func AddToPool(pool *model.TransactionPool, tx model.Transaction) bool {
	if PoolContains(pool, tx.Id) {
		return false
	}
	pool.Txs = append(pool.Txs, tx)
	return true
}

func PoolContains(pool *model.TransactionPool, id string) bool {
	for i := 0; i < len(pool.Txs); i++ {
		if pool.Txs[i].Id == id {
			return true
		}
	}
	return false
}

// DrainPool returns every pending transaction and leaves the pool empty.
// Transactions added afterwards start a new pool.
func DrainPool(pool *model.TransactionPool) []model.Transaction {
	txs := pool.Txs
	pool.Txs = nil
	return txs
}

// ReservedOutputs lists the output ids already claimed by pending transactions.
func ReservedOutputs(pool *model.TransactionPool) map[string]bool {
	reserved := make(map[string]bool)
	for i := 0; i < len(pool.Txs); i++ {
		for _, input := range pool.Txs[i].Inputs {
			reserved[input.Id] = true
		}
	}
	return reserved
}

// PendingOutputIds lists the ids of outputs pending transactions create.
func PendingOutputIds(pool *model.TransactionPool) map[string]bool {
	ids := make(map[string]bool)
	for i := 0; i < len(pool.Txs); i++ {
		for _, output := range pool.Txs[i].Outputs {
			ids[output.Id] = true
		}
	}
	return ids
}

// PrunePool keeps only pending transactions that are not in known and whose
// inputs are all still unspent in the ledger, without two of them claiming
// the same output or creating the same output id.
func PrunePool(pool *model.TransactionPool, l *model.Ledger, known map[string]bool) {
	var kept []model.Transaction
	claimed := make(map[string]bool)
	taken := LiveOutputIds(l)
	for i := 0; i < len(pool.Txs); i++ {
		tx := pool.Txs[i]
		if known[tx.Id] {
			continue
		}
		if err := validateSpend(&tx, l, claimed, taken); err != nil {
			continue
		}
		kept = append(kept, tx)
	}
	pool.Txs = kept
}

// TransactionIds collects the id of every transaction in the given blocks.
func TransactionIds(blocks []model.Block) map[string]bool {
	ids := make(map[string]bool)
	for i := 0; i < len(blocks); i++ {
		for _, tx := range blocks[i].Transactions {
			ids[tx.Id] = true
		}
	}
	return ids
}
