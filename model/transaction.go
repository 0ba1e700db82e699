package model

// Sender value used by reward-minting transactions.
const COINBASE_SENDER = "Coinbase"

// Output is a spendable value record. It is produced by a transaction's output
// list (or a coinbase reward) and consumed exactly once by a later input list.
type Output struct {
	// Unique identifier assigned when the output is created. The ledger matches
	// spent inputs by this id, never by value.
	Id string `json:"id"`
	// Address of the owner.
	Address string `json:"address"`
	// how much value the output carries.
	Amount float64 `json:"amount"`
}

type Transaction struct {
	// Hex SHA-512 digest over timestamp, sender, inputs and outputs. Computed once
	// at creation, never recomputed in place.
	Id string `json:"transaction_id"`
	// Unix seconds at creation.
	Timestamp float64 `json:"timestamp"`
	// Sender address, or COINBASE_SENDER for the reward transaction.
	Sender string `json:"sender"`
	// Outputs of previous transactions consumed by this one.
	Inputs []Output `json:"inputs"`
	// New outputs created by this transaction, change included.
	Outputs []Output `json:"outputs"`
	// DER encoded signature over the transaction id.
	Signature []byte `json:"signature"`
}

func (t *Transaction) IsCoinbase() bool {
	return t.Sender == COINBASE_SENDER
}

type TransactionPool struct {
	// Pending transactions in arrival order. They have passed signature
	// verification but are not in any block yet.
	Txs []Transaction
}

// NewTransactionPool creates a new transaction pool with no transaction at all.
func NewTransactionPool() TransactionPool {
	return TransactionPool{}
}
