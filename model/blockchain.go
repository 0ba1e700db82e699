package model

import "strings"

// Hash length in hex characters, used for the all-zero genesis parent.
const HASH_HEX_LEN = 64

// Previous hash of the genesis block.
var ZERO_HASH = strings.Repeat("0", HASH_HEX_LEN)

type Block struct {
	// Height of this block, genesis is 0.
	Index int64 `json:"index"`
	// Unix seconds when the candidate was assembled.
	Timestamp float64 `json:"timestamp"`
	// Transactions for this block. The first transaction is the coinbase transaction.
	Transactions []Transaction `json:"transactions"`
	// Hash of the previous block in the hex format.
	PrevHash string `json:"previous_hash"`
	// Nonce is the miner's challenge for computing the block.
	Nonce int64 `json:"nonce"`
	// Hash of this entire block in the hex string format.
	Hash string `json:"hash"`
}

func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.PrevHash == ZERO_HASH
}

// Blockchain is the canonical block sequence plus blocks that could not be
// attached to its tail yet.
type Blockchain struct {
	// Index-contiguous, hash-linked blocks starting at genesis.
	Chain []Block
	// Blocks whose parent is not the tail. Never dropped on arrival.
	Orphans []Block
}

// Create a new, empty blockchain. The genesis block is either mined locally or
// pulled from a peer.
func NewBlockChain() Blockchain {
	return Blockchain{}
}

// Tail returns the last block of the chain, or nil on an empty chain.
func (bc *Blockchain) Tail() *Block {
	if len(bc.Chain) == 0 {
		return nil
	}
	return &bc.Chain[len(bc.Chain)-1]
}

// TailHash is the hash a new block must link to.
func (bc *Blockchain) TailHash() string {
	if t := bc.Tail(); t != nil {
		return t.Hash
	}
	return ZERO_HASH
}
