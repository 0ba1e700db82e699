package utils

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Luismorlan/pow_ledger/commands"
	"github.com/Luismorlan/pow_ledger/model"
	"github.com/minio/sha256-simd"
)

// Fixed genesis digest. The first DIFFICULTY characters are replaced by zeros,
// so the constant always satisfies the configured difficulty.
const GENESIS_HASH_SEED = "ab589a2161962fc11a616b271098b4fee6653dbed584d7ced30c76efe4c7bd61"

// GenesisHash returns the hardcoded genesis hash for a difficulty. Genesis is
// not mined, this is the only hash not derived from the block's fields.
func GenesisHash(difficulty int) string {
	if difficulty > len(GENESIS_HASH_SEED) {
		difficulty = len(GENESIS_HASH_SEED)
	}
	return strings.Repeat("0", difficulty) + GENESIS_HASH_SEED[difficulty:]
}

func canonicalTransactions(txs []model.Transaction) []model.Transaction {
	res := make([]model.Transaction, len(txs))
	for i := 0; i < len(txs); i++ {
		tx := txs[i]
		tx.Inputs = canonicalOutputs(tx.Inputs)
		tx.Outputs = canonicalOutputs(tx.Outputs)
		if len(tx.Signature) == 0 {
			tx.Signature = nil
		}
		res[i] = tx
	}
	return res
}

// GetTransactionsBytes is the JSON form of a transaction list as used in the
// block digest.
func GetTransactionsBytes(txs []model.Transaction) ([]byte, error) {
	return json.Marshal(canonicalTransactions(txs))
}

// Every digest input before the nonce: index, timestamp, transactions,
// previous hash.
func getBlockPrefix(block *model.Block) ([]byte, error) {
	txBytes, err := GetTransactionsBytes(block.Transactions)
	if err != nil {
		return nil, err
	}
	var rawBlock []byte
	rawBlock = append(rawBlock, Int64ToString(block.Index)...)
	rawBlock = append(rawBlock, FormatTimestamp(block.Timestamp)...)
	rawBlock = append(rawBlock, txBytes...)
	rawBlock = append(rawBlock, block.PrevHash...)
	return rawBlock, nil
}

// GetBlockBytes concatenates every field but the hash in digest order.
func GetBlockBytes(block *model.Block) ([]byte, error) {
	rawBlock, err := getBlockPrefix(block)
	if err != nil {
		return nil, err
	}
	return append(rawBlock, Int64ToString(block.Nonce)...), nil
}

// ComputeBlockHash recomputes the hex digest of a block from its fields.
func ComputeBlockHash(block *model.Block) (string, error) {
	blockBytes, err := GetBlockBytes(block)
	if err != nil {
		return "", err
	}
	return BytesToHex(SHA256(blockBytes)), nil
}

// HasLeadingZeros reports whether a hex digest starts with difficulty '0' digits.
func HasLeadingZeros(digest string, difficulty int) bool {
	if difficulty > len(digest) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if digest[i] != '0' {
			return false
		}
	}
	return true
}

// Same as HasLeadingZeros on the raw digest, so the search loop never encodes
// losing hashes.
func bytesHaveLeadingZeroDigits(digest []byte, difficulty int) bool {
	if difficulty > 2*len(digest) {
		return false
	}
	for i := 0; i < difficulty/2; i++ {
		if digest[i] != 0 {
			return false
		}
	}
	if difficulty%2 == 1 {
		return digest[difficulty/2]>>4 == 0
	}
	return true
}

func MatchDifficulty(block *model.Block, difficulty int) (bool, string) {
	digest, err := ComputeBlockHash(block)
	if err != nil {
		return false, ""
	}
	return HasLeadingZeros(digest, difficulty), digest
}

// Mine fills nonce and hash so that the hash has difficulty leading zero hex
// digits. The search starts at nonce 0 and is single threaded. Between two
// nonces it checks ctx and ctl; any command received there interrupts the
// search and is returned together with ErrMiningInterrupted. maxNonce bounds
// the search, 0 means unbounded. When no nonce is found, block.Nonce holds the
// number of nonces tried and the hash stays empty.
func Mine(ctx context.Context, block *model.Block, difficulty int, maxNonce int64, ctl <-chan commands.Command) (commands.Command, error) {
	prefix, err := getBlockPrefix(block)
	if err != nil {
		return commands.NewDefaultCommand(), err
	}
	buf := make([]byte, 0, len(prefix)+20)
	for nonce := int64(0); maxNonce == 0 || nonce < maxNonce; nonce++ {
		select {
		case c := <-ctl:
			block.Nonce = nonce
			return c, model.ErrMiningInterrupted
		case <-ctx.Done():
			block.Nonce = nonce
			return commands.NewDefaultCommand(), ctx.Err()
		default:
		}

		buf = append(buf[:0], prefix...)
		buf = append(buf, Int64ToString(nonce)...)
		digest := sha256.Sum256(buf)
		if bytesHaveLeadingZeroDigits(digest[:], difficulty) {
			block.Nonce = nonce
			block.Hash = BytesToHex(digest[:])
			return commands.NewDefaultCommand(), nil
		}
	}
	block.Nonce = maxNonce
	return commands.NewDefaultCommand(), model.ErrNonceExhausted
}

// CreateGenesisBlock builds the unmined first block that pays reward to
// address.
func CreateGenesisBlock(address string, reward float64, difficulty int) model.Block {
	return model.Block{
		Index:        0,
		Timestamp:    Now(),
		Transactions: []model.Transaction{CreateCoinbaseTx(reward, address)},
		PrevHash:     model.ZERO_HASH,
		Nonce:        0,
		Hash:         GenesisHash(difficulty),
	}
}

// CreateCandidateBlock assembles an unmined block on top of tail: coinbase
// first, then txs.
func CreateCandidateBlock(tail *model.Block, txs []model.Transaction, address string, reward float64) model.Block {
	all := make([]model.Transaction, 0, len(txs)+1)
	all = append(all, CreateCoinbaseTx(reward, address))
	all = append(all, txs...)
	return model.Block{
		Index:        tail.Index + 1,
		Timestamp:    Now(),
		Transactions: all,
		PrevHash:     tail.Hash,
		Nonce:        0,
	}
}
