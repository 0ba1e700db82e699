package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/btcsuite/btcd/btcec/v2"
	uuid "github.com/satori/go.uuid"
)

// Now returns the current time as unix seconds.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewOutput creates an output with a fresh unique id.
func NewOutput(address string, amount float64) model.Output {
	return model.Output{
		Id:      uuid.NewV4().String(),
		Address: address,
		Amount:  amount,
	}
}

// Nil and empty lists must hash the same, whatever decoder produced them.
func canonicalOutputs(outputs []model.Output) []model.Output {
	if outputs == nil {
		return []model.Output{}
	}
	return outputs
}

// GetOutputsBytes is the JSON form of an output list as used in digests.
func GetOutputsBytes(outputs []model.Output) ([]byte, error) {
	return json.Marshal(canonicalOutputs(outputs))
}

// ComputeTransactionId digests timestamp, sender, inputs and outputs, in that
// order.
func ComputeTransactionId(t *model.Transaction) (string, error) {
	inputs, err := GetOutputsBytes(t.Inputs)
	if err != nil {
		return "", err
	}
	outputs, err := GetOutputsBytes(t.Outputs)
	if err != nil {
		return "", err
	}
	var data []byte
	data = append(data, FormatTimestamp(t.Timestamp)...)
	data = append(data, t.Sender...)
	data = append(data, ':')
	data = append(data, inputs...)
	data = append(data, ':')
	data = append(data, outputs...)
	return BytesToHex(SHA512(data)), nil
}

// NewTransaction creates an unsigned transaction and fixes its id.
func NewTransaction(sender string, inputs []model.Output, outputs []model.Output) (*model.Transaction, error) {
	tx := model.Transaction{
		Timestamp: Now(),
		Sender:    sender,
		Inputs:    inputs,
		Outputs:   outputs,
	}
	id, err := ComputeTransactionId(&tx)
	if err != nil {
		return nil, err
	}
	tx.Id = id
	return &tx, nil
}

// Create a coinbase transaction that pays reward to the miner's address.
func CreateCoinbaseTx(reward float64, address string) model.Transaction {
	tx, err := NewTransaction(model.COINBASE_SENDER, nil, []model.Output{NewOutput(address, reward)})
	if err != nil {
		// Marshalling plain outputs cannot fail.
		panic(err)
	}
	return *tx
}

// SignTransaction signs the raw bytes of the transaction id.
func SignTransaction(t *model.Transaction, sk *btcec.PrivateKey) error {
	msg, err := HexToBytes(t.Id)
	if err != nil {
		return err
	}
	t.Signature = Sign(msg, sk)
	return nil
}

// VerifyTransactionSignature checks that the id still matches the content,
// that the signature covers the id, and that the key owns the sender address.
func VerifyTransactionSignature(t *model.Transaction, pk []byte) error {
	id, err := ComputeTransactionId(t)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	if id != t.Id {
		return fmt.Errorf("%w: transaction id does not match its content", model.ErrInvalidSignature)
	}
	key, err := BytesToPublicKey(pk)
	if err != nil {
		return fmt.Errorf("%w: bad public key: %v", model.ErrInvalidSignature, err)
	}
	if PublicKeyToAddress(pk) != t.Sender {
		return fmt.Errorf("%w: public key does not own sender address", model.ErrInvalidSignature)
	}
	msg, err := HexToBytes(t.Id)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}
	if !Verify(msg, key, t.Signature) {
		return fmt.Errorf("%w: signature does not cover transaction id", model.ErrInvalidSignature)
	}
	return nil
}

// CreatePendingTransaction builds and signs a transfer from the key owner to
// receiver. inputs and change come from input selection on a full node.
func CreatePendingTransaction(sk *btcec.PrivateKey, inputs []model.Output, change *model.Output, receiver string, value float64) (*model.Transaction, error) {
	sender := PublicKeyToAddress(PublicKeyToBytes(sk.PubKey()))
	outputs := []model.Output{NewOutput(receiver, value)}
	if change != nil {
		outputs = append(outputs, *change)
	}
	tx, err := NewTransaction(sender, inputs, outputs)
	if err != nil {
		return nil, err
	}
	if err := SignTransaction(tx, sk); err != nil {
		return nil, err
	}
	return tx, nil
}

func SumOutputs(outputs []model.Output) float64 {
	total := 0.0
	for i := 0; i < len(outputs); i++ {
		total += outputs[i].Amount
	}
	return total
}
