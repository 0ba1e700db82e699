package utils

import (
	"fmt"

	"github.com/Luismorlan/pow_ledger/model"
)

// Remove the output with the given id from address's unspent list. Absent
// outputs are ignored.
func claimOutput(l *model.Ledger, address string, id string) {
	outputs := l.L[address]
	for i := 0; i < len(outputs); i++ {
		if outputs[i].Id == id {
			outputs = append(outputs[:i:i], outputs[i+1:]...)
			break
		}
	}
	if len(outputs) == 0 {
		delete(l.L, address)
		return
	}
	l.L[address] = outputs
}

// Handle transaction:
// 1. Claim every input, unless it is a coinbase.
// 2. Store every output.
func HandleTransaction(tx *model.Transaction, l *model.Ledger) {
	if !tx.IsCoinbase() {
		for i := 0; i < len(tx.Inputs); i++ {
			input := &tx.Inputs[i]
			claimOutput(l, input.Address, input.Id)
		}
	}
	for i := 0; i < len(tx.Outputs); i++ {
		output := tx.Outputs[i]
		l.L[output.Address] = append(l.L[output.Address], output)
	}
}

// ApplyBlock moves the ledger past every transaction of the block, in order.
// Note that ledger will be changed directly, pass a deep copy to keep the
// original.
func ApplyBlock(block *model.Block, l *model.Ledger) {
	for i := 0; i < len(block.Transactions); i++ {
		HandleTransaction(&block.Transactions[i], l)
	}
}

// RebuildLedger replays a whole chain from genesis.
func RebuildLedger(chain []model.Block) model.Ledger {
	l := model.NewLedger()
	for i := 0; i < len(chain); i++ {
		ApplyBlock(&chain[i], &l)
	}
	return l
}

// FindUnspent returns the unspent output with the given id owned by address.
func FindUnspent(l *model.Ledger, address string, id string) (model.Output, bool) {
	outputs := l.L[address]
	for i := 0; i < len(outputs); i++ {
		if outputs[i].Id == id {
			return outputs[i], true
		}
	}
	return model.Output{}, false
}

// Balance sums every unspent output of address. Unknown addresses hold 0.
func Balance(l *model.Ledger, address string) float64 {
	return SumOutputs(l.L[address])
}

// SelectInputs walks address's unspent outputs in insertion order, skipping
// reserved ids, until the running total reaches requiredAmount. It returns the
// selected outputs and a change output for the excess, owned by address. The
// change is nil when the inputs match the amount exactly. This is first fit,
// not minimal change.
func SelectInputs(l *model.Ledger, address string, requiredAmount float64, reserved map[string]bool) ([]model.Output, *model.Output, error) {
	if requiredAmount <= 0 {
		return nil, nil, fmt.Errorf("%w: amount must be positive, got %v", model.ErrMalformedRequest, requiredAmount)
	}
	var selected []model.Output
	total := 0.0
	outputs := l.L[address]
	for i := 0; i < len(outputs); i++ {
		if reserved[outputs[i].Id] {
			continue
		}
		selected = append(selected, outputs[i])
		total += outputs[i].Amount
		if total >= requiredAmount {
			if total == requiredAmount {
				return selected, nil, nil
			}
			change := NewOutput(address, total-requiredAmount)
			return selected, &change, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s holds %v spendable, needs %v", model.ErrInsufficientFunds, address, total, requiredAmount)
}
