package model

// Ledger maps an address to its unspent outputs, in the order they were
// credited. It only changes through block application.
type Ledger struct {
	L map[string][]Output
}

func NewLedger() Ledger {
	return Ledger{
		L: make(map[string][]Output),
	}
}
