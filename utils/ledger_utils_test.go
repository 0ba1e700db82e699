package utils

import (
	"testing"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTransaction(t *testing.T) {
	l := model.NewLedger()
	cb := CreateCoinbaseTx(30, "alice")
	HandleTransaction(&cb, &l)
	assert.Equal(t, 30.0, Balance(&l, "alice"))

	spend, err := NewTransaction("alice", cb.Outputs, []model.Output{NewOutput("bob", 10), NewOutput("alice", 20)})
	require.NoError(t, err)
	HandleTransaction(spend, &l)
	assert.Equal(t, 20.0, Balance(&l, "alice"))
	assert.Equal(t, 10.0, Balance(&l, "bob"))
	_, ok := FindUnspent(&l, "alice", cb.Outputs[0].Id)
	assert.False(t, ok)
	assert.Equal(t, 0.0, Balance(&l, "nobody"))
}

func TestClaimOutputDoesNotAlias(t *testing.T) {
	a, b := NewOutput("alice", 1), NewOutput("alice", 2)
	l := model.NewLedger()
	l.L["alice"] = []model.Output{a, b}
	snapshot := l.L["alice"]

	claimOutput(&l, "alice", a.Id)
	assert.Equal(t, []model.Output{b}, l.L["alice"])
	assert.Equal(t, []model.Output{a, b}, snapshot)

	claimOutput(&l, "alice", b.Id)
	_, ok := l.L["alice"]
	assert.False(t, ok)
}

func TestRebuildLedger(t *testing.T) {
	chain := createTestChain(t, 3, "miner")
	l := RebuildLedger(chain)
	assert.Equal(t, 3*TEST_REWARD, Balance(&l, "miner"))
	assert.Len(t, l.L["miner"], 3)
}

func TestSelectInputs(t *testing.T) {
	l := model.NewLedger()
	cb := CreateCoinbaseTx(30, "alice")
	HandleTransaction(&cb, &l)

	inputs, change, err := SelectInputs(&l, "alice", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, cb.Outputs, inputs)
	require.NotNil(t, change)
	assert.Equal(t, 20.0, change.Amount)
	assert.Equal(t, "alice", change.Address)

	_, _, err = SelectInputs(&l, "alice", 40, nil)
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	inputs, change, err = SelectInputs(&l, "alice", 30, nil)
	require.NoError(t, err)
	assert.Len(t, inputs, 1)
	assert.Nil(t, change)

	_, _, err = SelectInputs(&l, "alice", 0, nil)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)
	_, _, err = SelectInputs(&l, "alice", -5, nil)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)

	_, _, err = SelectInputs(&l, "alice", 10, map[string]bool{cb.Outputs[0].Id: true})
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestSelectInputsFirstFit(t *testing.T) {
	l := model.NewLedger()
	for _, amount := range []float64{5, 7, 100} {
		cb := CreateCoinbaseTx(amount, "alice")
		HandleTransaction(&cb, &l)
	}
	inputs, change, err := SelectInputs(&l, "alice", 10, nil)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 5.0, inputs[0].Amount)
	assert.Equal(t, 7.0, inputs[1].Amount)
	assert.Equal(t, 2.0, change.Amount)
	assert.Equal(t, 10.0, SumOutputs(inputs)-change.Amount)
}
