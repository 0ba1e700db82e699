package storage

import (
	"testing"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(index int64, hash string, prev string) model.Block {
	return model.Block{
		Index:    index,
		Hash:     hash,
		PrevHash: prev,
		Transactions: []model.Transaction{{
			Id:      "tx" + hash,
			Sender:  model.COINBASE_SENDER,
			Outputs: []model.Output{{Id: "out" + hash, Address: "addr", Amount: 50}},
		}},
	}
}

func TestAppendAndLoad(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	b0 := block(0, "aa", model.ZERO_HASH)
	b1 := block(1, "bb", "aa")
	// Index order wins over insertion order.
	require.NoError(t, s.AppendBlock(&b1))
	require.NoError(t, s.AppendBlock(&b0))

	chain, orphans, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, orphans)
	require.Len(t, chain, 2)
	assert.Equal(t, "aa", chain[0].Hash)
	assert.Equal(t, "bb", chain[1].Hash)
	assert.Equal(t, 50.0, chain[1].Transactions[0].Outputs[0].Amount)
}

func TestReplaceChain(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for i, h := range []string{"aa", "bb", "cc"} {
		b := block(int64(i), h, "")
		require.NoError(t, s.AppendBlock(&b))
	}
	require.NoError(t, s.ReplaceChain([]model.Block{block(0, "aa", model.ZERO_HASH), block(1, "dd", "aa")}))

	chain, _, err := s.Load()
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "dd", chain[1].Hash)
}

func TestSaveOrphansOverwrites(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveOrphans([]model.Block{block(4, "x1", "p"), block(5, "x2", "x1")}))
	require.NoError(t, s.SaveOrphans([]model.Block{block(7, "y1", "q")}))

	_, orphans, err := s.Load()
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "y1", orphans[0].Hash)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	b0 := block(0, "aa", model.ZERO_HASH)
	require.NoError(t, s.AppendBlock(&b0))
	require.NoError(t, s.SaveOrphans([]model.Block{block(3, "zz", "yy")}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	chain, orphans, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	assert.Len(t, orphans, 1)
}
