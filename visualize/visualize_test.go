package visualize

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainOf(n int) []model.Block {
	var chain []model.Block
	prev := model.ZERO_HASH
	for i := 0; i < n; i++ {
		hash := string(rune('a'+i)) + "0000000000"
		chain = append(chain, model.Block{
			Index:    int64(i),
			Hash:     hash,
			PrevHash: prev,
			Transactions: []model.Transaction{{
				Sender:  model.COINBASE_SENDER,
				Outputs: []model.Output{{Id: "o", Address: "miner-address", Amount: 50}},
			}},
		})
		prev = hash
	}
	return chain
}

func TestShortenString(t *testing.T) {
	assert.Equal(t, "abc", shortenString("abc"))
	assert.Equal(t, "abc...ghi", shortenString("abcdefghi"))
}

func TestBuildGraph(t *testing.T) {
	chain := chainOf(5)
	fork := model.Block{Index: 4, Hash: "fork000000", PrevHash: chain[3].Hash}
	onFork := model.Block{Index: 5, Hash: "fork100000", PrevHash: fork.Hash}
	lost := model.Block{Index: 9, Hash: "lost000000", PrevHash: "unknown"}

	g := buildGraph(chain, []model.Block{onFork, fork, lost}, 2)
	require.NotNil(t, g.root)
	assert.Equal(t, int64(2), g.root.index)

	// 2 -> 3 -> {4, fork -> onFork}
	three := g.root.children[0]
	require.Len(t, three.children, 2)
	assert.Equal(t, int64(4), three.children[0].index)
	forkNode := three.children[1]
	assert.Equal(t, shortenString(fork.Hash), forkNode.hash)
	require.Len(t, forkNode.children, 1)
	assert.Equal(t, int64(5), forkNode.children[0].index)

	require.Len(t, g.detached, 1)
	assert.Equal(t, int64(9), g.detached[0].index)
}

func TestBuildGraphDepthBeyondChain(t *testing.T) {
	g := buildGraph(chainOf(2), nil, 10)
	assert.Equal(t, int64(0), g.root.index)
	assert.Equal(t, "min...ess", g.root.coinbase[0].address)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, chainOf(3), nil, 1))
	assert.Contains(t, buf.String(), "digraph")

	assert.Error(t, Render(&buf, chainOf(3), nil, -1))
}

func TestRenderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.dot")
	_, err := RenderFile(path, chainOf(3), nil, 3)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")
}
