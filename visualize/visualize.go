package visualize

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Luismorlan/pow_ledger/model"
	"github.com/bradleyjkemp/memviz"
)

// We re-define the rendered model here because the chain model carries
// signatures and ids that only clutter the graph.
type output struct {
	address string
	amount  float64
}

type transaction struct {
	id      string
	sender  string
	inputs  []output
	outputs []output
}

type block struct {
	index    int64
	hash     string
	prevHash string
	nonce    int64
	coinbase []output
	txs      []transaction
	children []*block
}

// What gets rendered: the canonical branch from the root, with orphan forks
// hanging off their parents, and orphans whose parent is unknown.
type graph struct {
	root     *block
	detached []*block
}

// The string of address and hash is just too long to render, instead we take only first 3 and last 3
// characters and replace the middle part with '...'. E.g. "abcdefghi" will be rendered as "abc...ghi"
func shortenString(s string) string {
	if len(s) < 9 {
		return s
	}
	return fmt.Sprintf("%s...%s", s[0:3], s[len(s)-3:])
}

func toOutputs(outs []model.Output) []output {
	var res []output
	for i := 0; i < len(outs); i++ {
		res = append(res, output{address: shortenString(outs[i].Address), amount: outs[i].Amount})
	}
	return res
}

func toBlock(b *model.Block) *block {
	n := &block{
		index:    b.Index,
		hash:     shortenString(b.Hash),
		prevHash: shortenString(b.PrevHash),
		nonce:    b.Nonce,
	}
	for i := 0; i < len(b.Transactions); i++ {
		tx := &b.Transactions[i]
		if tx.IsCoinbase() {
			n.coinbase = toOutputs(tx.Outputs)
			continue
		}
		n.txs = append(n.txs, transaction{
			id:      shortenString(tx.Id),
			sender:  shortenString(tx.Sender),
			inputs:  toOutputs(tx.Inputs),
			outputs: toOutputs(tx.Outputs),
		})
	}
	return n
}

// Build the last d+1 blocks of chain with every orphan attached under its
// parent when the parent is shown.
func buildGraph(chain []model.Block, orphans []model.Block, d int) graph {
	g := graph{}
	nodes := make(map[string]*block)
	start := len(chain) - 1 - d
	if start < 0 {
		start = 0
	}
	var prev *block
	for i := start; i < len(chain); i++ {
		n := toBlock(&chain[i])
		nodes[chain[i].Hash] = n
		if prev == nil {
			g.root = n
		} else {
			prev.children = append(prev.children, n)
		}
		prev = n
	}

	// Orphans may chain on each other, attach until nothing moves.
	pending := orphans
	for len(pending) > 0 {
		var rest []model.Block
		for i := range pending {
			parent, ok := nodes[pending[i].PrevHash]
			if !ok {
				rest = append(rest, pending[i])
				continue
			}
			n := toBlock(&pending[i])
			nodes[pending[i].Hash] = n
			parent.children = append(parent.children, n)
		}
		if len(rest) == len(pending) {
			break
		}
		pending = rest
	}
	for i := range pending {
		g.detached = append(g.detached, toBlock(&pending[i]))
	}
	return g
}

// Render writes a graphviz graph of the last d blocks of chain, their orphan
// forks and any orphan whose parent is not shown.
func Render(w io.Writer, chain []model.Block, orphans []model.Block, d int) error {
	if d < 0 {
		return fmt.Errorf("depth must not be negative, got %d", d)
	}
	g := buildGraph(chain, orphans, d)
	buf := &bytes.Buffer{}
	memviz.Map(buf, &g)
	if !strings.Contains(buf.String(), "digraph") {
		return errors.New("graph rendering produced no output")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderFile writes the graph to dotFile and, when graphviz is installed,
// converts it to a png next to it. Returns the png path, empty without
// graphviz.
func RenderFile(dotFile string, chain []model.Block, orphans []model.Block, d int) (string, error) {
	f, err := os.Create(dotFile)
	if err != nil {
		return "", err
	}
	if err := Render(f, chain, orphans, d); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	dot, err := exec.LookPath("dot")
	if err != nil {
		return "", nil
	}
	png := strings.TrimSuffix(dotFile, ".dot") + ".png"
	if err := exec.Command(dot, "-Tpng", dotFile, "-o", png).Run(); err != nil {
		return "", fmt.Errorf("graphviz: %w", err)
	}
	return png, nil
}
