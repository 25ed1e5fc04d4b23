package blockweight

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// testNode is a BlockRef over an in-memory chain.
type testNode struct {
	height uint64
	hash   chainhash.Hash
	parent *testNode
}

func (n *testNode) Height() uint64       { return n.height }
func (n *testNode) Hash() chainhash.Hash { return n.hash }
func (n *testNode) Parent() BlockRef {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// testChain keeps blocks by hash and implements ChainStore.
type testChain struct {
	nodes   []*testNode
	blocks  map[chainhash.Hash]*wire.MsgBlock
	missing map[chainhash.Hash]bool
	fetches int
}

func (c *testChain) FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	c.fetches++
	if c.missing[*hash] {
		return nil, errors.New("not found")
	}
	msg, ok := c.blocks[*hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

// tip returns the highest node.
func (c *testChain) tip() *testNode {
	return c.nodes[len(c.nodes)-1]
}

// at returns the node at height.
func (c *testChain) at(height uint64) *testNode {
	return c.nodes[height-c.nodes[0].height]
}

// coinbaseScript builds a script with the BIP34 height push, an arbitrary
// tag and the given trailer.
func coinbaseScript(t testing.TB, height uint64, trailer []byte) []byte {
	t.Helper()
	prefix, err := CoinbaseHeightPrefix(height)
	require.NoError(t, err)
	script := append([]byte{}, prefix...)
	script = append(script, []byte("/test/")...)
	return append(script, trailer...)
}

func coinbaseBlock(script []byte) *wire.MsgBlock {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  script,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(50, []byte{0x51}))

	msg := wire.NewMsgBlock(&wire.BlockHeader{})
	_ = msg.AddTransaction(tx)
	return msg
}

// newTestChain builds count blocks starting at height base. vote returns the
// raw vote of the block at a height, 0 meaning no marker.
func newTestChain(t testing.TB, base, count uint64, vote func(height uint64) uint32) *testChain {
	t.Helper()
	c := &testChain{
		blocks:  make(map[chainhash.Hash]*wire.MsgBlock),
		missing: make(map[chainhash.Hash]bool),
	}
	var parent *testNode
	for h := base; h < base+count; h++ {
		var trailer []byte
		if v := vote(h); v != 0 {
			trailer = FormatVote(v)
		}
		n := &testNode{
			height: h,
			hash:   chainhash.DoubleHashH([]byte(fmt.Sprintf("block-%d", h))),
			parent: parent,
		}
		c.blocks[n.hash] = coinbaseBlock(coinbaseScript(t, h, trailer))
		c.nodes = append(c.nodes, n)
		parent = n
	}
	return c
}

func constVote(v uint32) func(uint64) uint32 {
	return func(uint64) uint32 { return v }
}

// recorder collects emitted events.
type recorder struct {
	events []Event
}

func (r *recorder) Emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.events {
		if ev.Kind == EventVote {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}
