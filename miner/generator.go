// Package miner builds blocks carrying a block weight multiplier vote in
// their coinbase. It is meant for regtest style networks where proof of
// work is trivial.
package miner

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"bipbbb/core"
	"bipbbb/core/blockweight"
	"bipbbb/core/config"
)

// ErrNoSolution is returned when no nonce satisfies the target.
var ErrNoSolution = errors.New("no proof of work solution within nonce range")

// maxNonce bounds the nonce search of a single block.
var maxNonce uint32 = 1 << 22

// Generator produces blocks on top of a given parent.
type Generator struct {
	params *config.Params

	mu         sync.Mutex
	vote       uint32
	extraNonce uint64
	pkScript   []byte
	now        func() time.Time
}

// NewGenerator returns a generator whose coinbases carry vote. A zero vote
// leaves the marker out.
func NewGenerator(params *config.Params, vote uint32) (*Generator, error) {
	pkScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_TRUE).Script()
	if err != nil {
		return nil, errors.Wrap(err, "building output script")
	}
	return &Generator{
		params:   params,
		vote:     vote,
		pkScript: pkScript,
		now:      time.Now,
	}, nil
}

// SetVote changes the vote of subsequent blocks.
func (g *Generator) SetVote(vote uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vote = vote
}

// Vote returns the vote put into new coinbases.
func (g *Generator) Vote() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vote
}

// CoinbaseScript returns height || extraNonce || vote as a script.
func CoinbaseScript(height uint64, extraNonce uint64, vote uint32) ([]byte, error) {
	b := txscript.NewScriptBuilder().AddInt64(int64(height)).AddInt64(int64(extraNonce))
	if vote != 0 {
		b.AddData(blockweight.FormatVote(vote))
	}
	script, err := b.Script()
	if err != nil {
		return nil, errors.Wrap(err, "building coinbase script")
	}
	return script, nil
}

// CoinbaseTx builds a coinbase for height paying the block subsidy.
func (g *Generator) CoinbaseTx(height uint64, extraNonce uint64, vote uint32) (*wire.MsgTx, error) {
	script, err := CoinbaseScript(height, extraNonce, vote)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
		SignatureScript:  script,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(blockchain.CalcBlockSubsidy(int32(height), g.params.Chain), g.pkScript))
	return tx, nil
}

// NextBlock builds and solves a block extending parent.
func (g *Generator) NextBlock(parent *core.BlockNode) (*wire.MsgBlock, error) {
	g.mu.Lock()
	vote := g.vote
	g.extraNonce++
	extraNonce := g.extraNonce
	now := g.now()
	g.mu.Unlock()

	height := parent.Height() + 1
	coinbase, err := g.CoinbaseTx(height, extraNonce, vote)
	if err != nil {
		return nil, err
	}

	merkles := blockchain.BuildMerkleTreeStore([]*btcutil.Tx{btcutil.NewTx(coinbase)}, false)

	// Timestamps must keep increasing even when blocks come faster than
	// the clock.
	ts := now.Truncate(time.Second)
	if minTs := parent.Header.Timestamp.Add(time.Second); ts.Before(minTs) {
		ts = minTs
	}

	msg := wire.NewMsgBlock(&wire.BlockHeader{
		Version:    4,
		PrevBlock:  parent.Hash(),
		MerkleRoot: *merkles[len(merkles)-1],
		Timestamp:  ts,
		Bits:       g.params.Chain.PowLimitBits,
	})
	if err := msg.AddTransaction(coinbase); err != nil {
		return nil, errors.Wrap(err, "adding coinbase")
	}

	if err := solve(&msg.Header); err != nil {
		return nil, errors.Wrapf(err, "height %d", height)
	}
	return msg, nil
}

// solve searches for a nonce meeting the header's target.
func solve(header *wire.BlockHeader) error {
	target := blockchain.CompactToBig(header.Bits)
	for nonce := uint32(0); nonce < maxNonce; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return nil
		}
	}
	return ErrNoSolution
}
