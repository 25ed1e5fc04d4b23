package blockweight

import (
	"bytes"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var (
	// ErrNoCoinbase is returned when a block's first transaction is not a
	// coinbase.
	ErrNoCoinbase = errors.New("first transaction is not a coinbase")

	// ErrBlockUnavailable is returned when a block payload cannot be read.
	ErrBlockUnavailable = errors.New("block unavailable")
)

// ChainStore fetches full block payloads for indexed blocks.
type ChainStore interface {
	FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error)
}

// HeightEncoder returns the canonical script prefix a coinbase at height
// starts with.
type HeightEncoder func(height uint64) ([]byte, error)

// CoinbaseHeightPrefix encodes height as a minimal script number push, the
// form BIP34 mandates at the start of a coinbase script.
func CoinbaseHeightPrefix(height uint64) ([]byte, error) {
	return txscript.NewScriptBuilder().AddInt64(int64(height)).Script()
}

// coinbaseVoteText returns the part of a block's coinbase script that is
// searched for a vote.
func coinbaseVoteText(msg *wire.MsgBlock, height uint64, enc HeightEncoder) ([]byte, error) {
	if len(msg.Transactions) == 0 || !blockchain.IsCoinBaseTx(msg.Transactions[0]) {
		return nil, ErrNoCoinbase
	}

	script := msg.Transactions[0].TxIn[0].SignatureScript

	prefix, err := enc(height)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding height %d", height)
	}
	if bytes.HasPrefix(script, prefix) {
		return script[len(prefix):], nil
	}
	return script, nil
}

// BlockVote returns the vote in the coinbase of msg, a block at height.
func BlockVote(msg *wire.MsgBlock, height uint64) (uint32, error) {
	text, err := coinbaseVoteText(msg, height, CoinbaseHeightPrefix)
	if err != nil {
		return 0, err
	}
	return FindVote(text), nil
}
