// Package storage persists wire blocks keyed by hash, plus the hash of the
// best tip.
package storage

import (
	"bytes"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var (
	// ErrBlockNotFound is returned when no block is stored under a hash.
	ErrBlockNotFound = errors.New("block not found")

	// ErrNoTip is returned by Tip on an empty store.
	ErrNoTip = errors.New("no tip stored")
)

// Backend names accepted by Open.
const (
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

var (
	blockPrefix = []byte("block:")
	tipKey      = []byte("chain:tip")
)

// BlockStore is the persistent block store the chain index is built from.
type BlockStore interface {
	// PutBlock stores msg under its block hash.
	PutBlock(msg *wire.MsgBlock) error

	// FetchBlock returns the block stored under hash or ErrBlockNotFound.
	FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error)

	// ForEachBlock calls fn for every stored block in key order. A non-nil
	// error from fn stops the walk and is returned.
	ForEachBlock(fn func(msg *wire.MsgBlock) error) error

	// PutTip records the best tip hash.
	PutTip(hash chainhash.Hash) error

	// Tip returns the recorded best tip hash or ErrNoTip.
	Tip() (chainhash.Hash, error)

	Close() error
}

// Open opens the named backend under dataDir.
func Open(backend, dataDir string) (BlockStore, error) {
	switch strings.ToLower(backend) {
	case BackendBadger, "":
		return OpenBadger(dataDir)
	case BackendLevelDB:
		return OpenLevelDB(dataDir)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unknown store backend %q", backend)
	}
}

func blockKey(hash *chainhash.Hash) []byte {
	key := make([]byte, 0, len(blockPrefix)+chainhash.HashSize)
	key = append(key, blockPrefix...)
	return append(key, hash[:]...)
}

func encodeBlock(msg *wire.MsgBlock) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return nil, errors.Wrap(err, "serializing block")
	}
	return buf.Bytes(), nil
}

func decodeBlock(val []byte) (*wire.MsgBlock, error) {
	var msg wire.MsgBlock
	if err := msg.Deserialize(bytes.NewReader(val)); err != nil {
		return nil, errors.Wrap(err, "deserializing block")
	}
	return &msg, nil
}

func decodeTip(val []byte) (chainhash.Hash, error) {
	var hash chainhash.Hash
	if err := hash.SetBytes(val); err != nil {
		return hash, errors.Wrap(err, "decoding tip")
	}
	return hash, nil
}
