package storage

import (
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// MemStore keeps serialized blocks in a map. Reads return fresh copies.
type MemStore struct {
	mu     sync.RWMutex
	blocks map[chainhash.Hash][]byte
	tip    *chainhash.Hash
}

func NewMemory() *MemStore {
	return &MemStore{blocks: make(map[chainhash.Hash][]byte)}
}

func (m *MemStore) PutBlock(msg *wire.MsgBlock) error {
	val, err := encodeBlock(msg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[msg.BlockHash()] = val
	return nil
}

func (m *MemStore) FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	m.mu.RLock()
	val, ok := m.blocks[*hash]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBlockNotFound, "hash %s", hash)
	}
	return decodeBlock(val)
}

// Delete removes a block. Used to simulate unreadable history.
func (m *MemStore) Delete(hash chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, hash)
}

func (m *MemStore) ForEachBlock(fn func(msg *wire.MsgBlock) error) error {
	m.mu.RLock()
	hashes := make([]chainhash.Hash, 0, len(m.blocks))
	for h := range m.blocks {
		hashes = append(hashes, h)
	}
	m.mu.RUnlock()

	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})

	for _, h := range hashes {
		msg, err := m.FetchBlock(&h)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) PutTip(hash chainhash.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tip = &hash
	return nil
}

func (m *MemStore) Tip() (chainhash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tip == nil {
		return chainhash.Hash{}, ErrNoTip
	}
	return *m.tip, nil
}

func (m *MemStore) Close() error {
	return nil
}
