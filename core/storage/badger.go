package storage

import (
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// BadgerStore keeps blocks in a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger store in dataDir/badger.
func OpenBadger(dataDir string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataDir, "badger")
	return openBadger(badger.DefaultOptions(dbPath))
}

// OpenBadgerInMemory opens a badger store that is never written to disk.
func OpenBadgerInMemory() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "opening badger")
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) PutBlock(msg *wire.MsgBlock) error {
	hash := msg.BlockHash()
	val, err := encodeBlock(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(&hash), val)
	})
}

func (s *BadgerStore) FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	var msg *wire.MsgBlock
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			b, err := decodeBlock(val)
			if err != nil {
				return err
			}
			msg = b
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrapf(ErrBlockNotFound, "hash %s", hash)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStore) ForEachBlock(fn func(msg *wire.MsgBlock) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = blockPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				msg, err := decodeBlock(val)
				if err != nil {
					return err
				}
				return fn(msg)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) PutTip(hash chainhash.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tipKey, hash.CloneBytes())
	})
}

func (s *BadgerStore) Tip() (chainhash.Hash, error) {
	var tip chainhash.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tipKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			h, err := decodeTip(val)
			if err != nil {
				return err
			}
			tip = h
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return tip, ErrNoTip
	}
	return tip, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
