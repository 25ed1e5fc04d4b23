package storage

import (
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore keeps blocks in a goleveldb database.
type LevelDBStore struct {
	conn *leveldb.DB
}

// OpenLevelDB opens or creates a leveldb store in dataDir/leveldb.
func OpenLevelDB(dataDir string) (*LevelDBStore, error) {
	conn, err := leveldb.OpenFile(filepath.Join(dataDir, "leveldb"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb")
	}
	return &LevelDBStore{conn: conn}, nil
}

// OpenLevelDBInMemory opens a leveldb store backed by memory.
func OpenLevelDBInMemory() (*LevelDBStore, error) {
	conn, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening leveldb")
	}
	return &LevelDBStore{conn: conn}, nil
}

func (l *LevelDBStore) PutBlock(msg *wire.MsgBlock) error {
	hash := msg.BlockHash()
	val, err := encodeBlock(msg)
	if err != nil {
		return err
	}
	return l.conn.Put(blockKey(&hash), val, nil)
}

func (l *LevelDBStore) FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	val, err := l.conn.Get(blockKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(ErrBlockNotFound, "hash %s", hash)
	}
	if err != nil {
		return nil, err
	}
	return decodeBlock(val)
}

func (l *LevelDBStore) ForEachBlock(fn func(msg *wire.MsgBlock) error) error {
	it := l.conn.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer it.Release()

	for it.Next() {
		msg, err := decodeBlock(it.Value())
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return it.Error()
}

func (l *LevelDBStore) PutTip(hash chainhash.Hash) error {
	return l.conn.Put(tipKey, hash.CloneBytes(), nil)
}

func (l *LevelDBStore) Tip() (chainhash.Hash, error) {
	val, err := l.conn.Get(tipKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return chainhash.Hash{}, ErrNoTip
	}
	if err != nil {
		return chainhash.Hash{}, err
	}
	return decodeTip(val)
}

func (l *LevelDBStore) Close() error {
	return l.conn.Close()
}
