package storage

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock(nonce uint32) *wire.MsgBlock {
	hdr := chaincfg.RegressionNetParams.GenesisBlock.Header
	hdr.Nonce = nonce
	msg := wire.NewMsgBlock(&hdr)
	for _, tx := range chaincfg.RegressionNetParams.GenesisBlock.Transactions {
		_ = msg.AddTransaction(tx)
	}
	return msg
}

type opener func(t *testing.T) BlockStore

func backends() map[string]opener {
	return map[string]opener{
		"memory": func(t *testing.T) BlockStore { return NewMemory() },
		"badger": func(t *testing.T) BlockStore {
			s, err := OpenBadgerInMemory()
			require.NoError(t, err)
			return s
		},
		"leveldb": func(t *testing.T) BlockStore {
			s, err := OpenLevelDBInMemory()
			require.NoError(t, err)
			return s
		},
	}
}

func TestBlockStore(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			a, b := testBlock(1), testBlock(2)
			require.NoError(t, s.PutBlock(a))
			require.NoError(t, s.PutBlock(b))

			hash := a.BlockHash()
			got, err := s.FetchBlock(&hash)
			require.NoError(t, err)
			assert.Equal(t, hash, got.BlockHash())
			require.Len(t, got.Transactions, 1)
			assert.Equal(t, a.Transactions[0].TxHash(), got.Transactions[0].TxHash())

			missing := chainhash.DoubleHashH([]byte("missing"))
			_, err = s.FetchBlock(&missing)
			assert.ErrorIs(t, err, ErrBlockNotFound)

			seen := map[chainhash.Hash]bool{}
			require.NoError(t, s.ForEachBlock(func(msg *wire.MsgBlock) error {
				seen[msg.BlockHash()] = true
				return nil
			}))
			assert.Equal(t, map[chainhash.Hash]bool{a.BlockHash(): true, b.BlockHash(): true}, seen)

			stop := errors.New("stop")
			calls := 0
			err = s.ForEachBlock(func(*wire.MsgBlock) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestBlockStoreTip(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, err := s.Tip()
			assert.ErrorIs(t, err, ErrNoTip)

			want := testBlock(3).BlockHash()
			require.NoError(t, s.PutTip(want))
			got, err := s.Tip()
			require.NoError(t, err)
			assert.Equal(t, want, got)

			// The tip key is not a block.
			count := 0
			require.NoError(t, s.ForEachBlock(func(*wire.MsgBlock) error {
				count++
				return nil
			}))
			assert.Zero(t, count)
		})
	}
}

func TestOpenOnDiskReopens(t *testing.T) {
	for _, backend := range []string{BackendBadger, BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			s, err := Open(backend, dir)
			require.NoError(t, err)
			blk := testBlock(4)
			require.NoError(t, s.PutBlock(blk))
			require.NoError(t, s.PutTip(blk.BlockHash()))
			require.NoError(t, s.Close())

			s, err = Open(backend, dir)
			require.NoError(t, err)
			defer s.Close()

			tip, err := s.Tip()
			require.NoError(t, err)
			assert.Equal(t, blk.BlockHash(), tip)
			_, err = s.FetchBlock(&tip)
			assert.NoError(t, err)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("sqlite", t.TempDir())
	assert.Error(t, err)
}
