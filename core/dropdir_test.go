package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bipbbb/core"
	"bipbbb/core/storage"
)

func TestDropDirImportsBlocks(t *testing.T) {
	params := regtestParams(t, 0)
	blocks := mineBlocks(t, params, 4)

	c := newChain(t, params, storage.NewMemory())
	dir := t.TempDir()
	d, err := core.NewDropDir(dir, c, zap.NewNop())
	require.NoError(t, err)

	for _, msg := range blocks {
		name, err := d.WriteBlock(msg)
		require.NoError(t, err)
		assert.Equal(t, ".blk", filepath.Ext(name))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.blk"), []byte("not a block"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	d.Scan()
	assert.Equal(t, uint64(4), c.Tip().Height())
	assert.Equal(t, blocks[3].BlockHash(), c.Tip().Hash())
	assert.Zero(t, c.OrphanCount())

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "notes.txt", left[0].Name())
}

func TestDropDirRunStopsWithContext(t *testing.T) {
	params := regtestParams(t, 0)
	blocks := mineBlocks(t, params, 1)

	c := newChain(t, params, storage.NewMemory())
	d, err := core.NewDropDir(t.TempDir(), c, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	_, err = d.WriteBlock(blocks[0])
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return c.Tip().Height() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
