package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const dropExt = ".blk"

// DropDir imports serialized blocks dropped into a directory, so blocks can
// be fed to a node without a network connection.
type DropDir struct {
	dir   string
	chain *Chain
	log   *zap.Logger
}

// NewDropDir creates dir if needed and returns a feed into chain.
func NewDropDir(dir string, chain *Chain, log *zap.Logger) (*DropDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating drop directory")
	}
	return &DropDir{dir: dir, chain: chain, log: log}, nil
}

// WriteBlock writes msg into the directory. The file only appears under its
// final name once complete.
func (d *DropDir) WriteBlock(msg *wire.MsgBlock) (string, error) {
	data, err := EncodeBlock(msg)
	if err != nil {
		return "", err
	}

	hash := msg.BlockHash()
	name := filepath.Join(d.dir, "block_"+hash.String()+dropExt)
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", errors.Wrap(err, "writing block file")
	}
	if err := os.Rename(tmp, name); err != nil {
		return "", errors.Wrap(err, "renaming block file")
	}
	return name, nil
}

// Scan imports every block file currently in the directory and returns how
// many connected to the index. Handled files are removed; files that failed
// to store are kept for the next scan.
func (d *DropDir) Scan() int {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		d.log.Warn("reading drop directory", zap.Error(err))
		return 0
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), dropExt) {
			continue
		}

		path := filepath.Join(d.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		msg, err := DecodeBlock(data)
		if err != nil {
			d.log.Warn("removing undecodable block file", zap.String("file", file.Name()), zap.Error(err))
			os.Remove(path)
			continue
		}

		err = d.chain.ImportBlock(msg)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, ErrOrphanBlock), errors.Is(err, ErrBlockExists):
		default:
			d.log.Warn("importing block file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		os.Remove(path)
	}
	return imported
}

// Run scans the directory every poll interval until ctx is done.
func (d *DropDir) Run(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Scan(); n > 0 {
				d.log.Debug("imported dropped blocks", zap.Int("count", n))
			}
		}
	}
}
