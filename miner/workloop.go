package miner

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bipbbb/core"
)

// Publisher relays a freshly mined block, e.g. to peers or a drop
// directory.
type Publisher func(msg *wire.MsgBlock)

// Mine extends the chain's best tip by one block and returns it.
func Mine(chain *core.Chain, gen *Generator) (*wire.MsgBlock, error) {
	msg, err := gen.NextBlock(chain.Tip())
	if err != nil {
		return nil, err
	}
	if err := chain.ImportBlock(msg); err != nil {
		return nil, errors.Wrap(err, "importing mined block")
	}
	return msg, nil
}

// MineN mines n blocks in a row.
func MineN(chain *core.Chain, gen *Generator, n int) error {
	for i := 0; i < n; i++ {
		if _, err := Mine(chain, gen); err != nil {
			return err
		}
	}
	return nil
}

// WorkLoop mines a block every interval until ctx is done. Each block is
// handed to publish after it was imported.
func WorkLoop(ctx context.Context, chain *core.Chain, gen *Generator, interval time.Duration, publish Publisher, log *zap.Logger) {
	log.Info("starting miner workloop",
		zap.Duration("interval", interval),
		zap.Uint32("vote", gen.Vote()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msg, err := Mine(chain, gen)
		if err != nil {
			log.Warn("mining failed", zap.Error(err))
			continue
		}

		hash := msg.BlockHash()
		log.Debug("mined block", zap.Stringer("hash", hash))
		if publish != nil {
			publish(msg)
		}
	}
}
