package core

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bipbbb/core/config"
	"bipbbb/core/storage"
)

var (
	// ErrBlockExists is returned when importing a block that is already
	// indexed or waiting in the orphan pool.
	ErrBlockExists = errors.New("block already known")

	// ErrOrphanBlock is returned when a block's parent is unknown. The block
	// is kept and imported once the parent arrives.
	ErrOrphanBlock = errors.New("parent block not found, queued in orphan pool")

	// ErrOrphanPoolFull is returned when an orphan cannot be queued.
	ErrOrphanPoolFull = errors.New("orphan pool full")
)

const maxOrphans = 1024

// TipHook is called with every new best tip. Hooks run synchronously under
// the chain lock and must not call back into the Chain.
type TipHook func(tip *BlockNode)

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainLogger sets the chain's logger.
func WithChainLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) {
		c.log = l
	}
}

// Chain indexes the stored blocks of one network and tracks the best tip,
// the indexed block with the greatest height.
type Chain struct {
	mu     sync.RWMutex
	params *config.Params
	store  storage.BlockStore
	log    *zap.Logger

	index map[chainhash.Hash]*BlockNode
	tip   *BlockNode

	// Orphan pool: parent hash -> blocks waiting for it.
	orphans     map[chainhash.Hash][]*wire.MsgBlock
	orphanSet   map[chainhash.Hash]struct{}
	orphanCount int

	hooks []TipHook

	subMu       sync.RWMutex
	subscribers []chan struct{}
}

// NewChain builds the block index from store. An empty store is seeded
// with the network's genesis block.
func NewChain(params *config.Params, store storage.BlockStore, opts ...ChainOption) (*Chain, error) {
	c := &Chain{
		params:    params,
		store:     store,
		log:       zap.NewNop(),
		index:     make(map[chainhash.Hash]*BlockNode),
		orphans:   make(map[chainhash.Hash][]*wire.MsgBlock),
		orphanSet: make(map[chainhash.Hash]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load links every stored block to the genesis block. Blocks that do not
// connect go to the orphan pool.
func (c *Chain) load() error {
	children := make(map[chainhash.Hash][]*wire.MsgBlock)
	count := 0
	err := c.store.ForEachBlock(func(msg *wire.MsgBlock) error {
		children[msg.Header.PrevBlock] = append(children[msg.Header.PrevBlock], msg)
		count++
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "loading blocks")
	}

	genesis := c.params.Chain.GenesisBlock
	genesisHash := genesis.BlockHash()

	if count == 0 {
		if err := c.store.PutBlock(genesis); err != nil {
			return errors.Wrap(err, "storing genesis block")
		}
		if err := c.store.PutTip(genesisHash); err != nil {
			return errors.Wrap(err, "storing tip")
		}
		c.tip = newBlockNode(&genesis.Header, nil)
		c.index[genesisHash] = c.tip
		c.log.Info("created genesis block", zap.Stringer("hash", genesisHash))
		return nil
	}

	root := c.findGenesis(children, genesisHash)
	if root == nil {
		return errors.Errorf("store has no genesis block %s", genesisHash)
	}

	// Breadth first from genesis; no recursion on long chains.
	c.tip = newBlockNode(&root.Header, nil)
	c.index[genesisHash] = c.tip
	queue := []*BlockNode{c.tip}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, msg := range children[parent.hash] {
			hash := msg.BlockHash()
			if _, ok := c.index[hash]; ok {
				continue
			}
			node := newBlockNode(&msg.Header, parent)
			c.index[hash] = node
			if node.height > c.tip.height {
				c.tip = node
			}
			queue = append(queue, node)
		}
		delete(children, parent.hash)
	}

	// The stored tip wins ties.
	if stored, err := c.store.Tip(); err == nil {
		if node, ok := c.index[stored]; ok && node.height == c.tip.height {
			c.tip = node
		}
	} else if !errors.Is(err, storage.ErrNoTip) {
		return errors.Wrap(err, "reading tip")
	}

	for _, msgs := range children {
		for _, msg := range msgs {
			if msg.BlockHash() == genesisHash {
				continue
			}
			c.addOrphan(msg)
		}
	}

	c.log.Info("loaded block index",
		zap.Int("blocks", len(c.index)),
		zap.Int("orphans", c.orphanCount),
		zap.Uint64("tipHeight", c.tip.height),
		zap.Stringer("tip", c.tip.hash))
	return nil
}

func (c *Chain) findGenesis(children map[chainhash.Hash][]*wire.MsgBlock, hash chainhash.Hash) *wire.MsgBlock {
	for _, msg := range children[chainhash.Hash{}] {
		if msg.BlockHash() == hash {
			return msg
		}
	}
	return nil
}

// Params returns the chain's consensus parameters.
func (c *Chain) Params() *config.Params {
	return c.params
}

// AddTipHook registers h to be called with every new best tip.
func (c *Chain) AddTipHook(h TipHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// SubscribeToHeadChanges returns a channel signalled after the best tip
// changes. Signals are dropped while the channel is full.
func (c *Chain) SubscribeToHeadChanges() <-chan struct{} {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan struct{}, 1)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

func (c *Chain) notifyHeadChange() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Tip returns the best tip.
func (c *Chain) Tip() *BlockNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// NodeByHash returns the indexed node for hash, or nil.
func (c *Chain) NodeByHash(hash chainhash.Hash) *BlockNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index[hash]
}

// OrphanCount returns the number of blocks waiting for a parent.
func (c *Chain) OrphanCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orphanCount
}

// FetchBlock reads a block payload from the store.
func (c *Chain) FetchBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	return c.store.FetchBlock(hash)
}

// ImportBlock stores and indexes msg. A block with an unknown parent is
// queued and ErrOrphanBlock returned. Orphans waiting on msg are imported
// right after it.
func (c *Chain) ImportBlock(msg *wire.MsgBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := msg.BlockHash()
	if _, ok := c.index[hash]; ok {
		return errors.Wrapf(ErrBlockExists, "%s", hash)
	}
	if _, ok := c.orphanSet[hash]; ok {
		return errors.Wrapf(ErrBlockExists, "%s", hash)
	}

	parent, ok := c.index[msg.Header.PrevBlock]
	if !ok {
		if err := c.addOrphan(msg); err != nil {
			return err
		}
		c.log.Debug("block queued in orphan pool",
			zap.Stringer("hash", hash),
			zap.Stringer("parent", msg.Header.PrevBlock))
		return errors.Wrapf(ErrOrphanBlock, "parent %s", msg.Header.PrevBlock)
	}

	if err := c.connect(msg, parent); err != nil {
		return err
	}

	// Orphans waiting on the new block, breadth first.
	queue := []chainhash.Hash{hash}
	for len(queue) > 0 {
		parentHash := queue[0]
		queue = queue[1:]

		waiting := c.takeOrphans(parentHash)
		for _, orphan := range waiting {
			if err := c.connect(orphan, c.index[parentHash]); err != nil {
				c.log.Warn("failed to import orphan block",
					zap.Stringer("hash", orphan.BlockHash()), zap.Error(err))
				continue
			}
			queue = append(queue, orphan.BlockHash())
		}
	}

	return nil
}

// connect stores msg, indexes it under parent and moves the tip if it is
// the new best block. Called with c.mu held.
func (c *Chain) connect(msg *wire.MsgBlock, parent *BlockNode) error {
	if err := c.store.PutBlock(msg); err != nil {
		return errors.Wrap(err, "storing block")
	}

	node := newBlockNode(&msg.Header, parent)
	c.index[node.hash] = node

	c.log.Debug("accepted block",
		zap.Uint64("height", node.height),
		zap.Stringer("hash", node.hash))

	if node.height <= c.tip.height {
		return nil
	}

	if err := c.store.PutTip(node.hash); err != nil {
		return errors.Wrap(err, "storing tip")
	}
	c.tip = node

	c.log.Info("new best tip",
		zap.Uint64("height", node.height),
		zap.Stringer("hash", node.hash))

	for _, h := range c.hooks {
		h(node)
	}
	c.notifyHeadChange()
	return nil
}

func (c *Chain) addOrphan(msg *wire.MsgBlock) error {
	if c.orphanCount >= maxOrphans {
		return errors.Wrapf(ErrOrphanPoolFull, "%d blocks", c.orphanCount)
	}
	prev := msg.Header.PrevBlock
	c.orphans[prev] = append(c.orphans[prev], msg)
	c.orphanSet[msg.BlockHash()] = struct{}{}
	c.orphanCount++
	return nil
}

func (c *Chain) takeOrphans(parent chainhash.Hash) []*wire.MsgBlock {
	waiting := c.orphans[parent]
	delete(c.orphans, parent)
	for _, msg := range waiting {
		delete(c.orphanSet, msg.BlockHash())
	}
	c.orphanCount -= len(waiting)
	return waiting
}
