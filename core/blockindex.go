package core

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"bipbbb/core/blockweight"
)

// BlockNode is an indexed block. Nodes are immutable once linked.
type BlockNode struct {
	hash   chainhash.Hash
	height uint64
	parent *BlockNode

	Header wire.BlockHeader
}

func newBlockNode(header *wire.BlockHeader, parent *BlockNode) *BlockNode {
	n := &BlockNode{
		hash:   header.BlockHash(),
		parent: parent,
		Header: *header,
	}
	if parent != nil {
		n.height = parent.height + 1
	}
	return n
}

func (n *BlockNode) Height() uint64       { return n.height }
func (n *BlockNode) Hash() chainhash.Hash { return n.hash }

// Parent implements blockweight.BlockRef and returns nil at the origin.
func (n *BlockNode) Parent() blockweight.BlockRef {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// ParentNode returns the parent node or nil at the origin.
func (n *BlockNode) ParentNode() *BlockNode {
	return n.parent
}

// Ancestor returns the ancestor of n at height, or nil if height is above n.
func (n *BlockNode) Ancestor(height uint64) *BlockNode {
	if height > n.height {
		return nil
	}
	node := n
	for node != nil && node.height != height {
		node = node.parent
	}
	return node
}
