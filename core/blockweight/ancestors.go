package blockweight

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// ErrInsufficientHistory is returned when a walk needs more ancestors than
// the chain holds.
var ErrInsufficientHistory = errors.New("insufficient chain history")

// BlockRef is a read-only handle on an indexed block. Parent returns nil for
// the chain origin.
type BlockRef interface {
	Height() uint64
	Hash() chainhash.Hash
	Parent() BlockRef
}

// AncestorIter lazily yields a tip followed by its ancestors, at most depth
// refs in total. Call Reset to walk the same range again.
type AncestorIter struct {
	tip   BlockRef
	depth uint64

	cur  BlockRef
	seen uint64
	err  error
}

// Ancestors returns an iterator over tip and up to depth-1 of its ancestors.
func Ancestors(tip BlockRef, depth uint64) *AncestorIter {
	return &AncestorIter{tip: tip, depth: depth}
}

// Next advances the iterator. It returns false once depth refs were yielded
// or when the origin is reached early, in which case Err reports
// ErrInsufficientHistory.
func (it *AncestorIter) Next() bool {
	if it.err != nil || it.seen >= it.depth {
		return false
	}

	var next BlockRef
	if it.seen == 0 {
		next = it.tip
	} else {
		next = it.cur.Parent()
	}
	if next == nil {
		it.err = errors.Wrapf(ErrInsufficientHistory, "%d of %d ancestors available", it.seen, it.depth)
		return false
	}

	it.cur = next
	it.seen++
	return true
}

// Ref returns the ref the iterator is positioned on.
func (it *AncestorIter) Ref() BlockRef {
	return it.cur
}

// Err returns the error that stopped the walk, if any.
func (it *AncestorIter) Err() error {
	return it.err
}

// Reset rewinds the iterator to the tip.
func (it *AncestorIter) Reset() {
	it.cur = nil
	it.seen = 0
	it.err = nil
}
