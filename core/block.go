// Package core maintains the block index, the best tip and the block feeds
// of a bipbbb node.
package core

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// maxWireBlock bounds blocks accepted from files and peers.
const maxWireBlock = wire.MaxBlockPayload

// EncodeBlock serializes a block for files and gossip.
func EncodeBlock(msg *wire.MsgBlock) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return nil, errors.Wrap(err, "encoding block")
	}
	return buf.Bytes(), nil
}

// DecodeBlock deserializes a block written by EncodeBlock.
func DecodeBlock(data []byte) (*wire.MsgBlock, error) {
	if len(data) > maxWireBlock {
		return nil, errors.Errorf("block of %d bytes exceeds %d", len(data), maxWireBlock)
	}
	var msg wire.MsgBlock
	if err := msg.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "decoding block")
	}
	return &msg, nil
}
