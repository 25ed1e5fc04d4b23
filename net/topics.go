package net

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"bipbbb/core/blockweight"
)

// TopicRetarget carries retarget announcements.
const TopicRetarget = "bipbbb/retarget/1"

const maxWireAnnouncement = 1024

// Announcement reports a node's multiplier after a retarget decision at
// Height. Peers following the same chain must agree on After.
type Announcement struct {
	Network string `msgpack:"n"`
	Kind    string `msgpack:"k"`
	Height  uint64 `msgpack:"h"`
	Before  uint32 `msgpack:"b"`
	After   uint32 `msgpack:"a"`
}

// announcementFor converts an engine event; ok is false for events that are
// not announced.
func announcementFor(network string, ev blockweight.Event) (Announcement, bool) {
	switch ev.Kind {
	case blockweight.EventRetarget, blockweight.EventUnmoved, blockweight.EventOverride:
		return Announcement{
			Network: network,
			Kind:    ev.Kind.String(),
			Height:  ev.Height,
			Before:  ev.Before,
			After:   ev.After,
		}, true
	default:
		return Announcement{}, false
	}
}

func encodeAnnouncement(a Announcement) ([]byte, error) {
	data, err := msgpack.Marshal(&a)
	if err != nil {
		return nil, errors.Wrap(err, "encoding announcement")
	}
	return data, nil
}

func decodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if len(data) > maxWireAnnouncement {
		return a, errors.Errorf("announcement of %d bytes", len(data))
	}
	if err := msgpack.Unmarshal(data, &a); err != nil {
		return a, errors.Wrap(err, "decoding announcement")
	}
	return a, nil
}
